package vnpay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(apiURL string) *Client {
	c := New(Config{
		TmnCode:    "DEMOTMN1",
		HashSecret: "SECRETSECRETSECRETSECRETSECRET12",
		PayURL:     "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		APIURL:     apiURL,
		ReturnURL:  "https://tours.example.vn/payments/vnpay/return",
	}, nil)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestEncodeMatchesEncodeURIComponent(t *testing.T) {
	assert.Equal(t, "a+b!~*'()-_.", encode("a b!~*'()-_."))
	assert.Equal(t, "a%26b%3Dc%2Fd%3A%2B", encode("a&b=c/d:+"))
	assert.Equal(t, "%C4%91%C6%A1n", encode("đơn"))
}

func TestCanonicalSortsAndSkipsEmpty(t *testing.T) {
	got := canonical(map[string]string{"vnp_b": "2 3", "vnp_a": "1", "vnp_c": ""})
	assert.Equal(t, "vnp_a=1&vnp_b=2+3", got)
}

func TestCreatePaymentURL(t *testing.T) {
	c := testClient("")
	red, err := c.CreatePayment(context.Background(), payment.Request{
		OrderID: "ORD001", Amount: 1_500_000, OrderInfo: "Thanh toán tour Đà Lạt", BankCode: "NCB", ClientIP: "10.0.0.9",
	})
	require.NoError(t, err)
	assert.Equal(t, "ORD001_20250301100405", red.Ref)

	u, err := url.Parse(red.URL)
	require.NoError(t, err)
	q, err := url.ParseQuery(u.RawQuery)
	require.NoError(t, err)

	assert.Equal(t, "150000000", q.Get("vnp_Amount"))
	assert.Equal(t, "20250301100405", q.Get("vnp_CreateDate"))
	assert.Equal(t, "20250301101905", q.Get("vnp_ExpireDate"))
	assert.Equal(t, "Thanh toán tour Đà Lạt", q.Get("vnp_OrderInfo"))
	assert.Equal(t, "NCB", q.Get("vnp_BankCode"))
	assert.Equal(t, Version, q.Get("vnp_Version"))

	hash := q.Get("vnp_SecureHash")
	q.Del("vnp_SecureHash")
	flat := map[string]string{}
	for k := range q {
		flat[k] = q.Get(k)
	}
	assert.Equal(t, payment.HMACSHA512Hex("SECRETSECRETSECRETSECRETSECRET12", canonical(flat)), hash)
	assert.True(t, strings.HasSuffix(red.URL, "&vnp_SecureHash="+hash))
}

func returnQuery(c *Client, code string) url.Values {
	q := url.Values{}
	q.Set("vnp_TmnCode", c.cfg.TmnCode)
	q.Set("vnp_TxnRef", "ORD002_20250301100405")
	q.Set("vnp_Amount", "250000000")
	q.Set("vnp_OrderInfo", "Thanh toan don hang ORD002")
	q.Set("vnp_ResponseCode", code)
	q.Set("vnp_TransactionStatus", code)
	q.Set("vnp_TransactionNo", "14322511")
	q.Set("vnp_BankCode", "NCB")
	q.Set("vnp_PayDate", "20250301101000")
	return c.SignValues(q)
}

func TestVerifyRoundTrip(t *testing.T) {
	c := testClient("")
	v, p, err := c.Verify(returnQuery(c, "00"))
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.True(t, v.Success)
	assert.Equal(t, "ORD002", v.OrderID)
	assert.Equal(t, int64(2_500_000), v.Amount)
	assert.Equal(t, "14322511", v.TransactionID)
	assert.Equal(t, "ORD002_20250301100405", p.TxnRef)

	v, _, err = c.Verify(returnQuery(c, "24"))
	require.NoError(t, err)
	assert.False(t, v.Success)
	assert.Equal(t, "24", v.ResultCode)
}

func TestVerifyRejectsTampering(t *testing.T) {
	c := testClient("")

	q := returnQuery(c, "00")
	q.Set("vnp_Amount", "100")
	_, _, err := c.Verify(q)
	assert.Equal(t, apperr.KindSignature, apperr.KindOf(err))

	q = returnQuery(c, "24")
	q.Set("vnp_ResponseCode", "00")
	_, _, err = c.Verify(q)
	assert.Equal(t, apperr.KindSignature, apperr.KindOf(err))

	q = returnQuery(c, "00")
	q.Set("vnp_SecureHashType", "HmacSHA512")
	_, _, err = c.Verify(q)
	assert.NoError(t, err)

	q = returnQuery(c, "00")
	q.Del("vnp_SecureHash")
	_, _, err = c.Verify(q)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	q = returnQuery(c, "00")
	q.Set("vnp_Amount", "abc")
	_, _, err = c.Verify(q)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestQueryStatus(t *testing.T) {
	var c *Client
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "querydr", req.Command)
		assert.Equal(t, "20250301100405", req.TransactionDate)
		want := payment.HMACSHA512Hex(c.cfg.HashSecret, strings.Join([]string{
			req.RequestID, req.Version, req.Command, req.TmnCode, req.TxnRef,
			req.TransactionDate, req.CreateDate, req.IPAddr, req.OrderInfo,
		}, "|"))
		assert.Equal(t, want, req.SecureHash)

		out := queryResponse{
			ResponseID: "r1", Command: "querydr", ResponseCode: "00", Message: "QueryDR Success",
			TmnCode: req.TmnCode, TxnRef: req.TxnRef, Amount: "250000000", BankCode: "NCB",
			PayDate: "20250301101000", TransactionNo: "14322511", TransactionType: "01",
			TransactionStatus: "00",
		}
		out.SecureHash = payment.HMACSHA512Hex(c.cfg.HashSecret, out.hashData())
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c = testClient(srv.URL)
	st, err := c.QueryStatus(context.Background(), "ORD002_20250301100405")
	require.NoError(t, err)
	assert.True(t, st.Paid)
	assert.Equal(t, int64(2_500_000), st.Amount)
	assert.Equal(t, "14322511", st.TransactionID)

	_, err = c.QueryStatus(context.Background(), "ORD002")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestIPNResponse(t *testing.T) {
	r := NewIPNResponse(RspInvalidSignature)
	assert.Equal(t, "97", r.RspCode)
	assert.Equal(t, "Invalid signature", r.Message)
}
