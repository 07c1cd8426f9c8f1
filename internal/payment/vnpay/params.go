package vnpay

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
)

// Params is the typed form of a VNPay return or IPN query string.
type Params struct {
	TmnCode           string
	TxnRef            string
	Amount            int64 // VND, already divided by 100
	ResponseCode      string
	TransactionStatus string
	TransactionNo     string
	BankCode          string
	PayDate           string
	OrderInfo         string
	SecureHash        string

	signed map[string]string
}

// ParseParams validates shape; it does not check the signature.
func ParseParams(q url.Values) (Params, error) {
	p := Params{
		TmnCode:           q.Get("vnp_TmnCode"),
		TxnRef:            q.Get("vnp_TxnRef"),
		ResponseCode:      q.Get("vnp_ResponseCode"),
		TransactionStatus: q.Get("vnp_TransactionStatus"),
		TransactionNo:     q.Get("vnp_TransactionNo"),
		BankCode:          q.Get("vnp_BankCode"),
		PayDate:           q.Get("vnp_PayDate"),
		OrderInfo:         q.Get("vnp_OrderInfo"),
		SecureHash:        q.Get("vnp_SecureHash"),
		signed:            map[string]string{},
	}
	if p.TxnRef == "" {
		return p, apperr.Validation("INVALID_CALLBACK", "vnp_TxnRef is required")
	}
	if p.SecureHash == "" {
		return p, apperr.Validation("INVALID_CALLBACK", "vnp_SecureHash is required")
	}
	if p.ResponseCode == "" {
		return p, apperr.Validation("INVALID_CALLBACK", "vnp_ResponseCode is required")
	}
	raw, err := strconv.ParseInt(q.Get("vnp_Amount"), 10, 64)
	if err != nil || raw <= 0 {
		return p, apperr.Validation("INVALID_CALLBACK", "vnp_Amount must be a positive integer")
	}
	p.Amount = raw / 100

	for k, v := range q {
		if !strings.HasPrefix(k, "vnp_") || k == "vnp_SecureHash" || k == "vnp_SecureHashType" || len(v) == 0 {
			continue
		}
		p.signed[k] = v[0]
	}
	return p, nil
}

func (p Params) OrderID() string { return orders.OrderIDFromRef(p.TxnRef) }

// Success requires both codes; VNPay sends TransactionStatus only on newer APIs.
func (p Params) Success() bool {
	return p.ResponseCode == ResponseSuccess &&
		(p.TransactionStatus == "" || p.TransactionStatus == ResponseSuccess)
}

// Verify parses q and checks vnp_SecureHash over every other vnp_* field.
func (c *Client) Verify(q url.Values) (payment.Verification, Params, error) {
	p, err := ParseParams(q)
	if err != nil {
		return payment.Verification{}, p, err
	}
	if !payment.SignatureEqual(c.sign(p.signed), p.SecureHash) {
		return payment.Verification{}, p, apperr.Signature("vnpay secure hash mismatch")
	}
	code := p.ResponseCode
	if p.TransactionStatus != "" && p.TransactionStatus != ResponseSuccess {
		code = p.TransactionStatus
	}
	return payment.Verification{
		Valid:         true,
		Success:       p.Success(),
		OrderID:       p.OrderID(),
		OrderRef:      p.TxnRef,
		ResultCode:    code,
		TransactionID: p.TransactionNo,
		Amount:        p.Amount,
	}, p, nil
}

// SignValues adds vnp_SecureHash to q, the way VNPay signs callbacks.
func (c *Client) SignValues(q url.Values) url.Values {
	flat := map[string]string{}
	for k, v := range q {
		if strings.HasPrefix(k, "vnp_") && k != "vnp_SecureHash" && k != "vnp_SecureHashType" && len(v) > 0 {
			flat[k] = v[0]
		}
	}
	out := url.Values{}
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	out.Set("vnp_SecureHash", c.sign(flat))
	return out
}

// IPN answers. VNPay retries until it sees 00 or 02.
const (
	RspConfirmed        = "00"
	RspOrderNotFound    = "01"
	RspAlreadyConfirmed = "02"
	RspInvalidAmount    = "04"
	RspInvalidSignature = "97"
	RspUnknown          = "99"
)

type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

var ipnMessages = map[string]string{
	RspConfirmed:        "Confirm Success",
	RspOrderNotFound:    "Order not found",
	RspAlreadyConfirmed: "Order already confirmed",
	RspInvalidAmount:    "Invalid amount",
	RspInvalidSignature: "Invalid signature",
	RspUnknown:          "Unknown error",
}

func NewIPNResponse(code string) IPNResponse {
	return IPNResponse{RspCode: code, Message: ipnMessages[code]}
}
