package vnpay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	Version    = "2.1.0"
	DateLayout = "20060102150405"

	ResponseSuccess = "00"
)

var location = loadLocation()

func loadLocation() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*60*60)
}

type Config struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	APIURL     string
	ReturnURL  string
	Locale     string
	ExpireIn   time.Duration
	Timeout    time.Duration
}

type Client struct {
	cfg    Config
	http   *resty.Client
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.ExpireIn <= 0 {
		cfg.ExpireIn = 15 * time.Minute
	}
	if cfg.Locale == "" {
		cfg.Locale = "vn"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   resty.New().SetTimeout(cfg.Timeout),
		log:    log,
		tracer: telemetry.Tracer(),
		now:    time.Now,
	}
}

func (c *Client) Method() orders.PaymentMethod { return orders.MethodVNPay }

func (c *Client) sign(params map[string]string) string {
	return payment.HMACSHA512Hex(c.cfg.HashSecret, canonical(params))
}

// CreatePayment builds the signed redirect URL; VNPay is not called.
func (c *Client) CreatePayment(ctx context.Context, req payment.Request) (payment.Redirect, error) {
	_, span := c.tracer.Start(ctx, "vnpay.CreatePayment", trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return payment.Redirect{}, err
	}
	now := c.now().In(location)
	createDate := now.Format(DateLayout)
	ref := req.OrderID + orders.RefSeparator + createDate

	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + req.OrderID
	}
	locale := c.cfg.Locale
	if req.Locale != "" {
		locale = req.Locale
	}
	ip := req.ClientIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	params := map[string]string{
		"vnp_Version":    Version,
		"vnp_Command":    "pay",
		"vnp_TmnCode":    c.cfg.TmnCode,
		"vnp_Locale":     locale,
		"vnp_CurrCode":   "VND",
		"vnp_TxnRef":     ref,
		"vnp_OrderInfo":  info,
		"vnp_OrderType":  "other",
		"vnp_Amount":     strconv.FormatInt(req.Amount*100, 10),
		"vnp_ReturnUrl":  c.cfg.ReturnURL,
		"vnp_IpAddr":     ip,
		"vnp_CreateDate": createDate,
		"vnp_ExpireDate": now.Add(c.cfg.ExpireIn).Format(DateLayout),
	}
	if req.BankCode != "" {
		params["vnp_BankCode"] = req.BankCode
	}

	query := canonical(params)
	hash := payment.HMACSHA512Hex(c.cfg.HashSecret, query)
	return payment.Redirect{
		URL: c.cfg.PayURL + "?" + query + "&vnp_SecureHash=" + hash,
		Ref: ref,
	}, nil
}

type queryRequest struct {
	RequestID       string `json:"vnp_RequestId"`
	Version         string `json:"vnp_Version"`
	Command         string `json:"vnp_Command"`
	TmnCode         string `json:"vnp_TmnCode"`
	TxnRef          string `json:"vnp_TxnRef"`
	OrderInfo       string `json:"vnp_OrderInfo"`
	TransactionDate string `json:"vnp_TransactionDate"`
	CreateDate      string `json:"vnp_CreateDate"`
	IPAddr          string `json:"vnp_IpAddr"`
	SecureHash      string `json:"vnp_SecureHash"`
}

type queryResponse struct {
	ResponseID        string `json:"vnp_ResponseId"`
	Command           string `json:"vnp_Command"`
	ResponseCode      string `json:"vnp_ResponseCode"`
	Message           string `json:"vnp_Message"`
	TmnCode           string `json:"vnp_TmnCode"`
	TxnRef            string `json:"vnp_TxnRef"`
	Amount            string `json:"vnp_Amount"`
	BankCode          string `json:"vnp_BankCode"`
	PayDate           string `json:"vnp_PayDate"`
	TransactionNo     string `json:"vnp_TransactionNo"`
	TransactionType   string `json:"vnp_TransactionType"`
	TransactionStatus string `json:"vnp_TransactionStatus"`
	OrderInfo         string `json:"vnp_OrderInfo"`
	PromotionCode     string `json:"vnp_PromotionCode"`
	PromotionAmount   string `json:"vnp_PromotionAmount"`
	SecureHash        string `json:"vnp_SecureHash"`
}

func (r queryResponse) hashData() string {
	return strings.Join([]string{
		r.ResponseID, r.Command, r.ResponseCode, r.Message, r.TmnCode, r.TxnRef, r.Amount,
		r.BankCode, r.PayDate, r.TransactionNo, r.TransactionType, r.TransactionStatus,
		r.OrderInfo, r.PromotionCode, r.PromotionAmount,
	}, "|")
}

// QueryStatus calls the querydr API for a txnRef produced by CreatePayment.
func (c *Client) QueryStatus(ctx context.Context, ref string) (payment.Status, error) {
	ctx, span := c.tracer.Start(ctx, "vnpay.QueryStatus")
	defer span.End()

	i := strings.Index(ref, orders.RefSeparator)
	if i < 0 || len(ref)-i-1 != len(DateLayout) {
		return payment.Status{}, apperr.Validation("INVALID_REF", "vnpay txnRef must be orderId_yyyyMMddHHmmss")
	}
	req := queryRequest{
		RequestID:       strings.ReplaceAll(uuid.NewString(), "-", ""),
		Version:         Version,
		Command:         "querydr",
		TmnCode:         c.cfg.TmnCode,
		TxnRef:          ref,
		OrderInfo:       "Truy van giao dich " + ref,
		TransactionDate: ref[i+1:],
		CreateDate:      c.now().In(location).Format(DateLayout),
		IPAddr:          "127.0.0.1",
	}
	req.SecureHash = payment.HMACSHA512Hex(c.cfg.HashSecret, strings.Join([]string{
		req.RequestID, req.Version, req.Command, req.TmnCode, req.TxnRef,
		req.TransactionDate, req.CreateDate, req.IPAddr, req.OrderInfo,
	}, "|"))

	var out queryResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		SetResult(&out).
		Post(c.cfg.APIURL)
	if err != nil {
		span.RecordError(err)
		return payment.Status{}, apperr.Wrap(apperr.KindExternalGateway, "VNPAY_UNAVAILABLE", err, "vnpay querydr failed")
	}
	if resp.IsError() {
		return payment.Status{}, apperr.Gateway("VNPAY_HTTP_"+strconv.Itoa(resp.StatusCode()), "vnpay http "+resp.Status())
	}
	if out.ResponseCode != ResponseSuccess {
		return payment.Status{}, apperr.Gateway("VNPAY_"+out.ResponseCode, fmt.Sprintf("vnpay querydr: %s", out.Message))
	}
	if !payment.SignatureEqual(payment.HMACSHA512Hex(c.cfg.HashSecret, out.hashData()), out.SecureHash) {
		return payment.Status{}, apperr.Signature("vnpay querydr response signature mismatch")
	}

	amount, _ := strconv.ParseInt(out.Amount, 10, 64)
	return payment.Status{
		Ref:           ref,
		Paid:          out.TransactionStatus == ResponseSuccess,
		ResultCode:    out.TransactionStatus,
		Message:       out.Message,
		TransactionID: out.TransactionNo,
		Amount:        amount / 100,
	}, nil
}
