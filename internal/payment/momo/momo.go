package momo

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/telemetry"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	createPath = "/v2/gateway/api/create"
	queryPath  = "/v2/gateway/api/query"

	ResultSuccess     = 0
	ResultDuplicateID = 41
)

type Config struct {
	PartnerCode string
	AccessKey   string
	SecretKey   string
	Endpoint    string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	Timeout     time.Duration
	Retry       RetryPolicy
}

// RetryPolicy bounds the resubmission after a duplicate-orderId answer.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

var DefaultRetry = RetryPolicy{MaxAttempts: 1, Backoff: 500 * time.Millisecond}

type Client struct {
	cfg    Config
	http   *resty.Client
	refs   payment.RefUpdater
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New(cfg Config, refs payment.RefUpdater, log *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RequestType == "" {
		cfg.RequestType = "payWithMethod"
	}
	if cfg.Lang == "" {
		cfg.Lang = "vi"
	}
	if cfg.Retry.MaxAttempts < 0 {
		cfg.Retry.MaxAttempts = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   resty.New().SetTimeout(cfg.Timeout).SetHeader("Content-Type", "application/json"),
		refs:   refs,
		log:    log,
		tracer: telemetry.Tracer(),
		now:    time.Now,
	}
}

func (c *Client) Method() orders.PaymentMethod { return orders.MethodMoMo }

type createRequest struct {
	PartnerCode string `json:"partnerCode"`
	RequestID   string `json:"requestId"`
	Amount      int64  `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	Lang        string `json:"lang"`
	RequestType string `json:"requestType"`
	AutoCapture bool   `json:"autoCapture"`
	ExtraData   string `json:"extraData"`
	Signature   string `json:"signature"`
}

type createResponse struct {
	PartnerCode  string `json:"partnerCode"`
	OrderID      string `json:"orderId"`
	RequestID    string `json:"requestId"`
	Amount       int64  `json:"amount"`
	ResponseTime int64  `json:"responseTime"`
	Message      string `json:"message"`
	ResultCode   int    `json:"resultCode"`
	PayURL       string `json:"payUrl"`
	Deeplink     string `json:"deeplink"`
	QRCodeURL    string `json:"qrCodeUrl"`
}

func (c *Client) createSignature(r createRequest) string {
	raw := "accessKey=" + c.cfg.AccessKey +
		"&amount=" + strconv.FormatInt(r.Amount, 10) +
		"&extraData=" + r.ExtraData +
		"&ipnUrl=" + r.IPNURL +
		"&orderId=" + r.OrderID +
		"&orderInfo=" + r.OrderInfo +
		"&partnerCode=" + r.PartnerCode +
		"&redirectUrl=" + r.RedirectURL +
		"&requestId=" + r.RequestID +
		"&requestType=" + r.RequestType
	return payment.HMACSHA256Hex(c.cfg.SecretKey, raw)
}

// CreatePayment asks MoMo for a pay URL. When MoMo answers 41 (orderId
// already used) a fresh reference is minted, persisted through RefUpdater
// and the request is resubmitted, at most Retry.MaxAttempts times.
func (c *Client) CreatePayment(ctx context.Context, req payment.Request) (_ payment.Redirect, err error) {
	ctx, span := c.tracer.Start(ctx, "momo.CreatePayment", trace.WithAttributes(attribute.String("order.id", req.OrderID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return payment.Redirect{}, err
	}
	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + req.OrderID
	}
	lang := c.cfg.Lang
	if req.Locale != "" {
		lang = req.Locale
	}

	ref := req.OrderID
	for attempt := 0; ; attempt++ {
		body := createRequest{
			PartnerCode: c.cfg.PartnerCode,
			RequestID:   uuid.NewString(),
			Amount:      req.Amount,
			OrderID:     ref,
			OrderInfo:   info,
			RedirectURL: c.cfg.RedirectURL,
			IPNURL:      c.cfg.IPNURL,
			Lang:        lang,
			RequestType: c.cfg.RequestType,
			AutoCapture: true,
		}
		body.Signature = c.createSignature(body)

		out, err := c.post(ctx, createPath, body)
		if err != nil {
			return payment.Redirect{}, err
		}

		switch {
		case out.ResultCode == ResultSuccess:
			span.SetAttributes(attribute.Int("momo.attempts", attempt+1))
			return payment.Redirect{
				URL:       out.PayURL,
				Ref:       ref,
				RequestID: body.RequestID,
				Deeplink:  out.Deeplink,
				QRCodeURL: out.QRCodeURL,
			}, nil
		case out.ResultCode == ResultDuplicateID && attempt < c.cfg.Retry.MaxAttempts:
			next := MintRef(req.OrderID, c.now())
			c.log.WarnContext(ctx, "momo duplicate orderId, retrying with new reference",
				"order_id", req.OrderID, "old_ref", ref, "new_ref", next, "attempt", attempt+1)
			if c.refs != nil {
				if err := c.refs.SetPaymentRef(ctx, req.OrderID, orders.MethodMoMo, next); err != nil {
					return payment.Redirect{}, fmt.Errorf("persist momo ref: %w", err)
				}
			}
			if err := sleep(ctx, c.cfg.Retry.Backoff); err != nil {
				return payment.Redirect{}, err
			}
			ref = next
		default:
			return payment.Redirect{}, apperr.Gateway(
				"MOMO_"+strconv.Itoa(out.ResultCode),
				fmt.Sprintf("momo create payment: %s (resultCode=%d)", out.Message, out.ResultCode))
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (createResponse, error) {
	var out createResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(c.cfg.Endpoint + path)
	if err != nil {
		return out, apperr.Wrap(apperr.KindExternalGateway, "MOMO_UNAVAILABLE", err, "momo request failed")
	}
	// MoMo reports business errors with 4xx and a JSON body carrying resultCode.
	if resp.IsError() && out.ResultCode == ResultSuccess {
		return out, apperr.Gateway("MOMO_HTTP_"+strconv.Itoa(resp.StatusCode()), "momo http "+resp.Status())
	}
	return out, nil
}

// MintRef builds orderId_<yyyyMMdd><unixMillis>.
func MintRef(orderID string, now time.Time) string {
	return orders.OrderIDFromRef(orderID) + orders.RefSeparator + now.Format("20060102") + strconv.FormatInt(now.UnixMilli(), 10)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
