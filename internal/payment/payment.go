// Package payment holds what the MoMo and VNPay adapters have in common.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
)

type Request struct {
	OrderID   string
	Amount    int64
	OrderInfo string
	BankCode  string
	ClientIP  string
	Locale    string
}

func (r Request) Validate() error {
	if err := orders.ValidateOrderID(r.OrderID); err != nil {
		return err
	}
	if r.Amount <= 0 {
		return apperr.Validation("INVALID_AMOUNT", "amount must be positive")
	}
	return nil
}

type Redirect struct {
	URL       string `json:"pay_url"`
	Ref       string `json:"ref"`
	RequestID string `json:"request_id,omitempty"`
	Deeplink  string `json:"deeplink,omitempty"`
	QRCodeURL string `json:"qr_code_url,omitempty"`
}

// Status is the gateway's own view of a payment.
type Status struct {
	Ref           string `json:"ref"`
	Paid          bool   `json:"paid"`
	ResultCode    string `json:"result_code"`
	Message       string `json:"message,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Amount        int64  `json:"amount"`
}

// Verification is the outcome of checking a signed callback.
type Verification struct {
	Valid         bool
	Success       bool
	OrderID       string
	OrderRef      string
	ResultCode    string
	Message       string
	TransactionID string
	Amount        int64
}

type Gateway interface {
	Method() orders.PaymentMethod
	CreatePayment(ctx context.Context, req Request) (Redirect, error)
	QueryStatus(ctx context.Context, ref string) (Status, error)
}

// RefUpdater persists the reference a gateway knows an order by.
type RefUpdater interface {
	SetPaymentRef(ctx context.Context, orderID string, method orders.PaymentMethod, ref string) error
}

type Registry map[orders.PaymentMethod]Gateway

func NewRegistry(gws ...Gateway) Registry {
	r := Registry{}
	for _, g := range gws {
		r[g.Method()] = g
	}
	return r
}

func (r Registry) Get(m orders.PaymentMethod) (Gateway, error) {
	g, ok := r[m]
	if !ok {
		return nil, apperr.Validation("UNSUPPORTED_PAYMENT_METHOD", fmt.Sprintf("no online gateway for %q", m))
	}
	return g, nil
}

func HMACSHA256Hex(key, data string) string {
	m := hmac.New(sha256.New, []byte(key))
	m.Write([]byte(data))
	return hex.EncodeToString(m.Sum(nil))
}

func HMACSHA512Hex(key, data string) string {
	m := hmac.New(sha512.New, []byte(key))
	m.Write([]byte(data))
	return hex.EncodeToString(m.Sum(nil))
}

// SignatureEqual compares hex signatures in constant time, ignoring case.
func SignatureEqual(expected, got string) bool {
	a, err1 := hex.DecodeString(expected)
	b, err2 := hex.DecodeString(got)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(a, b)
}
