package httpx

import (
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/callback"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/payment/momo"
	"github.com/go-chi/chi/v5"
)

type PaymentsHandler struct {
	Orders    *booking.Orchestrator
	Gateways  payment.Registry
	Callbacks *callback.Handler
	Log       *slog.Logger
}

type CreatePaymentReq struct {
	Method    orders.PaymentMethod `json:"method"`
	Amount    int64                `json:"amount"`
	OrderInfo string               `json:"order_info"`
	BankCode  string               `json:"bank_code"`
	Locale    string               `json:"locale"`
}

type CreatePaymentResp struct {
	Success bool                 `json:"success"`
	OrderID string               `json:"order_id"`
	Method  orders.PaymentMethod `json:"method"`
	payment.Redirect
}

type PaymentStatusResp struct {
	OrderID       string               `json:"order_id"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	PaymentMethod orders.PaymentMethod `json:"payment_method,omitempty"`
	PaymentRef    string               `json:"payment_ref,omitempty"`
	FailureReason string               `json:"failure_reason,omitempty"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	Gateway       *payment.Status      `json:"gateway,omitempty"`
	Reconciled    bool                 `json:"reconciled,omitempty"`
}

func (h *PaymentsHandler) Register(r chi.Router) {
	// static segments first; chi prefers them over {id} anyway
	r.Post("/payments/momo/ipn", h.momoIPN)
	r.Get("/payments/vnpay/return", h.vnpayReturn)
	r.Get("/payments/vnpay/ipn", h.vnpayIPN)

	r.Post("/payments/{id}", h.createPayment)
	r.Post("/payments/{id}/retry", h.retryPayment)
	r.Get("/payments/{id}/status", h.paymentStatus)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *PaymentsHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	h.startPayment(w, r, false)
}

// retryPayment accepts an empty body and reuses the method of the failed
// attempt.
func (h *PaymentsHandler) retryPayment(w http.ResponseWriter, r *http.Request) {
	h.startPayment(w, r, true)
}

func (h *PaymentsHandler) startPayment(w http.ResponseWriter, r *http.Request, retry bool) {
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	var req CreatePaymentReq
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	if retry && req.Method == "" {
		cur, err := h.Orders.GetOrder(ctx, orderID)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		if cur.PaymentStatus != orders.PaymentFailed && cur.PaymentStatus != orders.PaymentPending {
			writeError(w, r, h.Log, apperr.Conflict("NOT_RETRYABLE", "payment is "+string(cur.PaymentStatus)))
			return
		}
		req.Method = cur.PaymentMethod
	}

	gw, err := h.Gateways.Get(req.Method)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	o, err := h.Orders.PreparePaymentTx(ctx, orderID, req.Method, req.Amount)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	info := req.OrderInfo
	if info == "" {
		info = "Thanh toan don hang " + o.OrderID
	}
	red, err := gw.CreatePayment(ctx, payment.Request{
		OrderID:   o.OrderID,
		Amount:    o.Amount,
		OrderInfo: info,
		BankCode:  req.BankCode,
		ClientIP:  clientIP(r),
		Locale:    req.Locale,
	})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if err := h.Orders.SetPaymentRef(ctx, o.OrderID, req.Method, red.Ref); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, CreatePaymentResp{Success: true, OrderID: o.OrderID, Method: req.Method, Redirect: red})
}

// paymentStatus reports the stored state; with ?refresh=1 it asks the
// gateway and records a payment that was missed by the callbacks.
func (h *PaymentsHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	resp := PaymentStatusResp{
		OrderID:       o.OrderID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		PaymentRef:    o.PaymentRef,
		FailureReason: o.FailureReason,
		PaidAt:        o.PaidAt,
	}

	if r.URL.Query().Get("refresh") == "1" && o.PaymentRef != "" && o.PaymentStatus != orders.PaymentCompleted {
		gw, err := h.Gateways.Get(o.PaymentMethod)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		st, err := gw.QueryStatus(ctx, o.PaymentRef)
		if err != nil {
			writeError(w, r, h.Log, err)
			return
		}
		resp.Gateway = &st
		if st.Paid && st.Amount == o.Amount {
			res, err := h.Orders.CompletePaymentTx(ctx, o.OrderID, booking.PaymentData{
				Method: o.PaymentMethod, TransactionID: st.TransactionID, PaidAt: time.Now(),
			})
			if err != nil {
				writeError(w, r, h.Log, err)
				return
			}
			resp.Reconciled = res.Changed
			resp.Status, resp.PaymentStatus, resp.PaidAt = res.Order.Status, res.Order.PaymentStatus, res.Order.PaidAt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *PaymentsHandler) momoIPN(w http.ResponseWriter, r *http.Request) {
	var n momo.IPN
	if err := decodeJSON(w, r, &n); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if _, err := h.Callbacks.HandleMoMoIPN(r.Context(), n); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PaymentsHandler) vnpayReturn(w http.ResponseWriter, r *http.Request) {
	out, err := h.Callbacks.HandleVNPayReturn(r.Context(), r.URL.Query())
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *PaymentsHandler) vnpayIPN(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Callbacks.HandleVNPayIPN(r.Context(), r.URL.Query()))
}
