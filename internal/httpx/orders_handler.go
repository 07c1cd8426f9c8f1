package httpx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Orders   *booking.Orchestrator
	Cache    *redisx.StatusCache
	IdemKeys *redisx.OrderKeys
	Log      *slog.Logger
}

type CreateOrderReq struct {
	OrderID       string               `json:"order_id"`
	Amount        int64                `json:"amount"`
	Items         []orders.Item        `json:"items"`
	CustomerName  string               `json:"customer_name"`
	CustomerEmail string               `json:"customer_email"`
	PaymentMethod orders.PaymentMethod `json:"payment_method"`
}

type CreateOrderResp struct {
	Success    bool          `json:"success"`
	Order      *orders.Order `json:"order"`
	Idempotent bool          `json:"idempotent"`
}

type OrderStatusResp struct {
	redisx.StatusEntry
	Cached bool `json:"cached"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/availability", h.availability)
}

type AvailabilityReq struct {
	Items []orders.Item `json:"items"`
}

func (h *OrdersHandler) availability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if len(req.Items) == 0 {
		writeError(w, r, h.Log, apperr.Validation("MISSING_FIELDS", "items are required"))
		return
	}
	v, err := h.Orders.CheckAvailability(r.Context(), req.Items)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, h.Log, apperr.Validation("INVALID_AMOUNT", "amount must be positive"))
		return
	}
	if req.PaymentMethod != "" && !req.PaymentMethod.Valid() {
		writeError(w, r, h.Log, apperr.Validation("INVALID_PAYMENT_METHOD", "unknown payment method"))
		return
	}

	in := booking.CreateOrderInput{
		OrderID:       strings.TrimSpace(req.OrderID),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Amount:        req.Amount,
		Items:         req.Items,
		PaymentMethod: req.PaymentMethod,
	}
	if sess, ok := sessionFrom(r.Context()); ok {
		in.UserID = sess.UserID
		if in.CustomerEmail == "" {
			in.CustomerEmail = sess.Email
		}
		if in.CustomerName == "" {
			in.CustomerName = sess.Name
		}
	}

	ctx := r.Context()

	// Idempotency-Key short-circuits client retries; the order id itself
	// stays the durable guard (duplicate insert is a conflict).
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.IdemKeys != nil {
		if id, ok, err := h.IdemKeys.Lookup(ctx, idemKey); err != nil {
			h.Log.Warn("idempotency lookup failed", "err", err)
		} else if ok {
			o, err := h.Orders.GetOrder(ctx, id)
			if err == nil {
				writeJSON(w, http.StatusOK, CreateOrderResp{Success: true, Order: o, Idempotent: true})
				return
			}
			h.Log.Warn("idempotency key points to missing order", "order_id", id, "err", err)
		}
	}

	o, err := h.Orders.CreateOrderTx(ctx, in)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if idemKey != "" && h.IdemKeys != nil {
		if err := h.IdemKeys.Remember(ctx, idemKey, o.OrderID); err != nil {
			h.Log.Warn("idempotency remember failed", "order_id", o.OrderID, "err", err)
		}
	}
	writeJSON(w, http.StatusCreated, CreateOrderResp{Success: true, Order: o})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx := r.Context()

	// 1) cache
	if h.Cache != nil {
		e, ok, err := h.Cache.Get(ctx, orderID)
		if err != nil {
			h.Log.Warn("status cache read failed", "order_id", orderID, "err", err)
		}
		if ok {
			writeJSON(w, http.StatusOK, OrderStatusResp{StatusEntry: e, Cached: true})
			return
		}
	}

	// 2) database
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	e := redisx.EntryOf(o)
	if h.Cache != nil {
		if _, err := h.Cache.Fill(ctx, e); err != nil {
			h.Log.Warn("status cache write failed", "order_id", orderID, "err", err)
		}
	}
	writeJSON(w, http.StatusOK, OrderStatusResp{StatusEntry: e})
}
