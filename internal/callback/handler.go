package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/payment/momo"
	"github.com/ariefcatur/go-tour-booking/internal/payment/vnpay"
)

type Orders interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	CompletePaymentTx(ctx context.Context, orderID string, pd booking.PaymentData) (booking.UpdateResult, error)
	FailPaymentTx(ctx context.Context, orderID string, method orders.PaymentMethod, reason string) (booking.UpdateResult, error)
}

type MoMoVerifier interface {
	VerifyIPN(n momo.IPN) (payment.Verification, error)
}

type VNPayVerifier interface {
	Verify(q url.Values) (payment.Verification, vnpay.Params, error)
}

// Notifier delivers customer notifications. Calls are best-effort.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, o *orders.Order) error
	PaymentFailed(ctx context.Context, o *orders.Order, reason, retryURL string) error
}

type Deduper interface {
	First(ctx context.Context, scope, id string) (bool, error)
}

type Config struct {
	PublicBaseURL string
	// DedupNotifications suppresses repeated notifications for replayed
	// callbacks. Status handling is unaffected.
	DedupNotifications bool
}

type Handler struct {
	orders   Orders
	momo     MoMoVerifier
	vnpay    VNPayVerifier
	notifier Notifier
	dedup    Deduper
	cfg      Config
	log      *slog.Logger
}

func New(o Orders, m MoMoVerifier, v VNPayVerifier, n Notifier, d Deduper, cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{orders: o, momo: m, vnpay: v, notifier: n, dedup: d, cfg: cfg, log: log}
}

type Outcome struct {
	OrderID       string               `json:"order_id"`
	Success       bool                 `json:"success"`
	Applied       bool                 `json:"applied"`
	ResultCode    string               `json:"result_code"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

// HandleMoMoIPN verifies and applies a MoMo IPN. A signature failure
// returns before anything is read or written.
func (h *Handler) HandleMoMoIPN(ctx context.Context, n momo.IPN) (Outcome, error) {
	v, err := h.momo.VerifyIPN(n)
	if err != nil {
		h.log.WarnContext(ctx, "momo ipn rejected", "order_ref", n.OrderID, "err", err)
		return Outcome{}, err
	}
	reason := fmt.Sprintf("MoMo %d: %s", n.ResultCode, n.Message)
	return h.apply(ctx, orders.MethodMoMo, v, reason)
}

func (h *Handler) HandleVNPayReturn(ctx context.Context, q url.Values) (Outcome, error) {
	v, _, err := h.vnpay.Verify(q)
	if err != nil {
		h.log.WarnContext(ctx, "vnpay return rejected", "txn_ref", q.Get("vnp_TxnRef"), "err", err)
		return Outcome{}, err
	}
	return h.apply(ctx, orders.MethodVNPay, v, "VNPay "+v.ResultCode)
}

// HandleVNPayIPN always answers with an RspCode; VNPay retries until it
// gets 00 or 02. 02 is reserved for orders already paid.
func (h *Handler) HandleVNPayIPN(ctx context.Context, q url.Values) vnpay.IPNResponse {
	v, _, err := h.vnpay.Verify(q)
	if err != nil {
		h.log.WarnContext(ctx, "vnpay ipn rejected", "txn_ref", q.Get("vnp_TxnRef"), "err", err)
		if apperr.KindOf(err) == apperr.KindSignature {
			return vnpay.NewIPNResponse(vnpay.RspInvalidSignature)
		}
		return vnpay.NewIPNResponse(vnpay.RspUnknown)
	}

	cur, err := h.orders.GetOrder(ctx, v.OrderID)
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		return vnpay.NewIPNResponse(vnpay.RspOrderNotFound)
	case err != nil:
		h.log.ErrorContext(ctx, "vnpay ipn load order", "order_id", v.OrderID, "err", err)
		return vnpay.NewIPNResponse(vnpay.RspUnknown)
	case cur.Amount != v.Amount:
		return vnpay.NewIPNResponse(vnpay.RspInvalidAmount)
	case cur.PaymentStatus == orders.PaymentCompleted:
		return vnpay.NewIPNResponse(vnpay.RspAlreadyConfirmed)
	}

	// An expired order still takes a late success: apply re-deducts seats.
	if _, err := h.apply(ctx, orders.MethodVNPay, v, "VNPay "+v.ResultCode); err != nil {
		if errors.Is(err, orders.ErrInsufficientStock) {
			// seats are gone for good; acknowledge and flag a refund
			h.log.ErrorContext(ctx, "late vnpay payment without seats, refund required",
				"order_id", v.OrderID, "transaction_id", v.TransactionID, "amount", v.Amount)
			return vnpay.NewIPNResponse(vnpay.RspConfirmed)
		}
		h.log.ErrorContext(ctx, "vnpay ipn apply", "order_id", v.OrderID, "err", err)
		return vnpay.NewIPNResponse(vnpay.RspUnknown)
	}
	return vnpay.NewIPNResponse(vnpay.RspConfirmed)
}

func (h *Handler) apply(ctx context.Context, method orders.PaymentMethod, v payment.Verification, reason string) (Outcome, error) {
	out := Outcome{OrderID: v.OrderID, Success: v.Success, ResultCode: v.ResultCode}

	cur, err := h.orders.GetOrder(ctx, v.OrderID)
	if err != nil {
		return out, err
	}
	if cur.Amount != v.Amount {
		return out, apperr.Validation("AMOUNT_MISMATCH",
			fmt.Sprintf("callback amount %d does not match order amount %d", v.Amount, cur.Amount))
	}

	if v.Success {
		res, err := h.orders.CompletePaymentTx(ctx, v.OrderID, booking.PaymentData{
			Method: method, TransactionID: v.TransactionID, PaidAt: time.Now(),
		})
		if err != nil {
			return out, err
		}
		out.Applied = res.Changed
		out.Status, out.PaymentStatus = res.Order.Status, res.Order.PaymentStatus
		h.log.InfoContext(ctx, "payment succeeded", "order_id", v.OrderID, "method", method,
			"transaction_id", v.TransactionID, "stock_deducted", res.StockDeducted)

		if h.shouldNotify(ctx, v.OrderID, "success", v.TransactionID) {
			if err := h.notifier.PaymentSucceeded(ctx, res.Order); err != nil {
				h.log.WarnContext(ctx, "success notification failed", "order_id", v.OrderID, "err", err)
			}
		}
		return out, nil
	}

	res, err := h.orders.FailPaymentTx(ctx, v.OrderID, method, reason)
	if err != nil {
		return out, err
	}
	out.Applied = res.Changed
	out.Status, out.PaymentStatus = res.Order.Status, res.Order.PaymentStatus
	if !res.Changed {
		h.log.InfoContext(ctx, "failure callback ignored, order already paid", "order_id", v.OrderID, "method", method)
		return out, nil
	}
	h.log.InfoContext(ctx, "payment failed", "order_id", v.OrderID, "method", method, "reason", reason)

	if h.shouldNotify(ctx, v.OrderID, "failed", v.OrderRef+":"+v.ResultCode) {
		retry := h.cfg.PublicBaseURL + "/payments/" + url.PathEscape(v.OrderID) + "/retry"
		if err := h.notifier.PaymentFailed(ctx, res.Order, reason, retry); err != nil {
			h.log.WarnContext(ctx, "failure notification failed", "order_id", v.OrderID, "err", err)
		}
	}
	return out, nil
}

func (h *Handler) shouldNotify(ctx context.Context, orderID, kind, id string) bool {
	if !h.cfg.DedupNotifications || h.dedup == nil {
		return true
	}
	first, err := h.dedup.First(ctx, "notify:"+kind, orderID+":"+id)
	if err != nil {
		h.log.WarnContext(ctx, "notification dedup unavailable", "order_id", orderID, "err", err)
		return true
	}
	return first
}
