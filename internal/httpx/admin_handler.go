package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/cleanup"
	"github.com/ariefcatur/go-tour-booking/internal/orders"
	"github.com/go-chi/chi/v5"
)

type AdminHandler struct {
	Orders  *booking.Orchestrator
	Cleanup *cleanup.Scheduler
	BaseCtx context.Context
	Log     *slog.Logger
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
	Reason string        `json:"reason"`
}

type UpdateStatusResp struct {
	Success       bool          `json:"success"`
	Changed       bool          `json:"changed"`
	StockRestored bool          `json:"stock_restored"`
	Order         *orders.Order `json:"order"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Patch("/orders/{id}/status", h.updateStatus)
	if h.Cleanup == nil {
		return
	}
	r.Route("/cleanup", func(r chi.Router) {
		r.Post("/run", h.runCleanup)
		r.Get("/stats", h.cleanupStats)
		r.Post("/reset", h.resetCleanup)
		r.Post("/start", h.startCleanup)
		r.Post("/stop", h.stopCleanup)
	})
}

// updateStatus moves an order by hand. Seats follow the status; a move to
// completed triggers the review invitation through the observers.
func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if !req.Status.Valid() {
		writeError(w, r, h.Log, apperr.Validation("INVALID_STATUS", "unknown status "+string(req.Status)))
		return
	}

	u := orders.Update{Status: &req.Status}
	if req.Status == orders.StatusCancelled && req.Reason != "" {
		u.FailureReason = &req.Reason
	}
	res, err := h.Orders.UpdateOrderTx(r.Context(), orderID, u, booking.UpdateOptions{HandleStock: true})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	h.Log.Info("admin status change", "order_id", orderID, "status", req.Status, "changed", res.Changed)
	writeJSON(w, http.StatusOK, UpdateStatusResp{
		Success: true, Changed: res.Changed, StockRestored: res.StockRestored, Order: res.Order,
	})
}

func (h *AdminHandler) runCleanup(w http.ResponseWriter, r *http.Request) {
	res, skipped, err := h.Cleanup.RunNow(r.Context())
	if skipped {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "skipped": true})
		return
	}
	body := map[string]any{"success": err == nil, "result": res}
	if err != nil {
		h.Log.Error("manual cleanup failed", "err", err)
		body["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *AdminHandler) cleanupStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cleanup.Stats())
}

func (h *AdminHandler) resetCleanup(w http.ResponseWriter, r *http.Request) {
	h.Cleanup.ResetStats()
	writeJSON(w, http.StatusOK, h.Cleanup.Stats())
}

func (h *AdminHandler) startCleanup(w http.ResponseWriter, r *http.Request) {
	started := h.Cleanup.Start(h.BaseCtx)
	writeJSON(w, http.StatusOK, map[string]any{"started": started, "running": h.Cleanup.Running()})
}

func (h *AdminHandler) stopCleanup(w http.ResponseWriter, r *http.Request) {
	h.Cleanup.Stop()
	writeJSON(w, http.StatusOK, map[string]any{"running": h.Cleanup.Running()})
}
