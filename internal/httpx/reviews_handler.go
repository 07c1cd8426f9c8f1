package httpx

import (
	"log/slog"
	"net/http"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/review"
	"github.com/go-chi/chi/v5"
)

type ReviewsHandler struct {
	Reviews *review.Service
	Log     *slog.Logger
}

type CreateReviewReq struct {
	Token   string `json:"token"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ReviewsHandler) Register(r chi.Router) {
	if h.Reviews == nil {
		return
	}
	r.Get("/reviews/{orderId}", h.checkToken)
	r.Post("/reviews/{orderId}", h.createReview)
}

func (h *ReviewsHandler) checkToken(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, r, h.Log, apperr.Validation("MISSING_TOKEN", "token is required"))
		return
	}
	o, err := h.Reviews.ValidateToken(r.Context(), orderID, token)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":         true,
		"order_id":      o.OrderID,
		"customer_name": o.CustomerName,
		"expires_at":    o.ReviewTokenExpiredAt,
	})
}

func (h *ReviewsHandler) createReview(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	var req CreateReviewReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Token == "" {
		req.Token = r.URL.Query().Get("token")
	}
	rv, err := h.Reviews.CreateReviewFromToken(r.Context(), orderID, req.Token, req.Rating, req.Comment)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "review": rv})
}
