package httpx

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/booking"
	"github.com/ariefcatur/go-tour-booking/internal/callback"
	"github.com/ariefcatur/go-tour-booking/internal/cleanup"
	"github.com/ariefcatur/go-tour-booking/internal/payment"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/ariefcatur/go-tour-booking/internal/review"
	"github.com/ariefcatur/go-tour-booking/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxBody = 1 << 20

// Deps is everything the HTTP layer talks to. Cache, IdemKeys, Sessions
// and Hub are optional.
type Deps struct {
	Orders    *booking.Orchestrator
	Gateways  payment.Registry
	Callbacks *callback.Handler
	Reviews   *review.Service
	Cleanup   *cleanup.Scheduler
	Hub       *ws.Hub
	Cache     *redisx.StatusCache
	IdemKeys  *redisx.OrderKeys
	Sessions  *redisx.SessionStore

	// BaseCtx outlives requests; the cleanup scheduler is started on it.
	BaseCtx        context.Context
	AdminToken     string
	RequestTimeout time.Duration
	Log            *slog.Logger
}

func NewRouter(d Deps) *chi.Mux {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.BaseCtx == nil {
		d.BaseCtx = context.Background()
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 20 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// websocket connections must not inherit the request timeout
	if d.Hub != nil {
		r.Get("/orders/{id}/ws", ws.NewHandler(d.Hub, d.Orders, d.Log).ServeWS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))
		r.Use(sessionMiddleware(d.Sessions, d.Log))

		(&SessionHandler{Sessions: d.Sessions, Log: d.Log}).Register(r)
		(&OrdersHandler{Orders: d.Orders, Cache: d.Cache, IdemKeys: d.IdemKeys, Log: d.Log}).Register(r)
		(&PaymentsHandler{Orders: d.Orders, Gateways: d.Gateways, Callbacks: d.Callbacks, Log: d.Log}).Register(r)
		(&ReviewsHandler{Reviews: d.Reviews, Log: d.Log}).Register(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly(d.AdminToken))
			(&AdminHandler{Orders: d.Orders, Cleanup: d.Cleanup, BaseCtx: d.BaseCtx, Log: d.Log}).Register(r)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResp struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation, apperr.KindSignature:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindExternalGateway:
		return http.StatusBadGateway
	case apperr.KindTransactionAbort:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs the detail and sends only the code plus a localized text.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	kind := apperr.KindOf(err)
	code := statusOf(kind)
	lvl := slog.LevelWarn
	if code >= 500 {
		lvl = slog.LevelError
	}
	log.Log(r.Context(), lvl, "request failed", "method", r.Method, "path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()), "kind", kind.String(), "err", err)
	writeJSON(w, code, errorResp{Error: errorBody{
		Code:    apperr.CodeOf(err),
		Message: apperr.UserMessage(kind, r.Header.Get("Accept-Language")),
	}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperr.Wrap(apperr.KindValidation, "INVALID_JSON", err, "invalid json body")
	}
	return nil
}

func adminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeJSON(w, http.StatusUnauthorized, errorResp{Error: errorBody{Code: "ADMIN_DISABLED", Message: "admin api disabled"}})
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeJSON(w, http.StatusUnauthorized, errorResp{Error: errorBody{Code: "UNAUTHORIZED", Message: "unauthorized"}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
