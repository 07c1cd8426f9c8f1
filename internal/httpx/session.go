package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-tour-booking/internal/apperr"
	"github.com/ariefcatur/go-tour-booking/internal/redisx"
	"github.com/go-chi/chi/v5"
)

const (
	sessionCookie = "sid"
	sessionHeader = "X-Session-ID"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) (redisx.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(redisx.Session)
	return s, ok
}

func sessionID(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// sessionMiddleware attaches the caller's session when there is one.
// Unknown ids are ignored; the request proceeds anonymously.
func sessionMiddleware(store *redisx.SessionStore, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := sessionID(r)
			if store == nil || id == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := store.Get(r.Context(), id)
			switch {
			case err == nil:
				r = r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess))
			case !errors.Is(err, redisx.ErrSessionNotFound):
				log.Warn("session lookup failed", "err", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}

type SessionHandler struct {
	Sessions *redisx.SessionStore
	Log      *slog.Logger
}

type createSessionReq struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (h *SessionHandler) Register(r chi.Router) {
	if h.Sessions == nil {
		return
	}
	r.Post("/sessions", h.create)
	r.Get("/sessions/current", h.current)
	r.Delete("/sessions/current", h.delete)
}

func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if req.Email == "" {
		writeError(w, r, h.Log, apperr.Validation("MISSING_FIELDS", "email is required"))
		return
	}
	sess, err := h.Sessions.Create(r.Context(), redisx.Session{UserID: req.UserID, Name: req.Name, Email: req.Email})
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, sess)
}

func (h *SessionHandler) current(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, r, h.Log, apperr.NotFound("SESSION_NOT_FOUND", "no active session"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if sess, ok := sessionFrom(r.Context()); ok {
		if err := h.Sessions.Delete(r.Context(), sess.ID); err != nil {
			writeError(w, r, h.Log, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", Expires: time.Unix(0, 0), MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}
