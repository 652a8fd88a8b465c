// Package httpapi exposes the token lifecycle over HTTP: login, refresh,
// logout, session revocation, and an identity echo for authenticated
// clients. Responses use JSON bodies and machine-readable error codes so
// clients never parse error messages.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	courseauth "github.com/flexyzwork/courseauth"
	"github.com/flexyzwork/courseauth/middleware"
)

// Handler serves the auth endpoints for a Manager.
type Handler struct {
	Manager *courseauth.Manager
	Logger  *slog.Logger

	// RefreshThreshold controls when guarded responses advise clients to
	// refresh proactively. Zero disables the advisory header.
	RefreshThreshold time.Duration

	// RetryAfter is the value of the Retry-After header on 429 responses.
	RetryAfter time.Duration
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type revokeAllResponse struct {
	RevokedCount int `json:"revokedCount"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewRouter mounts the auth endpoints on a chi router with request ID,
// real IP, and structured request logging middleware applied.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.Logger))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(h.Manager, h.RefreshThreshold))
			r.Get("/me", h.handleMe)
			r.Post("/revoke-all", h.handleRevokeAll)
		})
	})

	return r
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Email == "" {
		h.writeBadRequest(w, "email is required")
		return
	}

	ctx := courseauth.WithClientIP(r.Context(), clientIP(r))

	pair, err := h.Manager.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}
	if req.RefreshToken == "" {
		h.writeBadRequest(w, "refreshToken is required")
		return
	}

	pair, err := h.Manager.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeBadRequest(w, "invalid request body")
		return
	}

	if err := h.Manager.Logout(r.Context(), req.AccessToken, req.RefreshToken); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.writeError(w, courseauth.ErrTokenInvalid)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleRevokeAll(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.AuthResultFromContext(r.Context())
	if !ok {
		h.writeError(w, courseauth.ErrTokenInvalid)
		return
	}

	count, err := h.Manager.RevokeAllSessions(r.Context(), res.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, revokeAllResponse{RevokedCount: count})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && h.Logger != nil {
		h.Logger.Error("response encoding failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, courseauth.ErrRateLimited) && h.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.RetryAfter.Seconds())))
	}

	h.writeJSON(w, courseauth.StatusForError(err), errorResponse{
		Error: err.Error(),
		Code:  string(courseauth.ReasonForError(err)),
	})
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, msg string) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: msg,
		Code:  "bad_request",
	})
}

func clientIP(r *http.Request) string {
	// chi's RealIP middleware rewrites RemoteAddr from the forwarding
	// headers, so RemoteAddr is authoritative here.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
