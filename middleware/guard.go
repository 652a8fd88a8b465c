// Package middleware provides the HTTP guard that protects routes with
// access-token authorization and advises clients on upcoming expiry.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	courseauth "github.com/flexyzwork/courseauth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the authorization result the Guard stored
// for the current request.
func AuthResultFromContext(ctx context.Context) (*courseauth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*courseauth.AuthResult)
	return res, ok
}

// Guard authorizes each request's bearer token before passing it on. The
// response carries X-Token-Expires-In with the seconds left on the token
// and X-Refresh-Required: true once that drops below refreshThreshold, so
// clients can refresh proactively instead of waiting for a 401.
func Guard(manager *courseauth.Manager, refreshThreshold time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				writeError(w, courseauth.ErrManagerNotReady)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, courseauth.ErrTokenInvalid)
				return
			}

			res, err := manager.Authorize(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			remaining := time.Until(res.ExpiresAt)
			w.Header().Set("X-Token-Expires-In", strconv.Itoa(int(remaining.Seconds())))
			if refreshThreshold > 0 && remaining < refreshThreshold {
				w.Header().Set("X-Refresh-Required", "true")
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, &res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(courseauth.StatusForError(err))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(courseauth.ReasonForError(err)),
	})
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
