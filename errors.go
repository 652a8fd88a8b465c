package courseauth

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidCredentials is returned by Login when the email is unknown
	// or the password does not match. The two cases are intentionally
	// indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrRateLimited is returned by Login once the attempt counter for the
	// identifier (or client IP) has reached the configured maximum.
	ErrRateLimited = errors.New("login rate limited")
	// ErrTokenInvalid is returned when a token fails signature or structural
	// verification, including tokens signed with the wrong secret for their
	// type.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned by Authorize for a well-formed access
	// token past its expiry. Clients treat it as "needs refresh" rather
	// than "needs re-login".
	ErrTokenExpired = errors.New("token expired")
	// ErrRevoked is returned by Authorize for an access token that is still
	// within its lifetime but present on the blacklist.
	ErrRevoked = errors.New("access token revoked")
	// ErrRevokedOrUnknown is returned by Refresh when no validity record
	// exists for the presented token: it was rotated, logged out, revoked,
	// or never issued. The cases are deliberately not distinguishable.
	ErrRevokedOrUnknown = errors.New("refresh token revoked or unknown")
	// ErrStoreUnavailable wraps revocation-store connection failures.
	// Authorize fails closed on it: a store outage degrades availability,
	// never security.
	ErrStoreUnavailable = errors.New("revocation store unavailable")
	// ErrManagerNotReady is returned when a Manager is used before Build
	// completed its wiring.
	ErrManagerNotReady = errors.New("manager not initialized")
)

// ReasonCode is the machine-readable error code carried in HTTP error
// responses so clients can distinguish "needs refresh" from "needs
// re-login" without parsing messages.
type ReasonCode string

const (
	ReasonInvalidCredentials ReasonCode = "invalid_credentials"
	ReasonRateLimited        ReasonCode = "rate_limited"
	ReasonTokenInvalid       ReasonCode = "token_invalid"
	ReasonTokenExpired       ReasonCode = "token_expired"
	ReasonTokenRevoked       ReasonCode = "token_revoked"
	ReasonRefreshRevoked     ReasonCode = "refresh_revoked"
	ReasonStoreUnavailable   ReasonCode = "store_unavailable"
	ReasonInternal           ReasonCode = "internal_error"
)

// ReasonForError maps a Manager error to its wire reason code.
func ReasonForError(err error) ReasonCode {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return ReasonInvalidCredentials
	case errors.Is(err, ErrRateLimited):
		return ReasonRateLimited
	case errors.Is(err, ErrTokenExpired):
		return ReasonTokenExpired
	case errors.Is(err, ErrRevoked):
		return ReasonTokenRevoked
	case errors.Is(err, ErrRevokedOrUnknown):
		return ReasonRefreshRevoked
	case errors.Is(err, ErrTokenInvalid):
		return ReasonTokenInvalid
	case errors.Is(err, ErrStoreUnavailable):
		return ReasonStoreUnavailable
	default:
		return ReasonInternal
	}
}

// StatusForError maps a Manager error to its HTTP status code.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrRevoked),
		errors.Is(err, ErrRevokedOrUnknown),
		errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
