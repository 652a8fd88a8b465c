// Package rate throttles login attempts with fixed-window counters kept in
// the revocation store, so all app instances share one view of attempt
// counts.
package rate

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/flexyzwork/courseauth/store"
)

// ErrRateLimited is returned by Check once an identifier or client IP has
// reached the configured attempt maximum for the current window.
var ErrRateLimited = errors.New("login rate limited")

const (
	identifierKeyPrefix = "la:id:"
	ipKeyPrefix         = "la:ip:"
)

// Config tunes the login throttle.
type Config struct {
	MaxAttempts      int
	Window           time.Duration
	EnableIPThrottle bool
}

// Limiter counts failed login attempts per identifier and, optionally, per
// client IP. Counters expire as a whole when the window elapses.
type Limiter struct {
	store  *store.Store
	config Config
}

// New creates a Limiter backed by the given store.
func New(s *store.Store, cfg Config) *Limiter {
	return &Limiter{store: s, config: cfg}
}

// Check returns ErrRateLimited when either counter has reached the maximum.
// A login attempt whose counter is already at the limit is rejected before
// the credentials are examined, so the Nth failure locks out even a correct
// password until the window expires.
func (l *Limiter) Check(ctx context.Context, identifier, ip string) error {
	count, err := l.attempts(ctx, identifierKeyPrefix+identifier)
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.attempts(ctx, ipKeyPrefix+ip)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// Increment records a failed attempt against the identifier and IP counters.
func (l *Limiter) Increment(ctx context.Context, identifier, ip string) error {
	if _, err := l.store.Increment(ctx, identifierKeyPrefix+identifier, l.config.Window); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if _, err := l.store.Increment(ctx, ipKeyPrefix+ip, l.config.Window); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears the identifier counter after a successful login. The IP
// counter is left alone so a distributed guesser cannot launder its count
// through one valid account.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.store.Delete(ctx, identifierKeyPrefix+identifier)
}

// Attempts returns the current failed-attempt count for an identifier.
func (l *Limiter) Attempts(ctx context.Context, identifier string) (int64, error) {
	return l.attempts(ctx, identifierKeyPrefix+identifier)
}

func (l *Limiter) attempts(ctx context.Context, key string) (int64, error) {
	val, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	count, parseErr := strconv.ParseInt(val, 10, 64)
	if parseErr != nil {
		return 0, nil
	}
	return count, nil
}
