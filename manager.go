package courseauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flexyzwork/courseauth/internal"
	"github.com/flexyzwork/courseauth/jwt"
	"github.com/flexyzwork/courseauth/password"
	"github.com/flexyzwork/courseauth/rate"
	"github.com/flexyzwork/courseauth/store"
)

const (
	refreshKeyPrefix   = "rt:"
	blacklistKeyPrefix = "bl:"

	// refreshRecordValid is the value stored under a refresh record. The
	// rotation compare-and-delete matches against it so exactly one caller
	// can consume a record.
	refreshRecordValid = "valid"
)

// Manager drives the token lifecycle: login, refresh rotation, logout,
// authorization, and session revocation. Build one with the Builder.
// All methods are safe for concurrent use.
type Manager struct {
	config      Config
	kv          *store.Store
	limiter     *rate.Limiter
	tokens      *jwt.Manager
	passwords   *password.Argon2
	credentials CredentialStore
	logger      *slog.Logger
}

func refreshKey(userID, tokenID string) string {
	return refreshKeyPrefix + userID + ":" + tokenID
}

func blacklistKey(tokenID string) string {
	return blacklistKeyPrefix + tokenID
}

// Login verifies credentials and issues a fresh token pair. Unknown email
// and wrong password both return ErrInvalidCredentials; once the failure
// counter reaches the configured maximum, ErrRateLimited is returned before
// credentials are examined so even a correct password cannot break through
// until the window expires.
func (m *Manager) Login(ctx context.Context, email, plaintext string) (TokenPair, error) {
	if m == nil || m.kv == nil {
		return TokenPair{}, ErrManagerNotReady
	}

	ip := clientIPFromContext(ctx)

	if err := m.limiter.Check(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			m.logger.Warn("login rate limited", "email", email, "ip", ip)
			return TokenPair{}, ErrRateLimited
		}
		return TokenPair{}, m.storeErr(err)
	}

	user, lookupErr := m.credentials.GetUserByEmail(ctx, email)

	ok := false
	if lookupErr == nil && plaintext != "" {
		var verifyErr error
		ok, verifyErr = m.passwords.Verify(plaintext, user.PasswordHash)
		if verifyErr != nil {
			ok = false
		}
	}

	if !ok {
		if err := m.limiter.Increment(ctx, email, ip); err != nil {
			return TokenPair{}, m.storeErr(err)
		}
		m.logger.Debug("login failed", "email", email)
		return TokenPair{}, ErrInvalidCredentials
	}

	if err := m.limiter.Reset(ctx, email); err != nil {
		return TokenPair{}, m.storeErr(err)
	}

	pair, err := m.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}

	m.logger.Info("login succeeded", "user_id", user.UserID)
	return pair, nil
}

// Refresh rotates a refresh token: the presented token is atomically
// consumed and a new pair is issued. Presenting an already-consumed token
// is treated as theft evidence: every session of that user is revoked and
// the caller gets the same ErrRevokedOrUnknown as for a never-issued token.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if m == nil || m.kv == nil {
		return TokenPair{}, ErrManagerNotReady
	}

	claims, err := m.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, ErrTokenInvalid
	}

	consumed, err := m.kv.CompareAndDelete(ctx, refreshKey(claims.Subject, claims.ID), refreshRecordValid)
	if err != nil {
		return TokenPair{}, m.storeErr(err)
	}
	if !consumed {
		// A signed, unexpired token with no validity record was rotated,
		// logged out, or revoked. Replay of a rotated token means the
		// token leaked, so the whole subject gets revoked.
		m.logger.Warn("refresh token reuse detected",
			"user_id", claims.Subject,
			"token_id", claims.ID,
		)
		if _, revokeErr := m.RevokeAllSessions(ctx, claims.Subject); revokeErr != nil {
			m.logger.Error("session revocation after reuse failed",
				"user_id", claims.Subject,
				"error", revokeErr,
			)
		}
		return TokenPair{}, ErrRevokedOrUnknown
	}

	user, err := m.credentials.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, ErrRevokedOrUnknown
	}

	pair, err := m.issuePair(ctx, user)
	if err != nil {
		return TokenPair{}, err
	}

	m.logger.Info("token pair rotated", "user_id", user.UserID)
	return pair, nil
}

// Logout revokes a session server side: the access token is blacklisted
// for its remaining lifetime and the refresh record is deleted. Tokens
// that fail to parse are ignored, so logout is idempotent and succeeds
// for already-dead sessions. Store outages still surface as
// ErrStoreUnavailable.
func (m *Manager) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if m == nil || m.kv == nil {
		return ErrManagerNotReady
	}

	if claims, err := m.tokens.ParseAccess(accessToken); err == nil {
		remaining := time.Until(claims.ExpiresAt.Time)
		if remaining > 0 {
			if err := m.kv.SetWithTTL(ctx, blacklistKey(claims.ID), "1", remaining); err != nil {
				return m.storeErr(err)
			}
		}
	}

	if claims, err := m.tokens.ParseRefresh(refreshToken); err == nil {
		if err := m.kv.Delete(ctx, refreshKey(claims.Subject, claims.ID)); err != nil {
			return m.storeErr(err)
		}
		m.logger.Info("logout", "user_id", claims.Subject)
	}

	return nil
}

// Authorize validates an access token for a protected request. Signature
// and expiry are checked before the blacklist, so the store is only
// consulted for otherwise-valid tokens. A store outage fails closed with
// ErrStoreUnavailable: an unreachable blacklist never admits a token.
func (m *Manager) Authorize(ctx context.Context, accessToken string) (AuthResult, error) {
	if m == nil || m.kv == nil {
		return AuthResult{}, ErrManagerNotReady
	}

	claims, err := m.tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AuthResult{}, ErrTokenExpired
		}
		return AuthResult{}, ErrTokenInvalid
	}

	_, err = m.kv.Get(ctx, blacklistKey(claims.ID))
	switch {
	case err == nil:
		return AuthResult{}, ErrRevoked
	case errors.Is(err, store.ErrNotFound):
		// Not blacklisted.
	default:
		return AuthResult{}, m.storeErr(err)
	}

	return AuthResult{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RevokeAllSessions deletes every refresh record belonging to userID and
// returns how many sessions were revoked. Outstanding access tokens keep
// working until their expiry; only the refresh path is cut.
func (m *Manager) RevokeAllSessions(ctx context.Context, userID string) (int, error) {
	if m == nil || m.kv == nil {
		return 0, ErrManagerNotReady
	}

	count, err := m.kv.DeleteByPrefix(ctx, refreshKeyPrefix+userID+":")
	if err != nil {
		return 0, m.storeErr(err)
	}

	m.logger.Info("all sessions revoked", "user_id", userID, "count", count)
	return count, nil
}

// LoginAttempts reports the current failed-attempt count for an email.
func (m *Manager) LoginAttempts(ctx context.Context, email string) (int64, error) {
	if m == nil || m.kv == nil {
		return 0, ErrManagerNotReady
	}

	count, err := m.limiter.Attempts(ctx, email)
	if err != nil {
		return 0, m.storeErr(err)
	}
	return count, nil
}

// Ping reports revocation-store availability and latency.
func (m *Manager) Ping(ctx context.Context) (time.Duration, error) {
	if m == nil || m.kv == nil {
		return 0, ErrManagerNotReady
	}

	latency, err := m.kv.Ping(ctx)
	if err != nil {
		return latency, m.storeErr(err)
	}
	return latency, nil
}

func (m *Manager) issuePair(ctx context.Context, user UserRecord) (TokenPair, error) {
	tokenID := internal.NewTokenID()

	access, _, err := m.tokens.CreateAccess(user.UserID, user.Email, user.Role, tokenID)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := m.tokens.CreateRefresh(user.UserID, tokenID)
	if err != nil {
		return TokenPair{}, err
	}

	err = m.kv.SetWithTTL(ctx, refreshKey(user.UserID, tokenID), refreshRecordValid, m.config.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, m.storeErr(err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int(m.config.JWT.AccessTTL.Seconds()),
	}, nil
}

func (m *Manager) storeErr(err error) error {
	if errors.Is(err, store.ErrUnavailable) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
