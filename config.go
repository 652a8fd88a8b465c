package courseauth

import (
	"bytes"
	"errors"
	"time"
)

// Config is the full configuration tree for the Manager. Construct it from
// DefaultConfig and override fields; it is treated as immutable after Build.
type Config struct {
	JWT       JWTConfig
	Store     StoreConfig
	RateLimit RateLimitConfig
	Password  PasswordConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing material and lifetimes for both token types.
// Access and refresh tokens use independent secrets so that a refresh token
// can never be replayed as an access token or vice versa.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig tunes the revocation store adapter.
type StoreConfig struct {
	KeyPrefix string
	// OpTimeout bounds every store round-trip; operations fail rather than
	// hang when the store is unreachable.
	OpTimeout time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig tunes brute-force login throttling. Counters live in the
// revocation store under a fixed-window TTL.
type RateLimitConfig struct {
	MaxLoginAttempts int
	AttemptWindow    time.Duration
	EnableIPThrottle bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters for credential verification.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns a configuration with production-safe defaults.
// Secrets are intentionally empty and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Store: StoreConfig{
			KeyPrefix: "ca",
			OpTimeout: 3 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			AttemptWindow:    15 * time.Minute,
			EnableIPThrottle: true,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

const minSecretLen = 32

// Validate rejects configurations that would weaken the token lifecycle
// guarantees.
func (c Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if len(c.JWT.AccessSecret) < minSecretLen {
		return errors.New("access secret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < minSecretLen {
		return errors.New("refresh secret must be at least 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("invalid leeway configuration")
	}
	if c.Store.KeyPrefix == "" {
		return errors.New("store key prefix must not be empty")
	}
	if c.Store.OpTimeout < 0 {
		return errors.New("store op timeout must not be negative")
	}
	if c.RateLimit.MaxLoginAttempts < 1 {
		return errors.New("max login attempts must be at least 1")
	}
	if c.RateLimit.AttemptWindow <= 0 {
		return errors.New("attempt window must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
