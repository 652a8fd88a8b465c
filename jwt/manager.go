package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned by the parse methods for a structurally valid
// token whose expiry has passed.
var ErrTokenExpired = errors.New("token expired")

// ErrTokenInvalid is returned for every other verification failure:
// bad signature, wrong secret for the token type, malformed claims,
// or a typ mismatch.
var ErrTokenInvalid = errors.New("token invalid")

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

const minSecretLen = 32

// Config defines signing material and lifetimes for the token codec.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

// Manager is a stateless token codec. It is safe for concurrent use.
type Manager struct {
	config Config
}

// Claims is the claim set carried by both token types. Subject holds the
// user ID and ID (jti) holds the per-session token identifier used by the
// revocation store.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and returns a token codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.AccessSecret) < minSecretLen {
		return nil, errors.New("access secret must be at least 32 bytes")
	}
	if len(cfg.RefreshSecret) < minSecretLen {
		return nil, errors.New("refresh secret must be at least 32 bytes")
	}

	return &Manager{config: cfg}, nil
}

// CreateAccess signs a short-lived access token embedding the user's
// identity claims. It returns the compact token and its expiry instant.
func (j *Manager) CreateAccess(userID, email, role, tokenID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.config.AccessTTL)

	claims := Claims{
		Email: email,
		Role:  role,
		Type:  typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// CreateRefresh signs a long-lived refresh token. Refresh tokens carry only
// the subject and token ID; identity claims are re-read from the credential
// store at refresh time so stale roles never outlive an access TTL.
func (j *Manager) CreateRefresh(userID, tokenID string) (string, error) {
	now := time.Now()

	claims := Claims{
		Type: typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.RefreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    j.config.Issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.config.RefreshSecret)
}

// ParseAccess verifies an access token against the access secret.
func (j *Manager) ParseAccess(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, typeAccess, j.config.AccessSecret)
}

// ParseRefresh verifies a refresh token against the refresh secret.
func (j *Manager) ParseRefresh(tokenStr string) (*Claims, error) {
	return j.parse(tokenStr, typeRefresh, j.config.RefreshSecret)
}

func (j *Manager) parse(tokenStr, wantType string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if j.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(j.config.Leeway))
	}
	if j.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(j.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Type != wantType {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
