package courseauth

import (
	"context"
	"time"
)

// TokenTypeBearer is the only token type this subsystem issues.
const TokenTypeBearer = "Bearer"

// TokenPair is the result of a successful login or refresh. It is immutable
// once issued; rotation supersedes a pair, it never mutates one.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the number of seconds until the access token expires.
	ExpiresIn int `json:"expiresIn"`
}

// AuthResult is the single typed result produced by Authorize at the API
// boundary. Downstream code never re-normalizes token claims.
type AuthResult struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// UserRecord is the minimal account view the Manager needs from the
// credential store: enough to verify a password and mint claims.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Role         string
}

// CredentialStore is the external collaborator holding user accounts.
// The Manager only reads from it; account lifecycle belongs to the host
// application. Lookup failures of any kind are reported to callers as
// invalid credentials.
type CredentialStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
}
