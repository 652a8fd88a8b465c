package internal

import "github.com/google/uuid"

// NewTokenID returns a fresh token identifier used as the jti claim and as
// the revocation-store key component for a session's refresh record.
func NewTokenID() string {
	return uuid.NewString()
}
