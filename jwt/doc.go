// Package jwt signs and verifies the access and refresh tokens issued by
// the auth manager. Both token types are HS256 with independent secrets and
// carry a typ claim so one can never be presented in place of the other.
package jwt
