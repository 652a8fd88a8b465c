// Package client is the consumer-side SDK for the auth API: a thin HTTP
// client for the endpoints plus a Coordinator that keeps a session's token
// pair fresh across concurrent callers.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNotAuthenticated is returned when an operation needs a session and the
// coordinator holds none.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrSessionExpired is returned once refresh retries are exhausted or the
// server rejects the refresh token; the caller must log in again.
var ErrSessionExpired = errors.New("session expired")

// TokenPair mirrors the server's issuance response.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int    `json:"expiresIn"`
}

// APIError is a non-2xx response from the auth API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
}

// Client calls the auth endpoints. Safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a Client for the API at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (TokenPair, error) {
	return c.postForPair(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
}

// Refresh rotates a refresh token into a new pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	return c.postForPair(ctx, "/auth/refresh", map[string]string{
		"refreshToken": refreshToken,
	}, "")
}

// Logout revokes the session server side.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", map[string]string{
		"accessToken":  accessToken,
		"refreshToken": refreshToken,
	}, "")
	return err
}

// RevokeAll revokes every session of the authenticated user and returns
// how many were revoked.
func (c *Client) RevokeAll(ctx context.Context, accessToken string) (int, error) {
	body, err := c.do(ctx, http.MethodPost, "/auth/revoke-all", nil, accessToken)
	if err != nil {
		return 0, err
	}

	var resp struct {
		RevokedCount int `json:"revokedCount"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}
	return resp.RevokedCount, nil
}

func (c *Client) postForPair(ctx context.Context, path string, payload any, bearer string) (TokenPair, error) {
	body, err := c.do(ctx, http.MethodPost, path, payload, bearer)
	if err != nil {
		return TokenPair{}, err
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, bearer string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var decoded struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &decoded) == nil {
			apiErr.Code = decoded.Code
			apiErr.Message = decoded.Error
		}
		return nil, apiErr
	}

	return body, nil
}
