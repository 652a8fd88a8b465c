package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config tunes the Coordinator's refresh behavior. Zero values fall back
// to the defaults noted on each field.
type Config struct {
	// RefreshThreshold is how long before access-token expiry a refresh
	// is scheduled. Default 5m.
	RefreshThreshold time.Duration
	// MinRefreshInterval suppresses back-to-back refreshes. Default 10s.
	MinRefreshInterval time.Duration
	// MonitorInterval is the background check period. Default 60s.
	MonitorInterval time.Duration
	// MaxRetries bounds refresh attempts per call. Default 3.
	MaxRetries uint
	// InitialBackoff seeds the exponential retry delay. Default 500ms.
	InitialBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshThreshold <= 0 {
		c.RefreshThreshold = 5 * time.Minute
	}
	if c.MinRefreshInterval <= 0 {
		c.MinRefreshInterval = 10 * time.Second
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = time.Minute
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 500 * time.Millisecond
	}
	return c
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithOnExpired registers a callback fired once when the session dies and
// the user must log in again.
func WithOnExpired(fn func()) Option {
	return func(c *Coordinator) { c.onExpired = fn }
}

// WithHTTPClient sets the client used by Do for application requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Coordinator) { c.httpClient = hc }
}

// refreshCall is a shared in-flight refresh. Concurrent callers wait on
// done instead of issuing their own request, so one rotation serves all of
// them and the single-use refresh token is never double-spent.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Coordinator owns a session's token pair on the client side. It refreshes
// proactively ahead of expiry, collapses concurrent refresh attempts into
// one request, persists state through a Storage, and runs an optional
// background monitor for idle periods.
type Coordinator struct {
	api        *Client
	storage    Storage
	config     Config
	httpClient *http.Client
	onExpired  func()

	mu          sync.Mutex
	state       TokenState
	hasState    bool
	refreshHint bool
	lastRefresh time.Time
	inflight    *refreshCall

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewCoordinator creates a Coordinator and restores any session found in
// storage.
func NewCoordinator(api *Client, storage Storage, cfg Config, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		api:        api,
		storage:    storage,
		config:     cfg.withDefaults(),
		httpClient: api.HTTPClient,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	if storage != nil {
		state, ok, err := storage.Load()
		if err != nil {
			return nil, err
		}
		if ok {
			c.state = state
			c.hasState = true
		}
	}

	return c, nil
}

// Login authenticates and adopts the resulting session.
func (c *Coordinator) Login(ctx context.Context, email, password string) error {
	pair, err := c.api.Login(ctx, email, password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.applyPairLocked(pair)
	c.mu.Unlock()
	return nil
}

// SetSession adopts a pair obtained elsewhere, e.g. a signup flow.
func (c *Coordinator) SetSession(pair TokenPair) {
	c.mu.Lock()
	c.applyPairLocked(pair)
	c.mu.Unlock()
}

// Logout revokes the session server side and clears local state. Local
// state is cleared even when the server call fails.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	state, has := c.state, c.hasState
	c.clearLocked()
	c.mu.Unlock()

	if !has {
		return nil
	}
	return c.api.Logout(ctx, state.AccessToken, state.RefreshToken)
}

// AccessToken returns the current access token.
func (c *Coordinator) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasState {
		return "", ErrNotAuthenticated
	}
	return c.state.AccessToken, nil
}

// Authenticated reports whether a session is held.
func (c *Coordinator) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasState
}

// ShouldRefresh reports whether the session is due for a proactive
// refresh: the token is inside the expiry threshold or the server sent a
// refresh advisory, no refresh is already in flight, and the minimum
// interval since the last refresh has passed.
func (c *Coordinator) ShouldRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldRefreshLocked()
}

func (c *Coordinator) shouldRefreshLocked() bool {
	if !c.hasState || c.inflight != nil {
		return false
	}
	if time.Since(c.lastRefresh) < c.config.MinRefreshInterval {
		return false
	}
	if c.refreshHint {
		return true
	}
	return time.Until(time.Unix(c.state.ExpiresAt, 0)) < c.config.RefreshThreshold
}

// Refresh rotates the session's token pair. Concurrent callers share one
// request: whoever arrives first performs the rotation and everyone else
// waits for its outcome. Transient failures are retried with exponential
// backoff; a server rejection or exhausted retries ends the session with
// ErrSessionExpired.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if !c.hasState || c.state.RefreshToken == "" {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}

	call := &refreshCall{done: make(chan struct{})}
	c.inflight = call
	refreshToken := c.state.RefreshToken
	c.mu.Unlock()

	pair, err := c.refreshWithRetry(ctx, refreshToken)

	c.mu.Lock()
	c.inflight = nil
	expired := false
	if err == nil {
		c.applyPairLocked(pair)
	} else if errors.Is(err, ErrSessionExpired) {
		c.clearLocked()
		expired = true
	}
	c.mu.Unlock()

	if expired && c.onExpired != nil {
		c.onExpired()
	}

	call.err = err
	close(call.done)
	return err
}

func (c *Coordinator) refreshWithRetry(ctx context.Context, refreshToken string) (TokenPair, error) {
	operation := func() (TokenPair, error) {
		pair, err := c.api.Refresh(ctx, refreshToken)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
				// The server no longer recognizes this token; retrying
				// cannot succeed.
				return TokenPair{}, backoff.Permanent(err)
			}
			return TokenPair{}, err
		}
		return pair, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = c.config.InitialBackoff

	pair, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.config.MaxRetries),
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return TokenPair{}, err
		}
		return TokenPair{}, fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}
	return pair, nil
}

// Do sends an application request with the session's bearer token. A
// refresh is performed first when the token is due, and exactly one
// reactive refresh-and-retry happens if the server still answers 401.
// Server refresh advisories on the response flag the session for an early
// refresh on the next cycle.
func (c *Coordinator) Do(req *http.Request) (*http.Response, error) {
	if c.ShouldRefresh() {
		if err := c.Refresh(req.Context()); err != nil {
			return nil, err
		}
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_ = resp.Body.Close()

	if err := c.Refresh(req.Context()); err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Coordinator) send(req *http.Request) (*http.Response, error) {
	token, err := c.AccessToken()
	if err != nil {
		return nil, err
	}

	attempt := req.Clone(req.Context())
	attempt.Header.Set("Authorization", "Bearer "+token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}

	resp, err := c.httpClient.Do(attempt)
	if err != nil {
		return nil, err
	}

	if resp.Header.Get("X-Refresh-Required") == "true" {
		c.mu.Lock()
		c.refreshHint = true
		c.mu.Unlock()
	}

	return resp, nil
}

// Start launches the background monitor that refreshes idle sessions
// before their access token lapses. Call Close to stop it.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.config.MonitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-c.done:
				return
			case <-ticker.C:
				if !c.ShouldRefresh() {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_ = c.Refresh(ctx)
				cancel()
			}
		}
	}()
}

// Close stops the monitor and waits for it to exit. Safe to call more
// than once.
func (c *Coordinator) Close() {
	c.closeOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Coordinator) applyPairLocked(pair TokenPair) {
	c.state = TokenState{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second).Unix(),
	}
	c.hasState = true
	c.refreshHint = false
	c.lastRefresh = time.Now()

	if c.storage != nil {
		_ = c.storage.Save(c.state)
	}
}

func (c *Coordinator) clearLocked() {
	c.state = TokenState{}
	c.hasState = false
	c.refreshHint = false

	if c.storage != nil {
		_ = c.storage.Clear()
	}
}
