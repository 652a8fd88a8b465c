package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pairResponse(w http.ResponseWriter, access, refresh string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	})
}

func errorResponse(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "code": code})
}

func fastConfig() Config {
	return Config{
		RefreshThreshold:   5 * time.Minute,
		MinRefreshInterval: time.Nanosecond,
		MonitorInterval:    10 * time.Millisecond,
		MaxRetries:         3,
		InitialBackoff:     time.Millisecond,
	}
}

func TestConcurrentRefreshSharesOneCall(t *testing.T) {
	var refreshCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		time.Sleep(100 * time.Millisecond)
		pairResponse(w, "access-2", "refresh-2", 900)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = coord.Refresh(context.Background())
	}()

	// Give the first caller time to take the in-flight slot.
	time.Sleep(20 * time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[1] = coord.Refresh(context.Background())
	}()

	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))

	token, err := coord.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestDoRetriesOnceAfter401(t *testing.T) {
	var protectedCalls, refreshCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		pairResponse(w, "access-2", "refresh-2", 900)
	})
	mux.HandleFunc("GET /courses", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&protectedCalls, 1)
		if r.Header.Get("Authorization") != "Bearer access-2" {
			errorResponse(w, http.StatusUnauthorized, "token_expired")
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastConfig()
	// Keep the proactive path quiet so only the reactive retry runs.
	cfg.RefreshThreshold = time.Second
	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, cfg)
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/courses", nil)
	require.NoError(t, err)

	resp, err := coord.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), atomic.LoadInt64(&protectedCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
}

func TestRefreshRejectionEndsSession(t *testing.T) {
	var refreshCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		errorResponse(w, http.StatusUnauthorized, "refresh_revoked")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := &MemoryStorage{}
	var expiredFired int64
	coord, err := NewCoordinator(NewClient(srv.URL), storage, fastConfig(),
		WithOnExpired(func() { atomic.AddInt64(&expiredFired, 1) }),
	)
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	err = coord.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)

	// A 401 is permanent: no retries.
	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&expiredFired))
	assert.False(t, coord.Authenticated())

	_, ok, err := storage.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshRetriesTransientFailures(t *testing.T) {
	var refreshCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&refreshCalls, 1) < 3 {
			errorResponse(w, http.StatusServiceUnavailable, "store_unavailable")
			return
		}
		pairResponse(w, "access-2", "refresh-2", 900)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	require.NoError(t, coord.Refresh(context.Background()))
	assert.Equal(t, int64(3), atomic.LoadInt64(&refreshCalls))
	assert.True(t, coord.Authenticated())
}

func TestRefreshExhaustionEndsSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusServiceUnavailable, "store_unavailable")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	err = coord.Refresh(context.Background())
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.False(t, coord.Authenticated())
}

func TestMonitorRefreshesExpiringSession(t *testing.T) {
	var refreshCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&refreshCalls, 1)
		pairResponse(w, "access-2", "refresh-2", 900)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)
	// A 1-second lifetime is inside the 5-minute threshold from the start.
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 1})

	coord.Start()
	defer coord.Close()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&refreshCalls) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	assert.GreaterOrEqual(t, atomic.LoadInt64(&refreshCalls), int64(1))

	token, err := coord.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestCloseIsIdempotent(t *testing.T) {
	coord, err := NewCoordinator(NewClient("http://127.0.0.1:0"), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)

	coord.Start()
	coord.Close()
	coord.Close()
}

func TestStorageRestoresSession(t *testing.T) {
	storage := &MemoryStorage{}
	require.NoError(t, storage.Save(TokenState{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}))

	coord, err := NewCoordinator(NewClient("http://127.0.0.1:0"), storage, fastConfig())
	require.NoError(t, err)

	assert.True(t, coord.Authenticated())
	token, err := coord.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token)
}

func TestRefreshWithoutSession(t *testing.T) {
	coord, err := NewCoordinator(NewClient("http://127.0.0.1:0"), &MemoryStorage{}, fastConfig())
	require.NoError(t, err)

	err = coord.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRefreshAdvisoryHeaderSchedulesEarlyRefresh(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /courses", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Refresh-Required", "true")
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastConfig()
	cfg.RefreshThreshold = time.Second
	coord, err := NewCoordinator(NewClient(srv.URL), &MemoryStorage{}, cfg)
	require.NoError(t, err)
	coord.SetSession(TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1", ExpiresIn: 900})

	require.False(t, coord.ShouldRefresh())

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/courses", nil)
	require.NoError(t, err)
	resp, err := coord.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.True(t, coord.ShouldRefresh())
}
