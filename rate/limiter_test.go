package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/flexyzwork/courseauth/store"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(store.New(client, "ca", 3*time.Second), cfg), mr
}

func TestCheckBlocksAtMax(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 3, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Check(ctx, "a@b.com", ""); err != nil {
			t.Fatalf("attempt %d blocked early: %v", i+1, err)
		}
		if err := l.Increment(ctx, "a@b.com", ""); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	if err := l.Check(ctx, "a@b.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited after max failures, got %v", err)
	}
}

func TestWindowExpiryUnblocks(t *testing.T) {
	l, mr := newTestLimiter(t, Config{MaxAttempts: 2, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = l.Increment(ctx, "a@b.com", "")
	}
	if err := l.Check(ctx, "a@b.com", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(16 * time.Minute)

	if err := l.Check(ctx, "a@b.com", ""); err != nil {
		t.Fatalf("still blocked after window expiry: %v", err)
	}
}

func TestResetClearsIdentifierOnly(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 2, Window: 15 * time.Minute, EnableIPThrottle: true})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = l.Increment(ctx, "a@b.com", "10.0.0.1")
	}

	if err := l.Reset(ctx, "a@b.com"); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	count, err := l.Attempts(ctx, "a@b.com")
	if err != nil || count != 0 {
		t.Fatalf("identifier counter not cleared: count=%d err=%v", count, err)
	}

	// The IP counter survives a reset and keeps throttling other identifiers.
	if err := l.Check(ctx, "other@b.com", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle to hold, got %v", err)
	}
}

func TestIPThrottleDisabled(t *testing.T) {
	l, _ := newTestLimiter(t, Config{MaxAttempts: 2, Window: 15 * time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = l.Increment(ctx, "a@b.com", "10.0.0.1")
	}

	if err := l.Check(ctx, "other@b.com", "10.0.0.1"); err != nil {
		t.Fatalf("IP throttle applied while disabled: %v", err)
	}
}
