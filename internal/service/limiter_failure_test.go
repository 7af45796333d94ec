package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"contact-guard/internal/repository"
)

// brokenStore fails every call; when block is set it waits for the context instead,
// like a Redis that stopped answering.
type brokenStore struct {
	block bool
	calls atomic.Int64
}

var errStoreDown = errors.New("dial tcp: connection refused")

func (b *brokenStore) wait(ctx context.Context) error {
	b.calls.Add(1)
	if b.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return errStoreDown
}

func (b *brokenStore) SlidingWindow(ctx context.Context, _ string, _ int, _ time.Duration, _ time.Time) (bool, int, time.Duration, error) {
	return false, 0, 0, b.wait(ctx)
}

func (b *brokenStore) Cooldown(ctx context.Context, _ string, _ time.Duration, _ time.Time) (bool, time.Duration, error) {
	return false, 0, b.wait(ctx)
}

func (b *brokenStore) Reset(ctx context.Context, _ ...string) error { return b.wait(ctx) }
func (b *brokenStore) Ping(ctx context.Context) error               { return b.wait(ctx) }
func (b *brokenStore) Backend() string                              { return "broken" }
func (b *brokenStore) Close() error                                 { return nil }

var _ repository.Store = (*brokenStore)(nil)

type countingRecorder struct {
	checks      map[string]int
	storeErrors int
}

func (r *countingRecorder) ObserveCheck(limiter string, allowed bool, reason string) {
	if r.checks == nil {
		r.checks = make(map[string]int)
	}
	r.checks[limiter+":"+reason]++
}

func (r *countingRecorder) ObserveStoreError(string) { r.storeErrors++ }

func TestStoreFailureFailsClosedByDefault(t *testing.T) {
	rec := &countingRecorder{}
	lim := NewLimiter(&brokenStore{}, Options{Recorder: rec})
	ctx := context.Background()

	v := lim.CheckIP(ctx, "1.2.3.4")
	if v.Allowed || v.Reason != ReasonStoreUnavailable {
		t.Fatalf("expected fail-closed denial, got %+v", v)
	}
	v = lim.CheckEmailCooldown(ctx, "a@b.com")
	if v.Allowed || v.Reason != ReasonStoreUnavailable || v.RetryAfterSeconds <= 0 {
		t.Fatalf("expected fail-closed denial with retry hint, got %+v", v)
	}
	if rec.storeErrors != 2 {
		t.Fatalf("expected 2 store errors recorded, got %d", rec.storeErrors)
	}
	if rec.checks["ip:store_unavailable"] != 1 || rec.checks["email:store_unavailable"] != 1 {
		t.Fatalf("unexpected recorded checks: %v", rec.checks)
	}
}

func TestStoreFailureFailOpen(t *testing.T) {
	lim := NewLimiter(&brokenStore{}, Options{FailurePolicy: FailOpen})
	ctx := context.Background()

	if v := lim.CheckIP(ctx, "1.2.3.4"); !v.Allowed || v.Reason != ReasonStoreUnavailable {
		t.Fatalf("expected fail-open allow, got %+v", v)
	}
	if v := lim.CheckEmailCooldown(ctx, "a@b.com"); !v.Allowed {
		t.Fatalf("expected fail-open allow, got %+v", v)
	}
}

func TestStoreTimeoutIsBounded(t *testing.T) {
	lim := NewLimiter(&brokenStore{block: true}, Options{StoreTimeout: 20 * time.Millisecond})

	start := time.Now()
	v := lim.CheckIP(context.Background(), "1.2.3.4")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("check blocked for %v", elapsed)
	}
	if v.Allowed || v.Reason != ReasonStoreUnavailable {
		t.Fatalf("expected timeout to fail closed, got %+v", v)
	}
}

func TestBreakerShortCircuitsStore(t *testing.T) {
	store := &brokenStore{}
	breaker := NewCircuitBreaker(3, 1, time.Hour)
	lim := NewLimiter(store, Options{Breaker: breaker})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if v := lim.CheckIP(ctx, "1.2.3.4"); v.Allowed {
			t.Fatalf("check %d: expected denial", i+1)
		}
	}
	if got := store.calls.Load(); got != 3 {
		t.Fatalf("expected store to be called 3 times before the breaker opened, got %d", got)
	}
	if breaker.State() != StateOpen {
		t.Fatalf("expected open breaker, got %s", breaker.State())
	}
}

func TestCancelledChecksDoNotOpenBreaker(t *testing.T) {
	store := &brokenStore{}
	breaker := NewCircuitBreaker(3, 1, time.Hour)
	rec := &countingRecorder{}
	lim := NewLimiter(store, Options{Breaker: breaker, Recorder: rec})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 10; i++ {
		if v := lim.CheckIP(ctx, "6.6.6.6"); v.Allowed || v.Reason != ReasonCanceled {
			t.Fatalf("check %d: expected cancelled denial, got %+v", i+1, v)
		}
	}
	if breaker.State() != StateClosed {
		t.Fatalf("expected closed breaker, got %s", breaker.State())
	}
	if got := store.calls.Load(); got != 0 {
		t.Fatalf("expected no store calls for cancelled checks, got %d", got)
	}
	if rec.storeErrors != 0 {
		t.Fatalf("expected no store errors recorded, got %d", rec.storeErrors)
	}

	lim.CheckIP(context.Background(), "1.2.3.4")
	if got := store.calls.Load(); got != 1 {
		t.Fatalf("expected the next live check to reach the store, got %d calls", got)
	}
}

func TestCallerCancellingMidCheckDoesNotOpenBreaker(t *testing.T) {
	store := &brokenStore{block: true}
	breaker := NewCircuitBreaker(1, 1, time.Hour)
	lim := NewLimiter(store, Options{Breaker: breaker, StoreTimeout: 5 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if v := lim.CheckIP(ctx, "6.6.6.6"); v.Allowed || v.Reason != ReasonCanceled {
		t.Fatalf("expected cancelled denial, got %+v", v)
	}
	if breaker.State() != StateClosed {
		t.Fatalf("expected closed breaker, got %s", breaker.State())
	}
}

func TestMemoryStoreBypassesBreaker(t *testing.T) {
	breaker := NewCircuitBreaker(5, 2, 10*time.Second)
	lim := NewLimiter(repository.NewMemoryStore(), Options{Breaker: breaker})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		lim.CheckIP(ctx, "6.6.6.6")
	}
	if breaker.State() != StateClosed {
		t.Fatalf("expected closed breaker, got %s", breaker.State())
	}
	if v := lim.CheckIP(context.Background(), "1.2.3.4"); !v.Allowed || v.Reason != ReasonOK {
		t.Fatalf("expected unrelated client to be allowed, got %+v", v)
	}
}

func TestParseFailurePolicy(t *testing.T) {
	tests := map[string]FailurePolicy{
		"":        FailClosed,
		"closed":  FailClosed,
		"OPEN":    FailOpen,
		" open ":  FailOpen,
		"garbage": FailClosed,
	}
	for in, want := range tests {
		if got := ParseFailurePolicy(in); got != want {
			t.Fatalf("ParseFailurePolicy(%q) = %s, want %s", in, got, want)
		}
	}
}
