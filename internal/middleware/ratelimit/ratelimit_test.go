package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, rps float64, burst int) *Limiter {
	t.Helper()
	rl := NewLimiter(Config{RequestsPerSecond: rps, Burst: burst, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	return rl
}

func TestAllowBurstThenReject(t *testing.T) {
	rl := newTestLimiter(t, 1, 3)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("a") {
		t.Fatal("request beyond burst should be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatal("a token should have been refilled")
	}
	if rl.Rejected() != 1 {
		t.Fatalf("expected 1 rejection, got %d", rl.Rejected())
	}
}

func TestCleanupRemovesIdleClients(t *testing.T) {
	rl := newTestLimiter(t, 1, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(11 * time.Minute)
	rl.Allow("new")

	if n := rl.cleanupStaleEntries(); n != 1 {
		t.Fatalf("expected 1 stale client removed, got %d", n)
	}
	if rl.ActiveClients() != 1 {
		t.Fatalf("expected 1 active client, got %d", rl.ActiveClients())
	}
}

func TestMiddleware(t *testing.T) {
	rl := newTestLimiter(t, 1, 1)
	h := rl.Middleware(func(r *http.Request) string { return "same" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}
