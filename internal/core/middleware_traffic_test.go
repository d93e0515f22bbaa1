package core

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"blackhub/internal/types"
)

func TestIPRateLimiter_BurstThenRefill(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 2)
	l.now = func() time.Time { return now }

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("third request in the same instant should be denied")
	}
	if !l.Allow("2.2.2.2") {
		t.Error("other IPs have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("1.1.1.1") {
		t.Error("token should refill after one second")
	}
}

func TestIPRateLimiter_EvictsIdleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewIPRateLimiter(1, 1)
	l.now = func() time.Time { return now }
	l.lastCleanup = now

	l.Allow("1.1.1.1")
	now = now.Add(limiterEntryTTL + limiterCleanupInterval)
	l.Allow("2.2.2.2")

	if _, ok := l.entries["1.1.1.1"]; ok {
		t.Error("idle entry should have been evicted")
	}
	if len(l.entries) != 1 {
		t.Errorf("entries: %d", len(l.entries))
	}
}

func TestPublicRateLimit(t *testing.T) {
	srv := newTestServer(t)
	srv.PublicLimiter = NewIPRateLimiter(0.001, 1)
	h := srv.PublicRateLimit(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/v1/checkout/verify?reference=r", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After: %q", rec.Header().Get("Retry-After"))
	}
	if got := decodeError(t, rec).Code; got != string(types.ErrCodeRateLimit) {
		t.Errorf("code: %q", got)
	}
}

func TestPublicRateLimit_Disabled(t *testing.T) {
	srv := newTestServer(t)
	srv.PublicLimiter = nil
	h := srv.PublicRateLimit(okHandler())
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, rec.Code)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	if got := extractClientIP(req); got != "192.0.2.1" {
		t.Errorf("remote addr: %q", got)
	}

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 10.0.0.1")
	if got := extractClientIP(req); got != "203.0.113.9" {
		t.Errorf("forwarded: %q", got)
	}
}
