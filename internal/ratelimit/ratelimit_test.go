package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cfg Config) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(cfg)
	l.now = clock.now
	return l, clock
}

func TestTokenBucketRefills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := newTokenBucket(2, 1, clock.now)
	if !tb.Allow() || !tb.Allow() {
		t.Fatalf("burst of 2 should be allowed")
	}
	if tb.Allow() {
		t.Fatalf("third request should be denied")
	}
	if w := tb.WaitTime(); w != time.Second {
		t.Fatalf("unexpected wait %v", w)
	}
	clock.advance(1500 * time.Millisecond)
	if !tb.Allow() {
		t.Fatalf("refilled token should be allowed")
	}
	if r := tb.Remaining(); r < 0.49 || r > 0.51 {
		t.Fatalf("expected half a token, got %f", r)
	}
	clock.advance(time.Hour)
	if r := tb.Remaining(); r != 2 {
		t.Fatalf("bucket must not exceed capacity, got %f", r)
	}
}

func TestLimiterPerKey(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 60, Burst: 2})
	for i := 0; i < 2; i++ {
		if d := l.Allow("a"); !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	d := l.Allow("a")
	if d.Allowed {
		t.Fatalf("third request should be denied")
	}
	if d.RetryAfter != time.Second {
		t.Fatalf("unexpected retry after %v", d.RetryAfter)
	}
	if !l.Allow("b").Allowed {
		t.Fatalf("other clients keep their own bucket")
	}
	clock.advance(time.Second)
	if !l.Allow("a").Allowed {
		t.Fatalf("token should refill after a second")
	}
}

func TestLimiterSweep(t *testing.T) {
	l, clock := newTestLimiter(Config{RequestsPerMinute: 10, IdleTTL: time.Minute})
	l.Allow("a")
	clock.advance(30 * time.Second)
	l.Allow("b")
	clock.advance(45 * time.Second)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected one bucket left, got %d", n)
	}
}

func TestDisabledLimiter(t *testing.T) {
	l := New(Config{})
	if l != nil {
		t.Fatalf("zero rate should disable limiting")
	}
	if !l.Allow("x").Allowed {
		t.Fatalf("nil limiter allows everything")
	}
	if l.Sweep() != 0 {
		t.Fatalf("nil limiter has no buckets")
	}
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(Config{RequestsPerMinute: 1, Burst: 1})
	calls := 0
	h := Middleware(l, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/x/ask", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After %q", rec.Header().Get("Retry-After"))
	}
	if calls != 1 {
		t.Fatalf("handler called %d times", calls)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/documents/x/ask", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client: %d", rec.Code)
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	if got := ClientKey(req); got != "::1" {
		t.Fatalf("unexpected key %q", got)
	}
	req.RemoteAddr = "192.168.1.9"
	if got := ClientKey(req); got != "192.168.1.9" {
		t.Fatalf("unexpected key %q", got)
	}
}
