package limits

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTokenBucket_Refill(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tb := NewTokenBucket(1, 2)
	tb.now = clock.now

	if !tb.Allow("a") || !tb.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if tb.Allow("a") {
		t.Error("third call should be limited")
	}
	if !tb.Allow("b") {
		t.Error("keys are independent")
	}

	clock.advance(time.Second)
	if !tb.Allow("a") {
		t.Error("one token should refill after a second")
	}
	if tb.Allow("a") {
		t.Error("only one token refilled")
	}

	clock.advance(time.Minute)
	if !tb.AllowN("a", 2) || tb.AllowN("a", 1) {
		t.Error("refill is capped at burst")
	}
}

func TestTokenBucket_SweepsIdle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0).Add(2 * time.Hour)}
	tb := NewTokenBucket(1, 1)
	tb.now = clock.now

	tb.Allow("old")
	clock.advance(90 * time.Minute)
	tb.Allow("new")

	if tb.Len() != 1 {
		t.Errorf("Len = %d, want 1 after sweeping the idle key", tb.Len())
	}

	tb.Forget("new")
	if tb.Len() != 0 {
		t.Errorf("Len = %d after Forget", tb.Len())
	}
}

func TestMiddleware(t *testing.T) {
	tb := NewTokenBucket(0, 1)
	h := Middleware(tb, ClientIP)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
	)

	codes := make([]int, 2)
	for i := range codes {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gracias", nil))
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestMiddleware_RetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		clock time.Duration
		want  string
	}{
		{"never refills", 0, 0, "60"},
		{"half a token per second", 0.5, 0, "2"},
		{"partly refilled", 0.5, 1500 * time.Millisecond, "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := &fakeClock{t: time.Unix(0, 0)}
			tb := NewTokenBucket(tt.rate, 1)
			tb.now = clock.now
			h := Middleware(tb, func(*http.Request) string { return "ip" })(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
			)

			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/gracias", nil))
			clock.advance(tt.clock)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/gracias", nil))

			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("status = %d, want 429", rec.Code)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.want {
				t.Errorf("Retry-After = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnectionLimiter(t *testing.T) {
	cl := NewConnectionLimiter(2)

	if !cl.Acquire("1.2.3.4") || !cl.Acquire("1.2.3.4") {
		t.Fatal("two slots should be available")
	}
	if cl.Acquire("1.2.3.4") {
		t.Error("third slot should be blocked")
	}
	if !cl.Acquire("5.6.7.8") {
		t.Error("other addresses have their own slots")
	}

	cl.Release("1.2.3.4")
	if cl.Count("1.2.3.4") != 1 {
		t.Errorf("Count = %d, want 1", cl.Count("1.2.3.4"))
	}
	if !cl.Acquire("1.2.3.4") {
		t.Error("released slot should be reusable")
	}
	if cl.TotalBlocked() != 1 || cl.TotalAllowed() != 4 {
		t.Errorf("blocked=%d allowed=%d", cl.TotalBlocked(), cl.TotalAllowed())
	}

	cl.Release("5.6.7.8")
	cl.Release("5.6.7.8")
	if cl.Count("5.6.7.8") != 0 {
		t.Error("extra releases must not go negative")
	}
}

func TestConnectionLimiter_Concurrent(t *testing.T) {
	cl := NewConnectionLimiter(10)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cl.Acquire("ip") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 10 {
		t.Errorf("allowed = %d, want 10", allowed)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		want   string
	}{
		{"ipv4 with port", "10.0.0.1:5000", "10.0.0.1"},
		{"ipv6 with port", "[::1]:5000", "::1"},
		{"bare address", "10.0.0.1", "10.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			r.Header.Set("X-Forwarded-For", "1.1.1.1")
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
