package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimitedHandler(t *testing.T, rate string, onError func(error)) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := New(client, "ratelimit", rate)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	handler := Handler{Limiter: lim, Key: ByClientIP, OnError: onError}
	return handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mr
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	counted, _ := newLimitedHandler(t, "1-M", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pricing/quote", nil)
	req.RemoteAddr = "198.51.100.7:5000"
	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second request, got %d", rr2.Code)
	}
	if rr2.Header().Get("X-RateLimit-Limit") != "1" {
		t.Fatalf("unexpected limit header: %q", rr2.Header().Get("X-RateLimit-Limit"))
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	other := req.Clone(req.Context())
	other.RemoteAddr = "198.51.100.8:5000"
	rr3 := httptest.NewRecorder()
	counted.ServeHTTP(rr3, other)
	if rr3.Code != http.StatusOK {
		t.Fatalf("expected other client allowed, got %d", rr3.Code)
	}
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	var captured error
	counted, mr := newLimitedHandler(t, "1-M", func(err error) { captured = err })
	mr.Close()

	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to pass through on limiter error, got %d", rr.Code)
	}
	if captured == nil {
		t.Fatalf("expected OnError to be called")
	}
}

func TestNewRejectsBadRate(t *testing.T) {
	_, err := New(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "ratelimit", "lots")
	if err == nil {
		t.Fatalf("expected error for malformed rate")
	}
}
