package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWithinRate(t *testing.T) {
	rl := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed within the rate limit", i)
		}
	}
}

func TestAllowRejectsOverRate(t *testing.T) {
	rl := New(2, time.Minute)
	rl.Allow("1.2.3.4")
	rl.Allow("1.2.3.4")
	if rl.Allow("1.2.3.4") {
		t.Fatal("expected the third request to be rejected")
	}
}

func TestAllowTracksIPsIndependently(t *testing.T) {
	rl := New(1, time.Minute)
	if !rl.Allow("1.1.1.1") {
		t.Fatal("first IP's first request should be allowed")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("second IP's first request should be allowed independently")
	}
	if rl.Allow("1.1.1.1") {
		t.Fatal("first IP's second request should be rejected")
	}
}

func TestAllowResetsAfterWindow(t *testing.T) {
	rl := New(1, 10*time.Millisecond)
	rl.Allow("1.2.3.4")
	if rl.Allow("1.2.3.4") {
		t.Fatal("expected rejection before the window elapses")
	}
	time.Sleep(20 * time.Millisecond)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("expected the window reset to allow another request")
	}
}

func TestMiddlewareReturns429WhenExceeded(t *testing.T) {
	rl := New(1, time.Minute)
	handlerCalls := 0
	h := Middleware(rl, func(w http.ResponseWriter, r *http.Request) {
		handlerCalls++
		w.WriteHeader(http.StatusOK)
	})

	req1 := httptest.NewRequest(http.MethodGet, "/", nil)
	req1.RemoteAddr = "9.9.9.9:1234"
	rec1 := httptest.NewRecorder()
	h(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/", nil)
	req2.RemoteAddr = "9.9.9.9:5678"
	rec2 := httptest.NewRecorder()
	h(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec2.Code)
	}
	if handlerCalls != 1 {
		t.Fatalf("handler should only run once, ran %d times", handlerCalls)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("clientIP = %q, want 203.0.113.5", got)
	}
}

func TestClientIPStripsPortFromRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:54321"

	if got := clientIP(req); got != "192.168.1.1" {
		t.Fatalf("clientIP = %q, want 192.168.1.1", got)
	}
}
