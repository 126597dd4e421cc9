package verifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientNilWhenEndpointEmpty(t *testing.T) {
	c := NewClient("", "key")
	if c != nil {
		t.Fatal("expected nil client for an empty endpoint")
	}
	if c.Enabled() {
		t.Fatal("a nil client must report disabled")
	}
}

func TestNilClientCheckReturnsUnverified(t *testing.T) {
	var c *Client
	result := c.Check("https://example.com/post/1", "phrase")
	if result.Verified {
		t.Fatal("expected an unconfigured verifier to never claim verification")
	}
}

func TestCheckCallsEndpointAndReturnsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["phrase"] != "my-phrase" {
			t.Errorf("expected phrase in request body, got %v", body)
		}
		json.NewEncoder(w).Encode(Result{Verified: true, Identity: "social:alice"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key")
	result := c.Check("https://example.com/post/1", "my-phrase")
	if !result.Verified || result.Identity != "social:alice" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCheckCachesResult(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(Result{Verified: true, Identity: "social:alice"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key")
	c.Check("loc", "phrase")
	c.Check("loc", "phrase")
	if calls != 1 {
		t.Fatalf("expected the second check to be served from cache, got %d calls", calls)
	}
}

func TestCheckGracefullyDegradesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "api-key")
	result := c.Check("loc", "phrase")
	if result.Verified {
		t.Fatal("expected an unverified result when the endpoint errors")
	}
}
