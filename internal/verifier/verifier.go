// Package verifier implements the opaque ownership-verification channel:
// an operator claims an agent by posting a verification phrase somewhere
// out-of-band (e.g. a social-network profile), then asks an external
// checker to confirm the post exists. The checker's answer is recorded
// verbatim as an identity string — the kernel never authenticates it
// itself, it only records what the verifier asserts.
package verifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Client checks a verification phrase against an external, opaque
// checking service. It is optional: installations without a configured
// endpoint get a nil Client, and callers fall back to recording claims
// without automated checking.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client

	mu          sync.Mutex
	cache       map[string]cacheEntry
	cacheTTL    time.Duration
	failSince   time.Time
	failBackoff time.Duration
}

type cacheEntry struct {
	result  Result
	expires time.Time
}

// Result is the verifier's opaque answer for one phrase/locator pair.
type Result struct {
	Verified bool   `json:"verified"`
	Identity string `json:"identity"`
	Detail   string `json:"detail,omitempty"`
}

// NewClient creates a verification-channel client. Returns nil if
// endpoint is empty, in which case callers should skip automated
// checking and fall back to manual/operator-asserted verification.
func NewClient(endpoint, apiKey string) *Client {
	if endpoint == "" {
		return nil
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
		cache:    make(map[string]cacheEntry),
		cacheTTL: 5 * time.Minute,
	}
}

// Check asks the external service whether locator (e.g. a post URL)
// contains phrase, and if so what identity it claims to be posted by.
// It never blocks the claim flow on a service outage: on failure it
// returns an unverified Result and backs off further calls briefly.
func (c *Client) Check(locator, phrase string) Result {
	if c == nil {
		return Result{Detail: "verification channel not configured"}
	}

	c.mu.Lock()
	if entry, ok := c.cache[locator+"|"+phrase]; ok && time.Now().Before(entry.expires) {
		c.mu.Unlock()
		return entry.result
	}
	if !c.failSince.IsZero() && time.Since(c.failSince) < c.failBackoff {
		c.mu.Unlock()
		return Result{Detail: "verification channel backing off after recent failure"}
	}
	c.mu.Unlock()

	result, err := c.fetch(locator, phrase)
	if err != nil {
		slog.Debug("verification channel request failed", "error", err, "locator", locator)
		c.mu.Lock()
		c.failSince = time.Now()
		if c.failBackoff == 0 {
			c.failBackoff = 30 * time.Second
		} else if c.failBackoff < 10*time.Minute {
			c.failBackoff *= 2
		}
		c.mu.Unlock()
		return Result{Detail: "verification channel unavailable"}
	}

	c.mu.Lock()
	c.failBackoff = 0
	c.failSince = time.Time{}
	c.cache[locator+"|"+phrase] = cacheEntry{result: result, expires: time.Now().Add(c.cacheTTL)}
	c.mu.Unlock()

	return result
}

func (c *Client) fetch(locator, phrase string) (Result, error) {
	reqBody := map[string]any{
		"locator": locator,
		"phrase":  phrase,
		"api_key": c.apiKey,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("verification channel returned status %d", resp.StatusCode)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Enabled reports whether a live checking endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil
}
