package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// tokenResponse is the body of the token endpoint.
type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Tokens keeps the analytics submission token fresh.
type Tokens struct {
	client *Client
	clock  ports.Clock

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewTokens creates a token source. clock may be nil.
func NewTokens(client *Client, clock ports.Clock) *Tokens {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Tokens{client: client, clock: clock}
}

// Token returns the current token, empty before the first refresh.
func (t *Tokens) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.token
}

// RefreshIfExpired fetches a new token when none is held or the held one
// has expired.
func (t *Tokens) RefreshIfExpired(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.token != "" && t.clock.Now().Before(t.expires) {
		return nil
	}

	req, err := t.client.newRequest(ctx, http.MethodPost, TokenEndpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.do(req)
	if err != nil {
		return fmt.Errorf("refresh analytics token: %w", err)
	}
	defer resp.Body.Close()

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode analytics token: %w", err)
	}
	if body.Token == "" {
		return fmt.Errorf("analytics token response without token")
	}

	t.token = body.Token
	t.expires = body.ExpiresAt
	t.client.logger.Debug("analytics token refreshed", ports.Time("expires_at", body.ExpiresAt))
	return nil
}

var _ ports.AnalyticsTokens = (*Tokens)(nil)
