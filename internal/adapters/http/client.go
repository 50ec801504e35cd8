// Package http implements the collaborators that talk to the backend:
// configuration download, dummy requests and analytics tokens.
package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Endpoints relative to the service URL.
const (
	ConfigEndpoint = "/v1/app-config"
	DummyEndpoint  = "/v1/submission"
	TokenEndpoint  = "/v1/analytics/token"
)

// maxErrorBody bounds how much of an error response is read into the error.
const maxErrorBody = 512

// Client carries what every backend call needs.
type Client struct {
	serviceURL string

	mu         sync.RWMutex
	appName    string
	appVersion string

	http   ports.HTTPClient
	logger ports.Logger
}

// NewClient creates a backend client. httpClient may be nil.
func NewClient(serviceURL string, httpClient ports.HTTPClient, logger ports.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		http:       httpClient,
		logger:     logger,
	}
}

// SetAppName records the app name sent in the User-Agent header.
func (c *Client) SetAppName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appName = name
	return nil
}

// SetAppVersion records the app version sent in the User-Agent header.
func (c *Client) SetAppVersion(version string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appVersion = version
	return nil
}

// SetLanguage is accepted for ports.AppInfoSink; the backend is language
// agnostic.
func (c *Client) SetLanguage(string) error { return nil }

func (c *Client) userAgent() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name := c.appName
	if name == "" {
		name = "enlifecycle"
	}
	ua := name
	if c.appVersion != "" {
		ua += "/" + c.appVersion
	}
	return ua + " (" + runtime.GOOS + "/" + runtime.GOARCH + ")"
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serviceURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent())
	return req, nil
}

// do sends req and turns non-2xx responses into errors. The caller closes
// the body of a successful response.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

var _ ports.AppInfoSink = (*Client)(nil)
