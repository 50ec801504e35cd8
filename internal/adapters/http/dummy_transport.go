package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// DummyHeader marks a request as dummy traffic for the backend. Observers
// on the network only see TLS, so the header does not leak.
const DummyHeader = "X-Dummy-Request"

// DummyTransport posts dummy submissions shaped like real ones.
type DummyTransport struct {
	client *Client
}

// NewDummyTransport creates a transport using client.
func NewDummyTransport(client *Client) *DummyTransport {
	return &DummyTransport{client: client}
}

// SendDummy posts a multipart body with req.PayloadSize random bytes.
func (t *DummyTransport) SendDummy(ctx context.Context, req ports.DummyRequest) error {
	padding := make([]byte, req.PayloadSize)
	if _, err := rand.Read(padding); err != nil {
		return fmt.Errorf("generate padding: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("payload", "payload.bin")
	if err != nil {
		return fmt.Errorf("create payload field: %w", err)
	}
	if _, err := part.Write(padding); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalize multipart: %w", err)
	}

	httpReq, err := t.client.newRequest(ctx, http.MethodPost, DummyEndpoint, &body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set(DummyHeader, "1")

	resp, err := t.client.do(httpReq)
	if err != nil {
		return fmt.Errorf("dummy %s: %w", req.Kind, err)
	}
	return resp.Body.Close()
}

var _ ports.DummyTransport = (*DummyTransport)(nil)
