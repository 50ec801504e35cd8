package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logadapter "github.com/exposure-kit/enlifecycle/internal/adapters/log"
	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client(), logadapter.Noop{})
}

func TestConfigService_DownloadAndUpdate(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, ConfigEndpoint, r.URL.Path)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, `{"min_version":"2.1.0"}`)
	})
	svc := NewConfigService(client, t.TempDir())

	require.NoError(t, svc.DownloadAndUpdate(context.Background()))
	data, err := os.ReadFile(svc.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `{"min_version":"2.1.0"}`, string(data))

	require.NoError(t, svc.DownloadAndUpdate(context.Background()))
	assert.EqualValues(t, 2, hits.Load())
}

func TestConfigService_KeepsStoredCopyOnBadPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `<html>captive portal</html>`)
	})
	svc := NewConfigService(client, t.TempDir())
	require.NoError(t, os.WriteFile(svc.Path(), []byte(`{"ok":true}`), 0o600))

	require.Error(t, svc.DownloadAndUpdate(context.Background()))

	data, err := os.ReadFile(svc.Path())
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))
}

func TestConfigService_HonorsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	svc := NewConfigService(client, t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := svc.DownloadAndUpdate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDummyTransport_SendDummy(t *testing.T) {
	var gotSize atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, DummyEndpoint, r.URL.Path)
		assert.Equal(t, "1", r.Header.Get(DummyHeader))
		assert.Contains(t, r.Header.Get("User-Agent"), "Exposure/3.2")

		f, _, err := r.FormFile("payload")
		if assert.NoError(t, err) {
			n, _ := io.Copy(io.Discard, f)
			gotSize.Store(n)
		}
		w.WriteHeader(http.StatusAccepted)
	})
	require.NoError(t, client.SetAppName("Exposure"))
	require.NoError(t, client.SetAppVersion("3.2"))

	err := NewDummyTransport(client).SendDummy(context.Background(), ports.DummyRequest{
		Kind:        domain.WindowIngestionDummy,
		PayloadSize: 4096,
	})

	require.NoError(t, err)
	assert.EqualValues(t, 4096, gotSize.Load())
}

func TestDummyTransport_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	err := NewDummyTransport(client).SendDummy(context.Background(), ports.DummyRequest{Kind: domain.WindowAnalyticsDummy})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "overloaded", se.Body)
}

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func TestTokens_RefreshIfExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		assert.Equal(t, TokenEndpoint, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			io.WriteString(w, `{"token":"t-1","expires_at":"2026-03-01T10:00:00Z"}`)
			return
		}
		io.WriteString(w, `{"token":"t-2","expires_at":"2026-03-02T10:00:00Z"}`)
	})
	clock := &stepClock{now: now}
	tokens := NewTokens(client, clock)
	ctx := context.Background()

	require.NoError(t, tokens.RefreshIfExpired(ctx))
	require.NoError(t, tokens.RefreshIfExpired(ctx))
	assert.Equal(t, "t-1", tokens.Token())
	assert.EqualValues(t, 1, hits.Load())

	clock.now = now.Add(time.Hour)
	require.NoError(t, tokens.RefreshIfExpired(ctx))
	assert.Equal(t, "t-2", tokens.Token())
}

func TestTokens_RejectsEmptyToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})

	assert.Error(t, NewTokens(client, nil).RefreshIfExpired(context.Background()))
}

func TestConfigService_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"ok":true}`)
	})
	svc := NewConfigService(client, t.TempDir())

	require.NoError(t, svc.DownloadAndUpdate(context.Background()))
	assert.EqualValues(t, 3, hits.Load())
}

func TestConfigService_GivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	svc := NewConfigService(client, t.TempDir())

	err := svc.DownloadAndUpdate(context.Background())

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.EqualValues(t, maxConfigAttempts, hits.Load())
}

func TestConfigService_NoRetryOnClientError(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	})
	svc := NewConfigService(client, t.TempDir())

	require.Error(t, svc.DownloadAndUpdate(context.Background()))
	assert.EqualValues(t, 1, hits.Load())
}

func TestConfigService_ConcurrentDownloads(t *testing.T) {
	var n atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		v := n.Add(1)
		w.Header().Set("ETag", fmt.Sprintf(`"v%d"`, v))
		fmt.Fprintf(w, `{"revision":%d,"padding":"%s"}`, v, strings.Repeat("x", 64<<10))
	})
	dir := t.TempDir()
	svc := NewConfigService(client, dir)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.DownloadAndUpdate(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	data, err := os.ReadFile(svc.Path())
	require.NoError(t, err)
	assert.True(t, json.Valid(data), "stored configuration must be a complete download")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
	assert.Equal(t, AppConfigFileName, entries[0].Name())
}
