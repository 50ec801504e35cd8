package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// AppConfigFileName is the file the downloaded configuration is stored in.
const AppConfigFileName = "app-config.json"

// maxConfigSize bounds the configuration payload.
const maxConfigSize = 1 << 20

// Retry schedule of the configuration download. The step's deadline
// usually ends the retries first.
const (
	retryBase         = 200 * time.Millisecond
	retryMax          = 2 * time.Second
	maxConfigAttempts = 4
)

// ConfigService downloads the remote app configuration and stores it next
// to the lifecycle state. The stored copy is only replaced by a valid
// download. Concurrent downloads are safe; the last one to finish wins.
type ConfigService struct {
	client *Client
	dir    string

	// mu guards etag and the replacement of the stored file.
	mu   sync.Mutex
	etag string
}

// NewConfigService creates a config service storing into dir.
func NewConfigService(client *Client, dir string) *ConfigService {
	return &ConfigService{client: client, dir: dir}
}

// Path returns where the configuration is stored.
func (s *ConfigService) Path() string {
	return filepath.Join(s.dir, AppConfigFileName)
}

// DownloadAndUpdate fetches the configuration. A 304 keeps the stored copy.
// Network errors, 429 and 5xx responses are retried with backoff until ctx
// is done or the attempts run out.
func (s *ConfigService) DownloadAndUpdate(ctx context.Context) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = retryBase
	eb.MaxInterval = retryMax
	eb.RandomizationFactor = 0.2
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, maxConfigAttempts-1), ctx)

	attempt := 0
	op := func() error {
		attempt++
		retry, err := s.fetch(ctx)
		if err != nil && (!retry || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		s.client.logger.Warn("configuration download failed, retrying",
			ports.Int("attempt", attempt), ports.Duration("backoff", next), ports.Err(err))
	}
	return backoff.RetryNotify(op, b, notify)
}

// fetch performs one download and reports whether a failure is transient.
func (s *ConfigService) fetch(ctx context.Context) (bool, error) {
	req, err := s.client.newRequest(ctx, http.MethodGet, ConfigEndpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	s.mu.Lock()
	etag := s.etag
	s.mu.Unlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("download configuration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		s.client.logger.Debug("configuration not modified")
		return false, nil
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, fmt.Errorf("download configuration: %w", &StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxConfigSize+1))
	if err != nil {
		return true, fmt.Errorf("read configuration: %w", err)
	}
	if len(data) > maxConfigSize {
		return false, fmt.Errorf("configuration exceeds %d bytes", maxConfigSize)
	}
	if !json.Valid(data) {
		return false, fmt.Errorf("configuration is not valid JSON")
	}

	s.mu.Lock()
	err = writeAtomic(s.Path(), data)
	if err == nil {
		s.etag = resp.Header.Get("ETag")
	}
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("store configuration: %w", err)
	}
	s.client.logger.Info("configuration updated", ports.Int("bytes", len(data)))
	return false, nil
}

// writeAtomic replaces path through a temp file unique to this call.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

var _ ports.ConfigService = (*ConfigService)(nil)
