package config

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	logadapter "github.com/exposure-kit/enlifecycle/internal/adapters/log"
	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

type scheduleSink struct {
	mu   sync.Mutex
	last map[domain.WindowKind]app.Schedule
	err  error
}

func (s *scheduleSink) apply(in map[domain.WindowKind]app.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.last = in
	return nil
}

func (s *scheduleSink) mean(kind domain.WindowKind) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[kind].Mean
}

func TestWatcher_Reload(t *testing.T) {
	path := writeFile(t, "[schedules.ingestion-dummy]\nmean = \"6h\"\n")
	sink := &scheduleSink{}
	w := NewWatcher(path, DefaultConfig().Schedules, sink.apply, logadapter.Noop{})

	if err := w.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if got := sink.mean(domain.WindowIngestionDummy); got != 6*time.Hour {
		t.Errorf("ingestion mean = %v, want 6h", got)
	}
	if got := sink.mean(domain.WindowAnalyticsDummy); got != 24*time.Hour {
		t.Errorf("analytics mean = %v, want default 24h", got)
	}
}

func TestWatcher_ReloadRejectsInvalidFile(t *testing.T) {
	path := writeFile(t, "[schedules.ingestion-dummy]\njitter = 3.0\n")
	sink := &scheduleSink{}
	w := NewWatcher(path, DefaultConfig().Schedules, sink.apply, logadapter.Noop{})

	if err := w.Reload(); err == nil {
		t.Fatal("Reload() error = nil, want validation error")
	}
	if sink.last != nil {
		t.Error("invalid schedules were applied")
	}

	sink.err = errors.New("scheduler closed")
	if err := os.WriteFile(path, []byte("[schedules.ingestion-dummy]\nmean = \"6h\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := w.Reload(); err == nil {
		t.Error("Reload() error = nil, want apply error")
	}
	if w.Reloads() != 0 {
		t.Errorf("Reloads() = %d, want 0", w.Reloads())
	}
}

func TestWatcher_RunPicksUpChanges(t *testing.T) {
	path := writeFile(t, "")
	sink := &scheduleSink{}
	w := NewWatcher(path, DefaultConfig().Schedules, sink.apply, logadapter.Noop{})
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// The watch is registered asynchronously; keep writing until it lands.
	deadline := time.Now().Add(5 * time.Second)
	for w.Reloads() == 0 && time.Now().Before(deadline) {
		if err := os.WriteFile(path, []byte("[schedules.ingestion-dummy]\nmean = \"90m\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if w.Reloads() == 0 {
		t.Fatal("watcher never reloaded")
	}
	if got := sink.mean(domain.WindowIngestionDummy); got != 90*time.Minute {
		t.Errorf("ingestion mean = %v, want 90m", got)
	}
}
