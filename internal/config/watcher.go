package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// DefaultDebounce coalesces the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// ApplySchedulesFunc receives reloaded schedules.
type ApplySchedulesFunc func(map[domain.WindowKind]app.Schedule) error

// Watcher reloads the schedule tables of the config file when it changes.
type Watcher struct {
	path     string
	base     map[domain.WindowKind]ScheduleConfig
	apply    ApplySchedulesFunc
	logger   ports.Logger
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	reloads int
}

// NewWatcher watches the file at path. Schedules missing from the file fall
// back to base.
func NewWatcher(path string, base map[domain.WindowKind]ScheduleConfig, apply ApplySchedulesFunc, logger ports.Logger) *Watcher {
	return &Watcher{
		path:     path,
		base:     base,
		apply:    apply,
		logger:   logger,
		debounce: DefaultDebounce,
	}
}

// Run watches until ctx is done. The parent directory is watched so that
// editors replacing the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching config file", ports.String("path", w.path))

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", ports.Err(err))
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(); err != nil {
			w.logger.Warn("config reload failed, keeping current schedules",
				ports.String("path", w.path), ports.Err(err))
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Reload reads the file and applies its schedules. Invalid files are
// rejected as a whole.
func (w *Watcher) Reload() error {
	raw, err := LoadSchedules(w.path, w.base)
	if err != nil {
		return err
	}
	schedules, err := convertSchedules(raw)
	if err != nil {
		return err
	}
	if err := w.apply(schedules); err != nil {
		return err
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("config reloaded", ports.String("path", w.path), ports.Int("schedules", len(schedules)))
	return nil
}

// Reloads returns how many reloads were applied.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}
