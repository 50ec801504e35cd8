package app

import (
	"fmt"
	"sync"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// AppState is the host application state as observed from lifecycle signals.
type AppState int

const (
	AppStateNotRunning AppState = iota
	AppStateInactive
	AppStateActive
	AppStateBackground
)

// String returns a human-readable representation of the state.
func (s AppState) String() string {
	switch s {
	case AppStateNotRunning:
		return "NotRunning"
	case AppStateInactive:
		return "Inactive"
	case AppStateActive:
		return "Active"
	case AppStateBackground:
		return "Background"
	default:
		return "Unknown"
	}
}

// AppStateEmitter is called when the tracked state changes.
type AppStateEmitter interface {
	OnAppStateChange(previous, current AppState, reason string)
}

// AppStateTracker follows the host application state from the signals the
// dispatcher receives. It is the default ports.ApplicationState.
//
// Inactive counts as foreground: the host reports it for transient overlays
// (control center, incoming call) while the app is still on screen.
type AppStateTracker struct {
	mu                 sync.RWMutex
	state              AppState
	launchInBackground bool
	logger             ports.Logger
	emitter            AppStateEmitter
}

// NewAppStateTracker creates a tracker in AppStateNotRunning. When
// launchInBackground is set, the start signal moves to Background instead
// of Inactive.
func NewAppStateTracker(logger ports.Logger, emitter AppStateEmitter, launchInBackground bool) *AppStateTracker {
	return &AppStateTracker{
		state:              AppStateNotRunning,
		launchInBackground: launchInBackground,
		logger:             logger,
		emitter:            emitter,
	}
}

// State returns the current application state.
func (t *AppStateTracker) State() AppState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsForeground reports whether the app is Inactive or Active.
func (t *AppStateTracker) IsForeground() bool {
	s := t.State()
	return s == AppStateInactive || s == AppStateActive
}

// TransitionTo attempts to transition to a new state.
// Returns ErrInvalidTransition if the transition is not valid.
func (t *AppStateTracker) TransitionTo(newState AppState, reason string) error {
	t.mu.Lock()
	oldState := t.state

	if oldState == newState {
		t.mu.Unlock()
		return nil
	}

	valid := false
	switch oldState {
	case AppStateNotRunning:
		valid = newState == AppStateInactive || newState == AppStateBackground
	case AppStateInactive:
		valid = newState == AppStateActive || newState == AppStateBackground
	case AppStateActive:
		valid = newState == AppStateInactive
	case AppStateBackground:
		valid = newState == AppStateInactive
	}
	if !valid {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, oldState, newState)
	}

	t.state = newState
	t.mu.Unlock()

	// Emit event outside of lock
	if t.emitter != nil {
		t.emitter.OnAppStateChange(oldState, newState, reason)
	}

	t.logger.Debug("app state transition",
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
		ports.String("reason", reason),
	)

	return nil
}

// Observe moves the tracker according to a trigger. Signals that do not fit
// the current state are logged and applied anyway: the host is the source
// of truth and signals can be coalesced by the OS.
func (t *AppStateTracker) Observe(trigger domain.Trigger) {
	target, ok := t.targetFor(trigger.Kind)
	if !ok {
		return
	}
	if err := t.TransitionTo(target, trigger.String()); err != nil {
		t.logger.Warn("unexpected lifecycle signal for app state",
			ports.String("trigger", trigger.String()),
			ports.Err(err),
		)
		t.force(target, trigger.String())
	}
}

func (t *AppStateTracker) targetFor(kind domain.TriggerKind) (AppState, bool) {
	switch kind {
	case domain.TriggerStart:
		if t.launchInBackground {
			return AppStateBackground, true
		}
		return AppStateInactive, true
	case domain.TriggerWillEnterForeground, domain.TriggerWillResignActive:
		return AppStateInactive, true
	case domain.TriggerDidBecomeActive:
		return AppStateActive, true
	case domain.TriggerDidEnterBackground:
		return AppStateBackground, true
	case domain.TriggerBackgroundTaskWake:
		// Wakes arrive while suspended; only a cold background launch moves state.
		if t.State() == AppStateNotRunning {
			return AppStateBackground, true
		}
		return AppStateNotRunning, false
	default:
		return AppStateNotRunning, false
	}
}

func (t *AppStateTracker) force(newState AppState, reason string) {
	t.mu.Lock()
	oldState := t.state
	t.state = newState
	t.mu.Unlock()

	if t.emitter != nil {
		t.emitter.OnAppStateChange(oldState, newState, reason)
	}
}

var _ ports.ApplicationState = (*AppStateTracker)(nil)
