package domain

import (
	"fmt"
	"strings"
)

// TriggerKind enumerates the lifecycle signals the core reacts to.
type TriggerKind int

const (
	TriggerStart TriggerKind = iota
	TriggerWillEnterForeground
	TriggerDidBecomeActive
	TriggerWillResignActive
	TriggerDidEnterBackground
	TriggerBackgroundTaskWake
)

// Signal names accepted by ParseTrigger.
const (
	SignalStart               = "start"
	SignalWillEnterForeground = "will-enter-foreground"
	SignalDidBecomeActive     = "did-become-active"
	SignalWillResignActive    = "will-resign-active"
	SignalDidEnterBackground  = "did-enter-background"
	SignalBackgroundTaskWake  = "background-task-wake"
)

// String returns the signal name of the kind.
func (k TriggerKind) String() string {
	switch k {
	case TriggerStart:
		return SignalStart
	case TriggerWillEnterForeground:
		return SignalWillEnterForeground
	case TriggerDidBecomeActive:
		return SignalDidBecomeActive
	case TriggerWillResignActive:
		return SignalWillResignActive
	case TriggerDidEnterBackground:
		return SignalDidEnterBackground
	case TriggerBackgroundTaskWake:
		return SignalBackgroundTaskWake
	default:
		return "unknown"
	}
}

// TaskHandle identifies a background task granted by the host OS.
type TaskHandle struct {
	ID string
}

// IsZero reports whether no task was supplied.
func (h TaskHandle) IsZero() bool { return h.ID == "" }

// Trigger is one lifecycle signal. Task is only set for TriggerBackgroundTaskWake.
type Trigger struct {
	Kind TriggerKind
	Task TaskHandle
}

// String returns the kind, suffixed with the task ID for background wakes.
func (t Trigger) String() string {
	if t.Kind == TriggerBackgroundTaskWake && !t.Task.IsZero() {
		return t.Kind.String() + ":" + t.Task.ID
	}
	return t.Kind.String()
}

// ParseTrigger builds a Trigger from an OS signal name.
// Names are matched case-insensitively after trimming; unknown names
// return ErrUnknownSignal and must be dropped by the caller.
// A background wake requires a task handle.
func ParseTrigger(name string, task TaskHandle) (Trigger, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case SignalStart:
		return Trigger{Kind: TriggerStart}, nil
	case SignalWillEnterForeground:
		return Trigger{Kind: TriggerWillEnterForeground}, nil
	case SignalDidBecomeActive:
		return Trigger{Kind: TriggerDidBecomeActive}, nil
	case SignalWillResignActive:
		return Trigger{Kind: TriggerWillResignActive}, nil
	case SignalDidEnterBackground:
		return Trigger{Kind: TriggerDidEnterBackground}, nil
	case SignalBackgroundTaskWake:
		if task.IsZero() {
			return Trigger{}, fmt.Errorf("%w: %s without task handle", ErrUnknownSignal, name)
		}
		return Trigger{Kind: TriggerBackgroundTaskWake, Task: task}, nil
	default:
		return Trigger{}, fmt.Errorf("%w: %q", ErrUnknownSignal, name)
	}
}
