package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent error conditions in the orchestration core.
// They can be checked with errors.Is.
var (
	// ErrHardFailure marks a step failure that aborts its sequence.
	ErrHardFailure = errors.New("enlifecycle: hard failure")

	// ErrSoftFailure marks a step failure that is logged and swallowed.
	ErrSoftFailure = errors.New("enlifecycle: soft failure")

	// ErrSequenceCancelled is returned when the sequence context is cancelled,
	// for example when the host revokes a background task.
	ErrSequenceCancelled = errors.New("enlifecycle: sequence cancelled")

	// ErrUnknownSignal is returned for OS signal names that do not map to a trigger.
	ErrUnknownSignal = errors.New("enlifecycle: unknown lifecycle signal")

	// ErrInvalidWindow is returned when a window violates End > Start.
	ErrInvalidWindow = errors.New("enlifecycle: invalid opportunity window")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("enlifecycle: invalid configuration")
)

// softError wraps an error so the sequencer treats it as a soft failure
// even on a mandatory step.
type softError struct {
	err error
}

func (e *softError) Error() string { return e.err.Error() }

func (e *softError) Unwrap() []error { return []error{e.err, ErrSoftFailure} }

// Soft marks err as a soft failure. Nil stays nil.
func Soft(err error) error {
	if err == nil {
		return nil
	}
	return &softError{err: err}
}

// IsSoft reports whether err was marked as a soft failure.
func IsSoft(err error) bool {
	return errors.Is(err, ErrSoftFailure)
}

// TimeoutError is a soft failure produced when a step exceeds its deadline.
type TimeoutError struct {
	Step    string
	Timeout time.Duration
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s (limit %s)", e.Step, e.Elapsed, e.Timeout)
}

// Is makes a TimeoutError match ErrSoftFailure.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrSoftFailure
}

// ErrShutdownTimeout is returned when in-flight sequences outlive the
// shutdown deadline.
var ErrShutdownTimeout = errors.New("enlifecycle: shutdown timeout")

// ErrInvalidTransition is returned when a lifecycle signal does not fit the
// tracked application state.
var ErrInvalidTransition = errors.New("enlifecycle: invalid app state transition")

// ErrClosed is returned when a signal arrives after shutdown.
var ErrClosed = errors.New("enlifecycle: dispatcher closed")
