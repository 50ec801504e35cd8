package enlifecycle

import (
	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/config"
	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Config holds the orchestrator settings. Use DefaultConfig.
type Config = config.Config

// ScheduleConfig parameterizes the opportunity windows of one kind.
type ScheduleConfig = config.ScheduleConfig

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return config.DefaultConfig()
}

type (
	// Logger is the structured logging interface.
	Logger = ports.Logger

	// LogField is a structured log field.
	LogField = ports.Field

	// HTTPClient sends HTTP requests. *http.Client satisfies it.
	HTTPClient = ports.HTTPClient

	// Clock supplies the current time.
	Clock = ports.Clock

	// StateRepository persists toggles and windows.
	StateRepository = ports.StateRepository

	// Collaborators are the host services sequences call.
	Collaborators = app.Collaborators

	// Trigger is a validated lifecycle signal.
	Trigger = domain.Trigger

	// TaskHandle identifies a host background task.
	TaskHandle = domain.TaskHandle

	// SequenceOutcome reports what a dispatched sequence did.
	SequenceOutcome = domain.SequenceOutcome

	// StepResult is the outcome of one step.
	StepResult = domain.StepResult

	// State holds the persisted toggles and windows.
	State = domain.State

	// WindowKind names a scheduled action.
	WindowKind = domain.WindowKind

	// OpportunityWindow is a randomized future interval.
	OpportunityWindow = domain.OpportunityWindow

	// Schedule is a validated dummy traffic schedule.
	Schedule = app.Schedule

	// AuthSnapshot is the result of the last authorization refresh.
	AuthSnapshot = app.AuthSnapshot
)

// Window kinds.
const (
	WindowIngestionDummy           = domain.WindowIngestionDummy
	WindowAnalyticsDummy           = domain.WindowAnalyticsDummy
	WindowAnalyticsWithoutExposure = domain.WindowAnalyticsWithoutExposure
)

// Errors, for use with errors.Is.
var (
	ErrUnknownSignal     = domain.ErrUnknownSignal
	ErrHardFailure       = domain.ErrHardFailure
	ErrSoftFailure       = domain.ErrSoftFailure
	ErrSequenceCancelled = domain.ErrSequenceCancelled
	ErrInvalidConfig     = domain.ErrInvalidConfig
	ErrShutdownTimeout   = domain.ErrShutdownTimeout
	ErrClosed            = domain.ErrClosed
)
