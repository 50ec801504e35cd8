package ports

import (
	"context"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// ExposureStatus is the authorization state of the proximity engine.
type ExposureStatus int

const (
	ExposureStatusUnknown ExposureStatus = iota
	ExposureStatusAuthorized
	ExposureStatusNotAuthorized
	ExposureStatusRestricted
)

// String returns a human-readable representation of the status.
func (s ExposureStatus) String() string {
	switch s {
	case ExposureStatusAuthorized:
		return "authorized"
	case ExposureStatusNotAuthorized:
		return "not_authorized"
	case ExposureStatusRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// PushStatus is the push-notification authorization state.
type PushStatus int

const (
	PushStatusNotDetermined PushStatus = iota
	PushStatusAuthorized
	PushStatusDenied
	PushStatusProvisional
)

// String returns a human-readable representation of the status.
func (s PushStatus) String() string {
	switch s {
	case PushStatusAuthorized:
		return "authorized"
	case PushStatusDenied:
		return "denied"
	case PushStatusProvisional:
		return "provisional"
	default:
		return "not_determined"
	}
}

// ExposureEngine is the exposure-notification proximity engine.
type ExposureEngine interface {
	// Status returns the current authorization status.
	Status(ctx context.Context) (ExposureStatus, error)

	// StartIfAuthorized starts the engine when the user granted access.
	StartIfAuthorized(ctx context.Context) error
}

// PushPermission queries push-notification authorization.
type PushPermission interface {
	AuthorizationStatus(ctx context.Context) (PushStatus, error)
}

// ConfigService downloads and applies the remote configuration.
// Implementations must honor ctx cancellation.
type ConfigService interface {
	DownloadAndUpdate(ctx context.Context) error
}

// DetectionKind selects how exposure detection runs.
type DetectionKind struct {
	// Background is true when detection runs inside a host background task.
	Background bool

	// Task is the background task detection is bound to.
	Task domain.TaskHandle
}

// ForegroundDetection is detection triggered by a foreground session.
var ForegroundDetection = DetectionKind{}

// BackgroundDetection binds detection to a host background task.
func BackgroundDetection(task domain.TaskHandle) DetectionKind {
	return DetectionKind{Background: true, Task: task}
}

// String returns "foreground" or "background(<task>)".
func (k DetectionKind) String() string {
	if k.Background {
		return "background(" + k.Task.ID + ")"
	}
	return "foreground"
}

// DetectionInvoker starts exposure detection. It is fire-and-forget.
type DetectionInvoker interface {
	PerformIfNecessary(ctx context.Context, kind DetectionKind)
}

// AnalyticsService maintains analytics tokens and windows.
type AnalyticsService interface {
	RefreshTokenIfExpired(ctx context.Context) error
	UpdateEventWithoutExposureWindowIfNeeded(ctx context.Context) error
	UpdateDummyWindowIfExpired(ctx context.Context) error
}

// AnalyticsTokens refreshes the analytics submission token.
type AnalyticsTokens interface {
	RefreshIfExpired(ctx context.Context) error
}

// NotificationPresenter manages local notifications.
type NotificationPresenter interface {
	RemoveRiskReminder(ctx context.Context) error
}

// SensitiveDataOverlay hides sensitive data from the task switcher.
type SensitiveDataOverlay interface {
	Show(ctx context.Context) error
	Hide(ctx context.Context) error
}

// DummyRequest describes one dummy request. Size mirrors the genuine
// request it masks.
type DummyRequest struct {
	Kind        domain.WindowKind
	PayloadSize int
}

// DummyTransport sends dummy requests through the real network path.
type DummyTransport interface {
	SendDummy(ctx context.Context, req DummyRequest) error
}

// AssetPreloader warms caches used by the first screen.
type AssetPreloader interface {
	Preload(ctx context.Context) error
}

// Environment resolves host-provided application metadata.
// Empty strings mean the value could not be resolved.
type Environment interface {
	Language() string
	AppName() string
	AppVersion() string
}

// AppInfoSink receives application metadata used by outgoing requests.
type AppInfoSink interface {
	SetLanguage(lang string) error
	SetAppName(name string) error
	SetAppVersion(version string) error
}

// ExposureStore holds locally cached exposure results.
type ExposureStore interface {
	ClearOutdated(ctx context.Context, before time.Time) error
}

// ForceUpdateChecker reports whether the installed version must be updated.
type ForceUpdateChecker interface {
	Check(ctx context.Context) (required bool, err error)
}

// ApplicationState reports whether the host application is in the foreground.
type ApplicationState interface {
	IsForeground() bool
}
