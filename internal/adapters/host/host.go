package host

import (
	"context"
	"sync"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Environment is a static ports.Environment.
type Environment struct {
	Lang    string
	Name    string
	Version string
}

func (e Environment) Language() string   { return e.Lang }
func (e Environment) AppName() string    { return e.Name }
func (e Environment) AppVersion() string { return e.Version }

// Device simulates the platform services of a phone.
type Device struct {
	logger ports.Logger

	mu             sync.Mutex
	exposureStatus ports.ExposureStatus
	pushStatus     ports.PushStatus
	engineRunning  bool
	overlayVisible bool
	clearedBefore  time.Time
	detections     int
}

// NewDevice creates a device with both permissions granted.
func NewDevice(logger ports.Logger) *Device {
	return &Device{
		logger:         logger,
		exposureStatus: ports.ExposureStatusAuthorized,
		pushStatus:     ports.PushStatusAuthorized,
	}
}

// SetExposureStatus changes the simulated exposure authorization.
func (d *Device) SetExposureStatus(st ports.ExposureStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exposureStatus = st
}

func (d *Device) Status(ctx context.Context) (ports.ExposureStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exposureStatus, nil
}

func (d *Device) StartIfAuthorized(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exposureStatus != ports.ExposureStatusAuthorized || d.engineRunning {
		return nil
	}
	d.engineRunning = true
	d.logger.Info("exposure engine started")
	return nil
}

// EngineRunning reports whether StartIfAuthorized started the engine.
func (d *Device) EngineRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engineRunning
}

func (d *Device) AuthorizationStatus(ctx context.Context) (ports.PushStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pushStatus, nil
}

func (d *Device) PerformIfNecessary(ctx context.Context, kind ports.DetectionKind) {
	d.mu.Lock()
	d.detections++
	d.mu.Unlock()
	d.logger.Info("exposure detection requested", ports.String("kind", kind.String()))
}

// Detections returns how many detections were requested.
func (d *Device) Detections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detections
}

func (d *Device) RemoveRiskReminder(ctx context.Context) error {
	d.logger.Debug("risk reminder notification removed")
	return nil
}

func (d *Device) Show(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlayVisible = true
	return nil
}

func (d *Device) Hide(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlayVisible = false
	return nil
}

// OverlayVisible reports whether the sensitive-data overlay is shown.
func (d *Device) OverlayVisible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.overlayVisible
}

func (d *Device) Preload(ctx context.Context) error {
	return nil
}

func (d *Device) ClearOutdated(ctx context.Context, before time.Time) error {
	d.mu.Lock()
	d.clearedBefore = before
	d.mu.Unlock()
	d.logger.Debug("outdated exposure results cleared", ports.Time("before", before))
	return nil
}

// ClearedBefore returns the cutoff of the last ClearOutdated call.
func (d *Device) ClearedBefore() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clearedBefore
}

var (
	_ ports.ExposureEngine        = (*Device)(nil)
	_ ports.PushPermission        = (*Device)(nil)
	_ ports.DetectionInvoker      = (*Device)(nil)
	_ ports.NotificationPresenter = (*Device)(nil)
	_ ports.SensitiveDataOverlay  = (*Device)(nil)
	_ ports.AssetPreloader        = (*Device)(nil)
	_ ports.ExposureStore         = (*Device)(nil)
	_ ports.Environment           = Environment{}
)
