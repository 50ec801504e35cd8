package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Step names.
const (
	StepPreloadAssets              = "preload-assets"
	StepRefreshAuthStatuses        = "refresh-auth-statuses"
	StepSetLanguage                = "set-language"
	StepSetAppName                 = "set-app-name"
	StepSetAppVersion              = "set-app-version"
	StepFirstLaunchSetup           = "first-launch-setup"
	StepStartExposureEngine        = "start-exposure-engine"
	StepClearOutdatedResults       = "clear-outdated-exposure-results"
	StepClearRiskReminder          = "clear-risk-reminder"
	StepCheckForceUpdate           = "check-force-update"
	StepRefreshAnalyticsToken      = "refresh-analytics-token"
	StepUpdateAnalyticsWindow      = "update-analytics-window"
	StepUpdateDummyAnalyticsWindow = "update-dummy-analytics-window"
	StepTriggerExposureDetection   = "trigger-exposure-detection"
	StepUpdateDummyIngestionWindow = "update-dummy-ingestion-window"
	StepScheduleDummyIngestion     = "schedule-dummy-ingestion"
	StepHideOverlay                = "hide-sensitive-data-overlay"
	StepShowOverlay                = "show-sensitive-data-overlay"
	StepMarkForegroundFinished     = "mark-foreground-session-finished"
	StepDownloadConfiguration      = "download-configuration"
	StepInitializeDummyWindow      = "initialize-dummy-window"
	StepMarkFirstLaunchPerformed   = "mark-first-launch-performed"
)

// Default sequence timings.
const (
	DefaultConfigDownloadTimeout = 10 * time.Second
	DefaultRetentionPeriod       = 14 * 24 * time.Hour
)

// errNotApplicable makes the sequencer record a step as skipped.
var errNotApplicable = errors.New("step not applicable")

// Collaborators are the host services the sequences call. Nil members make
// the steps that need them no-ops.
type Collaborators struct {
	Engine        ports.ExposureEngine
	Push          ports.PushPermission
	Config        ports.ConfigService
	Detection     ports.DetectionInvoker
	Analytics     ports.AnalyticsService
	Notifications ports.NotificationPresenter
	Overlay       ports.SensitiveDataOverlay
	Assets        ports.AssetPreloader
	Environment   ports.Environment
	AppInfo       ports.AppInfoSink
	Exposures     ports.ExposureStore
	ForceUpdate   ports.ForceUpdateChecker
	AppState      ports.ApplicationState
}

// SequenceConfig holds the timings used by the sequences.
type SequenceConfig struct {
	ConfigDownloadTimeout time.Duration
	RetentionPeriod       time.Duration
}

// AuthSnapshot is the result of the last authorization refresh.
type AuthSnapshot struct {
	Exposure  ports.ExposureStatus
	Push      ports.PushStatus
	UpdatedAt time.Time
}

// run is the ephemeral context of one dispatched sequence.
type run struct {
	trigger domain.Trigger

	// firstLaunch is set when first-launch setup ran in this sequence.
	firstLaunch bool
}

// sequences builds the step lists of every trigger.
type sequences struct {
	deps      Collaborators
	cfg       SequenceConfig
	store     *Store
	scheduler *Scheduler
	sequencer *Sequencer
	clock     ports.Clock
	logger    ports.Logger
	emitter   EventEmitter

	authMu sync.RWMutex
	auth   AuthSnapshot
}

func (s *sequences) start(r *run) []Step {
	return []Step{
		{Name: StepPreloadAssets, Action: s.preloadAssets},
		{Name: StepRefreshAuthStatuses, Mandatory: true, Action: s.refreshAuthStatuses},
		{Name: StepSetLanguage, Mandatory: true, Action: s.setLanguage},
		{Name: StepSetAppName, Mandatory: true, Action: s.setAppName},
		{Name: StepSetAppVersion, Mandatory: true, Action: s.setAppVersion},
		{Name: StepFirstLaunchSetup, Mandatory: true, Action: func(ctx context.Context) error {
			return s.firstLaunchSetupIfNeeded(ctx, r)
		}},
		{Name: StepStartExposureEngine, Mandatory: true, Action: s.startExposureEngine},
		{Name: StepClearOutdatedResults, Mandatory: true, Action: s.clearOutdatedResults},
		{Name: StepClearRiskReminder, Action: s.clearRiskReminder},
		{Name: StepRefreshAnalyticsToken, Action: func(ctx context.Context) error {
			if !s.isForeground() {
				return errNotApplicable
			}
			return s.refreshAnalyticsToken(ctx)
		}},
		{Name: StepUpdateAnalyticsWindow, Mandatory: true, Action: s.updateAnalyticsWindow},
		{Name: StepUpdateDummyAnalyticsWindow, Mandatory: true, Action: s.updateDummyAnalyticsWindow},
		{Name: StepTriggerExposureDetection, Action: func(ctx context.Context) error {
			if r.firstLaunch {
				return errNotApplicable
			}
			return s.triggerDetection(ctx, ports.ForegroundDetection)
		}},
		{Name: StepUpdateDummyIngestionWindow, Mandatory: true, Action: s.updateDummyIngestionWindow},
		{Name: StepScheduleDummyIngestion, Mandatory: true, Action: s.scheduleDummyIngestion},
	}
}

func (s *sequences) willEnterForeground(r *run) []Step {
	return []Step{
		{Name: StepRefreshAuthStatuses, Mandatory: true, Action: s.refreshAuthStatuses},
		{Name: StepClearOutdatedResults, Mandatory: true, Action: s.clearOutdatedResults},
		{Name: StepClearRiskReminder, Action: s.clearRiskReminder},
		{Name: StepCheckForceUpdate, Mandatory: true, Action: s.checkForceUpdate},
		{Name: StepRefreshAnalyticsToken, Action: s.refreshAnalyticsToken},
		{Name: StepUpdateAnalyticsWindow, Mandatory: true, Action: s.updateAnalyticsWindow},
		{Name: StepUpdateDummyAnalyticsWindow, Mandatory: true, Action: s.updateDummyAnalyticsWindow},
		{Name: StepTriggerExposureDetection, Action: func(ctx context.Context) error {
			return s.triggerDetection(ctx, ports.ForegroundDetection)
		}},
		{Name: StepUpdateDummyIngestionWindow, Mandatory: true, Action: s.updateDummyIngestionWindow},
		{Name: StepScheduleDummyIngestion, Mandatory: true, Action: s.scheduleDummyIngestion},
	}
}

func (s *sequences) didBecomeActive(r *run) []Step {
	return []Step{
		{Name: StepHideOverlay, Action: s.hideOverlay},
		{Name: StepRefreshAuthStatuses, Mandatory: true, Action: s.refreshAuthStatuses},
	}
}

func (s *sequences) willResignActive(r *run) []Step {
	return []Step{
		{Name: StepShowOverlay, Action: s.showOverlay},
	}
}

func (s *sequences) didEnterBackground(r *run) []Step {
	return []Step{
		{Name: StepMarkForegroundFinished, Mandatory: true, Action: s.markForegroundFinished},
	}
}

func (s *sequences) backgroundTaskWake(r *run) []Step {
	task := r.trigger.Task
	return []Step{
		{Name: StepClearOutdatedResults, Mandatory: true, Action: s.clearOutdatedResults},
		{Name: StepRefreshAnalyticsToken, Action: s.refreshAnalyticsToken},
		{Name: StepUpdateAnalyticsWindow, Mandatory: true, Action: s.updateAnalyticsWindow},
		{Name: StepUpdateDummyAnalyticsWindow, Mandatory: true, Action: s.updateDummyAnalyticsWindow},
		{Name: StepUpdateDummyIngestionWindow, Mandatory: true, Action: s.updateDummyIngestionWindow},
		{Name: StepDownloadConfiguration, Timeout: s.cfg.ConfigDownloadTimeout, Action: s.downloadConfiguration},
		{Name: StepTriggerExposureDetection, Action: func(ctx context.Context) error {
			return s.triggerDetection(ctx, ports.BackgroundDetection(task))
		}},
	}
}

func (s *sequences) firstLaunchSteps() []Step {
	return []Step{
		{Name: StepDownloadConfiguration, Timeout: s.cfg.ConfigDownloadTimeout, Action: s.downloadConfiguration},
		{Name: StepInitializeDummyWindow, Mandatory: true, Action: s.scheduler.Initialize},
		{Name: StepMarkFirstLaunchPerformed, Mandatory: true, Action: func(ctx context.Context) error {
			return s.store.UpdateToggles(ctx, func(t *domain.Toggles) {
				t.FirstLaunchSetupPerformed = true
			})
		}},
	}
}

// firstLaunchSetupIfNeeded runs the first-launch sub-sequence through the
// same sequencer. Its hard failure fails the parent step.
func (s *sequences) firstLaunchSetupIfNeeded(ctx context.Context, r *run) error {
	if s.store.Toggles().FirstLaunchSetupPerformed {
		return errNotApplicable
	}

	r.firstLaunch = true
	out := s.sequencer.Run(ctx, SequenceFirstLaunchSetup, s.firstLaunchSteps())
	s.logger.Info("first launch setup finished",
		ports.Bool("failed", out.Failed()),
		ports.Int("soft_failures", out.SoftFailures()),
		ports.Duration("elapsed", out.Elapsed),
	)
	return out.Err
}

func (s *sequences) isForeground() bool {
	return s.deps.AppState != nil && s.deps.AppState.IsForeground()
}

// Auth returns the last authorization snapshot.
func (s *sequences) Auth() AuthSnapshot {
	s.authMu.RLock()
	defer s.authMu.RUnlock()
	return s.auth
}

func (s *sequences) preloadAssets(ctx context.Context) error {
	if s.deps.Assets == nil {
		return errNotApplicable
	}
	return s.deps.Assets.Preload(ctx)
}

func (s *sequences) refreshAuthStatuses(ctx context.Context) error {
	snap := AuthSnapshot{UpdatedAt: s.clock.Now()}
	if s.deps.Engine != nil {
		st, err := s.deps.Engine.Status(ctx)
		if err != nil {
			return fmt.Errorf("exposure status: %w", err)
		}
		snap.Exposure = st
	}
	if s.deps.Push != nil {
		st, err := s.deps.Push.AuthorizationStatus(ctx)
		if err != nil {
			return fmt.Errorf("push status: %w", err)
		}
		snap.Push = st
	}

	s.authMu.Lock()
	s.auth = snap
	s.authMu.Unlock()

	s.logger.Debug("authorization statuses refreshed",
		ports.String("exposure", snap.Exposure.String()),
		ports.String("push", snap.Push.String()),
	)
	return nil
}

func (s *sequences) setLanguage(ctx context.Context) error {
	if s.deps.Environment == nil || s.deps.AppInfo == nil {
		return errNotApplicable
	}
	return s.deps.AppInfo.SetLanguage(s.deps.Environment.Language())
}

func (s *sequences) setAppName(ctx context.Context) error {
	if s.deps.Environment == nil || s.deps.AppInfo == nil {
		return errNotApplicable
	}
	name := s.deps.Environment.AppName()
	if name == "" {
		return errNotApplicable
	}
	return s.deps.AppInfo.SetAppName(name)
}

func (s *sequences) setAppVersion(ctx context.Context) error {
	if s.deps.Environment == nil || s.deps.AppInfo == nil {
		return errNotApplicable
	}
	version := s.deps.Environment.AppVersion()
	if version == "" {
		return errNotApplicable
	}
	return s.deps.AppInfo.SetAppVersion(version)
}

func (s *sequences) startExposureEngine(ctx context.Context) error {
	if s.deps.Engine == nil {
		return errNotApplicable
	}
	if s.Auth().Exposure != ports.ExposureStatusAuthorized {
		s.logger.Info("exposure engine not authorized, not starting",
			ports.String("status", s.Auth().Exposure.String()))
		return errNotApplicable
	}
	return s.deps.Engine.StartIfAuthorized(ctx)
}

func (s *sequences) clearOutdatedResults(ctx context.Context) error {
	if s.deps.Exposures == nil {
		return errNotApplicable
	}
	return s.deps.Exposures.ClearOutdated(ctx, s.clock.Now().Add(-s.cfg.RetentionPeriod))
}

func (s *sequences) clearRiskReminder(ctx context.Context) error {
	if s.deps.Notifications == nil {
		return errNotApplicable
	}
	return s.deps.Notifications.RemoveRiskReminder(ctx)
}

// checkForceUpdate failures stay invisible to the user: they are reported
// as soft so a flaky update endpoint never blocks exposure detection.
func (s *sequences) checkForceUpdate(ctx context.Context) error {
	if s.deps.ForceUpdate == nil {
		return errNotApplicable
	}
	required, err := s.deps.ForceUpdate.Check(ctx)
	if err != nil {
		return domain.Soft(fmt.Errorf("force update check: %w", err))
	}
	if err := s.store.UpdateToggles(ctx, func(t *domain.Toggles) {
		t.LastForceUpdateCheck = s.clock.Now()
	}); err != nil {
		return err
	}
	if required {
		s.logger.Warn("force update required")
		s.emitter.OnForceUpdateRequired()
	}
	return nil
}

func (s *sequences) refreshAnalyticsToken(ctx context.Context) error {
	if s.deps.Analytics == nil {
		return errNotApplicable
	}
	return s.deps.Analytics.RefreshTokenIfExpired(ctx)
}

func (s *sequences) updateAnalyticsWindow(ctx context.Context) error {
	if s.deps.Analytics == nil {
		return errNotApplicable
	}
	return s.deps.Analytics.UpdateEventWithoutExposureWindowIfNeeded(ctx)
}

func (s *sequences) updateDummyAnalyticsWindow(ctx context.Context) error {
	if s.deps.Analytics == nil {
		return errNotApplicable
	}
	return s.deps.Analytics.UpdateDummyWindowIfExpired(ctx)
}

func (s *sequences) triggerDetection(ctx context.Context, kind ports.DetectionKind) error {
	if s.deps.Detection == nil {
		return errNotApplicable
	}
	s.deps.Detection.PerformIfNecessary(ctx, kind)
	s.logger.Debug("exposure detection requested", ports.String("kind", kind.String()))
	return nil
}

func (s *sequences) updateDummyIngestionWindow(ctx context.Context) error {
	_, err := s.scheduler.UpdateIngestionWindow(ctx)
	return err
}

func (s *sequences) scheduleDummyIngestion(ctx context.Context) error {
	if !s.isForeground() {
		s.logger.Debug("not in foreground, dummy ingestion not armed")
		return errNotApplicable
	}
	if err := s.store.UpdateToggles(ctx, func(t *domain.Toggles) {
		t.ForegroundSessionActive = true
	}); err != nil {
		return err
	}
	s.scheduler.Arm(ctx)
	return nil
}

func (s *sequences) markForegroundFinished(ctx context.Context) error {
	s.scheduler.Disarm()
	return s.store.UpdateToggles(ctx, func(t *domain.Toggles) {
		t.ForegroundSessionActive = false
	})
}

func (s *sequences) hideOverlay(ctx context.Context) error {
	if s.deps.Overlay == nil {
		return errNotApplicable
	}
	return s.deps.Overlay.Hide(ctx)
}

func (s *sequences) showOverlay(ctx context.Context) error {
	if s.deps.Overlay == nil {
		return errNotApplicable
	}
	return s.deps.Overlay.Show(ctx)
}

func (s *sequences) downloadConfiguration(ctx context.Context) error {
	if s.deps.Config == nil {
		return errNotApplicable
	}
	return s.deps.Config.DownloadAndUpdate(ctx)
}
