package enlifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/adapters/fs"
	"github.com/exposure-kit/enlifecycle/internal/adapters/host"
	httpAdapter "github.com/exposure-kit/enlifecycle/internal/adapters/http"
	logAdapter "github.com/exposure-kit/enlifecycle/internal/adapters/log"
	"github.com/exposure-kit/enlifecycle/internal/adapters/metrics"
	"github.com/exposure-kit/enlifecycle/internal/adapters/sqlite"
	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/config"
	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// SQLiteFileName is the database file used when cfg.Store is "sqlite".
const SQLiteFileName = "lifecycle.db"

// Orchestrator dispatches lifecycle signals. It is safe for concurrent use.
type Orchestrator struct {
	config     Config
	dispatcher *app.Dispatcher
	logger     ports.Logger
	device     *host.Device
	closers    []io.Closer
}

// New validates cfg, opens the state store and loads the persisted state.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schedules, err := cfg.AppSchedules()
	if err != nil {
		return nil, err
	}

	o := options{logger: logAdapter.Noop{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	logger := o.logger

	orch := &Orchestrator{config: cfg, logger: logger}

	repo := o.repo
	if repo == nil {
		repo, err = orch.openRepository()
		if err != nil {
			return nil, err
		}
	}

	var recorder app.Recorder
	if o.registerer != nil {
		rec, err := metrics.NewRecorder(o.registerer)
		if err != nil {
			orch.closeAll()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		recorder = rec
	}

	var emitter app.EventEmitter
	if o.eventHandler != nil {
		emitter = eventEmitterWrapper{handler: o.eventHandler}
	}

	client := httpAdapter.NewClient(cfg.ServiceURL, o.httpClient, logger)
	configSvc := httpAdapter.NewConfigService(client, cfg.StateDir)
	transport := o.transport
	if transport == nil {
		transport = httpAdapter.NewDummyTransport(client)
	}
	tokens := o.tokens
	if tokens == nil {
		tokens = httpAdapter.NewTokens(client, o.clock)
	}

	orch.device = host.NewDevice(logger)
	deps := mergeCollaborators(o.collaborators, Collaborators{
		Engine:        orch.device,
		Push:          orch.device,
		Config:        configSvc,
		Detection:     orch.device,
		Notifications: orch.device,
		Overlay:       orch.device,
		Assets:        orch.device,
		Environment:   host.Environment{Lang: cfg.Language, Name: cfg.AppName, Version: cfg.AppVersion},
		AppInfo:       client,
		Exposures:     orch.device,
		ForceUpdate:   host.NewForceUpdate(configSvc.Path(), cfg.AppVersion),
	})

	orch.dispatcher = app.NewDispatcher(repo, app.DispatcherConfig{
		Collaborators: deps,
		Sequences: app.SequenceConfig{
			ConfigDownloadTimeout: cfg.ConfigDownloadTimeout,
			RetentionPeriod:       cfg.RetentionPeriod,
		},
		AnalyticsTokens:    tokens,
		Schedules:          schedules,
		Rand:               o.rand,
		Transport:          transport,
		LaunchInBackground: cfg.BackgroundLaunch,
		Clock:              o.clock,
		Logger:             logger,
		Recorder:           recorder,
		Emitter:            emitter,
	})

	if err := orch.dispatcher.Load(context.Background()); err != nil {
		orch.closeAll()
		return nil, err
	}

	logger.Info("orchestrator ready",
		ports.String("state_dir", cfg.StateDir),
		ports.String("store", cfg.Store),
		ports.Bool("first_launch_done", orch.dispatcher.Store().Toggles().FirstLaunchSetupPerformed),
	)
	return orch, nil
}

func (o *Orchestrator) openRepository() (ports.StateRepository, error) {
	switch o.config.Store {
	case config.StoreSQLite:
		repo, err := sqlite.Open(filepath.Join(o.config.StateDir, SQLiteFileName))
		if err != nil {
			return nil, err
		}
		o.closers = append(o.closers, repo)
		return repo, nil
	default:
		return fs.NewStateFileRepository(o.config.StateDir), nil
	}
}

// mergeCollaborators fills nil members of c from defaults.
func mergeCollaborators(c, defaults Collaborators) Collaborators {
	if c.Engine == nil {
		c.Engine = defaults.Engine
	}
	if c.Push == nil {
		c.Push = defaults.Push
	}
	if c.Config == nil {
		c.Config = defaults.Config
	}
	if c.Detection == nil {
		c.Detection = defaults.Detection
	}
	if c.Notifications == nil {
		c.Notifications = defaults.Notifications
	}
	if c.Overlay == nil {
		c.Overlay = defaults.Overlay
	}
	if c.Assets == nil {
		c.Assets = defaults.Assets
	}
	if c.Environment == nil {
		c.Environment = defaults.Environment
	}
	if c.AppInfo == nil {
		c.AppInfo = defaults.AppInfo
	}
	if c.Exposures == nil {
		c.Exposures = defaults.Exposures
	}
	if c.ForceUpdate == nil {
		c.ForceUpdate = defaults.ForceUpdate
	}
	return c
}

// HandleSignal dispatches the OS signal name. taskID is required for
// background-task-wake and ignored otherwise. Unknown names return
// ErrUnknownSignal without running anything.
func (o *Orchestrator) HandleSignal(ctx context.Context, name, taskID string) (SequenceOutcome, error) {
	return o.dispatcher.HandleSignal(ctx, name, domain.TaskHandle{ID: taskID})
}

// Dispatch runs the sequence of an already validated trigger.
func (o *Orchestrator) Dispatch(ctx context.Context, trigger Trigger) SequenceOutcome {
	return o.dispatcher.Dispatch(ctx, trigger)
}

// State returns a copy of the persisted toggles and windows.
func (o *Orchestrator) State() State {
	return o.dispatcher.Store().Get()
}

// Auth returns the last authorization snapshot.
func (o *Orchestrator) Auth() AuthSnapshot {
	return o.dispatcher.Auth()
}

// SetSchedules replaces dummy traffic schedules at runtime.
func (o *Orchestrator) SetSchedules(schedules map[WindowKind]ScheduleConfig) error {
	cfg := Config{Schedules: schedules}
	converted, err := cfg.AppSchedules()
	if err != nil {
		return err
	}
	return o.dispatcher.Scheduler().SetSchedules(converted)
}

// ApplySchedules is SetSchedules for already converted schedules; the
// config watcher calls it.
func (o *Orchestrator) ApplySchedules(schedules map[WindowKind]Schedule) error {
	return o.dispatcher.Scheduler().SetSchedules(schedules)
}

// Close stops the dummy timer, waits up to app.ShutdownTimeout for
// in-flight sequences and closes the state store.
func (o *Orchestrator) Close() error {
	return o.CloseTimeout(app.ShutdownTimeout)
}

// CloseTimeout is Close with an explicit deadline.
func (o *Orchestrator) CloseTimeout(timeout time.Duration) error {
	err := o.dispatcher.Close(timeout)
	return errors.Join(err, o.closeAll())
}

func (o *Orchestrator) closeAll() error {
	var errs []error
	for _, c := range o.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	o.closers = nil
	return errors.Join(errs...)
}
