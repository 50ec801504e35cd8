package app

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// ShutdownTimeout is the default maximum time to wait for in-flight sequences.
const ShutdownTimeout = 30 * time.Second

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Collaborators Collaborators
	Sequences     SequenceConfig

	// AnalyticsTokens backs the default analytics service when
	// Collaborators.Analytics is nil.
	AnalyticsTokens ports.AnalyticsTokens

	Schedules map[domain.WindowKind]Schedule
	Rand      *rand.Rand
	Transport ports.DummyTransport

	// LaunchInBackground makes the start signal count as a background launch
	// for the built-in app state tracker.
	LaunchInBackground bool

	Clock    ports.Clock
	Logger   ports.Logger
	Recorder Recorder
	Emitter  EventEmitter
}

// Dispatcher turns lifecycle triggers into sequence runs.
type Dispatcher struct {
	store     *Store
	scheduler *Scheduler
	sequencer *Sequencer
	seq       *sequences
	appState  *AppStateTracker
	clock     ports.Clock
	logger    ports.Logger
	recorder  Recorder
	emitter   EventEmitter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher over repo. Call Load before the first
// dispatch.
func NewDispatcher(repo ports.StateRepository, cfg DispatcherConfig) *Dispatcher {
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	logger := cfg.Logger
	recorder := recorderOrNoop(cfg.Recorder)
	emitter := emitterOrNoop(cfg.Emitter)

	if cfg.Sequences.ConfigDownloadTimeout <= 0 {
		cfg.Sequences.ConfigDownloadTimeout = DefaultConfigDownloadTimeout
	}
	if cfg.Sequences.RetentionPeriod <= 0 {
		cfg.Sequences.RetentionPeriod = DefaultRetentionPeriod
	}

	store := NewStore(repo, clock, logger)
	scheduler := NewScheduler(store, SchedulerConfig{
		Schedules: cfg.Schedules,
		Rand:      cfg.Rand,
		Transport: cfg.Transport,
		Clock:     clock,
		Logger:    logger,
		Recorder:  recorder,
		Emitter:   emitter,
	})
	sequencer := NewSequencer(logger, recorder)
	tracker := NewAppStateTracker(logger, nil, cfg.LaunchInBackground)

	deps := cfg.Collaborators
	if deps.AppState == nil {
		deps.AppState = tracker
	}
	if deps.Analytics == nil {
		deps.Analytics = NewAnalytics(cfg.AnalyticsTokens, scheduler, logger)
	}

	return &Dispatcher{
		store:     store,
		scheduler: scheduler,
		sequencer: sequencer,
		seq: &sequences{
			deps:      deps,
			cfg:       cfg.Sequences,
			store:     store,
			scheduler: scheduler,
			sequencer: sequencer,
			clock:     clock,
			logger:    logger,
			emitter:   emitter,
		},
		appState: tracker,
		clock:    clock,
		logger:   logger,
		recorder: recorder,
		emitter:  emitter,
	}
}

// Load seeds the store from the repository.
func (d *Dispatcher) Load(ctx context.Context) error {
	return d.store.Load(ctx)
}

// Store returns the toggles store.
func (d *Dispatcher) Store() *Store { return d.store }

// Scheduler returns the dummy traffic scheduler.
func (d *Dispatcher) Scheduler() *Scheduler { return d.scheduler }

// AppState returns the built-in app state tracker.
func (d *Dispatcher) AppState() *AppStateTracker { return d.appState }

// Auth returns the last authorization snapshot.
func (d *Dispatcher) Auth() AuthSnapshot { return d.seq.Auth() }

// HandleSignal parses an OS signal name and dispatches it. Unknown names
// are dropped with domain.ErrUnknownSignal.
func (d *Dispatcher) HandleSignal(ctx context.Context, name string, task domain.TaskHandle) (domain.SequenceOutcome, error) {
	trigger, err := domain.ParseTrigger(name, task)
	if err != nil {
		d.logger.Warn("dropping lifecycle signal", ports.String("signal", name), ports.Err(err))
		return domain.SequenceOutcome{}, err
	}
	return d.Dispatch(ctx, trigger), nil
}

// Dispatch runs the sequence of trigger. For background wakes, ctx is bound
// to the host task: cancelling it abandons the in-flight step.
func (d *Dispatcher) Dispatch(ctx context.Context, trigger domain.Trigger) domain.SequenceOutcome {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return domain.SequenceOutcome{Trigger: trigger, Err: domain.ErrClosed}
	}
	d.wg.Add(1)
	d.mu.RUnlock()
	defer d.wg.Done()

	d.appState.Observe(trigger)

	def := Route(trigger)
	runID := uuid.NewString()
	d.logger.Info("dispatching lifecycle trigger",
		ports.String("run_id", runID),
		ports.String("trigger", trigger.String()),
		ports.String("sequence", def.Name),
	)

	r := &run{trigger: trigger}
	out := d.sequencer.Run(ctx, def.Name, def.steps(d.seq, r))
	out.RunID = runID
	out.Trigger = trigger

	if out.Failed() {
		d.logger.Error("sequence failed",
			ports.String("run_id", runID),
			ports.String("sequence", def.Name),
			ports.Int("soft_failures", out.SoftFailures()),
			ports.Duration("elapsed", out.Elapsed),
			ports.Err(out.Err),
		)
	} else {
		d.logger.Info("sequence completed",
			ports.String("run_id", runID),
			ports.String("sequence", def.Name),
			ports.Int("soft_failures", out.SoftFailures()),
			ports.Duration("elapsed", out.Elapsed),
		)
	}

	d.recorder.ObserveSequence(out)
	d.emitter.OnSequenceComplete(out)
	return out
}

// Close rejects further signals, stops the dummy timer and waits for
// in-flight sequences. Returns domain.ErrShutdownTimeout if they outlive
// timeout.
func (d *Dispatcher) Close(timeout time.Duration) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.scheduler.Close()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		d.logger.Warn("shutdown timeout, abandoning in-flight sequences",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
