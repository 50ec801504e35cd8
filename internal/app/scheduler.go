package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

var defaultSchedules = map[domain.WindowKind]Schedule{
	domain.WindowIngestionDummy: {
		Mean:         5 * 24 * time.Hour,
		Width:        2 * time.Hour,
		Distribution: DistributionExponential,
		Requests:     3,
		PayloadBytes: 4 << 10,
	},
	domain.WindowAnalyticsDummy: {
		Mean:         24 * time.Hour,
		Width:        time.Hour,
		Distribution: DistributionUniform,
		Jitter:       0.5,
		Requests:     1,
		PayloadBytes: 2 << 10,
	},
	domain.WindowAnalyticsWithoutExposure: {
		Mean:         14 * 24 * time.Hour,
		Width:        24 * time.Hour,
		Distribution: DistributionUniform,
		Jitter:       0.5,
	},
}

// DefaultSchedules returns a copy of the schedules used for kinds without
// explicit configuration.
func DefaultSchedules() map[domain.WindowKind]Schedule {
	return mergeSchedules(nil)
}

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Schedules map[domain.WindowKind]Schedule
	Rand      *rand.Rand
	Transport ports.DummyTransport
	Clock     ports.Clock
	Logger    ports.Logger
	Recorder  Recorder
	Emitter   EventEmitter
}

// Scheduler draws randomized opportunity windows and sends dummy requests so
// network observers cannot tell genuine uploads from noise.
type Scheduler struct {
	rngMu sync.Mutex
	rng   *rand.Rand

	schedMu   sync.RWMutex
	schedules map[domain.WindowKind]Schedule

	store     *Store
	tracker   *WindowTracker
	transport ports.DummyTransport
	clock     ports.Clock
	logger    ports.Logger
	recorder  Recorder
	emitter   EventEmitter

	armMu     sync.Mutex
	armCancel context.CancelFunc
	armGen    uint64

	wg sync.WaitGroup
}

// NewScheduler creates a scheduler and its window tracker over store.
func NewScheduler(store *Store, cfg SchedulerConfig) *Scheduler {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}

	s := &Scheduler{
		rng:       rng,
		schedules: mergeSchedules(cfg.Schedules),
		store:     store,
		transport: cfg.Transport,
		clock:     clock,
		logger:    cfg.Logger,
		recorder:  recorderOrNoop(cfg.Recorder),
		emitter:   emitterOrNoop(cfg.Emitter),
	}
	s.tracker = NewWindowTracker(store, s, clock, cfg.Logger)
	return s
}

func mergeSchedules(in map[domain.WindowKind]Schedule) map[domain.WindowKind]Schedule {
	out := make(map[domain.WindowKind]Schedule, len(defaultSchedules))
	for k, v := range defaultSchedules {
		out[k] = v
	}
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Tracker returns the window tracker bound to this scheduler.
func (s *Scheduler) Tracker() *WindowTracker {
	return s.tracker
}

// Schedule returns the schedule of kind.
func (s *Scheduler) Schedule(kind domain.WindowKind) Schedule {
	s.schedMu.RLock()
	defer s.schedMu.RUnlock()
	return s.schedules[kind]
}

// SetSchedules replaces the schedules of the given kinds. Windows already
// drawn keep their bounds until they expire.
func (s *Scheduler) SetSchedules(schedules map[domain.WindowKind]Schedule) error {
	for kind, sched := range schedules {
		if err := sched.Validate(); err != nil {
			return fmt.Errorf("%w: schedule %s: %v", domain.ErrInvalidConfig, kind, err)
		}
	}

	s.schedMu.Lock()
	for kind, sched := range schedules {
		s.schedules[kind] = sched
	}
	s.schedMu.Unlock()

	s.logger.Info("dummy traffic schedules updated", ports.Int("kinds", len(schedules)))
	return nil
}

// ScheduleWindow draws a window anchored at now. Its end lies a random
// delay with expectation sched.Mean after now; its start is sched.Width
// earlier but never before now.
func (s *Scheduler) ScheduleWindow(now time.Time, sched Schedule) domain.OpportunityWindow {
	s.rngMu.Lock()
	delay := sched.draw(s.rng)
	s.rngMu.Unlock()

	end := now.Add(delay)
	start := end.Add(-sched.Width)
	if start.Before(now) || sched.Width <= 0 {
		start = now
	}
	return domain.OpportunityWindow{Start: start, End: end}
}

// Next draws the next window of kind. It implements WindowSource.
func (s *Scheduler) Next(kind domain.WindowKind, now time.Time) domain.OpportunityWindow {
	w := s.ScheduleWindow(now, s.Schedule(kind))
	s.recorder.ObserveWindow(kind, w)
	return w
}

// Initialize makes sure an ingestion window exists. First-launch setup
// calls it synchronously so foreground sessions never see an unset window.
func (s *Scheduler) Initialize(ctx context.Context) error {
	upd, err := s.tracker.UpdateIfNeeded(ctx, domain.WindowIngestionDummy)
	if err != nil {
		return fmt.Errorf("initialize dummy window: %w", err)
	}
	s.logger.Info("dummy traffic initialized",
		ports.Time("window_start", upd.Current.Start),
		ports.Time("window_end", upd.Current.End),
	)
	return nil
}

// UpdateIngestionWindow replaces an expired or unset ingestion window and,
// when it had expired, fires the dummy requests in the background.
func (s *Scheduler) UpdateIngestionWindow(ctx context.Context) (WindowUpdate, error) {
	upd, err := s.tracker.UpdateIfNeeded(ctx, domain.WindowIngestionDummy)
	if err != nil {
		return upd, err
	}
	if upd.Expired {
		s.SendDummies(ctx, domain.WindowIngestionDummy)
	}
	return upd, nil
}

// FireDummySequence fires the ingestion dummy requests if the window has
// expired and reschedules it. Failures are logged, never returned.
func (s *Scheduler) FireDummySequence(ctx context.Context) {
	if _, err := s.UpdateIngestionWindow(ctx); err != nil {
		s.logger.Warn("dummy sequence failed", ports.Err(err))
	}
}

// SendDummies sends the configured dummy requests of kind on a background
// goroutine. It returns immediately.
func (s *Scheduler) SendDummies(ctx context.Context, kind domain.WindowKind) {
	sched := s.Schedule(kind)
	if s.transport == nil || sched.Requests == 0 {
		return
	}

	sendCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var firstErr error
		sent := 0
		for i := 0; i < sched.Requests; i++ {
			err := s.transport.SendDummy(sendCtx, ports.DummyRequest{Kind: kind, PayloadSize: sched.PayloadBytes})
			s.recorder.ObserveDummy(kind, err)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			sent++
		}

		if firstErr != nil {
			s.logger.Warn("dummy request failed",
				ports.String("kind", string(kind)),
				ports.Int("sent", sent),
				ports.Err(firstErr),
			)
		} else {
			s.logger.Debug("dummy requests sent",
				ports.String("kind", string(kind)),
				ports.Int("sent", sent),
			)
		}
		s.emitter.OnDummyTraffic(kind, sent, firstErr)
	}()
}

// Arm starts the in-session timer that fires the ingestion dummy sequence
// whenever the current window expires. Arming twice is a no-op. The timer
// stops itself once the foreground session ends.
func (s *Scheduler) Arm(ctx context.Context) {
	s.armMu.Lock()
	defer s.armMu.Unlock()

	if s.armCancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.armCancel = cancel
	s.armGen++
	gen := s.armGen

	s.wg.Add(1)
	go s.armLoop(runCtx, gen)
}

// Disarm stops the in-session timer.
func (s *Scheduler) Disarm() {
	s.armMu.Lock()
	defer s.armMu.Unlock()

	if s.armCancel != nil {
		s.armCancel()
		s.armCancel = nil
	}
}

// Armed reports whether the in-session timer is running.
func (s *Scheduler) Armed() bool {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	return s.armCancel != nil
}

func (s *Scheduler) armLoop(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	defer s.releaseArm(gen)

	for {
		w := s.tracker.Current(domain.WindowIngestionDummy)
		delay := time.Duration(0)
		if !IsUnset(w) {
			delay = w.End.Sub(s.clock.Now())
		}
		if delay < 0 {
			delay = 0
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.store.Toggles().ForegroundSessionActive {
			s.logger.Debug("foreground session ended, dummy timer stopped")
			return
		}

		before := s.tracker.Current(domain.WindowIngestionDummy)
		s.FireDummySequence(ctx)
		if s.tracker.Current(domain.WindowIngestionDummy) == before && !IsUnset(before) {
			// Clock has not reached the window end yet; wait for the next tick
			// instead of spinning.
			select {
			case <-ctx.Done():
				return
			case <-time.After(MinDelay):
			}
		}
	}
}

func (s *Scheduler) releaseArm(gen uint64) {
	s.armMu.Lock()
	defer s.armMu.Unlock()
	if s.armGen == gen && s.armCancel != nil {
		s.armCancel()
		s.armCancel = nil
	}
}

// Wait blocks until background dummy sends and the timer loop have exited.
// Callers disarm first.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close disarms the timer and waits for background work.
func (s *Scheduler) Close() {
	s.Disarm()
	s.Wait()
}
