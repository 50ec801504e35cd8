package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Action is the work of one step. Returning domain.Soft(err) downgrades a
// failure to soft even on a mandatory step.
type Action func(ctx context.Context) error

// Step is one entry of a sequence.
type Step struct {
	Name      string
	Mandatory bool

	// Timeout races the action against a deadline. Expiry is always a soft
	// failure and the late result is discarded.
	Timeout time.Duration

	Action Action
}

// Sequencer runs steps strictly in order with per-step failure isolation.
type Sequencer struct {
	logger   ports.Logger
	recorder Recorder
}

// NewSequencer creates a sequencer. A nil recorder is allowed.
func NewSequencer(logger ports.Logger, recorder Recorder) *Sequencer {
	return &Sequencer{logger: logger, recorder: recorderOrNoop(recorder)}
}

// Run executes steps in order and reports every step's result:
//   - a mandatory step failing hard stops the sequence; later steps are Skipped
//   - a best-effort failure, a soft error or a timeout is logged and the
//     sequence continues
//   - cancellation of ctx abandons the in-flight step and skips the rest
func (s *Sequencer) Run(ctx context.Context, name string, steps []Step) domain.SequenceOutcome {
	started := time.Now()
	out := domain.SequenceOutcome{
		Sequence:  name,
		StartedAt: started,
		Steps:     make([]domain.StepResult, 0, len(steps)),
	}

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			out.Err = fmt.Errorf("%w: before %q: %w", domain.ErrSequenceCancelled, step.Name, err)
			out.Steps = append(out.Steps, skipped(steps[i:])...)
			break
		}

		res, cancelled := s.runStep(ctx, step)
		s.recorder.ObserveStep(name, res)

		if cancelled {
			out.Steps = append(out.Steps, res)
			out.Err = fmt.Errorf("%w: during %q: %w", domain.ErrSequenceCancelled, step.Name, ctx.Err())
			out.Steps = append(out.Steps, skipped(steps[i+1:])...)
			s.logger.Warn("sequence cancelled",
				ports.String("sequence", name),
				ports.String("step", step.Name),
			)
			break
		}

		out.Steps = append(out.Steps, res)

		switch res.Kind {
		case domain.OutcomeSkipped:
			s.logger.Debug("step not applicable",
				ports.String("sequence", name),
				ports.String("step", step.Name),
			)
		case domain.OutcomeSuccess:
			s.logger.Debug("step succeeded",
				ports.String("sequence", name),
				ports.String("step", step.Name),
				ports.Duration("elapsed", res.Elapsed),
			)
		case domain.OutcomeSoftFailure:
			s.logger.Warn("step failed, continuing",
				ports.String("sequence", name),
				ports.String("step", step.Name),
				ports.Bool("mandatory", step.Mandatory),
				ports.Duration("elapsed", res.Elapsed),
				ports.Err(res.Err),
			)
		case domain.OutcomeHardFailure:
			s.logger.Error("mandatory step failed, aborting sequence",
				ports.String("sequence", name),
				ports.String("step", step.Name),
				ports.Duration("elapsed", res.Elapsed),
				ports.Err(res.Err),
			)
			out.Err = fmt.Errorf("%w: step %q: %w", domain.ErrHardFailure, step.Name, res.Err)
			out.Steps = append(out.Steps, skipped(steps[i+1:])...)
		}
		if out.Err != nil {
			break
		}
	}

	out.Elapsed = time.Since(started)
	return out
}

type stepReturn struct {
	err error
}

// runStep races the action against its timeout and ctx. The second return
// is true when ctx ended before the action did.
func (s *Sequencer) runStep(ctx context.Context, step Step) (domain.StepResult, bool) {
	res := domain.StepResult{Step: step.Name, Mandatory: step.Mandatory}
	started := time.Now()

	stepCtx := ctx
	var timeout <-chan time.Time
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
		timer := time.NewTimer(step.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// Buffered so an abandoned action can still deliver and exit.
	done := make(chan stepReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- stepReturn{err: fmt.Errorf("step panicked: %v", r)}
			}
		}()
		done <- stepReturn{err: invoke(stepCtx, step.Action)}
	}()

	select {
	case r := <-done:
		res.Elapsed = time.Since(started)
		res.Err = r.err
		res.Kind = classify(step, r.err)
		if res.Kind == domain.OutcomeSkipped {
			res.Err = nil
		}
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && step.Timeout > 0 && ctx.Err() == nil {
			// The action observed the step deadline before the timer fired.
			res.Err = &domain.TimeoutError{Step: step.Name, Timeout: step.Timeout, Elapsed: res.Elapsed}
			res.Kind = domain.OutcomeSoftFailure
		}
		if ctx.Err() != nil && r.err != nil &&
			(errors.Is(r.err, ctx.Err()) || errors.Is(r.err, domain.ErrSequenceCancelled)) {
			// Ended by cancellation, not by its own failure.
			res.Kind = domain.OutcomeSkipped
			return res, true
		}
		return res, false
	case <-timeout:
		res.Elapsed = time.Since(started)
		res.Err = &domain.TimeoutError{Step: step.Name, Timeout: step.Timeout, Elapsed: res.Elapsed}
		res.Kind = domain.OutcomeSoftFailure
		return res, false
	case <-ctx.Done():
		res.Elapsed = time.Since(started)
		res.Err = ctx.Err()
		res.Kind = domain.OutcomeSkipped
		return res, true
	}
}

func invoke(ctx context.Context, action Action) error {
	if action == nil {
		return nil
	}
	return action(ctx)
}

func classify(step Step, err error) domain.OutcomeKind {
	switch {
	case err == nil:
		return domain.OutcomeSuccess
	case errors.Is(err, errNotApplicable):
		return domain.OutcomeSkipped
	case domain.IsSoft(err) || !step.Mandatory:
		return domain.OutcomeSoftFailure
	default:
		return domain.OutcomeHardFailure
	}
}

func skipped(steps []Step) []domain.StepResult {
	out := make([]domain.StepResult, 0, len(steps))
	for _, st := range steps {
		out = append(out, domain.StepResult{Step: st.Name, Mandatory: st.Mandatory, Kind: domain.OutcomeSkipped})
	}
	return out
}
