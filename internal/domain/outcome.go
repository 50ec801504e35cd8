package domain

import (
	"time"
)

// OutcomeKind classifies the result of a single step.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSoftFailure
	OutcomeHardFailure
	OutcomeSkipped
)

// String returns a human-readable representation of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSoftFailure:
		return "soft_failure"
	case OutcomeHardFailure:
		return "hard_failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StepResult records how one step of a sequence ended.
type StepResult struct {
	Step      string
	Mandatory bool
	Kind      OutcomeKind
	Err       error
	Elapsed   time.Duration
}

// SequenceOutcome is the report for one dispatched trigger.
type SequenceOutcome struct {
	RunID     string
	Sequence  string
	Trigger   Trigger
	Steps     []StepResult
	Err       error
	StartedAt time.Time
	Elapsed   time.Duration
}

// Failed reports whether the sequence aborted on a hard failure or was cancelled.
func (o SequenceOutcome) Failed() bool {
	return o.Err != nil
}

// Executed returns the names of steps whose action ran, in order.
func (o SequenceOutcome) Executed() []string {
	var names []string
	for _, r := range o.Steps {
		if r.Kind != OutcomeSkipped {
			names = append(names, r.Step)
		}
	}
	return names
}

// Result returns the result of the named step and whether it was recorded.
func (o SequenceOutcome) Result(step string) (StepResult, bool) {
	for _, r := range o.Steps {
		if r.Step == step {
			return r, true
		}
	}
	return StepResult{}, false
}

// SoftFailures counts steps that failed without aborting the sequence.
func (o SequenceOutcome) SoftFailures() int {
	n := 0
	for _, r := range o.Steps {
		if r.Kind == OutcomeSoftFailure {
			n++
		}
	}
	return n
}
