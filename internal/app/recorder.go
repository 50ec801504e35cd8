package app

import (
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// Recorder receives measurements from the orchestration core.
type Recorder interface {
	ObserveStep(sequence string, result domain.StepResult)
	ObserveSequence(outcome domain.SequenceOutcome)
	ObserveDummy(kind domain.WindowKind, err error)
	ObserveWindow(kind domain.WindowKind, window domain.OpportunityWindow)
}

// EventEmitter is notified of orchestration events. Calls are synchronous
// from the goroutine that produced the event.
type EventEmitter interface {
	OnSequenceComplete(outcome domain.SequenceOutcome)
	OnDummyTraffic(kind domain.WindowKind, requests int, err error)
	OnForceUpdateRequired()
}

type noopRecorder struct{}

func (noopRecorder) ObserveStep(string, domain.StepResult)                     {}
func (noopRecorder) ObserveSequence(domain.SequenceOutcome)                    {}
func (noopRecorder) ObserveDummy(domain.WindowKind, error)                     {}
func (noopRecorder) ObserveWindow(domain.WindowKind, domain.OpportunityWindow) {}

type noopEmitter struct{}

func (noopEmitter) OnSequenceComplete(domain.SequenceOutcome)    {}
func (noopEmitter) OnDummyTraffic(domain.WindowKind, int, error) {}
func (noopEmitter) OnForceUpdateRequired()                       {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}

func emitterOrNoop(e EventEmitter) EventEmitter {
	if e == nil {
		return noopEmitter{}
	}
	return e
}
