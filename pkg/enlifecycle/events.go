package enlifecycle

import (
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// DummyTrafficEvent describes one firing of dummy requests.
type DummyTrafficEvent struct {
	Kind     WindowKind
	Requests int
	Err      error
}

// EventHandler receives orchestration events. Calls are synchronous from the
// goroutine that produced the event and must not block.
type EventHandler interface {
	// OnSequenceComplete is called after every dispatched sequence.
	OnSequenceComplete(outcome SequenceOutcome)

	// OnDummyTraffic is called after a batch of dummy requests was sent.
	OnDummyTraffic(event DummyTrafficEvent)

	// OnForceUpdateRequired is called when the force-update check reports
	// that the running version is no longer supported.
	OnForceUpdateRequired()
}

// BaseEventHandler implements EventHandler with no-ops.
type BaseEventHandler struct{}

func (BaseEventHandler) OnSequenceComplete(SequenceOutcome) {}
func (BaseEventHandler) OnDummyTraffic(DummyTrafficEvent)   {}
func (BaseEventHandler) OnForceUpdateRequired()             {}

// eventEmitterWrapper adapts EventHandler to app.EventEmitter.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e eventEmitterWrapper) OnSequenceComplete(outcome domain.SequenceOutcome) {
	e.handler.OnSequenceComplete(outcome)
}

func (e eventEmitterWrapper) OnDummyTraffic(kind domain.WindowKind, requests int, err error) {
	e.handler.OnDummyTraffic(DummyTrafficEvent{Kind: kind, Requests: requests, Err: err})
}

func (e eventEmitterWrapper) OnForceUpdateRequired() {
	e.handler.OnForceUpdateRequired()
}
