package app

import (
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// Sequence names.
const (
	SequenceStart               = "start"
	SequenceWillEnterForeground = "will-enter-foreground"
	SequenceDidBecomeActive     = "did-become-active"
	SequenceWillResignActive    = "will-resign-active"
	SequenceDidEnterBackground  = "did-enter-background"
	SequenceBackgroundTaskWake  = "background-task-wake"
	SequenceFirstLaunchSetup    = "first-launch-setup"
)

// SequenceDefinition is the fixed step list selected for a trigger.
type SequenceDefinition struct {
	Name    string
	Trigger domain.Trigger
	build   func(*sequences, *run) []Step
}

// steps materializes the definition for one run.
func (d SequenceDefinition) steps(seq *sequences, r *run) []Step {
	return d.build(seq, r)
}

// Route maps a trigger to its sequence definition. It has no side effects.
// Unknown signal names never reach Route: domain.ParseTrigger rejects them.
func Route(trigger domain.Trigger) SequenceDefinition {
	def := SequenceDefinition{Trigger: trigger}
	switch trigger.Kind {
	case domain.TriggerStart:
		def.Name, def.build = SequenceStart, (*sequences).start
	case domain.TriggerWillEnterForeground:
		def.Name, def.build = SequenceWillEnterForeground, (*sequences).willEnterForeground
	case domain.TriggerDidBecomeActive:
		def.Name, def.build = SequenceDidBecomeActive, (*sequences).didBecomeActive
	case domain.TriggerWillResignActive:
		def.Name, def.build = SequenceWillResignActive, (*sequences).willResignActive
	case domain.TriggerDidEnterBackground:
		def.Name, def.build = SequenceDidEnterBackground, (*sequences).didEnterBackground
	case domain.TriggerBackgroundTaskWake:
		def.Name, def.build = SequenceBackgroundTaskWake, (*sequences).backgroundTaskWake
	default:
		def.Name, def.build = "noop", func(*sequences, *run) []Step { return nil }
	}
	return def
}

// StepNames lists the step names of the definition in order, without
// running anything. Conditional steps are included.
func (d SequenceDefinition) StepNames() []string {
	steps := d.build(&sequences{}, &run{trigger: d.Trigger})
	names := make([]string, len(steps))
	for i, st := range steps {
		names[i] = st.Name
	}
	return names
}
