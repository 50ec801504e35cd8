// Package domain contains the core entities and value objects of the
// lifecycle orchestration core.
//
// This package is the innermost layer. It has no dependencies on
// infrastructure concerns (persistence, HTTP, logging) and contains only
// values and the rules that hold between them.
//
// # Entities
//
//   - [Trigger]: one OS lifecycle signal, parsed from its name
//   - [OpportunityWindow]: a randomized interval after which a dummy or
//     deferred action becomes eligible to fire
//   - [Toggles]: persisted flags that make sequences idempotent across runs
//   - [State]: the persisted document holding toggles and windows
//   - [SequenceOutcome]: the per-trigger report produced by the sequencer
//
// # Design Principles
//
// Domain values are:
//   - Replaced rather than mutated once published
//   - Free of infrastructure dependencies
//   - Testable without mocks or external systems
package domain
