// Package enlifecycle orchestrates the lifecycle of an exposure-notification
// app: it turns OS lifecycle signals into ordered sequences of side effects
// and keeps privacy-preserving dummy traffic flowing on a randomized cadence.
//
// # Basic Usage
//
//	cfg := enlifecycle.DefaultConfig()
//	cfg.StateDir = "/var/lib/myapp"
//
//	o, err := enlifecycle.New(cfg, enlifecycle.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer o.Close()
//
//	out, err := o.HandleSignal(ctx, "start", "")
//
// # Signals
//
// HandleSignal accepts start, will-enter-foreground, did-become-active,
// will-resign-active, did-enter-background and background-task-wake. The
// last one needs a task ID; cancelling ctx abandons the sequence as the
// host revokes the task. Unknown names return [ErrUnknownSignal] and run
// nothing.
//
// # Host Services
//
// By default the orchestrator talks HTTP to cfg.ServiceURL for configuration,
// dummy requests and analytics tokens, and simulates the device services
// (exposure engine, notifications, overlay). Real hosts replace them with
// [WithCollaborators].
//
// # Event Handling
//
// Implement [EventHandler], embedding [BaseEventHandler] for no-op defaults,
// and pass it with [WithEventHandler].
package enlifecycle
