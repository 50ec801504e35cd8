package log

import "github.com/exposure-kit/enlifecycle/internal/ports"

// Noop discards every message.
type Noop struct{}

func (Noop) Debug(string, ...ports.Field) {}
func (Noop) Info(string, ...ports.Field)  {}
func (Noop) Warn(string, ...ports.Field)  {}
func (Noop) Error(string, ...ports.Field) {}

var _ ports.Logger = Noop{}
