package app

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// MinDelay is the shortest delay a window end can be drawn at.
const MinDelay = time.Second

// DistributionKind selects how window delays are drawn.
type DistributionKind int

const (
	// DistributionExponential draws memoryless delays with the given mean.
	DistributionExponential DistributionKind = iota

	// DistributionUniform draws mean ± Jitter·mean.
	DistributionUniform
)

// String returns the configuration name of the kind.
func (k DistributionKind) String() string {
	switch k {
	case DistributionExponential:
		return "exponential"
	case DistributionUniform:
		return "uniform"
	default:
		return "unknown"
	}
}

// ParseDistribution maps a configuration name to a kind.
func ParseDistribution(name string) (DistributionKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exponential", "exp":
		return DistributionExponential, nil
	case "uniform":
		return DistributionUniform, nil
	default:
		return 0, fmt.Errorf("unknown distribution %q", name)
	}
}

// Schedule parameterizes the windows of one kind.
type Schedule struct {
	// Mean is the expected spacing between consecutive window ends.
	Mean time.Duration

	// Width is the window length before its end. Zero makes windows start now.
	Width time.Duration

	Distribution DistributionKind

	// Jitter is the relative spread of the uniform distribution, in [0, 1].
	Jitter float64

	// Requests is the number of dummy requests sent per firing.
	Requests int

	// PayloadBytes is the payload size of each dummy request.
	PayloadBytes int
}

// Validate checks the schedule parameters.
func (s Schedule) Validate() error {
	if s.Mean < MinDelay {
		return fmt.Errorf("mean %s below minimum %s", s.Mean, MinDelay)
	}
	if s.Width < 0 {
		return fmt.Errorf("width must not be negative")
	}
	if s.Jitter < 0 || s.Jitter > 1 {
		return fmt.Errorf("jitter %.2f outside [0, 1]", s.Jitter)
	}
	if s.Requests < 0 || s.PayloadBytes < 0 {
		return fmt.Errorf("requests and payload size must not be negative")
	}
	return nil
}

// draw returns a delay whose expectation is s.Mean, clamped to MinDelay.
func (s Schedule) draw(r *rand.Rand) time.Duration {
	var d float64
	switch s.Distribution {
	case DistributionUniform:
		// Add jitter: ±Jitter
		d = float64(s.Mean) * (1 + s.Jitter*(r.Float64()*2-1))
	default:
		d = r.ExpFloat64() * float64(s.Mean)
	}

	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	delay := time.Duration(d)
	if delay < MinDelay {
		delay = MinDelay
	}
	return delay
}
