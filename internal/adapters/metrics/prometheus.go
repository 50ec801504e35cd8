// Package metrics exports orchestration measurements to Prometheus.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exposure-kit/enlifecycle/internal/app"
	"github.com/exposure-kit/enlifecycle/internal/domain"
)

const namespace = "enlifecycle"

// Recorder implements app.Recorder with Prometheus collectors.
type Recorder struct {
	sequences    *prometheus.CounterVec
	sequenceTime *prometheus.HistogramVec
	steps        *prometheus.CounterVec
	stepTime     *prometheus.HistogramVec
	dummies      *prometheus.CounterVec
	windowEnd    *prometheus.GaugeVec
	windowsDrawn *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		sequences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequences_total",
			Help:      "Lifecycle sequences run, by sequence and result.",
		}, []string{"sequence", "result"}),
		sequenceTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sequence_duration_seconds",
			Help:      "Wall time of lifecycle sequences.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"sequence"}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Sequence steps, by step and outcome.",
		}, []string{"sequence", "step", "outcome"}),
		stepTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Wall time of executed steps.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"step"}),
		dummies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dummy_requests_total",
			Help:      "Dummy requests sent, by window kind and result.",
		}, []string{"kind", "result"}),
		windowEnd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_end_timestamp_seconds",
			Help:      "End of the current opportunity window.",
		}, []string{"kind"}),
		windowsDrawn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_drawn_total",
			Help:      "Opportunity windows drawn, by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{
		r.sequences, r.sequenceTime, r.steps, r.stepTime, r.dummies, r.windowEnd, r.windowsDrawn,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveStep(sequence string, res domain.StepResult) {
	r.steps.WithLabelValues(sequence, res.Step, res.Kind.String()).Inc()
	if res.Kind != domain.OutcomeSkipped {
		r.stepTime.WithLabelValues(res.Step).Observe(res.Elapsed.Seconds())
	}
}

func (r *Recorder) ObserveSequence(out domain.SequenceOutcome) {
	result := "ok"
	switch {
	case errors.Is(out.Err, domain.ErrSequenceCancelled):
		result = "cancelled"
	case out.Failed():
		result = "failed"
	}
	r.sequences.WithLabelValues(out.Sequence, result).Inc()
	r.sequenceTime.WithLabelValues(out.Sequence).Observe(out.Elapsed.Seconds())
}

func (r *Recorder) ObserveDummy(kind domain.WindowKind, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.dummies.WithLabelValues(string(kind), result).Inc()
}

func (r *Recorder) ObserveWindow(kind domain.WindowKind, w domain.OpportunityWindow) {
	r.windowsDrawn.WithLabelValues(string(kind)).Inc()
	r.windowEnd.WithLabelValues(string(kind)).Set(float64(w.End.UnixNano()) / 1e9)
}

var _ app.Recorder = (*Recorder)(nil)
