package domain

import (
	"fmt"
	"time"
)

// WindowKind names a scheduled action that owns one opportunity window.
type WindowKind string

const (
	WindowIngestionDummy           WindowKind = "ingestion-dummy"
	WindowAnalyticsDummy           WindowKind = "analytics-dummy"
	WindowAnalyticsWithoutExposure WindowKind = "analytics-without-exposure"
)

// WindowKinds lists every kind in a stable order.
var WindowKinds = []WindowKind{
	WindowIngestionDummy,
	WindowAnalyticsDummy,
	WindowAnalyticsWithoutExposure,
}

// OpportunityWindow is a randomized future interval. The zero value means
// the action was never scheduled.
type OpportunityWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewOpportunityWindow validates End > Start.
func NewOpportunityWindow(start, end time.Time) (OpportunityWindow, error) {
	if !end.After(start) {
		return OpportunityWindow{}, fmt.Errorf("%w: end %s not after start %s",
			ErrInvalidWindow, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return OpportunityWindow{Start: start, End: end}, nil
}

// IsUnset reports whether the window is the "never scheduled" sentinel.
func (w OpportunityWindow) IsUnset() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

// HasExpired reports whether now has reached the end of the window.
// An unset window never expires; callers check IsUnset first.
func (w OpportunityWindow) HasExpired(now time.Time) bool {
	if w.IsUnset() {
		return false
	}
	return !now.Before(w.End)
}

// Contains reports whether now lies inside [Start, End).
func (w OpportunityWindow) Contains(now time.Time) bool {
	return !w.IsUnset() && !now.Before(w.Start) && now.Before(w.End)
}
