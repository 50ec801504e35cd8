package app

import (
	"context"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Analytics is the default ports.AnalyticsService. Token handling is
// delegated; both analytics windows live in the core's store.
type Analytics struct {
	tokens    ports.AnalyticsTokens
	scheduler *Scheduler
	logger    ports.Logger
}

// NewAnalytics creates the analytics service. tokens may be nil.
func NewAnalytics(tokens ports.AnalyticsTokens, scheduler *Scheduler, logger ports.Logger) *Analytics {
	return &Analytics{tokens: tokens, scheduler: scheduler, logger: logger}
}

// RefreshTokenIfExpired refreshes the submission token.
func (a *Analytics) RefreshTokenIfExpired(ctx context.Context) error {
	if a.tokens == nil {
		return nil
	}
	return a.tokens.RefreshIfExpired(ctx)
}

// UpdateEventWithoutExposureWindowIfNeeded draws the window in which the
// "no exposure" analytics event becomes due.
func (a *Analytics) UpdateEventWithoutExposureWindowIfNeeded(ctx context.Context) error {
	upd, err := a.scheduler.Tracker().UpdateIfNeeded(ctx, domain.WindowAnalyticsWithoutExposure)
	if err != nil {
		return err
	}
	if upd.Expired {
		a.logger.Info("analytics event without exposure is due",
			ports.Time("window_end", upd.Previous.End))
	}
	return nil
}

// UpdateDummyWindowIfExpired sends an analytics dummy when its window has
// expired and draws the next one.
func (a *Analytics) UpdateDummyWindowIfExpired(ctx context.Context) error {
	upd, err := a.scheduler.Tracker().UpdateIfNeeded(ctx, domain.WindowAnalyticsDummy)
	if err != nil {
		return err
	}
	if upd.Expired {
		a.scheduler.SendDummies(ctx, domain.WindowAnalyticsDummy)
	}
	return nil
}

var _ ports.AnalyticsService = (*Analytics)(nil)
