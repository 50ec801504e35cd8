package app

import (
	"context"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// HasExpired reports whether now has reached the end of w.
func HasExpired(w domain.OpportunityWindow, now time.Time) bool {
	return w.HasExpired(now)
}

// IsUnset reports whether w is the "never scheduled" sentinel.
func IsUnset(w domain.OpportunityWindow) bool {
	return w.IsUnset()
}

// WindowSource draws the next window of a kind.
type WindowSource interface {
	Next(kind domain.WindowKind, now time.Time) domain.OpportunityWindow
}

// WindowUpdate describes what UpdateIfNeeded did.
type WindowUpdate struct {
	Kind     domain.WindowKind
	Previous domain.OpportunityWindow
	Current  domain.OpportunityWindow

	// WasUnset is true when no window existed before.
	WasUnset bool

	// Expired is true when the previous window had expired.
	Expired bool
}

// Replaced reports whether a fresh window was stored.
func (u WindowUpdate) Replaced() bool {
	return u.WasUnset || u.Expired
}

// WindowTracker replaces opportunity windows once they expire.
type WindowTracker struct {
	store  *Store
	source WindowSource
	clock  ports.Clock
	logger ports.Logger
}

// NewWindowTracker creates a tracker drawing fresh windows from source.
func NewWindowTracker(store *Store, source WindowSource, clock ports.Clock, logger ports.Logger) *WindowTracker {
	return &WindowTracker{store: store, source: source, clock: clock, logger: logger}
}

// Current returns the stored window of kind.
func (t *WindowTracker) Current(kind domain.WindowKind) domain.OpportunityWindow {
	return t.store.Get().Window(kind)
}

// UpdateIfNeeded stores a fresh window when the current one is unset or
// expired, and is a no-op otherwise. The read, the expiry check and the
// write happen inside one Store.Apply.
func (t *WindowTracker) UpdateIfNeeded(ctx context.Context, kind domain.WindowKind) (WindowUpdate, error) {
	now := t.clock.Now()
	upd := WindowUpdate{Kind: kind}

	_, err := t.store.ApplyIf(ctx, func(st domain.State) (domain.State, bool) {
		cur := st.Window(kind)
		upd.Previous = cur
		upd.Current = cur
		upd.WasUnset = IsUnset(cur)
		upd.Expired = !upd.WasUnset && HasExpired(cur, now)
		if !upd.Replaced() {
			return st, false
		}
		upd.Current = t.source.Next(kind, now)
		return st.WithWindow(kind, upd.Current), true
	})
	if err != nil {
		return WindowUpdate{Kind: kind}, err
	}

	if upd.Replaced() {
		t.logger.Debug("opportunity window replaced",
			ports.String("kind", string(kind)),
			ports.Bool("was_unset", upd.WasUnset),
			ports.Time("start", upd.Current.Start),
			ports.Time("end", upd.Current.End),
		)
	}
	return upd, nil
}
