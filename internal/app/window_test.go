package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// fixedSource returns the same window offset for every draw.
type fixedSource struct {
	delay time.Duration
	draws int
}

func (f *fixedSource) Next(kind domain.WindowKind, now time.Time) domain.OpportunityWindow {
	f.draws++
	return domain.OpportunityWindow{Start: now, End: now.Add(f.delay)}
}

func TestHasExpired_Monotonic(t *testing.T) {
	w := domain.OpportunityWindow{Start: epoch, End: epoch.Add(time.Hour)}

	expired := false
	for offset := -2 * time.Hour; offset <= 4*time.Hour; offset += 7 * time.Minute {
		got := HasExpired(w, epoch.Add(offset))
		if expired {
			require.True(t, got, "expiry must be monotonic, flipped back at %s", offset)
		}
		expired = got
	}
	assert.True(t, expired)
	assert.True(t, HasExpired(w, w.End), "window expires exactly at its end")
	assert.False(t, HasExpired(w, w.End.Add(-time.Nanosecond)))
}

func TestIsUnset(t *testing.T) {
	assert.True(t, IsUnset(domain.OpportunityWindow{}))
	assert.False(t, IsUnset(domain.OpportunityWindow{Start: epoch, End: epoch.Add(time.Second)}))
	assert.False(t, HasExpired(domain.OpportunityWindow{}, epoch), "unset is never reported as expired")
}

func TestWindowTracker_UpdateIfNeeded(t *testing.T) {
	repo := &memRepo{}
	clock := newFakeClock()
	store := NewStore(repo, clock, &mockLogger{})
	src := &fixedSource{delay: time.Hour}
	tr := NewWindowTracker(store, src, clock, &mockLogger{})
	ctx := context.Background()

	// Unset: a window is drawn.
	upd, err := tr.UpdateIfNeeded(ctx, domain.WindowAnalyticsDummy)
	require.NoError(t, err)
	assert.True(t, upd.WasUnset)
	assert.False(t, upd.Expired)
	assert.Equal(t, epoch.Add(time.Hour), upd.Current.End)
	_, saves := repo.Saved()
	assert.Equal(t, 1, saves)

	// Not yet expired: no-op, nothing persisted.
	clock.Advance(30 * time.Minute)
	upd, err = tr.UpdateIfNeeded(ctx, domain.WindowAnalyticsDummy)
	require.NoError(t, err)
	assert.False(t, upd.Replaced())
	_, saves = repo.Saved()
	assert.Equal(t, 1, saves)
	assert.Equal(t, 1, src.draws)

	// Expired: replaced, never mutated in place.
	clock.Advance(30 * time.Minute)
	upd, err = tr.UpdateIfNeeded(ctx, domain.WindowAnalyticsDummy)
	require.NoError(t, err)
	assert.True(t, upd.Expired)
	assert.Equal(t, epoch.Add(time.Hour), upd.Previous.End)
	assert.Equal(t, epoch.Add(2*time.Hour), upd.Current.End)
	assert.Equal(t, upd.Current, tr.Current(domain.WindowAnalyticsDummy))
}

func TestWindowTracker_KindsAreIndependent(t *testing.T) {
	clock := newFakeClock()
	store := NewStore(&memRepo{}, clock, &mockLogger{})
	tr := NewWindowTracker(store, &fixedSource{delay: time.Minute}, clock, &mockLogger{})

	_, err := tr.UpdateIfNeeded(context.Background(), domain.WindowIngestionDummy)
	require.NoError(t, err)

	assert.False(t, tr.Current(domain.WindowIngestionDummy).IsUnset())
	assert.True(t, tr.Current(domain.WindowAnalyticsDummy).IsUnset())
}
