package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

type tokenStub struct {
	calls int
	err   error
}

func (s *tokenStub) RefreshIfExpired(ctx context.Context) error {
	s.calls++
	return s.err
}

func TestAnalytics_RefreshToken(t *testing.T) {
	f := newSchedulerFixture(t)

	require.NoError(t, NewAnalytics(nil, f.s, &mockLogger{}).RefreshTokenIfExpired(context.Background()))

	tokens := &tokenStub{err: errors.New("token service down")}
	a := NewAnalytics(tokens, f.s, &mockLogger{})
	assert.Error(t, a.RefreshTokenIfExpired(context.Background()))
	assert.Equal(t, 1, tokens.calls)
}

func TestAnalytics_DummyWindow(t *testing.T) {
	f := newSchedulerFixture(t)
	a := NewAnalytics(nil, f.s, &mockLogger{})
	ctx := context.Background()

	require.NoError(t, a.UpdateDummyWindowIfExpired(ctx))
	w := f.s.Tracker().Current(domain.WindowAnalyticsDummy)
	require.False(t, w.IsUnset())
	f.s.Wait()
	assert.Empty(t, f.transport.Sent(), "drawing the first window sends nothing")

	f.clock.Advance(w.End.Sub(epoch) + time.Second)
	require.NoError(t, a.UpdateDummyWindowIfExpired(ctx))
	f.s.Wait()

	sent := f.transport.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.WindowAnalyticsDummy, sent[0].Kind)
	assert.True(t, f.s.Tracker().Current(domain.WindowAnalyticsDummy).End.After(f.clock.Now()))
}

func TestAnalytics_WithoutExposureWindow(t *testing.T) {
	f := newSchedulerFixture(t)
	a := NewAnalytics(nil, f.s, &mockLogger{})

	require.NoError(t, a.UpdateEventWithoutExposureWindowIfNeeded(context.Background()))

	w := f.s.Tracker().Current(domain.WindowAnalyticsWithoutExposure)
	require.False(t, w.IsUnset())
	assert.GreaterOrEqual(t, w.End.Sub(epoch), 7*24*time.Hour)
	assert.LessOrEqual(t, w.End.Sub(epoch), 21*24*time.Hour)
	assert.Empty(t, f.transport.Sent(), "without-exposure windows carry no dummy requests")
}
