package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

func openTemp(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	repo, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, path
}

func TestRepository_EmptyDatabase(t *testing.T) {
	repo, _ := openTemp(t)

	st, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Toggles.FirstLaunchSetupPerformed)
	assert.Empty(t, st.Windows)
}

func TestRepository_SaveAndReopen(t *testing.T) {
	repo, path := openTemp(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	st := domain.State{
		Toggles: domain.Toggles{
			FirstLaunchSetupPerformed: true,
			ForegroundSessionActive:   true,
			LastForceUpdateCheck:      now,
		},
		UpdatedAt: now,
	}
	st = st.WithWindow(domain.WindowIngestionDummy, domain.OpportunityWindow{Start: now, End: now.Add(time.Hour)})
	st = st.WithWindow(domain.WindowAnalyticsDummy, domain.OpportunityWindow{Start: now, End: now.Add(2 * time.Hour)})
	require.NoError(t, repo.Save(ctx, st))

	// Overwrite drops windows that are no longer present.
	st.Toggles.ForegroundSessionActive = false
	delete(st.Windows, domain.WindowAnalyticsDummy)
	require.NoError(t, repo.Save(ctx, st))
	require.NoError(t, repo.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Toggles.FirstLaunchSetupPerformed)
	assert.False(t, got.Toggles.ForegroundSessionActive)
	assert.True(t, got.Toggles.LastForceUpdateCheck.Equal(now))
	assert.True(t, got.UpdatedAt.Equal(now))
	require.Len(t, got.Windows, 1)
	assert.True(t, got.Window(domain.WindowIngestionDummy).End.Equal(now.Add(time.Hour)))
}

func TestRepository_InvalidWindowRollsBack(t *testing.T) {
	repo, _ := openTemp(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	good := domain.State{Toggles: domain.Toggles{FirstLaunchSetupPerformed: true}}
	require.NoError(t, repo.Save(ctx, good))

	bad := domain.State{}.WithWindow(domain.WindowIngestionDummy, domain.OpportunityWindow{Start: now, End: now})
	require.Error(t, repo.Save(ctx, bad))

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.True(t, got.Toggles.FirstLaunchSetupPerformed, "failed save must keep the previous state")
}
