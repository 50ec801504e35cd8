package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Mutator derives the next state from the current one. It runs under the
// store lock and must not block or call back into the store.
type Mutator func(domain.State) domain.State

// Store holds the process-wide toggles and opportunity windows. Apply is the
// only way to change them.
type Store struct {
	mu     sync.Mutex
	state  domain.State
	repo   ports.StateRepository
	clock  ports.Clock
	logger ports.Logger
}

// NewStore creates a store with empty state. Call Load to seed it from the
// repository.
func NewStore(repo ports.StateRepository, clock ports.Clock, logger ports.Logger) *Store {
	return &Store{
		state:  domain.State{Windows: map[domain.WindowKind]domain.OpportunityWindow{}},
		repo:   repo,
		clock:  clock,
		logger: logger,
	}
}

// Load replaces the in-memory state with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st.Windows == nil {
		st.Windows = map[domain.WindowKind]domain.OpportunityWindow{}
	}

	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.logger.Debug("state loaded",
		ports.Bool("first_launch_done", st.Toggles.FirstLaunchSetupPerformed),
		ports.Bool("foreground_session", st.Toggles.ForegroundSessionActive),
	)
	return nil
}

// Get returns a copy of the current state.
func (s *Store) Get() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Toggles returns the current toggles.
func (s *Store) Toggles() domain.Toggles {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Toggles
}

// Apply runs mutator on the current state and persists the result before
// returning. A failed save keeps the previous state. The save ignores ctx
// cancellation once started so a write is never split.
func (s *Store) Apply(ctx context.Context, mutator Mutator) (domain.State, error) {
	return s.ApplyIf(ctx, func(st domain.State) (domain.State, bool) {
		return mutator(st), true
	})
}

// ApplyIf is Apply for mutators that may decide nothing changed. When fn
// returns false, nothing is persisted and the current state is returned.
func (s *Store) ApplyIf(ctx context.Context, fn func(domain.State) (domain.State, bool)) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, changed := fn(s.state.Clone())
	if !changed {
		return s.state.Clone(), nil
	}
	if next.Windows == nil {
		next.Windows = map[domain.WindowKind]domain.OpportunityWindow{}
	}
	next.UpdatedAt = s.clock.Now()

	if err := s.repo.Save(context.WithoutCancel(ctx), next); err != nil {
		s.logger.Error("failed to save state", ports.Err(err))
		return s.state.Clone(), fmt.Errorf("save state: %w", err)
	}

	s.state = next
	return next.Clone(), nil
}

// UpdateToggles is Apply restricted to the toggles.
func (s *Store) UpdateToggles(ctx context.Context, fn func(*domain.Toggles)) error {
	_, err := s.Apply(ctx, func(st domain.State) domain.State {
		fn(&st.Toggles)
		return st
	})
	return err
}
