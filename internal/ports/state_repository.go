package ports

import (
	"context"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// StateRepository persists toggles and opportunity windows across process
// restarts.
type StateRepository interface {
	// Load retrieves the last saved state.
	// Returns an empty state and nil error if no state exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (domain.State, error)

	// Save persists the state atomically.
	// A failed save must leave the previously saved state intact.
	Save(ctx context.Context, state domain.State) error
}
