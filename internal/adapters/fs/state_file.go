package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/exposure-kit/enlifecycle/internal/domain"
)

// StateFileName is the name of the state file inside the state directory.
const StateFileName = "lifecycle.json"

// StateFileRepository implements ports.StateRepository with a JSON file.
type StateFileRepository struct {
	dir string
}

// NewStateFileRepository creates a repository storing its file in dir.
func NewStateFileRepository(dir string) *StateFileRepository {
	return &StateFileRepository{dir: dir}
}

// Load reads the state file. A missing file yields the empty state.
func (r *StateFileRepository) Load(ctx context.Context) (domain.State, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.State{}, nil
		}
		return domain.State{}, err
	}

	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.State{}, fmt.Errorf("decode %s: %w", r.Path(), err)
	}
	return state, nil
}

// Save writes the state to a temp file and renames it over the old one, so
// readers see either the old or the new state.
func (r *StateFileRepository) Save(ctx context.Context, state domain.State) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Path returns the full path to the state file.
func (r *StateFileRepository) Path() string {
	return filepath.Join(r.dir, StateFileName)
}
