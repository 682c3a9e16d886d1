package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/quorum/internal/fsutil"
)

// StateFile is the state document name inside the state directory.
const StateFile = "state.json"

// StateStore persists PipelineState atomically.
type StateStore struct {
	path string
}

// NewStateStore stores state at <stateDir>/state.json.
func NewStateStore(stateDir string) *StateStore {
	return &StateStore{path: filepath.Join(stateDir, StateFile)}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Exists reports whether a state file is present.
func (s *StateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the state. A missing file is ErrNoState.
func (s *StateStore) Load() (*PipelineState, error) {
	var st PipelineState
	if err := fsutil.ReadJSON(s.path, &st); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoState
		}
		return nil, fmt.Errorf("load pipeline state: %w", err)
	}
	if st.Version > StateVersion {
		return nil, fmt.Errorf("pipeline state version %d is newer than supported %d", st.Version, StateVersion)
	}
	st.normalize()
	return &st, nil
}

// Save writes st with a temp-file-then-rename.
func (s *StateStore) Save(st *PipelineState) error {
	if err := fsutil.WriteJSONAtomic(s.path, st); err != nil {
		return fmt.Errorf("save pipeline state: %w", err)
	}
	return nil
}

// Remove deletes the state file. Removing a missing file is not an error.
func (s *StateStore) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pipeline state: %w", err)
	}
	return nil
}
