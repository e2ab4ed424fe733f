// Package state persists recorded state as a plain JSON document so it can
// be inspected and repaired out of process.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stackform/stackform/internal/ir"
)

// Manager handles reading and writing of recorded state at a fixed path.
type Manager struct {
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return m.path
}

// Read loads the state file. A missing file yields a fresh empty state
// with a new lineage.
func (m *Manager) Read() (*ir.State, error) {
	raw, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return &ir.State{
			Version: 1,
			Serial:  0,
			Lineage: uuid.NewString(),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", m.path, err)
	}

	var st ir.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", m.path, err)
	}
	if st.Lineage == "" {
		st.Lineage = uuid.NewString()
	}
	return &st, nil
}

// Write persists the state atomically: the document is written to a
// temporary file in the same directory and renamed over the target, so a
// crash mid-write never leaves a truncated state file behind.
func (m *Manager) Write(st *ir.State) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	content, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize state: %w", err)
	}
	content = append(content, '\n')

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file %s: %w", m.path, err)
	}
	return nil
}
