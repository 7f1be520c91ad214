// Package store persists the small amount of state the shell keeps between
// runs: which release the user dismissed and when updates were last checked.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/kontrol/internal/config"
)

// CurrentSchemaVersion is the current version of the state schema.
const CurrentSchemaVersion = 1

// State is shared between the running shell and the kontrol CLI.
// This is persisted to ~/.local/share/kontrol/state.json
type State struct {
	DismissedVersion string `json:"dismissed_version,omitempty"`
	DismissedAt      int64  `json:"dismissed_at,omitempty"`   // Unix timestamp
	LatestVersion    string `json:"latest_version,omitempty"` // Latest release seen by the updater
	LastCheckAt      int64  `json:"last_check_at,omitempty"`  // Unix timestamp

	SchemaVersion int `json:"schema_version"`
}

// DefaultState returns a new State with default values.
func DefaultState() *State {
	return &State{SchemaVersion: CurrentSchemaVersion}
}

// Dismiss records that the user does not want to be reminded about version.
func (s *State) Dismiss(version string) {
	s.DismissedVersion = normalizeVersion(version)
	s.DismissedAt = time.Now().Unix()
}

// IsDismissed reports whether version was dismissed. A leading "v" is ignored.
func (s *State) IsDismissed(version string) bool {
	return s.DismissedVersion != "" && s.DismissedVersion == normalizeVersion(version)
}

// RecordCheck records the outcome of an update check.
func (s *State) RecordCheck(latest string, at time.Time) {
	s.LatestVersion = normalizeVersion(latest)
	s.LastCheckAt = at.Unix()
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// StatePath returns the default path to the state file.
func StatePath() (string, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "state.json"), nil
}

// StateFile reads and writes State at a fixed path.
type StateFile struct {
	mu   sync.RWMutex
	path string
}

// NewStateFile creates a StateFile for path.
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Path returns the state file path.
func (f *StateFile) Path() string {
	return f.path
}

// Load reads the state from disk.
// If the file doesn't exist or is corrupted, returns a default state.
func (f *StateFile) Load() (*State, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.load()
}

func (f *StateFile) load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultState(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return DefaultState(), nil
	}
	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}
	return &state, nil
}

// Save writes the state to disk atomically.
func (f *StateFile) Save(state *State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(state)
}

func (f *StateFile) save(state *State) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	if state.SchemaVersion == 0 {
		state.SchemaVersion = CurrentSchemaVersion
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically via temp file
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmpPath, f.path)
}

// Update loads the state, applies fn and saves the result.
func (f *StateFile) Update(fn func(s *State)) (*State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.load()
	if err != nil {
		return nil, err
	}
	fn(state)
	if err := f.save(state); err != nil {
		return nil, err
	}
	return state, nil
}
