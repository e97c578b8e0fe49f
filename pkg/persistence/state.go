package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// DefaultHistoryLimit is the number of reboot causes kept.
const DefaultHistoryLimit = 10

// PlatformState contains the runtime state of pmond.
type PlatformState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Platform is the platform the state was recorded on. State from a
	// different platform is discarded.
	Platform string `json:"platform,omitempty"`

	// RebootCauses holds the reboot-cause history, newest first.
	RebootCauses []RebootRecord `json:"reboot_causes,omitempty"`

	// Presence is the transceiver presence bitmap, one bit per port index.
	Presence []uint64 `json:"presence,omitempty"`
}

// RebootRecord is one entry of the reboot-cause history.
type RebootRecord struct {
	Cause  string `json:"cause"`
	Detail string `json:"detail,omitempty"`

	// Hardware is set when the cause was reported by hardware.
	Hardware bool `json:"hardware,omitempty"`

	// Time is when the cause was determined.
	Time time.Time `json:"time"`

	// BootTime is when the system booted after this reboot.
	BootTime time.Time `json:"boot_time,omitempty"`
}

// AddRebootCause inserts rec at the front of the history and trims it to
// limit entries. A limit of zero or less uses DefaultHistoryLimit.
func (s *PlatformState) AddRebootCause(rec RebootRecord, limit int) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.RebootCauses = append([]RebootRecord{rec}, s.RebootCauses...)
	if len(s.RebootCauses) > limit {
		s.RebootCauses = s.RebootCauses[:limit]
	}
}

// LastRebootCause returns the newest history entry.
func (s *PlatformState) LastRebootCause() (RebootRecord, bool) {
	if len(s.RebootCauses) == 0 {
		return RebootRecord{}, false
	}
	return s.RebootCauses[0], true
}

// StateStore manages persistence of the platform state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a new state store.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Save persists the state to disk. The file is replaced atomically so a
// power loss never leaves a partial file.
func (s *StateStore) Save(state *PlatformState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Ensure parent directory exists
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*PlatformState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &PlatformState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return state, nil
}

// LoadFor reads the state and discards it when it was recorded for another
// platform or is missing. The result is never nil.
func (s *StateStore) LoadFor(platform string) (*PlatformState, error) {
	state, err := s.Load()
	if err != nil {
		return &PlatformState{Platform: platform}, err
	}
	if state == nil || (state.Platform != "" && state.Platform != platform) {
		return &PlatformState{Platform: platform}, nil
	}
	state.Platform = platform
	return state, nil
}

// Update loads the state, applies fn and saves the result.
func (s *StateStore) Update(platform string, fn func(*PlatformState)) error {
	state, err := s.LoadFor(platform)
	if err != nil {
		return err
	}
	fn(state)
	return s.Save(state)
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
