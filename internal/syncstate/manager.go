// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package syncstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

const (
	// DefaultStateDir is created next to the requirements document.
	DefaultStateDir = ".sysml2test"

	stateFileName = "sync_state.json"
)

// Manager loads, mutates, and saves the sync state document.
//
// # Thread Safety
//
// All methods are safe for concurrent use within one process. The
// on-disk file is not locked; run one sync per state directory.
type Manager struct {
	mu     sync.Mutex
	dir    string
	logger *logging.Logger
	state  *SyncState
}

// NewManager creates a Manager rooted at dir (DefaultStateDir when
// empty). A nil logger falls back to the default stderr logger.
func NewManager(dir string, logger *logging.Logger) *Manager {
	if dir == "" {
		dir = DefaultStateDir
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{dir: dir, logger: logger, state: newSyncState()}
}

// Path returns the state file location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, stateFileName)
}

// Initialize creates the state directory and, if no state file exists,
// writes an empty one. An existing file is left alone.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", m.dir, err)
	}
	if _, err := os.Stat(m.Path()); err == nil {
		return nil
	}
	return m.saveLocked()
}

// Load reads the state file into memory.
//
// A missing or corrupt file yields a fresh empty state rather than an
// error: losing sync state is recoverable (the next sync regenerates
// it), while refusing to run is not.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.Path())
	if os.IsNotExist(err) {
		m.state = newSyncState()
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading sync state: %w", err)
	}

	loaded := newSyncState()
	if err := json.Unmarshal(data, loaded); err != nil {
		m.logger.Warn("sync state file is corrupt, starting fresh",
			"path", m.Path(),
			"error", err,
		)
		m.state = newSyncState()
		return nil
	}
	if loaded.Requirements == nil {
		loaded.Requirements = make(map[string]RequirementState)
	}
	if loaded.TestFiles == nil {
		loaded.TestFiles = make(map[string]TestFileState)
	}
	m.state = loaded
	return nil
}

// Save writes the state file, creating the directory if needed.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating state directory %s: %w", m.dir, err)
	}
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sync state: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0o644); err != nil {
		return fmt.Errorf("writing sync state: %w", err)
	}
	return nil
}

// =============================================================================
// Mutation
// =============================================================================

// UpdateRequirement upserts one requirement's record.
func (m *Manager) UpdateRequirement(rs RequirementState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rs.LastSynced.IsZero() {
		rs.LastSynced = time.Now().UTC()
	}
	m.state.Requirements[rs.RequirementID] = rs
}

// UpdateTestFile upserts one test file's record.
func (m *Manager) UpdateTestFile(fs TestFileState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fs.LastUpdated.IsZero() {
		fs.LastUpdated = time.Now().UTC()
	}
	sort.Strings(fs.RequirementIDs)
	m.state.TestFiles[fs.Path] = fs
}

// MarkSynced stamps a completed sync pass: bumps the monotonic sync
// counter and records the time.
func (m *Manager) MarkSynced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.SyncCount++
	m.state.LastSync = time.Now().UTC()
}

// CleanupStale removes records for requirements no longer present,
// returning the removed keys sorted. Test file records lose the
// removed IDs; files left covering nothing are dropped from tracking
// (the file itself is never deleted).
func (m *Manager) CleanupStale(currentKeys map[string]struct{}) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for key := range m.state.Requirements {
		if _, ok := currentKeys[key]; !ok {
			removed = append(removed, key)
			delete(m.state.Requirements, key)
		}
	}
	sort.Strings(removed)
	if len(removed) == 0 {
		return nil
	}

	removedSet := make(map[string]struct{}, len(removed))
	for _, key := range removed {
		removedSet[key] = struct{}{}
	}
	for path, fs := range m.state.TestFiles {
		kept := fs.RequirementIDs[:0]
		for _, id := range fs.RequirementIDs {
			if _, gone := removedSet[id]; !gone {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			delete(m.state.TestFiles, path)
			continue
		}
		fs.RequirementIDs = kept
		m.state.TestFiles[path] = fs
	}

	m.logger.Info("removed stale requirement state", "removed", removed)
	return removed
}

// =============================================================================
// Queries
// =============================================================================

// Requirement returns one requirement's record.
func (m *Manager) Requirement(key string) (RequirementState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs, ok := m.state.Requirements[key]
	return rs, ok
}

// Requirements returns every tracked requirement record, sorted by
// requirement ID.
func (m *Manager) Requirements() []RequirementState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RequirementState, 0, len(m.state.Requirements))
	for _, rs := range m.state.Requirements {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequirementID < out[j].RequirementID
	})
	return out
}

// RequirementVersion returns the last-synced version for a requirement,
// or 0 when untracked.
func (m *Manager) RequirementVersion(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Requirements[key].Version
}

// Fingerprints returns the stored fingerprint of every tracked
// requirement, keyed by requirement ID. Feed this to the change
// detector as the old set.
func (m *Manager) Fingerprints() map[string]fingerprint.Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]fingerprint.Fingerprint, len(m.state.Requirements))
	for key, rs := range m.state.Requirements {
		out[key] = rs.Fingerprint
	}
	return out
}

// StaleRequirements lists tracked keys absent from the current set,
// sorted.
func (m *Manager) StaleRequirements(currentKeys map[string]struct{}) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []string
	for key := range m.state.Requirements {
		if _, ok := currentKeys[key]; !ok {
			stale = append(stale, key)
		}
	}
	sort.Strings(stale)
	return stale
}

// TestFile returns one test file's record.
func (m *Manager) TestFile(path string) (TestFileState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.state.TestFiles[path]
	return fs, ok
}

// TestFileFor returns the tracked test file covering a requirement, or
// "" when untracked.
func (m *Manager) TestFileFor(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Requirements[key].TestFile
}

// SyncCount returns the number of completed sync passes.
func (m *Manager) SyncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.SyncCount
}

// Summarize builds the status-command view of the state.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Summary{
		StatePath:        m.Path(),
		SyncCount:        m.state.SyncCount,
		LastSync:         m.state.LastSync,
		TrackedReqs:      len(m.state.Requirements),
		TrackedTestFiles: len(m.state.TestFiles),
	}
	var oldest time.Time
	for key, rs := range m.state.Requirements {
		if rs.HasCustomCode {
			s.ReqsWithCustom++
		}
		if oldest.IsZero() || rs.LastSynced.Before(oldest) {
			oldest = rs.LastSynced
			s.OldestRequirement = key
		}
	}
	return s
}
