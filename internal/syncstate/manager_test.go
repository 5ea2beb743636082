// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package syncstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), DefaultStateDir), logging.Discard())
}

func sampleState(key string) RequirementState {
	r := req.Requirement{Metadata: req.Metadata{ID: key, Name: "Sample"}}
	return RequirementState{
		RequirementID: key,
		Fingerprint:   fingerprint.New(r, 1, time.Time{}),
		TestFile:      "req_001_test.go",
		TestFunction:  "TestSample",
		Version:       1,
		HasCustomCode: true,
	}
}

func TestManager_InitializeAndLoad(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Initialize())

	_, err := os.Stat(m.Path())
	require.NoError(t, err)

	// Initialize again must not clobber existing content.
	m.UpdateRequirement(sampleState("REQ-001"))
	require.NoError(t, m.Save())
	require.NoError(t, m.Initialize())

	fresh := NewManager(filepath.Dir(m.Path()), logging.Discard())
	require.NoError(t, fresh.Load())
	_, ok := fresh.Requirement("REQ-001")
	assert.True(t, ok)
}

func TestManager_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	m.UpdateRequirement(sampleState("REQ-001"))
	m.UpdateTestFile(TestFileState{
		Path:           "req_001_test.go",
		RequirementIDs: []string{"REQ-001"},
	})
	m.MarkSynced()
	require.NoError(t, m.Save())

	loaded := NewManager(filepath.Dir(m.Path()), logging.Discard())
	require.NoError(t, loaded.Load())

	rs, ok := loaded.Requirement("REQ-001")
	require.True(t, ok)
	assert.Equal(t, 1, rs.Version)
	assert.True(t, rs.HasCustomCode)
	assert.False(t, rs.LastSynced.IsZero())
	assert.Equal(t, 1, loaded.SyncCount())
	assert.Equal(t, "req_001_test.go", loaded.TestFileFor("REQ-001"))

	fps := loaded.Fingerprints()
	require.Contains(t, fps, "REQ-001")
	assert.Len(t, fps["REQ-001"].ContentHash, 64)
}

func TestManager_LoadMissingIsFresh(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Load())
	assert.Zero(t, m.SyncCount())
}

func TestManager_LoadCorruptIsFresh(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(m.Path()), 0o755))
	require.NoError(t, os.WriteFile(m.Path(), []byte("{truncated"), 0o644))

	require.NoError(t, m.Load())
	assert.Zero(t, m.SyncCount())

	// And it can save over the corrupt file.
	m.MarkSynced()
	require.NoError(t, m.Save())
	require.NoError(t, m.Load())
	assert.Equal(t, 1, m.SyncCount())
}

func TestManager_SyncCountMonotonic(t *testing.T) {
	m := newTestManager(t)
	for i := 1; i <= 3; i++ {
		m.MarkSynced()
		require.NoError(t, m.Save())
		require.NoError(t, m.Load())
		assert.Equal(t, i, m.SyncCount())
	}
	assert.False(t, m.Summarize().LastSync.IsZero())
}

func TestManager_StaleAndCleanup(t *testing.T) {
	m := newTestManager(t)
	m.UpdateRequirement(sampleState("REQ-001"))
	m.UpdateRequirement(sampleState("REQ-002"))
	m.UpdateTestFile(TestFileState{
		Path:           "req_001_test.go",
		RequirementIDs: []string{"REQ-001"},
	})
	m.UpdateTestFile(TestFileState{
		Path:           "shared_test.go",
		RequirementIDs: []string{"REQ-001", "REQ-002"},
	})

	current := map[string]struct{}{"REQ-002": {}}
	assert.Equal(t, []string{"REQ-001"}, m.StaleRequirements(current))

	removed := m.CleanupStale(current)
	assert.Equal(t, []string{"REQ-001"}, removed)

	_, ok := m.Requirement("REQ-001")
	assert.False(t, ok)

	summary := m.Summarize()
	assert.Equal(t, 1, summary.TrackedReqs)
	// req_001_test.go covered nothing after cleanup and was dropped;
	// shared_test.go kept REQ-002.
	assert.Equal(t, 1, summary.TrackedTestFiles)

	assert.Nil(t, m.CleanupStale(map[string]struct{}{"REQ-002": {}}))
}

func TestManager_Summarize(t *testing.T) {
	m := newTestManager(t)

	older := sampleState("REQ-001")
	older.LastSynced = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.UpdateRequirement(older)

	newer := sampleState("REQ-002")
	newer.HasCustomCode = false
	newer.LastSynced = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m.UpdateRequirement(newer)

	summary := m.Summarize()
	assert.Equal(t, 2, summary.TrackedReqs)
	assert.Equal(t, 1, summary.ReqsWithCustom)
	assert.Equal(t, "REQ-001", summary.OldestRequirement)
}

func TestManager_VersionUntracked(t *testing.T) {
	m := newTestManager(t)
	assert.Zero(t, m.RequirementVersion("REQ-404"))
	assert.Empty(t, m.TestFileFor("REQ-404"))
}
