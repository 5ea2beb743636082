// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package syncstate persists the requirement/test synchronization state
// between runs: the last-seen fingerprint and version of every
// requirement, and which test file covers it.
package syncstate

import (
	"time"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
)

// SchemaVersion identifies the on-disk state format.
const SchemaVersion = "1"

// RequirementState is the last-synced record of one requirement.
type RequirementState struct {
	RequirementID string                  `json:"requirement_id"`
	Fingerprint   fingerprint.Fingerprint `json:"fingerprint"`
	TestFile      string                  `json:"test_file"`
	TestFunction  string                  `json:"test_function,omitempty"`
	Version       int                     `json:"version"`
	LastSynced    time.Time               `json:"last_synced"`
	HasCustomCode bool                    `json:"has_custom_code"`
}

// TestFileState records which requirements a generated test file
// covers.
type TestFileState struct {
	Path           string    `json:"path"`
	RequirementIDs []string  `json:"requirement_ids"`
	LastUpdated    time.Time `json:"last_updated"`
	HasCustomCode  bool      `json:"has_custom_code"`
	BackupCount    int       `json:"backup_count"`
}

// SyncState is the whole persisted document.
type SyncState struct {
	SchemaVersion string                      `json:"schema_version"`
	LastSync      time.Time                   `json:"last_sync"`
	SyncCount     int                         `json:"sync_count"`
	Requirements  map[string]RequirementState `json:"requirements"`
	TestFiles     map[string]TestFileState    `json:"test_files"`
}

// newSyncState returns an empty state document.
func newSyncState() *SyncState {
	return &SyncState{
		SchemaVersion: SchemaVersion,
		Requirements:  make(map[string]RequirementState),
		TestFiles:     make(map[string]TestFileState),
	}
}

// Summary is an at-a-glance view of the state, for status commands.
type Summary struct {
	StatePath         string    `json:"state_path"`
	SyncCount         int       `json:"sync_count"`
	LastSync          time.Time `json:"last_sync"`
	TrackedReqs       int       `json:"tracked_requirements"`
	TrackedTestFiles  int       `json:"tracked_test_files"`
	ReqsWithCustom    int       `json:"requirements_with_custom_code"`
	OldestRequirement string    `json:"oldest_requirement,omitempty"`
}
