// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package syncrun orchestrates one synchronization pass: extract the
// current requirements, detect changes against the last-synced
// baseline, update the affected test files, and persist the new state.
package syncrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redasasin4/sysml2test/internal/detect"
	"github.com/redasasin4/sysml2test/internal/extract"
	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/internal/generate"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/syncstate"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/internal/update"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// baselineFileName stores the requirement set of the last completed
// sync inside the state directory. It is the detector's old set on the
// next run.
const baselineFileName = "last_requirements.json"

// Config controls a sync run.
type Config struct {
	// OutputDir receives generated test files.
	OutputDir string

	// PackageName of generated files.
	PackageName string

	// StateDir holds sync state and the baseline document. Defaults to
	// syncstate.DefaultStateDir.
	StateDir string

	// Strategy for test file updates.
	Strategy update.Strategy

	// Backup originals before in-place updates.
	Backup bool

	// Preview computes diffs without writing files or mutating state.
	Preview bool
}

// Result is the outcome of one sync pass.
type Result struct {
	Report  *detect.SyncReport    `json:"report"`
	Updates []update.UpdateResult `json:"updates"`
	Updated int                   `json:"updated"`
	Failed  int                   `json:"failed"`
	Removed []string              `json:"removed,omitempty"`
	Preview bool                  `json:"preview"`
}

// Runner executes sync passes.
type Runner struct {
	config    Config
	source    extract.Source
	state     *syncstate.Manager
	detector  *detect.Detector
	generator *generate.Generator
	updater   *update.Updater
	parser    *testfile.Parser
	logger    *logging.Logger
}

// NewRunner wires a Runner from a requirement source and config. A nil
// logger falls back to the default stderr logger.
func NewRunner(source extract.Source, config Config, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	if config.StateDir == "" {
		config.StateDir = syncstate.DefaultStateDir
	}
	if config.OutputDir == "" {
		config.OutputDir = "."
	}
	generator := generate.NewGenerator(generate.GeneratorConfig{
		PackageName: config.PackageName,
		OutputDir:   config.OutputDir,
	}, logger)
	return &Runner{
		config:    config,
		source:    source,
		state:     syncstate.NewManager(config.StateDir, logger),
		detector:  detect.NewDetector(logger),
		generator: generator,
		updater: update.NewUpdater(update.Config{
			Strategy:  config.Strategy,
			Backup:    config.Backup,
			BackupDir: filepath.Join(config.StateDir, "backups"),
			Preview:   config.Preview,
		}, generator, logger),
		parser: testfile.NewParser(logger),
		logger: logger,
	}
}

// State exposes the underlying state manager for status commands.
func (r *Runner) State() *syncstate.Manager {
	return r.state
}

// Detect extracts the current requirements and classifies them against
// the baseline without touching any test file.
func (r *Runner) Detect(ctx context.Context) (*detect.SyncReport, []req.Requirement, error) {
	current, err := r.source.Extract(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("extracting requirements: %w", err)
	}
	if err := r.state.Load(); err != nil {
		return nil, nil, fmt.Errorf("loading sync state: %w", err)
	}
	baseline := r.loadBaseline()
	report := r.detector.DetectChanges(baseline, current, r.state.Fingerprints())
	return report, current, nil
}

// Run executes one full sync pass.
//
// # Description
//
// Extracts the current requirement set, detects changes against the
// baseline, then regenerates or surgically updates the test file of
// every added or modified requirement. Deleted requirements drop out of
// the state; their test files are left on disk for the author to
// retire. On success the pass is stamped into the state and the current
// set becomes the next baseline. Preview mode performs detection and
// diff computation only.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	report, current, err := r.Detect(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{Report: report, Preview: r.config.Preview}
	if !report.HasChanges() {
		r.logger.Info("requirements and tests already in sync",
			"source", r.source.Describe(),
			"requirements", report.TotalRequirements(),
		)
		return result, nil
	}

	var updates []update.Update
	for _, change := range report.Changes() {
		if change.Type == detect.ChangeDeleted {
			continue
		}
		requirement := *change.NewRequirement
		updates = append(updates, update.Update{
			Path:        r.testFileFor(requirement),
			Requirement: requirement,
			NewVersion:  r.nextVersion(requirement.Key()),
			Severity:    change.Severity,
		})
	}

	result.Updates = r.updater.UpdateMultiple(updates)
	for _, ur := range result.Updates {
		if ur.Success {
			result.Updated++
		} else {
			result.Failed++
			r.logger.Error("test file update failed",
				"path", ur.FilePath,
				"error", ur.ErrorMessage,
			)
		}
	}

	if r.config.Preview {
		return result, nil
	}

	r.recordOutcomes(updates, result.Updates)
	result.Removed = r.state.CleanupStale(keySet(current))
	r.state.MarkSynced()
	if err := r.state.Save(); err != nil {
		return result, fmt.Errorf("saving sync state: %w", err)
	}
	if err := r.saveBaseline(current); err != nil {
		return result, err
	}

	r.logger.Info("sync pass complete",
		"updated", result.Updated,
		"failed", result.Failed,
		"removed", len(result.Removed),
		"sync_count", r.state.SyncCount(),
	)
	return result, nil
}

// recordOutcomes upserts state for every successful update, reparsing
// the written file to capture the test function and custom-code flag.
func (r *Runner) recordOutcomes(updates []update.Update, results []update.UpdateResult) {
	now := time.Now().UTC()
	for i, ur := range results {
		if !ur.Success {
			continue
		}
		requirement := updates[i].Requirement
		key := requirement.Key()

		// Track the requested path, not ur.FilePath: side-by-side
		// results point at the ".new" sibling, and the original file
		// remains the one covering this requirement.
		trackedPath := updates[i].Path
		rs := syncstate.RequirementState{
			RequirementID: key,
			Fingerprint:   fingerprint.New(requirement, updates[i].NewVersion, now),
			TestFile:      trackedPath,
			Version:       updates[i].NewVersion,
			LastSynced:    now,
		}
		if parsed, err := r.parser.ParseFile(trackedPath); err == nil {
			if test, ok := parsed.TestForRequirement(key); ok {
				rs.TestFunction = test.FunctionName
				rs.HasCustomCode = parsed.HasCustomCode(test)
			}
			fileCustom := false
			for _, test := range parsed.Tests {
				if parsed.HasCustomCode(test) {
					fileCustom = true
					break
				}
			}
			prev, _ := r.state.TestFile(trackedPath)
			fs := syncstate.TestFileState{
				Path:           trackedPath,
				RequirementIDs: parsed.RequirementIDs(),
				LastUpdated:    now,
				HasCustomCode:  fileCustom,
				BackupCount:    prev.BackupCount,
			}
			if ur.BackupPath != "" {
				fs.BackupCount++
			}
			r.state.UpdateTestFile(fs)
		}
		r.state.UpdateRequirement(rs)
	}
}

// testFileFor resolves the test file covering a requirement: the
// tracked file when known, otherwise the conventional per-requirement
// file name under the output directory.
func (r *Runner) testFileFor(requirement req.Requirement) string {
	if tracked := r.state.TestFileFor(requirement.Key()); tracked != "" {
		return tracked
	}
	return filepath.Join(r.config.OutputDir, generate.FileNameFor(requirement))
}

// nextVersion is the stored version plus one; new requirements start
// at 1.
func (r *Runner) nextVersion(key string) int {
	return r.state.RequirementVersion(key) + 1
}

// =============================================================================
// Baseline Document
// =============================================================================

func (r *Runner) baselinePath() string {
	return filepath.Join(r.config.StateDir, baselineFileName)
}

// loadBaseline returns the last-synced requirement set, or nil on the
// first run or when the baseline cannot be read.
func (r *Runner) loadBaseline() []req.Requirement {
	reqs, err := req.LoadDocument(r.baselinePath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("baseline document unreadable, treating all requirements as new",
				"path", r.baselinePath(),
				"error", err,
			)
		}
		return nil
	}
	return reqs
}

func (r *Runner) saveBaseline(current []req.Requirement) error {
	if err := req.SaveDocument(r.baselinePath(), current); err != nil {
		return fmt.Errorf("saving baseline document: %w", err)
	}
	return nil
}

func keySet(reqs []req.Requirement) map[string]struct{} {
	set := make(map[string]struct{}, len(reqs))
	for _, r := range reqs {
		set[r.Key()] = struct{}{}
	}
	return set
}
