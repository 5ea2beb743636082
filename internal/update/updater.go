// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package update rewrites generated test files in place as their
// requirements change, preserving hand-written code in custom regions.
package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redasasin4/sysml2test/internal/detect"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// =============================================================================
// Strategy
// =============================================================================

// Strategy selects how a stale test file is brought up to date.
type Strategy string

const (
	// StrategyFullRegen rewrites the whole file, discarding custom code.
	StrategyFullRegen Strategy = "full_regen"

	// StrategySurgical replaces only the stale block's generated lines,
	// splicing existing custom code into the new block.
	StrategySurgical Strategy = "surgical"

	// StrategySideBySide writes the regenerated file next to the
	// original with a ".new" suffix and leaves the original untouched.
	StrategySideBySide Strategy = "side_by_side"

	// StrategyHybrid picks side-by-side for major changes and surgical
	// for everything else.
	StrategyHybrid Strategy = "hybrid"
)

// ParseStrategy converts a CLI/config string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyFullRegen:
		return StrategyFullRegen, nil
	case StrategySurgical:
		return StrategySurgical, nil
	case StrategySideBySide:
		return StrategySideBySide, nil
	case StrategyHybrid, Strategy(""):
		return StrategyHybrid, nil
	default:
		return "", fmt.Errorf("unknown update strategy %q (want full_regen, surgical, side_by_side, or hybrid)", s)
	}
}

// =============================================================================
// Requests and Results
// =============================================================================

// Update is one file-update request.
type Update struct {
	// Path of the test file to bring up to date. Created if absent.
	Path string

	// Requirement in its current form.
	Requirement req.Requirement

	// NewVersion to stamp into the regenerated block.
	NewVersion int

	// Severity of the requirement change, consulted by the hybrid
	// strategy.
	Severity detect.Severity
}

// UpdateResult reports one file update. Batch operations return one
// result per request; a failed request never aborts its batch.
type UpdateResult struct {
	FilePath       string   `json:"file_path"`
	Success        bool     `json:"success"`
	StrategyUsed   Strategy `json:"strategy_used"`
	LinesPreserved int      `json:"lines_preserved"`
	LinesUpdated   int      `json:"lines_updated"`
	BackupPath     string   `json:"backup_path,omitempty"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	VersionOld     int      `json:"version_old,omitempty"`
	VersionNew     int      `json:"version_new"`
	Preview        string   `json:"preview,omitempty"`
}

// BlockGenerator renders requirement test blocks. *generate.Generator
// satisfies it.
type BlockGenerator interface {
	RenderRequirement(r req.Requirement, version int) string
	RenderFile(reqs []req.Requirement, version int) string
}

// =============================================================================
// Updater
// =============================================================================

// Config controls update behavior.
type Config struct {
	// Strategy applied to every update. Defaults to hybrid.
	Strategy Strategy

	// Backup writes a timestamped copy of the original before any
	// in-place modification.
	Backup bool

	// BackupDir receives the copies. Empty means a "backups" directory
	// next to each target file.
	BackupDir string

	// Preview computes a unified diff instead of writing anything.
	Preview bool
}

// Updater applies requirement changes to generated test files.
//
// # Thread Safety
//
// Updater holds no mutable state; concurrent updates to DIFFERENT
// files are safe. Concurrent updates to the same file are not.
type Updater struct {
	config    Config
	generator BlockGenerator
	parser    *testfile.Parser
	logger    *logging.Logger
}

// NewUpdater creates an Updater. A nil logger falls back to the default
// stderr logger.
func NewUpdater(config Config, generator BlockGenerator, logger *logging.Logger) *Updater {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Strategy == "" {
		config.Strategy = StrategyHybrid
	}
	return &Updater{
		config:    config,
		generator: generator,
		parser:    testfile.NewParser(logger),
		logger:    logger,
	}
}

// UpdateFile brings one test file up to date for one requirement.
//
// # Description
//
// Resolves the effective strategy (hybrid dispatches on severity),
// backs up the original when configured, and applies the update. A
// missing file is generated fresh regardless of strategy. In preview
// mode nothing is written; the result carries a unified diff instead.
func (u *Updater) UpdateFile(update Update) UpdateResult {
	result := UpdateResult{
		FilePath:   update.Path,
		VersionNew: update.NewVersion,
	}

	strategy := u.resolveStrategy(update.Severity)
	result.StrategyUsed = strategy

	original, err := os.ReadFile(update.Path)
	if os.IsNotExist(err) {
		return u.createFresh(update, result)
	}
	if err != nil {
		return fail(result, fmt.Errorf("reading test file: %w", err))
	}

	var updated string
	switch strategy {
	case StrategyFullRegen:
		updated = u.fullRegen(string(original), update)
	case StrategySurgical:
		updated, err = u.surgicalMerge(string(original), update, &result)
		if err != nil {
			return fail(result, err)
		}
	case StrategySideBySide:
		updated = u.generator.RenderFile([]req.Requirement{update.Requirement}, update.NewVersion)
		result.FilePath = update.Path + ".new"
	default:
		return fail(result, fmt.Errorf("unresolved strategy %q", strategy))
	}
	result.LinesUpdated = countLines(updated)
	result.VersionOld = u.blockVersion(string(original), update.Requirement.Key())

	if u.config.Preview {
		preview, err := renderPreview(update.Path, string(original), updated)
		if err != nil {
			return fail(result, err)
		}
		result.Preview = preview
		result.Success = true
		return result
	}

	// Side-by-side never touches the original, so it needs no backup. A
	// failed backup is a warning, not a reason to leave the file stale.
	if u.config.Backup && strategy != StrategySideBySide {
		backupPath, err := u.writeBackup(update.Path, original)
		if err != nil {
			u.logger.Warn("backup failed, updating anyway",
				"path", update.Path,
				"error", err,
			)
		} else {
			result.BackupPath = backupPath
		}
	}

	if err := os.WriteFile(result.FilePath, []byte(updated), 0o644); err != nil {
		return fail(result, fmt.Errorf("writing updated file: %w", err))
	}

	u.logger.Info("updated test file",
		"path", result.FilePath,
		"strategy", string(strategy),
		"lines_preserved", result.LinesPreserved,
		"version", update.NewVersion,
	)
	result.Success = true
	return result
}

// UpdateMultiple applies a batch of updates, isolating failures per
// file.
func (u *Updater) UpdateMultiple(updates []Update) []UpdateResult {
	results := make([]UpdateResult, 0, len(updates))
	for _, update := range updates {
		results = append(results, u.UpdateFile(update))
	}
	return results
}

// resolveStrategy maps the configured strategy plus change severity to
// the concrete strategy to run.
func (u *Updater) resolveStrategy(severity detect.Severity) Strategy {
	if u.config.Strategy != StrategyHybrid {
		return u.config.Strategy
	}
	if severity == detect.SeverityMajor {
		return StrategySideBySide
	}
	return StrategySurgical
}

// createFresh generates a brand-new file for a requirement with no
// existing test file.
func (u *Updater) createFresh(update Update, result UpdateResult) UpdateResult {
	content := u.generator.RenderFile([]req.Requirement{update.Requirement}, update.NewVersion)
	result.StrategyUsed = StrategyFullRegen
	result.LinesUpdated = countLines(content)

	if u.config.Preview {
		preview, err := renderPreview(update.Path, "", content)
		if err != nil {
			return fail(result, err)
		}
		result.Preview = preview
		result.Success = true
		return result
	}
	if err := os.MkdirAll(filepath.Dir(update.Path), 0o755); err != nil {
		return fail(result, fmt.Errorf("creating output directory: %w", err))
	}
	if err := os.WriteFile(update.Path, []byte(content), 0o644); err != nil {
		return fail(result, fmt.Errorf("writing new test file: %w", err))
	}
	result.Success = true
	return result
}

// fullRegen replaces the requirement's block with a freshly rendered
// one, discarding its custom code. Other blocks in the file are left
// alone; a file with no parseable blocks is rewritten whole.
func (u *Updater) fullRegen(original string, update Update) string {
	parsed := u.parser.Parse(original)
	rendered := u.generator.RenderRequirement(update.Requirement, update.NewVersion)

	oldTest, found := parsed.TestForRequirement(update.Requirement.Key())
	if !found {
		if len(parsed.Tests) == 0 {
			return u.generator.RenderFile([]req.Requirement{update.Requirement}, update.NewVersion)
		}
		return appendBlock(original, rendered)
	}
	return spliceBlock(parsed, oldTest, rendered)
}

// =============================================================================
// Surgical Merge
// =============================================================================

// surgicalMerge replaces the requirement's block with a freshly
// rendered one, splicing the old block's first custom region into the
// new block so hand-written code survives.
//
// Only the first custom region carries over; generated blocks always
// contain exactly one, and extra hand-added regions are out of
// contract.
func (u *Updater) surgicalMerge(original string, update Update, result *UpdateResult) (string, error) {
	parsed := u.parser.Parse(original)
	key := update.Requirement.Key()

	oldTest, found := parsed.TestForRequirement(key)
	rendered := u.generator.RenderRequirement(update.Requirement, update.NewVersion)

	if !found {
		// No block for this requirement yet: append one.
		u.logger.Info("no existing block for requirement, appending",
			"path", update.Path,
			"requirement_id", key,
		)
		return appendBlock(original, rendered), nil
	}

	if len(oldTest.CustomRegions) > 0 && parsed.HasCustomCode(oldTest) {
		customText := parsed.RegionText(oldTest.CustomRegions[0])
		newLines, err := spliceCustom(
			strings.Split(strings.TrimRight(rendered, "\n"), "\n"), customText)
		if err != nil {
			return "", fmt.Errorf("merging custom code for %s: %w", key, err)
		}
		result.LinesPreserved = countLines(customText)
		rendered = strings.Join(newLines, "\n") + "\n"
	}
	return spliceBlock(parsed, oldTest, rendered), nil
}

// spliceBlock replaces oldTest's line range with the rendered block.
func spliceBlock(parsed *testfile.ParsedFile, oldTest testfile.ParsedTest, rendered string) string {
	newLines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	merged := make([]string, 0, len(parsed.Lines)+len(newLines))
	merged = append(merged, parsed.Lines[:oldTest.StartLine]...)
	merged = append(merged, newLines...)
	merged = append(merged, parsed.Lines[oldTest.EndLine+1:]...)
	return strings.Join(merged, "\n")
}

// appendBlock adds a rendered block to the end of the file.
func appendBlock(original, rendered string) string {
	return strings.TrimRight(original, "\n") + "\n\n" + rendered
}

// spliceCustom replaces the custom-region span of a freshly rendered
// block with preserved custom text.
func spliceCustom(blockLines []string, customText string) ([]string, error) {
	start, end := -1, -1
	for i, line := range blockLines {
		trimmed := strings.TrimSpace(line)
		if trimmed == strings.TrimSpace(testfile.CustomStart) {
			start = i
		} else if trimmed == strings.TrimSpace(testfile.CustomEnd) {
			end = i
			break
		}
	}
	if start < 0 || end < 0 || end <= start {
		return nil, fmt.Errorf("rendered block has no custom region")
	}

	customLines := strings.Split(customText, "\n")
	out := make([]string, 0, len(blockLines)+len(customLines))
	out = append(out, blockLines[:start+1]...)
	out = append(out, customLines...)
	out = append(out, blockLines[end:]...)
	return out, nil
}

// blockVersion reads the version recorded in the file's block for the
// requirement, or 0 when absent.
func (u *Updater) blockVersion(original, key string) int {
	parsed := u.parser.Parse(original)
	test, ok := parsed.TestForRequirement(key)
	if !ok {
		return 0
	}
	v, err := strconv.Atoi(test.Metadata[testfile.KeyVersion])
	if err != nil {
		return 0
	}
	return v
}

// =============================================================================
// Backups
// =============================================================================

// writeBackup copies the original file into the backup directory before
// modification. The name carries a sortable timestamp plus a short
// random suffix so rapid repeated syncs never collide.
func (u *Updater) writeBackup(path string, content []byte) (string, error) {
	dir := u.config.BackupDir
	if dir == "" {
		dir = filepath.Join(filepath.Dir(path), "backups")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	suffix := uuid.NewString()[:8]
	name := fmt.Sprintf("%s.backup.%s.%s", filepath.Base(path), stamp, suffix)
	backupPath := filepath.Join(dir, name)
	if err := os.WriteFile(backupPath, content, 0o644); err != nil {
		return "", fmt.Errorf("writing backup: %w", err)
	}
	return backupPath, nil
}

func fail(result UpdateResult, err error) UpdateResult {
	result.Success = false
	result.ErrorMessage = err.Error()
	return result
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(strings.TrimRight(s, "\n"), "\n"))
}
