// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package trace builds the requirement-to-test traceability matrix:
// which test covers which requirement, and what the last known verdict
// was.
package trace

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// Verdict is a recorded test outcome.
type Verdict string

const (
	VerdictPassed  Verdict = "passed"
	VerdictFailed  Verdict = "failed"
	VerdictSkipped Verdict = "skipped"
	// VerdictUnknown marks requirements with a registered test but no
	// recorded run.
	VerdictUnknown Verdict = "unknown"
)

// Entry is one row of the traceability matrix.
type Entry struct {
	RequirementID   string    `json:"requirement_id"`
	RequirementName string    `json:"requirement_name,omitempty"`
	TestFunction    string    `json:"test_function,omitempty"`
	TestFile        string    `json:"test_file,omitempty"`
	Verdict         Verdict   `json:"verdict"`
	RecordedAt      time.Time `json:"recorded_at,omitempty"`
}

// Collector accumulates traceability entries across a run.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	entries  map[string]*Entry
	unlinked []string
	parser   *testfile.Parser
	logger   *logging.Logger
}

// NewCollector creates a Collector with a fresh run ID.
func NewCollector(logger *logging.Logger) *Collector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Collector{
		runID:   uuid.NewString(),
		started: time.Now().UTC(),
		entries: make(map[string]*Entry),
		parser:  testfile.NewParser(logger),
		logger:  logger,
	}
}

// RunID identifies this collection run.
func (c *Collector) RunID() string {
	return c.runID
}

// RegisterRequirement adds a requirement with no known test yet.
// Registering again never downgrades an entry that already has a test.
func (c *Collector) RegisterRequirement(r req.Requirement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := r.Key()
	if existing, ok := c.entries[key]; ok {
		if existing.RequirementName == "" {
			existing.RequirementName = r.Metadata.Name
		}
		return
	}
	c.entries[key] = &Entry{
		RequirementID:   key,
		RequirementName: r.Metadata.Name,
		Verdict:         VerdictUnknown,
	}
}

// RegisterFromTestFiles parses generated test files and links each
// block's requirement to its test function. Unparseable files are
// skipped with a warning.
func (c *Collector) RegisterFromTestFiles(paths []string) {
	for _, path := range paths {
		parsed, err := c.parser.ParseFile(path)
		if err != nil {
			c.logger.Warn("skipping unreadable test file", "path", path, "error", err)
			continue
		}
		c.mu.Lock()
		c.unlinked = append(c.unlinked, parsed.Orphans...)
		for _, test := range parsed.Tests {
			key := test.RequirementID()
			entry, ok := c.entries[key]
			if !ok {
				entry = &Entry{RequirementID: key, Verdict: VerdictUnknown}
				c.entries[key] = entry
			}
			entry.TestFunction = test.FunctionName
			entry.TestFile = path
			if name := test.Metadata[testfile.KeyRequirementName]; name != "" {
				entry.RequirementName = name
			}
		}
		c.mu.Unlock()
	}
}

// RecordResult records a test verdict for a requirement. Unregistered
// requirements are added on the fly.
func (c *Collector) RecordResult(requirementID string, verdict Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[requirementID]
	if !ok {
		entry = &Entry{RequirementID: requirementID}
		c.entries[requirementID] = entry
	}
	entry.Verdict = verdict
	entry.RecordedAt = time.Now().UTC()
}

// =============================================================================
// Reporting
// =============================================================================

// Report is the rendered traceability matrix.
type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Entries   []Entry   `json:"entries"`
	Covered   int       `json:"covered"`
	Uncovered int       `json:"uncovered"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`

	// UnlinkedTests are generated test functions whose metadata carries
	// no requirement ID.
	UnlinkedTests []string `json:"unlinked_tests,omitempty"`
}

// Snapshot builds the current matrix, entries sorted by requirement ID.
// A requirement counts as covered when a test function is linked.
func (c *Collector) Snapshot() Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := Report{
		RunID:     c.runID,
		StartedAt: c.started,
		Entries:   make([]Entry, 0, len(c.entries)),
	}
	for _, entry := range c.entries {
		report.Entries = append(report.Entries, *entry)
		if entry.TestFunction != "" {
			report.Covered++
		} else {
			report.Uncovered++
		}
		switch entry.Verdict {
		case VerdictPassed:
			report.Passed++
		case VerdictFailed:
			report.Failed++
		case VerdictSkipped:
			report.Skipped++
		}
	}
	sort.Slice(report.Entries, func(i, j int) bool {
		return report.Entries[i].RequirementID < report.Entries[j].RequirementID
	})
	if len(c.unlinked) > 0 {
		report.UnlinkedTests = append([]string(nil), c.unlinked...)
		sort.Strings(report.UnlinkedTests)
	}
	return report
}

// JSON renders the matrix as indented JSON.
func (r Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the matrix as a Markdown table.
func (r Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# Traceability Matrix\n\n")
	fmt.Fprintf(&b, "Run %s, started %s. Covered: %d, uncovered: %d.\n",
		r.RunID, r.StartedAt.Format(time.RFC3339), r.Covered, r.Uncovered)
	fmt.Fprintf(&b, "Verdicts: %d passed, %d failed, %d skipped.\n\n",
		r.Passed, r.Failed, r.Skipped)
	b.WriteString("| Requirement | Name | Test | Verdict |\n")
	b.WriteString("|-------------|------|------|--------|\n")
	for _, entry := range r.Entries {
		test := entry.TestFunction
		if test == "" {
			test = "(none)"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			entry.RequirementID, entry.RequirementName, test, entry.Verdict)
	}
	if len(r.UnlinkedTests) > 0 {
		b.WriteString("\nTests with no requirement link: " +
			strings.Join(r.UnlinkedTests, ", ") + "\n")
	}
	return b.String()
}
