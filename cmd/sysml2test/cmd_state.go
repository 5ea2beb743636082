// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/syncstate"
	"github.com/redasasin4/sysml2test/internal/trace"
)

func loadStateManager() (*syncstate.Manager, error) {
	manager := syncstate.NewManager(config.StateDir, logger)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	return manager, nil
}

// runState prints the sync state summary.
func runState(cmd *cobra.Command, args []string) error {
	manager, err := loadStateManager()
	if err != nil {
		return err
	}
	summary := manager.Summarize()

	if outputFormat == "json" {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		return emit(data)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "State file: %s\n", summary.StatePath)
	fmt.Fprintf(&b, "Sync passes: %d", summary.SyncCount)
	if !summary.LastSync.IsZero() {
		fmt.Fprintf(&b, " (last %s)", summary.LastSync.Format(time.RFC3339))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Tracked requirements: %d (%d with custom code)\n",
		summary.TrackedReqs, summary.ReqsWithCustom)
	fmt.Fprintf(&b, "Tracked test files: %d\n", summary.TrackedTestFiles)
	if summary.OldestRequirement != "" {
		fmt.Fprintf(&b, "Least recently synced: %s\n", summary.OldestRequirement)
	}
	return emit([]byte(strings.TrimRight(b.String(), "\n")))
}

// runHistory lists the per-requirement sync records.
func runHistory(cmd *cobra.Command, args []string) error {
	manager, err := loadStateManager()
	if err != nil {
		return err
	}
	records := manager.Requirements()

	if outputFormat == "json" {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return err
		}
		return emit(data)
	}

	if len(records) == 0 {
		return emit([]byte("no requirements tracked yet; run sync first"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-8s %-20s %-6s %s\n",
		"REQUIREMENT", "VERSION", "LAST SYNCED", "CUSTOM", "TEST FILE")
	for _, rs := range records {
		custom := "no"
		if rs.HasCustomCode {
			custom = "yes"
		}
		fmt.Fprintf(&b, "%-20s %-8d %-20s %-6s %s\n",
			rs.RequirementID, rs.Version,
			rs.LastSynced.Format("2006-01-02 15:04:05"),
			custom, rs.TestFile)
	}
	return emit([]byte(strings.TrimRight(b.String(), "\n")))
}

// runTrace builds the traceability matrix from the requirements
// document and the generated test files on disk.
func runTrace(cmd *cobra.Command, args []string) error {
	reqs, err := req.LoadDocument(config.Requirements)
	if err != nil {
		return err
	}

	paths, err := filepath.Glob(filepath.Join(config.OutputDir, "*_test.go"))
	if err != nil {
		return fmt.Errorf("listing test files: %w", err)
	}

	collector := trace.NewCollector(logger)
	for _, r := range reqs {
		collector.RegisterRequirement(r)
	}
	collector.RegisterFromTestFiles(paths)

	report := collector.Snapshot()
	switch outputFormat {
	case "json":
		data, err := report.JSON()
		if err != nil {
			return err
		}
		return emit(data)
	case "markdown", "text", "":
		return emit([]byte(report.Markdown()))
	default:
		return fmt.Errorf("unknown format %q (want text, json, or markdown)", outputFormat)
	}
}
