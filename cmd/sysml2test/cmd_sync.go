// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redasasin4/sysml2test/internal/detect"
	"github.com/redasasin4/sysml2test/internal/extract"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/syncrun"
	"github.com/redasasin4/sysml2test/internal/watch"
)

// newRunner builds a sync runner from the effective config.
func newRunner(previewMode bool) (*syncrun.Runner, error) {
	resolved, err := strategy()
	if err != nil {
		return nil, err
	}
	return syncrun.NewRunner(
		&extract.FileSource{Path: config.Requirements},
		syncrun.Config{
			OutputDir:   config.OutputDir,
			PackageName: config.Package,
			StateDir:    config.StateDir,
			Strategy:    resolved,
			Backup:      backupEnabled(),
			Preview:     previewMode,
		},
		logger,
	), nil
}

// runSync executes one sync pass.
func runSync(cmd *cobra.Command, args []string) error {
	runner, err := newRunner(preview)
	if err != nil {
		return err
	}

	result, err := runner.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Print(result.Report.RenderText())
	if preview {
		for _, ur := range result.Updates {
			if ur.Preview != "" {
				fmt.Println()
				fmt.Print(ur.Preview)
			}
		}
		return nil
	}

	if len(result.Removed) > 0 {
		fmt.Printf("\nRemoved stale state for: %v\n", result.Removed)
	}
	fmt.Printf("\nUpdated %d test file(s), %d failure(s)\n", result.Updated, result.Failed)
	if result.Failed > 0 {
		return fmt.Errorf("%d test file update(s) failed", result.Failed)
	}
	return nil
}

// runSyncStatus reports pending changes without writing anything.
func runSyncStatus(cmd *cobra.Command, args []string) error {
	runner, err := newRunner(false)
	if err != nil {
		return err
	}
	report, _, err := runner.Detect(cmd.Context())
	if err != nil {
		return err
	}
	return emitReport(report)
}

// runWorkflow extracts from the API when configured, then syncs.
func runWorkflow(cmd *cobra.Command, args []string) error {
	if config.API.BaseURL != "" {
		if err := runExtract(cmd, args); err != nil {
			return err
		}
	} else {
		// No API configured: validate the document instead.
		if _, err := req.LoadDocument(config.Requirements); err != nil {
			return err
		}
	}
	return runSync(cmd, args)
}

// runWatch keeps syncing until interrupted.
func runWatch(cmd *cobra.Command, args []string) error {
	runner, err := newRunner(false)
	if err != nil {
		return err
	}

	watcher, err := watch.New(
		config.Requirements,
		time.Duration(debounceMS)*time.Millisecond,
		func(ctx context.Context) error {
			_, err := runner.Run(ctx)
			return err
		},
		logger,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	fmt.Println("watch stopped")
	return nil
}

// emitReport renders a sync report in the requested format to stdout or
// the --out file.
func emitReport(report *detect.SyncReport) error {
	var rendered []byte
	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		rendered = data
	case "markdown":
		rendered = []byte(report.RenderMarkdown())
	case "text", "":
		rendered = []byte(report.RenderText())
	default:
		return fmt.Errorf("unknown format %q (want text, json, or markdown)", outputFormat)
	}
	return emit(rendered)
}

// emit writes rendered output to stdout or the --out file.
func emit(rendered []byte) error {
	if outputFile == "" {
		fmt.Println(string(rendered))
		return nil
	}
	if err := os.WriteFile(outputFile, append(rendered, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Println("report written to", outputFile)
	return nil
}
