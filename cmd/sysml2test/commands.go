// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/redasasin4/sysml2test/internal/update"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

const appVersion = "0.1.0"

// --- Global Command Variables ---
var (
	config Config
	logger *logging.Logger

	configPath   string
	requirements string
	outputDir    string
	packageName  string
	stateDir     string
	strategyName string
	noBackup     bool
	preview      bool
	outputFormat string
	outputFile   string
	verbose      bool
	apiBaseURL   string
	apiProjectID string
	apiCommitID  string
	debounceMS   int

	rootCmd = &cobra.Command{
		Use:     "sysml2test",
		Short:   "Keep generated property-based tests in sync with SysML requirements",
		Version: appVersion,
		Long: `sysml2test converts SysML v2 requirement documents into Go
property-based tests (pgregory.net/rapid) and keeps the generated files
synchronized as requirements evolve, preserving hand-written code.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			config, err = loadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			applyFlagOverrides(cmd)

			level := logging.ParseLevel(config.LogLevel)
			if verbose {
				level = logging.LevelDebug
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  config.LogDir,
				Service: "sysml2test",
			})
			return nil
		},
	}

	extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Extract requirements from a SysML v2 API server into the requirements document",
		RunE:  runExtract, // Defined in cmd_generate.go
	}

	generateCmd = &cobra.Command{
		Use:   "generate",
		Short: "Generate test files for every requirement in the document",
		RunE:  runGenerate, // Defined in cmd_generate.go
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Detect requirement changes and update the affected test files",
		RunE:  runSync, // Defined in cmd_sync.go
	}

	syncStatusCmd = &cobra.Command{
		Use:   "sync-status",
		Short: "Report pending requirement changes without touching any file",
		RunE:  runSyncStatus, // Defined in cmd_sync.go
	}

	workflowCmd = &cobra.Command{
		Use:   "workflow",
		Short: "Extract from the API (when configured) and sync in one pass",
		RunE:  runWorkflow, // Defined in cmd_sync.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the requirements document and sync on every change",
		RunE:  runWatch, // Defined in cmd_sync.go
	}

	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Show a summary of the sync state",
		RunE:  runState, // Defined in cmd_state.go
	}

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List the per-requirement sync records",
		RunE:  runHistory, // Defined in cmd_state.go
	}

	traceCmd = &cobra.Command{
		Use:   "trace",
		Short: "Build the requirement-to-test traceability matrix",
		RunE:  runTrace, // Defined in cmd_state.go
	}
)

// applyFlagOverrides lets explicitly set flags win over the config
// file.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("requirements") {
		config.Requirements = requirements
	}
	if flags.Changed("output") {
		config.OutputDir = outputDir
	}
	if flags.Changed("package") {
		config.Package = packageName
	}
	if flags.Changed("state-dir") {
		config.StateDir = stateDir
	}
	if flags.Changed("strategy") {
		config.Strategy = strategyName
	}
	if noBackup {
		backup := false
		config.Backup = &backup
	}
	if flags.Changed("api-url") {
		config.API.BaseURL = apiBaseURL
	}
	if flags.Changed("project") {
		config.API.ProjectID = apiProjectID
	}
	if flags.Changed("commit") {
		config.API.CommitID = apiCommitID
	}
}

// strategy resolves the configured update strategy.
func strategy() (update.Strategy, error) {
	return update.ParseStrategy(config.Strategy)
}

func backupEnabled() bool {
	return config.Backup == nil || *config.Backup
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "sysml2test.yaml", "config file path")
	pf.StringVarP(&requirements, "requirements", "r", "requirements.json", "requirements document path")
	pf.StringVarP(&outputDir, "output", "o", "tests/generated", "output directory for generated tests")
	pf.StringVar(&packageName, "package", "generated", "package name of generated files")
	pf.StringVar(&stateDir, "state-dir", "", "sync state directory")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	syncCmd.Flags().StringVar(&strategyName, "strategy", "hybrid", "update strategy: full_regen, surgical, side_by_side, hybrid")
	syncCmd.Flags().BoolVar(&preview, "preview", false, "show diffs without writing")
	syncCmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip backups before in-place updates")
	workflowCmd.Flags().StringVar(&strategyName, "strategy", "hybrid", "update strategy: full_regen, surgical, side_by_side, hybrid")
	workflowCmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip backups before in-place updates")

	for _, cmd := range []*cobra.Command{syncStatusCmd, stateCmd, historyCmd, traceCmd} {
		cmd.Flags().StringVar(&outputFormat, "format", "text", "output format: text, json, markdown")
		cmd.Flags().StringVar(&outputFile, "out", "", "write the report to a file instead of stdout")
	}

	extractCmd.Flags().StringVar(&apiBaseURL, "api-url", "", "SysML v2 API base URL")
	extractCmd.Flags().StringVar(&apiProjectID, "project", "", "SysML project ID")
	extractCmd.Flags().StringVar(&apiCommitID, "commit", "", "SysML commit ID (default: head)")

	watchCmd.Flags().IntVar(&debounceMS, "debounce", 500, "debounce window in milliseconds")

	rootCmd.AddCommand(
		extractCmd,
		generateCmd,
		syncCmd,
		syncStatusCmd,
		workflowCmd,
		watchCmd,
		stateCmd,
		historyCmd,
		traceCmd,
	)
}
