// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/redasasin4/sysml2test/internal/syncstate"
)

// Config is the optional sysml2test.yaml file. Flags override it.
type Config struct {
	// Requirements document path.
	Requirements string `yaml:"requirements"`

	// OutputDir for generated test files.
	OutputDir string `yaml:"output_dir"`

	// Package name of generated files.
	Package string `yaml:"package"`

	// StateDir for sync state.
	StateDir string `yaml:"state_dir"`

	// Strategy: full_regen, surgical, side_by_side, or hybrid.
	Strategy string `yaml:"strategy"`

	// Backup originals before in-place updates.
	Backup *bool `yaml:"backup"`

	// LogLevel: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// API configures extraction from a SysML v2 server.
	API struct {
		BaseURL   string `yaml:"base_url"`
		ProjectID string `yaml:"project_id"`
		CommitID  string `yaml:"commit_id"`
	} `yaml:"api"`
}

func defaultConfig() Config {
	backup := true
	return Config{
		Requirements: "requirements.json",
		OutputDir:    "tests/generated",
		Package:      "generated",
		StateDir:     syncstate.DefaultStateDir,
		Strategy:     "hybrid",
		Backup:       &backup,
		LogLevel:     "info",
	}
}

// loadConfig reads the config file when present and overlays it on the
// defaults. A missing file is fine unless the user named one
// explicitly.
func loadConfig(path string, explicit bool) (Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if explicit {
			return config, fmt.Errorf("config file %s not found", path)
		}
		return config, nil
	}
	if err != nil {
		return config, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return config, nil
}
