// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redasasin4/sysml2test/internal/extract"
	"github.com/redasasin4/sysml2test/internal/generate"
	"github.com/redasasin4/sysml2test/internal/req"
)

// runExtract pulls requirements from the configured SysML v2 API server
// and writes them to the requirements document.
func runExtract(cmd *cobra.Command, args []string) error {
	client, err := extract.NewAPIClient(extract.APIConfig{
		BaseURL:   config.API.BaseURL,
		ProjectID: config.API.ProjectID,
		CommitID:  config.API.CommitID,
	}, logger)
	if err != nil {
		return err
	}

	reqs, err := client.Extract(cmd.Context())
	if err != nil {
		return err
	}
	if err := req.SaveDocument(config.Requirements, reqs); err != nil {
		return err
	}
	fmt.Printf("Extracted %d requirements from %s to %s\n",
		len(reqs), client.Describe(), config.Requirements)
	return nil
}

// runGenerate renders one test file per requirement, without consulting
// sync state. Use sync for incremental updates.
func runGenerate(cmd *cobra.Command, args []string) error {
	reqs, err := req.LoadDocument(config.Requirements)
	if err != nil {
		return err
	}
	if len(reqs) == 0 {
		return fmt.Errorf("document %s holds no requirements", config.Requirements)
	}

	generator := generate.NewGenerator(generate.GeneratorConfig{
		PackageName: config.Package,
		OutputDir:   config.OutputDir,
	}, logger)

	paths, err := generator.GeneratePerRequirement(reqs, 1)
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Println("generated", path)
	}
	fmt.Printf("Generated %d test files in %s\n", len(paths), config.OutputDir)
	return nil
}
