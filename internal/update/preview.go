// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package update

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"
)

// renderPreview produces a unified diff of the pending change, headed
// by a one-line change stat. An empty string means no change.
func renderPreview(path, before, after string) (string, error) {
	diffText, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	})
	if err != nil {
		return "", fmt.Errorf("computing diff: %w", err)
	}
	if diffText == "" {
		return "", nil
	}

	// Round-trip through the diff parser so a malformed preview fails
	// here rather than in whatever consumes it.
	fileDiff, err := diff.ParseFileDiff([]byte(diffText))
	if err != nil {
		return "", fmt.Errorf("validating diff: %w", err)
	}
	stat := fileDiff.Stat()
	header := fmt.Sprintf("%s: +%d -%d ~%d lines\n",
		path, stat.Added, stat.Deleted, stat.Changed)
	return header + diffText, nil
}
