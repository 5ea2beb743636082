// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extract obtains requirement sets from their sources: a
// requirements document on disk, or a SysML v2 API server.
package extract

import (
	"context"
	"fmt"

	"github.com/redasasin4/sysml2test/internal/req"
)

// Source yields a requirement set.
type Source interface {
	// Extract returns the current requirements. The returned slice is
	// owned by the caller.
	Extract(ctx context.Context) ([]req.Requirement, error)

	// Describe names the source for logs and reports.
	Describe() string
}

// FileSource reads a requirements document from disk.
type FileSource struct {
	Path string
}

// Extract loads and schema-validates the document.
func (s *FileSource) Extract(_ context.Context) ([]req.Requirement, error) {
	reqs, err := req.LoadDocument(s.Path)
	if err != nil {
		return nil, fmt.Errorf("extracting from %s: %w", s.Path, err)
	}
	return reqs, nil
}

func (s *FileSource) Describe() string {
	return "file:" + s.Path
}
