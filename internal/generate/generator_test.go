// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
}

func newTestGenerator(outputDir string) *Generator {
	return NewGenerator(GeneratorConfig{
		PackageName: "generated",
		OutputDir:   outputDir,
		Now:         fixedClock,
	}, logging.Discard())
}

func heightRequirement() req.Requirement {
	return req.Requirement{
		Metadata: req.Metadata{
			ID:            "REQ-001",
			Name:          "VehicleHeight",
			Documentation: "Vehicle height shall stay within limits",
		},
		Attributes: []req.Attribute{
			{Name: "height", Type: req.AttributeReal, MinValue: req.Float(150), MaxValue: req.Float(200)},
		},
		Constraints: []req.Constraint{
			{Kind: req.ConstraintAssume, Expression: "height > 0"},
			{Kind: req.ConstraintRequire, Expression: "height >= 150 and height <= 200"},
		},
	}
}

func TestRenderRequirement(t *testing.T) {
	block := newTestGenerator("").RenderRequirement(heightRequirement(), 2)

	assert.Contains(t, block, testfile.MetadataStart)
	assert.Contains(t, block, "// requirement_id: REQ-001")
	assert.Contains(t, block, "// version: 2")
	assert.Contains(t, block, "// generated_at: 2026-08-27T12:00:00Z")
	assert.Contains(t, block, "// generator_version: "+GeneratorVersion)
	assert.Contains(t, block, "func TestVehicleHeight(t *testing.T) {")
	assert.Contains(t, block, `height := rapid.Float64Range(150, 200).Draw(rt, "height")`)
	assert.Contains(t, block, "if !(height > 0) {")
	assert.Contains(t, block, `rt.Skip("assumption not satisfied")`)
	assert.Contains(t, block, "if !(height >= 150 && height <= 200) {")
	assert.Contains(t, block, "rt.Errorf")

	expectedHash := fingerprint.ContentHash(heightRequirement())
	assert.Contains(t, block, "// content_hash: "+expectedHash)
}

func TestRenderRequirement_ParsesBack(t *testing.T) {
	content := newTestGenerator("").RenderFile([]req.Requirement{heightRequirement()}, 3)

	parsed := testfile.NewParser(logging.Discard()).Parse(content)
	require.Len(t, parsed.Tests, 1)

	test := parsed.Tests[0]
	assert.Equal(t, "TestVehicleHeight", test.FunctionName)
	assert.Equal(t, "REQ-001", test.RequirementID())
	assert.Equal(t, "3", test.Metadata[testfile.KeyVersion])
	assert.Equal(t, fingerprint.ContentHash(heightRequirement()), test.ContentHash())
	require.Len(t, test.GeneratedRegions, 1)
	require.Len(t, test.CustomRegions, 1)
	assert.False(t, parsed.HasCustomCode(test))
}

func TestRenderRequirement_UnsupportedAttribute(t *testing.T) {
	r := req.Requirement{
		Metadata: req.Metadata{ID: "REQ-005", Name: "Odd"},
		Attributes: []req.Attribute{
			{Name: "blob", Type: req.AttributeUnknown},
			{Name: "count", Type: req.AttributeInteger},
		},
	}
	block := newTestGenerator("").RenderRequirement(r, 1)

	assert.Contains(t, block, `"blob" has unsupported type`)
	assert.Contains(t, block, `count := rapid.Int().Draw(rt, "count")`)
}

func TestRenderRequirement_UnreferencedAttribute(t *testing.T) {
	r := req.Requirement{
		Metadata: req.Metadata{ID: "REQ-006", Name: "Spare"},
		Attributes: []req.Attribute{
			{Name: "payload", Type: req.AttributeInteger},
			{Name: "height", Type: req.AttributeReal},
		},
		Constraints: []req.Constraint{
			{Kind: req.ConstraintRequire, Expression: "height > 0"},
		},
	}
	block := newTestGenerator("").RenderRequirement(r, 1)

	// payload is drawn but no constraint mentions it; the generated code
	// must still compile.
	assert.Contains(t, block, "\t\t_ = payload\n")
	assert.NotContains(t, block, "_ = height")
}

func TestRenderFile_Header(t *testing.T) {
	content := newTestGenerator("").RenderFile([]req.Requirement{heightRequirement()}, 1)

	assert.Contains(t, content, "// Code generated by sysml2test")
	assert.Contains(t, content, "package generated")
	assert.Contains(t, content, `"pgregory.net/rapid"`)
	assert.Contains(t, content, `"testing"`)
}

func TestGenerateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "req_001_test.go")
	err := newTestGenerator("").GenerateFile(path, []req.Requirement{heightRequirement()}, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func TestVehicleHeight")
}

func TestGeneratePerRequirement(t *testing.T) {
	dir := t.TempDir()
	reqs := []req.Requirement{
		heightRequirement(),
		{Metadata: req.Metadata{ID: "REQ-002", Name: "BatteryLevel"}},
	}

	paths, err := newTestGenerator(dir).GeneratePerRequirement(reqs, 1)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "req_001_test.go"), paths[0])
	assert.Equal(t, filepath.Join(dir, "req_002_test.go"), paths[1])

	for _, p := range paths {
		_, err := os.Stat(p)
		assert.NoError(t, err)
	}
}

func TestTestName(t *testing.T) {
	cases := []struct {
		name string
		r    req.Requirement
		want string
	}{
		{"camel name", req.Requirement{Metadata: req.Metadata{Name: "VehicleHeight"}}, "TestVehicleHeight"},
		{"spaced name", req.Requirement{Metadata: req.Metadata{Name: "vehicle max height"}}, "TestVehicleMaxHeight"},
		{"id fallback", req.Requirement{Metadata: req.Metadata{ID: "REQ-001"}}, "TestREQ001"},
		{"empty", req.Requirement{}, "TestRequirement"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TestName(tc.r))
		})
	}
}

func TestFileNameFor(t *testing.T) {
	assert.Equal(t, "req_001_test.go",
		FileNameFor(req.Requirement{Metadata: req.Metadata{ID: "REQ-001"}}))
	assert.Equal(t, "vehicleheight_test.go",
		FileNameFor(req.Requirement{Metadata: req.Metadata{Name: "VehicleHeight"}}))
	assert.Equal(t, "requirement_test.go", FileNameFor(req.Requirement{}))
}
