// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package testfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redasasin4/sysml2test/pkg/logging"
)

const sampleFile = `package generated

import (
	"testing"

	"pgregory.net/rapid"
)

// SYSML2TEST-METADATA-START
// requirement_id: REQ-001
// requirement_name: VehicleHeight
// content_hash: abc123
// version: 2
// generated_at: 2026-08-27T12:00:00Z
// generator_version: 0.1.0
// SYSML2TEST-METADATA-END
func TestVehicleHeight(t *testing.T) {
	// SYSML2TEST-GENERATED-START
	rapid.Check(t, func(rt *rapid.T) {
		height := rapid.Float64Range(150, 200).Draw(rt, "height")
		_ = height
	})
	// SYSML2TEST-GENERATED-END
	// SYSML2TEST-CUSTOM-START
	// Add custom checks below.
	// SYSML2TEST-CUSTOM-END
}

// SYSML2TEST-METADATA-START
// requirement_id: REQ-002
// requirement_name: BatteryLevel
// content_hash: def456
// version: 1
// SYSML2TEST-METADATA-END
func TestBatteryLevel(t *testing.T) {
	// SYSML2TEST-GENERATED-START
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.IntRange(0, 100).Draw(rt, "level")
		_ = level
	})
	// SYSML2TEST-GENERATED-END
	// SYSML2TEST-CUSTOM-START
	if testing.Short() {
		t.Skip("custom skip")
	}
	// SYSML2TEST-CUSTOM-END
}
`

func newTestParser() *Parser {
	return NewParser(logging.Discard())
}

func TestParse_TwoBlocks(t *testing.T) {
	file := newTestParser().Parse(sampleFile)
	require.Len(t, file.Tests, 2)

	first := file.Tests[0]
	assert.Equal(t, "TestVehicleHeight", first.FunctionName)
	assert.Equal(t, "REQ-001", first.RequirementID())
	assert.Equal(t, "abc123", first.ContentHash())
	assert.Equal(t, "2", first.Metadata[KeyVersion])
	assert.Equal(t, "2026-08-27T12:00:00Z", first.Metadata[KeyGeneratedAt])
	require.Len(t, first.GeneratedRegions, 1)
	require.Len(t, first.CustomRegions, 1)

	second := file.Tests[1]
	assert.Equal(t, "TestBatteryLevel", second.FunctionName)
	assert.Equal(t, "REQ-002", second.RequirementID())

	assert.Equal(t, []string{"REQ-001", "REQ-002"}, file.RequirementIDs())
}

func TestParse_BlockBounds(t *testing.T) {
	file := newTestParser().Parse(sampleFile)
	require.Len(t, file.Tests, 2)

	first := file.Tests[0]
	assert.Equal(t, MetadataStart, strings.TrimSpace(file.Lines[first.StartLine]))
	// First block ends before the second block's metadata marker.
	assert.Less(t, first.EndLine, file.Tests[1].StartLine)
	assert.Equal(t, "}", strings.TrimSpace(file.Lines[first.EndLine]))
}

func TestParse_CustomCodeDetection(t *testing.T) {
	file := newTestParser().Parse(sampleFile)
	require.Len(t, file.Tests, 2)

	// Placeholder comment only.
	assert.False(t, file.HasCustomCode(file.Tests[0]))
	// Real statements.
	assert.True(t, file.HasCustomCode(file.Tests[1]))
}

func TestParse_RegionText(t *testing.T) {
	file := newTestParser().Parse(sampleFile)
	custom := file.Tests[1].CustomRegions[0]

	text := file.RegionText(custom)
	assert.Contains(t, text, `t.Skip("custom skip")`)
	assert.NotContains(t, text, "SYSML2TEST")
}

func TestParse_MissingEndMarker(t *testing.T) {
	truncated := `package generated

// SYSML2TEST-METADATA-START
// requirement_id: REQ-009
func TestTruncated(t *testing.T) {
	// SYSML2TEST-GENERATED-START
	x := 1
	_ = x
}
`
	file := newTestParser().Parse(truncated)
	require.Len(t, file.Tests, 1)

	test := file.Tests[0]
	// Metadata closes at EOF; the func line is not "// key: value" so it
	// is skipped, and the declaration is still found.
	assert.Equal(t, "REQ-009", test.RequirementID())
	assert.Equal(t, "TestTruncated", test.FunctionName)
	// Generated region with no END closes at the block end.
	require.Len(t, test.GeneratedRegions, 1)
	assert.Equal(t, test.EndLine, test.GeneratedRegions[0].EndLine)
}

func TestParse_MalformedMetadataSkipped(t *testing.T) {
	content := `// SYSML2TEST-METADATA-START
// requirement_id: REQ-003
// this line has no separator
not even a comment
// version: 1
// SYSML2TEST-METADATA-END
func TestPartial(t *testing.T) {
}
`
	file := newTestParser().Parse(content)
	require.Len(t, file.Tests, 1)

	test := file.Tests[0]
	assert.Equal(t, "REQ-003", test.RequirementID())
	assert.Equal(t, "1", test.Metadata[KeyVersion])
	assert.Len(t, test.Metadata, 2)
}

func TestParse_NoFunctionWithinLookahead(t *testing.T) {
	var b strings.Builder
	b.WriteString(MetadataStart + "\n")
	b.WriteString("// requirement_id: REQ-004\n")
	b.WriteString(MetadataEnd + "\n")
	for i := 0; i < funcLookahead+5; i++ {
		b.WriteString("// filler\n")
	}
	b.WriteString("func TestTooFar(t *testing.T) {}\n")

	// The declaration sits past the lookahead window, so the block is
	// discarded.
	file := newTestParser().Parse(b.String())
	assert.Empty(t, file.Tests)
}

func TestParse_MissingRequirementIDDiscarded(t *testing.T) {
	content := `// SYSML2TEST-METADATA-START
// requirement_name: Orphan
// SYSML2TEST-METADATA-END
func TestOrphan(t *testing.T) {
}

// SYSML2TEST-METADATA-START
// requirement_id: REQ-007
// SYSML2TEST-METADATA-END
func TestKept(t *testing.T) {
}
`
	file := newTestParser().Parse(content)
	require.Len(t, file.Tests, 1)
	assert.Equal(t, "REQ-007", file.Tests[0].RequirementID())
	assert.Equal(t, []string{"TestOrphan"}, file.Orphans)
}

func TestParse_NoMarkers(t *testing.T) {
	file := newTestParser().Parse("package generated\n\nfunc TestPlain(t *testing.T) {}\n")
	assert.Empty(t, file.Tests)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req_001_test.go")
	require.NoError(t, os.WriteFile(path, []byte(sampleFile), 0644))

	file, err := newTestParser().ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	assert.Len(t, file.Tests, 2)

	_, err = newTestParser().ParseFile(filepath.Join(t.TempDir(), "missing_test.go"))
	assert.Error(t, err)
}

func TestTestForRequirement(t *testing.T) {
	file := newTestParser().Parse(sampleFile)

	test, ok := file.TestForRequirement("REQ-002")
	require.True(t, ok)
	assert.Equal(t, "TestBatteryLevel", test.FunctionName)

	_, ok = file.TestForRequirement("REQ-404")
	assert.False(t, ok)
}
