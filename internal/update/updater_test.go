// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package update

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redasasin4/sysml2test/internal/detect"
	"github.com/redasasin4/sysml2test/internal/generate"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

const customSnippet = `	if testing.Short() {
		t.Skip("custom short-mode skip")
	}`

func testGenerator() *generate.Generator {
	return generate.NewGenerator(generate.GeneratorConfig{
		PackageName: "generated",
		Now:         func() time.Time { return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC) },
	}, logging.Discard())
}

func newTestUpdater(config Config) *Updater {
	return NewUpdater(config, testGenerator(), logging.Discard())
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
			{Kind: req.ConstraintRequire, Expression: "height >= 150 and height <= 200"},
		},
	}
}

// writeTestFile generates a v1 test file, optionally injecting custom
// code into the custom region.
func writeTestFile(t *testing.T, dir string, withCustom bool) string {
	t.Helper()
	path := filepath.Join(dir, "req_001_test.go")
	content := testGenerator().RenderFile([]req.Requirement{heightRequirement()}, 1)
	if withCustom {
		content = strings.Replace(content, "\t// Add custom checks below.", customSnippet, 1)
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseStrategy(t *testing.T) {
	for _, valid := range []string{"full_regen", "surgical", "side_by_side", "hybrid", ""} {
		_, err := ParseStrategy(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseStrategy("clever")
	assert.Error(t, err)

	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, s)
}

func TestUpdateFile_SurgicalPreservesCustomCode(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), true)

	changed := heightRequirement()
	changed.Attributes[0].MaxValue = req.Float(210)
	changed.Constraints[0].Expression = "height >= 150 and height <= 210"

	result := newTestUpdater(Config{Strategy: StrategySurgical}).UpdateFile(Update{
		Path:        path,
		Requirement: changed,
		NewVersion:  2,
		Severity:    detect.SeverityModerate,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, StrategySurgical, result.StrategyUsed)
	assert.Equal(t, 1, result.VersionOld)
	assert.Equal(t, 2, result.VersionNew)
	assert.Equal(t, 3, result.LinesPreserved)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, `t.Skip("custom short-mode skip")`)
	assert.Contains(t, content, "rapid.Float64Range(150, 210)")
	assert.NotContains(t, content, "rapid.Float64Range(150, 200)")
	assert.Contains(t, content, "// version: 2")

	// The merged file must still parse cleanly.
	parsed := testfile.NewParser(logging.Discard()).Parse(content)
	require.Len(t, parsed.Tests, 1)
	assert.True(t, parsed.HasCustomCode(parsed.Tests[0]))
}

func TestUpdateFile_SurgicalWithoutCustomCode(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), false)

	result := newTestUpdater(Config{Strategy: StrategySurgical}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Zero(t, result.LinesPreserved)
}

func TestUpdateFile_FullRegenDiscardsCustomCode(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), true)

	result := newTestUpdater(Config{Strategy: StrategyFullRegen}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "custom short-mode skip")
	assert.Contains(t, string(data), "// version: 2")
}

func TestUpdateFile_FullRegenLeavesOtherBlocksAlone(t *testing.T) {
	battery := req.Requirement{
		Metadata: req.Metadata{ID: "REQ-002", Name: "BatteryLevel"},
		Attributes: []req.Attribute{
			{Name: "level", Type: req.AttributeInteger, MinValue: req.Float(0), MaxValue: req.Float(100)},
		},
	}
	path := filepath.Join(t.TempDir(), "req_test.go")
	content := testGenerator().RenderFile([]req.Requirement{heightRequirement(), battery}, 1)
	// Custom code in the battery block must survive a regen of the
	// height block.
	content = strings.Replace(content, "\t// Add custom checks below.", customSnippet, 2)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	result := newTestUpdater(Config{Strategy: StrategyFullRegen}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})
	require.True(t, result.Success, result.ErrorMessage)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed := testfile.NewParser(logging.Discard()).Parse(string(data))
	require.Len(t, parsed.Tests, 2)
	assert.Equal(t, []string{"REQ-001", "REQ-002"}, parsed.RequirementIDs())

	// Regenerated block lost its custom code; the untouched one kept it.
	assert.False(t, parsed.HasCustomCode(parsed.Tests[0]))
	assert.True(t, parsed.HasCustomCode(parsed.Tests[1]))
	assert.Equal(t, "2", parsed.Tests[0].Metadata[testfile.KeyVersion])
	assert.Equal(t, "1", parsed.Tests[1].Metadata[testfile.KeyVersion])
}

func TestUpdateFile_SideBySide(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), true)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	result := newTestUpdater(Config{Strategy: StrategySideBySide}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, path+".new", result.FilePath)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "original must be untouched")

	_, err = os.Stat(path + ".new")
	assert.NoError(t, err)
}

func TestUpdateFile_HybridDispatch(t *testing.T) {
	t.Run("major goes side by side", func(t *testing.T) {
		path := writeTestFile(t, t.TempDir(), false)
		result := newTestUpdater(Config{Strategy: StrategyHybrid}).UpdateFile(Update{
			Path:        path,
			Requirement: heightRequirement(),
			NewVersion:  2,
			Severity:    detect.SeverityMajor,
		})
		require.True(t, result.Success, result.ErrorMessage)
		assert.Equal(t, StrategySideBySide, result.StrategyUsed)
	})

	t.Run("moderate goes surgical", func(t *testing.T) {
		path := writeTestFile(t, t.TempDir(), false)
		result := newTestUpdater(Config{Strategy: StrategyHybrid}).UpdateFile(Update{
			Path:        path,
			Requirement: heightRequirement(),
			NewVersion:  2,
			Severity:    detect.SeverityModerate,
		})
		require.True(t, result.Success, result.ErrorMessage)
		assert.Equal(t, StrategySurgical, result.StrategyUsed)
	})
}

func TestUpdateFile_Backup(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), true)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	result := newTestUpdater(Config{Strategy: StrategySurgical, Backup: true}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	require.NotEmpty(t, result.BackupPath)
	assert.Contains(t, result.BackupPath, ".backup.")

	backup, err := os.ReadFile(result.BackupPath)
	require.NoError(t, err)
	assert.Equal(t, before, backup)
}

func TestUpdateFile_BackupFailureIsSoft(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, false)

	// A regular file where the backup directory should go makes the
	// backup fail.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	result := newTestUpdater(Config{
		Strategy:  StrategySurgical,
		Backup:    true,
		BackupDir: blocked,
	}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Empty(t, result.BackupPath)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "// version: 2")
}

func TestUpdateFile_Preview(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), false)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	changed := heightRequirement()
	changed.Constraints[0].Expression = "height >= 140 and height <= 200"

	result := newTestUpdater(Config{Strategy: StrategySurgical, Preview: true}).UpdateFile(Update{
		Path:        path,
		Requirement: changed,
		NewVersion:  2,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Contains(t, result.Preview, "height >= 140")
	assert.Contains(t, result.Preview, "@@")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after, "preview must not write")
}

func TestUpdateFile_MissingFileCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "req_001_test.go")

	result := newTestUpdater(Config{Strategy: StrategySurgical}).UpdateFile(Update{
		Path:        path,
		Requirement: heightRequirement(),
		NewVersion:  1,
	})

	require.True(t, result.Success, result.ErrorMessage)
	assert.Equal(t, StrategyFullRegen, result.StrategyUsed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "func TestVehicleHeight")
}

func TestUpdateFile_AppendsMissingBlock(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), false)

	other := req.Requirement{
		Metadata: req.Metadata{ID: "REQ-002", Name: "BatteryLevel"},
		Attributes: []req.Attribute{
			{Name: "level", Type: req.AttributeInteger, MinValue: req.Float(0), MaxValue: req.Float(100)},
		},
	}
	result := newTestUpdater(Config{Strategy: StrategySurgical}).UpdateFile(Update{
		Path:        path,
		Requirement: other,
		NewVersion:  1,
	})
	require.True(t, result.Success, result.ErrorMessage)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed := testfile.NewParser(logging.Discard()).Parse(string(data))
	assert.Equal(t, []string{"REQ-001", "REQ-002"}, parsed.RequirementIDs())
}

func TestUpdateMultiple_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := writeTestFile(t, dir, false)
	// A directory where a file is expected forces a read error.
	bad := filepath.Join(dir, "not_a_file")
	require.NoError(t, os.Mkdir(bad, 0o755))

	results := newTestUpdater(Config{Strategy: StrategySurgical}).UpdateMultiple([]Update{
		{Path: bad, Requirement: heightRequirement(), NewVersion: 2},
		{Path: good, Requirement: heightRequirement(), NewVersion: 2},
	})

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.NotEmpty(t, results[0].ErrorMessage)
	assert.True(t, results[1].Success, results[1].ErrorMessage)
}
