// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package generate renders requirements into Go property-based test
// files. Generated files use pgregory.net/rapid for value generation
// and carry the marker regions package testfile parses back.
package generate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/internal/testfile"
	"github.com/redasasin4/sysml2test/internal/transpile"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// GeneratorVersion is stamped into every metadata region so future
// versions can detect files produced by older generators.
const GeneratorVersion = "0.1.0"

// customPlaceholder is the comment left in an empty custom region.
const customPlaceholder = "// Add custom checks below."

// GeneratorConfig controls rendering.
type GeneratorConfig struct {
	// PackageName of emitted files. Defaults to "generated".
	PackageName string

	// OutputDir receives per-requirement files. Defaults to ".".
	OutputDir string

	// Now overrides the clock, for deterministic output in tests.
	Now func() time.Time
}

func (c *GeneratorConfig) applyDefaults() {
	if c.PackageName == "" {
		c.PackageName = "generated"
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Generator renders requirements into test files.
//
// # Thread Safety
//
// Generator holds no mutable state after construction; a single
// instance may be shared.
type Generator struct {
	config     GeneratorConfig
	transpiler *transpile.Transpiler
	logger     *logging.Logger
}

// NewGenerator creates a Generator. A nil logger falls back to the
// default stderr logger.
func NewGenerator(config GeneratorConfig, logger *logging.Logger) *Generator {
	if logger == nil {
		logger = logging.Default()
	}
	config.applyDefaults()
	return &Generator{
		config:     config,
		transpiler: transpile.NewTranspiler(logger),
		logger:     logger,
	}
}

// =============================================================================
// Rendering
// =============================================================================

// RenderFile renders a complete test file holding one block per
// requirement, each stamped with the given version.
func (g *Generator) RenderFile(reqs []req.Requirement, version int) string {
	var b strings.Builder
	b.WriteString(g.fileHeader())
	for _, r := range reqs {
		b.WriteString("\n")
		b.WriteString(g.RenderRequirement(r, version))
	}
	return b.String()
}

// RenderRequirement renders one requirement's test block, metadata
// through closing brace, with a trailing newline.
//
// # Description
//
// The metadata region records the requirement's content hash, version,
// and generation time so later syncs can decide whether the block is
// stale. The generated region draws every supported attribute from a
// rapid generator, skips the sample when any assume constraint fails,
// and reports an error for every violated require constraint. The
// custom region is emitted empty; the updater preserves its content
// across regenerations.
func (g *Generator) RenderRequirement(r req.Requirement, version int) string {
	fp := fingerprint.New(r, version, g.config.Now().UTC())
	name := TestName(r)

	var b strings.Builder
	b.WriteString(testfile.MetadataStart + "\n")
	writeMeta := func(key, value string) {
		fmt.Fprintf(&b, "// %s: %s\n", key, value)
	}
	writeMeta(testfile.KeyRequirementID, r.Key())
	writeMeta(testfile.KeyRequirementName, r.Metadata.Name)
	writeMeta(testfile.KeyContentHash, fp.ContentHash)
	writeMeta(testfile.KeyVersion, fmt.Sprintf("%d", version))
	writeMeta(testfile.KeyGeneratedAt, fp.Timestamp.Format(time.RFC3339))
	writeMeta(testfile.KeyGeneratorVersion, GeneratorVersion)
	b.WriteString(testfile.MetadataEnd + "\n")

	if doc := firstLine(r.Metadata.Documentation); doc != "" {
		fmt.Fprintf(&b, "// %s verifies %s: %s\n", name, r.Key(), doc)
	} else {
		fmt.Fprintf(&b, "// %s verifies %s.\n", name, r.Key())
	}
	fmt.Fprintf(&b, "func %s(t *testing.T) {\n", name)
	b.WriteString("\t" + testfile.GeneratedStart + "\n")
	g.renderPropertyCheck(&b, r)
	b.WriteString("\t" + testfile.GeneratedEnd + "\n")
	b.WriteString("\t" + testfile.CustomStart + "\n")
	b.WriteString("\t" + customPlaceholder + "\n")
	b.WriteString("\t" + testfile.CustomEnd + "\n")
	b.WriteString("}\n")
	return b.String()
}

// renderPropertyCheck emits the rapid.Check body.
func (g *Generator) renderPropertyCheck(b *strings.Builder, r req.Requirement) {
	if len(r.NestedRequirements) > 0 {
		fmt.Fprintf(b, "\t// Covers nested requirements: %s\n",
			strings.Join(r.NestedRequirements, ", "))
	}
	b.WriteString("\trapid.Check(t, func(rt *rapid.T) {\n")

	assumes := make([]transpile.Transpiled, 0, len(r.Constraints))
	requires := make([]transpile.Transpiled, 0, len(r.Constraints))
	referenced := make(map[string]struct{})
	for _, c := range r.Assume() {
		expr := g.transpiler.MustTranspile(c.Expression)
		assumes = append(assumes, expr)
		for _, v := range expr.ReferencedVariables {
			referenced[v] = struct{}{}
		}
	}
	for _, c := range r.Require() {
		expr := g.transpiler.MustTranspile(c.Expression)
		requires = append(requires, expr)
		for _, v := range expr.ReferencedVariables {
			referenced[v] = struct{}{}
		}
	}

	for _, attr := range r.Attributes {
		strategy, ok := transpile.StrategyFor(attr, r.Constraints)
		if !ok {
			g.logger.Warn("attribute type has no generator strategy, skipping",
				"requirement_id", r.Key(),
				"attribute", attr.Name,
				"type", string(attr.Type),
			)
			fmt.Fprintf(b, "\t\t// attribute %q has unsupported type %s; draw it manually\n",
				attr.Name, attr.Type)
			continue
		}
		fmt.Fprintf(b, "\t\t%s := %s.Draw(rt, %q)\n", attr.Name, strategy, attr.Name)
		if _, ok := referenced[attr.Name]; !ok {
			// Keep the draw so custom code can use the value, but stop
			// the compiler complaining when no constraint mentions it.
			fmt.Fprintf(b, "\t\t_ = %s\n", attr.Name)
		}
	}

	for _, expr := range assumes {
		fmt.Fprintf(b, "\t\tif !(%s) {\n", expr.GoCode)
		b.WriteString("\t\t\trt.Skip(\"assumption not satisfied\")\n")
		b.WriteString("\t\t}\n")
	}

	for _, expr := range requires {
		fmt.Fprintf(b, "\t\tif !(%s) {\n", expr.GoCode)
		fmt.Fprintf(b, "\t\t\trt.Errorf(\"requirement violated: %s\")\n",
			escapeForString(expr.OriginalExpression))
		b.WriteString("\t\t}\n")
	}

	b.WriteString("\t})\n")
}

// fileHeader renders the package clause and imports.
func (g *Generator) fileHeader() string {
	return fmt.Sprintf(`// Code generated by sysml2test %s. Edit only CUSTOM regions.

package %s

import (
	"testing"

	"pgregory.net/rapid"
)
`, GeneratorVersion, g.config.PackageName)
}

// =============================================================================
// File Output
// =============================================================================

// GenerateFile renders all requirements into a single test file at
// path, creating parent directories as needed.
func (g *Generator) GenerateFile(path string, reqs []req.Requirement, version int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	content := g.RenderFile(reqs, version)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing test file %s: %w", path, err)
	}
	g.logger.Info("generated test file",
		"path", path,
		"requirements", len(reqs),
		"version", version,
	)
	return nil
}

// GeneratePerRequirement renders one file per requirement into the
// configured output directory and returns the paths written, in input
// order.
func (g *Generator) GeneratePerRequirement(reqs []req.Requirement, version int) ([]string, error) {
	paths := make([]string, 0, len(reqs))
	for _, r := range reqs {
		path := filepath.Join(g.config.OutputDir, FileNameFor(r))
		if err := g.GenerateFile(path, []req.Requirement{r}, version); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// =============================================================================
// Naming
// =============================================================================

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// TestName derives the Go test function name for a requirement. The
// requirement name is preferred; the key is the fallback.
func TestName(r req.Requirement) string {
	source := r.Metadata.Name
	if source == "" {
		source = r.Key()
	}
	var b strings.Builder
	b.WriteString("Test")
	for _, token := range nonAlnum.Split(source, -1) {
		if token == "" {
			continue
		}
		b.WriteString(strings.ToUpper(token[:1]))
		b.WriteString(token[1:])
	}
	if b.Len() == len("Test") {
		b.WriteString("Requirement")
	}
	return b.String()
}

// FileNameFor derives the per-requirement test file name, e.g.
// "req_001_test.go" for REQ-001.
func FileNameFor(r req.Requirement) string {
	key := strings.ToLower(r.Key())
	key = nonAlnum.ReplaceAllString(key, "_")
	key = strings.Trim(key, "_")
	if key == "" {
		key = "requirement"
	}
	return key + "_test.go"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func escapeForString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "%", "%%")
	return s
}
