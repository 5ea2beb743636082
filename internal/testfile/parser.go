// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package testfile

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/redasasin4/sysml2test/pkg/logging"
)

// funcPattern matches the test function declaration that must follow a
// metadata region.
var funcPattern = regexp.MustCompile(`func (Test\w+)\s*\(`)

// funcLookahead bounds how far past a metadata region we search for the
// test function declaration.
const funcLookahead = 20

// =============================================================================
// Parsed Structures
// =============================================================================

// Region is an inclusive range of zero-based line indices into the
// parsed file's line slice.
type Region struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

// ParsedTest is one generated test block recovered from a file.
//
// StartLine is the metadata start marker, EndLine the last line of the
// block (the line before the next block's metadata marker, or the last
// non-blank line of the file). Both are zero-based indices into the
// owning ParsedFile's Lines.
type ParsedTest struct {
	FunctionName     string            `json:"function_name"`
	Metadata         map[string]string `json:"metadata"`
	StartLine        int               `json:"start_line"`
	EndLine          int               `json:"end_line"`
	GeneratedRegions []Region          `json:"generated_regions"`
	CustomRegions    []Region          `json:"custom_regions"`
}

// RequirementID returns the requirement this test was generated from,
// or "" when the metadata region lacked one.
func (p *ParsedTest) RequirementID() string {
	return p.Metadata[KeyRequirementID]
}

// ContentHash returns the requirement content hash recorded at
// generation time.
func (p *ParsedTest) ContentHash() string {
	return p.Metadata[KeyContentHash]
}

// ParsedFile is the full parse of one generated test file.
//
// Orphans lists the function names of blocks discarded for lacking a
// requirement_id; traceability reporting surfaces them as tests with no
// requirement link.
type ParsedFile struct {
	Path    string
	Lines   []string
	Tests   []ParsedTest
	Orphans []string
}

// HasCustomCode reports whether any custom region of the test holds a
// non-blank, non-comment line. Placeholder comments left by the
// generator do not count as custom code.
func (f *ParsedFile) HasCustomCode(test ParsedTest) bool {
	for _, region := range test.CustomRegions {
		for i := region.StartLine; i <= region.EndLine && i < len(f.Lines); i++ {
			trimmed := strings.TrimSpace(f.Lines[i])
			if trimmed == "" || strings.HasPrefix(trimmed, "//") {
				continue
			}
			return true
		}
	}
	return false
}

// TestForRequirement returns the test block generated from the given
// requirement key.
func (f *ParsedFile) TestForRequirement(requirementID string) (ParsedTest, bool) {
	for _, test := range f.Tests {
		if test.RequirementID() == requirementID {
			return test, true
		}
	}
	return ParsedTest{}, false
}

// RequirementIDs lists the requirement keys of every test block, in
// file order.
func (f *ParsedFile) RequirementIDs() []string {
	ids := make([]string, 0, len(f.Tests))
	for _, test := range f.Tests {
		if id := test.RequirementID(); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// Parser
// =============================================================================

// Parser recovers generated test blocks from marker-delimited files.
//
// # Thread Safety
//
// Parser holds no mutable state; a single instance may be shared.
type Parser struct {
	logger *logging.Logger
}

// NewParser creates a Parser. A nil logger falls back to the default
// stderr logger.
func NewParser(logger *logging.Logger) *Parser {
	if logger == nil {
		logger = logging.Default()
	}
	return &Parser{logger: logger}
}

// ParseFile reads and parses a generated test file.
func (p *Parser) ParseFile(path string) (*ParsedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading test file %s: %w", path, err)
	}
	parsed := p.Parse(string(data))
	parsed.Path = path
	return parsed, nil
}

// Parse parses test file content.
//
// # Description
//
// Scans for metadata regions; each one opens a test block that extends
// to the line before the next metadata region (or the last non-blank
// line of the file). Within a block, generated and custom regions are
// collected by their own marker pairs. Malformed input degrades rather
// than fails: a metadata region with no END marker is closed at the
// function declaration, and a metadata line that is not "// key: value"
// is skipped. A block lacking a requirement_id, or whose function
// declaration cannot be found within the lookahead window, is discarded
// with a warning; the rest of the file still parses.
func (p *Parser) Parse(content string) *ParsedFile {
	lines := strings.Split(content, "\n")
	file := &ParsedFile{Lines: lines}

	var starts []int
	for i, line := range lines {
		if isMarker(line, MetadataStart) {
			starts = append(starts, i)
		}
	}

	for idx, start := range starts {
		end := len(lines) - 1
		if idx+1 < len(starts) {
			end = starts[idx+1] - 1
		}
		for end > start && strings.TrimSpace(lines[end]) == "" {
			end--
		}

		test := p.parseBlock(lines, start, end)
		if test.RequirementID() == "" {
			p.logger.Warn("discarding block with no requirement_id",
				"start_line", start+1,
				"function", test.FunctionName,
			)
			if test.FunctionName != "" {
				file.Orphans = append(file.Orphans, test.FunctionName)
			}
			continue
		}
		if test.FunctionName == "" {
			p.logger.Warn("discarding block with no test function within lookahead",
				"start_line", start+1,
				"requirement_id", test.RequirementID(),
			)
			continue
		}
		file.Tests = append(file.Tests, test)
	}

	return file
}

// parseBlock parses one test block spanning lines[start..end].
func (p *Parser) parseBlock(lines []string, start, end int) ParsedTest {
	test := ParsedTest{
		Metadata:  make(map[string]string),
		StartLine: start,
		EndLine:   end,
	}

	metadataEnd := end
	for i := start + 1; i <= end; i++ {
		if isMarker(lines[i], MetadataEnd) {
			metadataEnd = i
			break
		}
		// A truncated metadata region (missing END marker) closes at the
		// function declaration.
		if funcPattern.MatchString(lines[i]) {
			metadataEnd = i - 1
			p.logger.Warn("metadata region missing end marker",
				"start_line", start+1,
				"requirement_id", test.RequirementID(),
			)
			break
		}
		key, value, ok := parseMetadataLine(lines[i])
		if !ok {
			p.logger.Warn("skipping malformed metadata line",
				"line_number", i+1,
				"line", strings.TrimSpace(lines[i]),
			)
			continue
		}
		test.Metadata[key] = value
	}

	for i := metadataEnd + 1; i <= end && i <= metadataEnd+funcLookahead; i++ {
		if m := funcPattern.FindStringSubmatch(lines[i]); m != nil {
			test.FunctionName = m[1]
			break
		}
	}

	test.GeneratedRegions = collectRegions(lines, metadataEnd+1, end, GeneratedStart, GeneratedEnd)
	test.CustomRegions = collectRegions(lines, metadataEnd+1, end, CustomStart, CustomEnd)
	return test
}

// collectRegions finds marker-delimited regions between from and to.
// The region spans the lines strictly between the two markers. A start
// marker with no matching end closes at to.
func collectRegions(lines []string, from, to int, startMarker, endMarker string) []Region {
	var regions []Region
	open := -1
	for i := from; i <= to && i < len(lines); i++ {
		switch {
		case isMarker(lines[i], startMarker):
			open = i
		case isMarker(lines[i], endMarker):
			if open >= 0 {
				regions = append(regions, Region{StartLine: open + 1, EndLine: i - 1})
				open = -1
			}
		}
	}
	if open >= 0 {
		regions = append(regions, Region{StartLine: open + 1, EndLine: to})
	}
	return regions
}

// parseMetadataLine parses a "// key: value" metadata line.
func parseMetadataLine(line string) (key, value string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return "", "", false
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
	colon := strings.Index(body, ":")
	if colon <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(body[:colon])
	value = strings.TrimSpace(body[colon+1:])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// RegionText returns the lines of a region joined with newlines.
func (f *ParsedFile) RegionText(region Region) string {
	if region.StartLine > region.EndLine {
		return ""
	}
	start := region.StartLine
	end := region.EndLine
	if start < 0 {
		start = 0
	}
	if end >= len(f.Lines) {
		end = len(f.Lines) - 1
	}
	return strings.Join(f.Lines[start:end+1], "\n")
}
