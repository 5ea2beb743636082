// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transpile

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/redasasin4/sysml2test/internal/req"
)

// =============================================================================
// Bounds Extraction
// =============================================================================

// Bounds are the numeric limits recovered for one attribute. A nil side
// means unbounded.
type Bounds struct {
	Min *float64
	Max *float64
}

// Bounded reports whether both sides are known.
func (b Bounds) Bounded() bool {
	return b.Min != nil && b.Max != nil
}

// Comparison patterns recognized by bounds extraction. Only non-strict
// forms feed ranges directly; strict forms are widened by leaving the
// check to the constraint itself.
var (
	lowerBoundPatterns = []string{
		`\b%s\s*>=\s*(-?\d+(?:\.\d+)?)`, // x >= N
		`(-?\d+(?:\.\d+)?)\s*<=\s*%s\b`, // N <= x
	}
	upperBoundPatterns = []string{
		`\b%s\s*<=\s*(-?\d+(?:\.\d+)?)`, // x <= N
		`(-?\d+(?:\.\d+)?)\s*>=\s*%s\b`, // N >= x
	}
)

// ExtractBounds recovers numeric bounds for a variable from constraint
// expressions. Attribute-declared bounds always win; constraint-derived
// bounds only fill the sides the attribute leaves open.
func ExtractBounds(attr req.Attribute, constraints []req.Constraint) Bounds {
	bounds := Bounds{Min: attr.MinValue, Max: attr.MaxValue}

	for _, c := range constraints {
		if bounds.Min == nil {
			if v, ok := matchBound(c.Expression, attr.Name, lowerBoundPatterns); ok {
				bounds.Min = &v
			}
		}
		if bounds.Max == nil {
			if v, ok := matchBound(c.Expression, attr.Name, upperBoundPatterns); ok {
				bounds.Max = &v
			}
		}
	}
	return bounds
}

func matchBound(expression, varName string, templates []string) (float64, bool) {
	for _, template := range templates {
		pattern := regexp.MustCompile(
			fmt.Sprintf(template, regexp.QuoteMeta(varName)))
		if m := pattern.FindStringSubmatch(expression); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}

// =============================================================================
// Generator Strategy
// =============================================================================

// StrategyFor maps an attribute to a rapid generator expression for the
// generated test's draw statement.
//
// # Outputs
//
//   - string: Go expression evaluating to a rapid generator, e.g.
//     "rapid.Float64Range(150, 200)".
//   - bool: false when the attribute type has no generator mapping and
//     the attribute must be skipped.
func StrategyFor(attr req.Attribute, constraints []req.Constraint) (string, bool) {
	bounds := ExtractBounds(attr, constraints)

	switch attr.Type {
	case req.AttributeInteger:
		switch {
		case bounds.Bounded():
			return fmt.Sprintf("rapid.IntRange(%s, %s)",
				formatInt(*bounds.Min), formatInt(*bounds.Max)), true
		case bounds.Min != nil:
			return fmt.Sprintf("rapid.IntMin(%s)", formatInt(*bounds.Min)), true
		case bounds.Max != nil:
			return fmt.Sprintf("rapid.IntMax(%s)", formatInt(*bounds.Max)), true
		}
		return "rapid.Int()", true

	case req.AttributeReal:
		switch {
		case bounds.Bounded():
			return fmt.Sprintf("rapid.Float64Range(%s, %s)",
				formatFloat(*bounds.Min), formatFloat(*bounds.Max)), true
		case bounds.Min != nil:
			return fmt.Sprintf("rapid.Float64Min(%s)", formatFloat(*bounds.Min)), true
		case bounds.Max != nil:
			return fmt.Sprintf("rapid.Float64Max(%s)", formatFloat(*bounds.Max)), true
		}
		return "rapid.Float64()", true

	case req.AttributeBoolean:
		return "rapid.Bool()", true

	case req.AttributeString:
		return "rapid.String()", true

	default:
		return "", false
	}
}

// DrawType returns the Go type a strategy draws, used for stub variable
// declarations.
func DrawType(attr req.Attribute) string {
	switch attr.Type {
	case req.AttributeInteger:
		return "int"
	case req.AttributeReal:
		return "float64"
	case req.AttributeBoolean:
		return "bool"
	case req.AttributeString:
		return "string"
	default:
		return ""
	}
}

func formatInt(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
