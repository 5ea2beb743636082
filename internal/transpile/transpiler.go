// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package transpile converts constraint expressions from requirement
// documents into Go boolean expressions, and maps typed attributes to
// property-test value generators.
//
// The source dialect is the small expression language used in
// requirement constraints: word operators (and, or, not, implies),
// comparison operators, parentheses, numeric literals, and attribute
// identifiers. Anything richer is passed through untouched and will
// surface as a compile error in the generated test, which is the
// desired failure mode: loud, at generation time, next to the
// offending expression.
package transpile

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/redasasin4/sysml2test/pkg/logging"
)

// Transpiled is the result of converting one constraint expression.
type Transpiled struct {
	// GoCode is the Go boolean expression.
	GoCode string

	// ReferencedVariables lists the attribute identifiers the
	// expression mentions, sorted and deduplicated.
	ReferencedVariables []string

	// OperatorCount counts logical operators after conversion, a rough
	// complexity measure used in trace reports.
	OperatorCount int

	// OriginalExpression is the input as given, before any rewriting.
	OriginalExpression string
}

// Transpiler converts constraint expressions to Go.
//
// # Thread Safety
//
// Transpiler holds no mutable state; a single instance may be shared.
type Transpiler struct {
	logger *logging.Logger
}

// NewTranspiler creates a Transpiler. A nil logger falls back to the
// default stderr logger.
func NewTranspiler(logger *logging.Logger) *Transpiler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Transpiler{logger: logger}
}

var (
	impliesPattern = regexp.MustCompile(`^(.*?)\s+implies\s+(.*)$`)
	andPattern     = regexp.MustCompile(`\band\b`)
	orPattern      = regexp.MustCompile(`\bor\b`)
	notPattern     = regexp.MustCompile(`\bnot\s+`)
	// A bare "=" that is not part of ==, <=, >=, or !=.
	bareEqPattern    = regexp.MustCompile(`([^=<>!])=([^=])`)
	identPattern     = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
	logicalOpPattern = regexp.MustCompile(`&&|\|\||!`)
)

// reservedWords are expression-language keywords and literals that are
// never attribute references.
var reservedWords = map[string]struct{}{
	"and": {}, "or": {}, "not": {}, "implies": {},
	"true": {}, "false": {}, "True": {}, "False": {},
}

// Transpile converts one constraint expression to a Go boolean
// expression.
//
// # Description
//
// Normalizes whitespace, rewrites "A implies B" to "!(A) || (B)",
// converts word operators to Go operators, turns a bare "=" into "==",
// and lowercases Python-style True/False literals. Variable references
// are collected before rewriting so generator code can verify every
// referenced attribute exists.
func (tr *Transpiler) Transpile(expression string) (Transpiled, error) {
	original := expression
	expr := whitespaceRun.ReplaceAllString(strings.TrimSpace(expression), " ")
	if expr == "" {
		return Transpiled{}, fmt.Errorf("empty constraint expression")
	}

	variables := referencedVariables(expr)

	// Material implication has the lowest precedence, so a single split
	// on the first "implies" is sound for the dialect's grammar.
	if m := impliesPattern.FindStringSubmatch(expr); m != nil {
		expr = fmt.Sprintf("!(%s) || (%s)", m[1], m[2])
	}

	expr = andPattern.ReplaceAllString(expr, "&&")
	expr = orPattern.ReplaceAllString(expr, "||")
	expr = notPattern.ReplaceAllString(expr, "!")
	expr = bareEqPattern.ReplaceAllString(expr, "$1==$2")
	expr = strings.ReplaceAll(expr, "True", "true")
	expr = strings.ReplaceAll(expr, "False", "false")
	expr = whitespaceRun.ReplaceAllString(expr, " ")

	return Transpiled{
		GoCode:              expr,
		ReferencedVariables: variables,
		OperatorCount:       len(logicalOpPattern.FindAllString(expr, -1)),
		OriginalExpression:  original,
	}, nil
}

// MustTranspile is Transpile for expressions already validated upstream;
// it degrades to passing the raw expression through on error.
func (tr *Transpiler) MustTranspile(expression string) Transpiled {
	result, err := tr.Transpile(expression)
	if err != nil {
		tr.logger.Warn("constraint expression could not be transpiled, passing through",
			"expression", expression,
			"error", err,
		)
		return Transpiled{GoCode: expression, OriginalExpression: expression}
	}
	return result
}

// Simplify strips one layer of redundant enclosing parentheses.
func Simplify(expr string) string {
	trimmed := strings.TrimSpace(expr)
	if len(trimmed) < 2 || trimmed[0] != '(' || trimmed[len(trimmed)-1] != ')' {
		return trimmed
	}
	depth := 0
	for i, r := range trimmed {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(trimmed)-1 {
				return trimmed
			}
		}
	}
	return strings.TrimSpace(trimmed[1 : len(trimmed)-1])
}

// referencedVariables extracts attribute identifiers from an expression,
// sorted and deduplicated, skipping keywords and literals.
func referencedVariables(expr string) []string {
	seen := make(map[string]struct{})
	for _, ident := range identPattern.FindAllString(expr, -1) {
		if _, reserved := reservedWords[ident]; reserved {
			continue
		}
		seen[ident] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for ident := range seen {
		out = append(out, ident)
	}
	sort.Strings(out)
	return out
}
