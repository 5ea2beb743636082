// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package req defines the requirement data model extracted from SysML V2
// models, plus the on-disk requirements document format.
//
// A Requirement is an immutable snapshot of "requirement at time T". The
// sync subsystem never mutates one in place; a changed requirement is a
// new value with the same ID.
package req

import "fmt"

// =============================================================================
// Enums
// =============================================================================

// ConstraintKind distinguishes preconditions from postconditions.
type ConstraintKind string

const (
	// ConstraintAssume is a precondition: generated tests filter inputs
	// that do not satisfy it.
	ConstraintAssume ConstraintKind = "assume"

	// ConstraintRequire is a postcondition: generated tests assert it.
	ConstraintRequire ConstraintKind = "require"
)

// Valid reports whether the kind is a known variant.
func (k ConstraintKind) Valid() bool {
	switch k {
	case ConstraintAssume, ConstraintRequire:
		return true
	default:
		return false
	}
}

// AttributeType is the scalar type tag of a requirement attribute.
type AttributeType string

const (
	AttributeInteger AttributeType = "Integer"
	AttributeReal    AttributeType = "Real"
	AttributeBoolean AttributeType = "Boolean"
	AttributeString  AttributeType = "String"
	AttributeUnknown AttributeType = "Unknown"
)

// Valid reports whether the type is a known variant.
func (t AttributeType) Valid() bool {
	switch t {
	case AttributeInteger, AttributeReal, AttributeBoolean, AttributeString, AttributeUnknown:
		return true
	default:
		return false
	}
}

// =============================================================================
// Model
// =============================================================================

// Attribute is a typed, optionally bounded input of a requirement.
type Attribute struct {
	Name         string        `json:"name"`
	Type         AttributeType `json:"type"`
	Description  string        `json:"description,omitempty"`
	MinValue     *float64      `json:"min_value,omitempty"`
	MaxValue     *float64      `json:"max_value,omitempty"`
	DefaultValue any           `json:"default_value,omitempty"`
}

// Constraint is a logical expression attached to a requirement.
type Constraint struct {
	Kind          ConstraintKind `json:"kind"`
	Expression    string         `json:"expression"`
	RawExpression string         `json:"raw_expression,omitempty"`
	Description   string         `json:"description,omitempty"`
}

// Metadata identifies a requirement and carries its descriptive fields.
// Only Name and Documentation participate in content hashing; the rest
// (source location, stakeholders, actors) do not affect generated tests.
type Metadata struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Stakeholders  []string `json:"stakeholders,omitempty"`
	Actors        []string `json:"actors,omitempty"`
	Subject       string   `json:"subject,omitempty"`
	SourceFile    string   `json:"source_file,omitempty"`
	LineNumber    int      `json:"line_number,omitempty"`
}

// Requirement is a complete requirement definition from a SysML V2 model.
//
// Raw is an opaque passthrough blob for round-tripping fields the core
// never interprets; it keeps the model decoupled from the evolving
// external schema.
type Requirement struct {
	Metadata           Metadata       `json:"metadata"`
	Attributes         []Attribute    `json:"attributes,omitempty"`
	Constraints        []Constraint   `json:"constraints,omitempty"`
	NestedRequirements []string       `json:"nested_requirements,omitempty"`
	Raw                map[string]any `json:"raw_data,omitempty"`
}

// Key returns the stable lookup key for this requirement: the ID, or the
// name when no ID is present.
//
// The name fallback is deliberate, for models that never assign IDs.
// Callers must guarantee key uniqueness within a requirement set; two
// unidentified requirements sharing a name silently collide.
func (r Requirement) Key() string {
	if r.Metadata.ID != "" {
		return r.Metadata.ID
	}
	return r.Metadata.Name
}

// Assume returns the precondition constraints in document order.
func (r Requirement) Assume() []Constraint {
	return r.constraintsOfKind(ConstraintAssume)
}

// Require returns the postcondition constraints in document order.
func (r Requirement) Require() []Constraint {
	return r.constraintsOfKind(ConstraintRequire)
}

func (r Requirement) constraintsOfKind(kind ConstraintKind) []Constraint {
	var out []Constraint
	for _, c := range r.Constraints {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Attribute returns the named attribute, if present.
func (r Requirement) Attribute(name string) (Attribute, bool) {
	for _, a := range r.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// Validate checks structural invariants of a single requirement.
func (r Requirement) Validate() error {
	if r.Key() == "" {
		return fmt.Errorf("requirement has neither id nor name")
	}
	for _, a := range r.Attributes {
		if a.Name == "" {
			return fmt.Errorf("requirement %s: attribute with empty name", r.Key())
		}
		if !a.Type.Valid() {
			return fmt.Errorf("requirement %s: attribute %s has unknown type %q", r.Key(), a.Name, a.Type)
		}
	}
	for i, c := range r.Constraints {
		if !c.Kind.Valid() {
			return fmt.Errorf("requirement %s: constraint %d has unknown kind %q", r.Key(), i, c.Kind)
		}
		if c.Expression == "" {
			return fmt.Errorf("requirement %s: constraint %d has empty expression", r.Key(), i)
		}
	}
	return nil
}

// Float is a convenience for building optional bounds.
func Float(v float64) *float64 { return &v }
