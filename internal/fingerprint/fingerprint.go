// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fingerprint computes deterministic content hashes of
// requirements for change detection.
//
// Three granularities are produced:
//
//   - Content hash: everything that affects generated tests (name,
//     documentation, attributes, constraints, nested requirement IDs).
//   - Metadata hash: name and documentation only, to spot minor changes.
//   - Structure hash: attributes and constraints only, excluding all
//     documentation/description fields, to spot changes that force test
//     regeneration.
//
// A documentation-only edit therefore changes the content hash but never
// the structure hash; this asymmetry is what the change detector's
// severity classification relies on.
//
// # Determinism
//
// Before hashing, attribute lists are sorted by attribute name and
// constraint lists by (kind, expression). Re-extractions that reorder
// lists without changing membership produce identical hashes. Hashing
// excludes the requirement ID, source location, and stakeholder/actor
// lists: none of those affect generated test semantics.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/redasasin4/sysml2test/internal/req"
)

// =============================================================================
// Fingerprint
// =============================================================================

// Fingerprint is the derived (never authoritative) hash record of one
// requirement at one version.
type Fingerprint struct {
	RequirementID string    `json:"requirement_id"`
	ContentHash   string    `json:"content_hash"`
	MetadataHash  string    `json:"metadata_hash"`
	StructureHash string    `json:"structure_hash"`
	Version       int       `json:"version"`
	Timestamp     time.Time `json:"timestamp"`
}

// Comparison describes what differs between two fingerprints.
//
// Invariants: MetadataOnly implies !StructureChanged, and ContentChanged
// is exactly a content-hash inequality.
type Comparison struct {
	ContentChanged   bool `json:"content_changed"`
	MetadataOnly     bool `json:"metadata_only"`
	StructureChanged bool `json:"structure_changed"`
}

// New creates a complete fingerprint for a requirement.
//
// # Inputs
//
//   - r: Requirement to fingerprint.
//   - version: Version number to stamp (first generation is 1).
//   - timestamp: Fingerprint time; the zero value means "now".
func New(r req.Requirement, version int, timestamp time.Time) Fingerprint {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return Fingerprint{
		RequirementID: r.Key(),
		ContentHash:   ContentHash(r),
		MetadataHash:  MetadataHash(r),
		StructureHash: StructureHash(r),
		Version:       version,
		Timestamp:     timestamp,
	}
}

// Compare reports which hash granularities differ between two
// fingerprints of the same requirement.
func Compare(old, new Fingerprint) Comparison {
	contentChanged := old.ContentHash != new.ContentHash
	structureChanged := old.StructureHash != new.StructureHash
	return Comparison{
		ContentChanged:   contentChanged,
		MetadataOnly:     contentChanged && !structureChanged,
		StructureChanged: structureChanged,
	}
}

// =============================================================================
// Hash Computation
// =============================================================================

// Canonical payloads use fixed struct field order (alphabetical by JSON
// key) so encoding/json emits byte-identical output for semantically
// identical requirements. Changing field names or order changes every
// stored hash; treat these structs as part of the on-disk contract.

type canonicalAttribute struct {
	Description string   `json:"description"`
	MaxValue    *float64 `json:"max_value"`
	MinValue    *float64 `json:"min_value"`
	Name        string   `json:"name"`
	Type        string   `json:"type"`
}

type canonicalConstraint struct {
	Description string `json:"description"`
	Expression  string `json:"expression"`
	Kind        string `json:"kind"`
}

type canonicalContent struct {
	Attributes         []canonicalAttribute  `json:"attributes"`
	Constraints        []canonicalConstraint `json:"constraints"`
	Documentation      string                `json:"documentation"`
	Name               string                `json:"name"`
	NestedRequirements []string              `json:"nested_requirements"`
}

// ContentHash returns the SHA-256 hex digest of the requirement's full
// semantic content.
func ContentHash(r req.Requirement) string {
	content := canonicalContent{
		Attributes:         canonicalAttributes(r.Attributes, true),
		Constraints:        canonicalConstraints(r.Constraints, true),
		Documentation:      r.Metadata.Documentation,
		Name:               r.Metadata.Name,
		NestedRequirements: sortedCopy(r.NestedRequirements),
	}
	return hashJSON(content)
}

// MetadataHash returns the SHA-256 hex digest of name and documentation
// only. Used to detect minor changes that don't affect test logic.
func MetadataHash(r req.Requirement) string {
	metadata := struct {
		Documentation string `json:"documentation"`
		Name          string `json:"name"`
	}{
		Documentation: r.Metadata.Documentation,
		Name:          r.Metadata.Name,
	}
	return hashJSON(metadata)
}

// StructureHash returns the SHA-256 hex digest of attributes and
// constraints, excluding documentation and description fields, so that
// doc-only edits leave it unchanged.
func StructureHash(r req.Requirement) string {
	structure := struct {
		Attributes  []canonicalAttribute  `json:"attributes"`
		Constraints []canonicalConstraint `json:"constraints"`
	}{
		Attributes:  canonicalAttributes(r.Attributes, false),
		Constraints: canonicalConstraints(r.Constraints, false),
	}
	return hashJSON(structure)
}

func canonicalAttributes(attrs []req.Attribute, withDescription bool) []canonicalAttribute {
	out := make([]canonicalAttribute, 0, len(attrs))
	for _, a := range attrs {
		ca := canonicalAttribute{
			MaxValue: a.MaxValue,
			MinValue: a.MinValue,
			Name:     a.Name,
			Type:     string(a.Type),
		}
		if withDescription {
			ca.Description = a.Description
		}
		out = append(out, ca)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func canonicalConstraints(constraints []req.Constraint, withDescription bool) []canonicalConstraint {
	out := make([]canonicalConstraint, 0, len(constraints))
	for _, c := range constraints {
		cc := canonicalConstraint{
			Expression: c.Expression,
			Kind:       string(c.Kind),
		}
		if withDescription {
			cc.Description = c.Description
		}
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Expression < out[j].Expression
	})
	return out
}

func sortedCopy(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	sort.Strings(out)
	return out
}

func hashJSON(v any) string {
	// Struct marshaling is deterministic: fields emit in declaration
	// order and the canonical types contain no maps.
	data, err := json.Marshal(v)
	if err != nil {
		// Canonical payloads contain only strings, numbers, and slices;
		// Marshal cannot fail on them.
		panic("fingerprint: canonical encoding failed: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
