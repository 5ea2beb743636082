// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package detect compares two requirement sets and classifies every
// requirement as added, deleted, modified, or unchanged, with a change
// severity that drives which update strategy is safe.
package detect

import (
	"sort"
	"time"

	"github.com/redasasin4/sysml2test/internal/fingerprint"
	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// =============================================================================
// Change Classification
// =============================================================================

// ChangeType classifies how a requirement differs between two sets.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeDeleted   ChangeType = "deleted"
	ChangeModified  ChangeType = "modified"
	ChangeUnchanged ChangeType = "unchanged"
)

// Severity is the qualitative magnitude of a change.
type Severity string

const (
	// SeverityNone means no change.
	SeverityNone Severity = "none"

	// SeverityMinor covers documentation/name-only changes.
	SeverityMinor Severity = "minor"

	// SeverityModerate covers bound tweaks and description edits with
	// the same structural shape.
	SeverityModerate Severity = "moderate"

	// SeverityMajor covers added/removed requirements, attribute-set
	// changes, and constraint-count changes.
	SeverityMajor Severity = "major"
)

// rank orders severities for threshold comparisons.
func (s Severity) rank() int {
	switch s {
	case SeverityNone:
		return 0
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeverityMajor:
		return 3
	default:
		return 3
	}
}

// AtMost reports whether s is no more severe than limit.
func (s Severity) AtMost(limit Severity) bool {
	return s.rank() <= limit.rank()
}

// ChangeDetails records what specifically changed in a modified
// requirement. Serialized as the change-details map in reports.
type ChangeDetails struct {
	Reason               string   `json:"reason,omitempty"`
	DocumentationChanged bool     `json:"documentation_changed,omitempty"`
	NameChanged          bool     `json:"name_changed,omitempty"`
	OldName              string   `json:"old_name,omitempty"`
	NewName              string   `json:"new_name,omitempty"`
	AttributesAdded      []string `json:"attributes_added,omitempty"`
	AttributesRemoved    []string `json:"attributes_removed,omitempty"`
	AttributesModified   []string `json:"attributes_modified,omitempty"`
	ConstraintsChanged   bool     `json:"constraints_changed,omitempty"`
	ConstraintCountOld   int      `json:"constraint_count_old,omitempty"`
	ConstraintCountNew   int      `json:"constraint_count_new,omitempty"`
}

// RequirementChange is one classified requirement from the union of the
// old and new sets. Fingerprint and requirement references are nil on
// the side where the requirement does not exist.
type RequirementChange struct {
	RequirementID  string                   `json:"requirement_id"`
	Type           ChangeType               `json:"change_type"`
	Severity       Severity                 `json:"severity"`
	OldFingerprint *fingerprint.Fingerprint `json:"-"`
	NewFingerprint *fingerprint.Fingerprint `json:"-"`
	OldRequirement *req.Requirement         `json:"-"`
	NewRequirement *req.Requirement         `json:"-"`
	Details        ChangeDetails            `json:"change_details"`
}

// =============================================================================
// Detector
// =============================================================================

// Detector compares requirement sets using fingerprints.
//
// # Thread Safety
//
// Detector holds no mutable state; a single instance may be shared.
type Detector struct {
	logger *logging.Logger
}

// NewDetector creates a Detector. A nil logger falls back to the
// default stderr logger.
func NewDetector(logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Default()
	}
	return &Detector{logger: logger}
}

// DetectChanges compares two requirement sets.
//
// # Description
//
// Builds key-indexed lookups for both sets (requirement ID, falling back
// to name for requirements without one; callers must guarantee key
// uniqueness within each set), fingerprints every requirement, then
// partitions the union of keys into added / deleted / modified /
// unchanged. Each bucket is sorted by requirement key for deterministic
// output.
//
// # Inputs
//
//   - oldReqs: Previous requirement set.
//   - newReqs: Current requirement set.
//   - oldFingerprints: Optional precomputed fingerprints for the old
//     set, keyed by requirement key. Nil recomputes them.
//
// # Outputs
//
//   - *SyncReport: Classification of every requirement in the union.
func (d *Detector) DetectChanges(
	oldReqs, newReqs []req.Requirement,
	oldFingerprints map[string]fingerprint.Fingerprint,
) *SyncReport {
	d.logger.Info("detecting requirement changes",
		"old_count", len(oldReqs),
		"new_count", len(newReqs),
	)

	oldByKey := indexByKey(oldReqs)
	newByKey := indexByKey(newReqs)

	if oldFingerprints == nil {
		oldFingerprints = fingerprintAll(oldReqs)
	}
	newFingerprints := fingerprintAll(newReqs)

	var addedKeys, deletedKeys, commonKeys []string
	for key := range newByKey {
		if _, ok := oldByKey[key]; ok {
			commonKeys = append(commonKeys, key)
		} else {
			addedKeys = append(addedKeys, key)
		}
	}
	for key := range oldByKey {
		if _, ok := newByKey[key]; !ok {
			deletedKeys = append(deletedKeys, key)
		}
	}
	sort.Strings(addedKeys)
	sort.Strings(deletedKeys)
	sort.Strings(commonKeys)

	report := &SyncReport{Timestamp: time.Now().UTC()}

	for _, key := range addedKeys {
		newReq := newByKey[key]
		fp := newFingerprints[key]
		report.Added = append(report.Added, RequirementChange{
			RequirementID:  key,
			Type:           ChangeAdded,
			Severity:       SeverityMajor, // new requirements always demand new coverage
			NewFingerprint: &fp,
			NewRequirement: newReq,
			Details:        ChangeDetails{Reason: "new requirement"},
		})
	}

	for _, key := range deletedKeys {
		oldReq := oldByKey[key]
		fp := oldFingerprints[key]
		report.Deleted = append(report.Deleted, RequirementChange{
			RequirementID:  key,
			Type:           ChangeDeleted,
			Severity:       SeverityMajor,
			OldFingerprint: &fp,
			OldRequirement: oldReq,
			Details:        ChangeDetails{Reason: "requirement deleted"},
		})
	}

	for _, key := range commonKeys {
		oldFP := oldFingerprints[key]
		newFP := newFingerprints[key]
		oldReq := oldByKey[key]
		newReq := newByKey[key]

		if oldFP.ContentHash == newFP.ContentHash {
			report.Unchanged = append(report.Unchanged, RequirementChange{
				RequirementID:  key,
				Type:           ChangeUnchanged,
				Severity:       SeverityNone,
				OldFingerprint: &oldFP,
				NewFingerprint: &newFP,
				OldRequirement: oldReq,
				NewRequirement: newReq,
			})
			continue
		}

		comparison := fingerprint.Compare(oldFP, newFP)
		report.Modified = append(report.Modified, RequirementChange{
			RequirementID:  key,
			Type:           ChangeModified,
			Severity:       classifySeverity(*oldReq, *newReq, comparison),
			OldFingerprint: &oldFP,
			NewFingerprint: &newFP,
			OldRequirement: oldReq,
			NewRequirement: newReq,
			Details:        analyzeDetails(*oldReq, *newReq),
		})
	}

	d.logger.Info("change detection complete",
		"added", len(report.Added),
		"deleted", len(report.Deleted),
		"modified", len(report.Modified),
		"unchanged", len(report.Unchanged),
	)
	return report
}

// =============================================================================
// Severity Classification
// =============================================================================

// classifySeverity applies the severity rule for modified requirements:
//
//	metadata-only           -> minor
//	structure changed:
//	  attribute set delta   -> major
//	  constraint count delta-> major
//	  otherwise             -> moderate (bound tweaks, same shape)
//	otherwise               -> moderate (description-adjacent edits)
func classifySeverity(oldReq, newReq req.Requirement, cmp fingerprint.Comparison) Severity {
	if cmp.MetadataOnly {
		return SeverityMinor
	}

	if cmp.StructureChanged {
		oldNames := attributeNameSet(oldReq)
		newNames := attributeNameSet(newReq)
		if !equalSets(oldNames, newNames) {
			return SeverityMajor
		}
		if len(oldReq.Constraints) != len(newReq.Constraints) {
			return SeverityMajor
		}
		return SeverityModerate
	}

	return SeverityModerate
}

// analyzeDetails records what specifically changed between two versions
// of the same requirement.
func analyzeDetails(oldReq, newReq req.Requirement) ChangeDetails {
	details := ChangeDetails{}

	if oldReq.Metadata.Documentation != newReq.Metadata.Documentation {
		details.DocumentationChanged = true
	}
	if oldReq.Metadata.Name != newReq.Metadata.Name {
		details.NameChanged = true
		details.OldName = oldReq.Metadata.Name
		details.NewName = newReq.Metadata.Name
	}

	oldAttrs := attributesByName(oldReq)
	newAttrs := attributesByName(newReq)

	for name := range newAttrs {
		if _, ok := oldAttrs[name]; !ok {
			details.AttributesAdded = append(details.AttributesAdded, name)
		}
	}
	for name := range oldAttrs {
		if _, ok := newAttrs[name]; !ok {
			details.AttributesRemoved = append(details.AttributesRemoved, name)
		}
	}
	for name, oldAttr := range oldAttrs {
		newAttr, ok := newAttrs[name]
		if !ok {
			continue
		}
		if oldAttr.Type != newAttr.Type ||
			!equalBound(oldAttr.MinValue, newAttr.MinValue) ||
			!equalBound(oldAttr.MaxValue, newAttr.MaxValue) {
			details.AttributesModified = append(details.AttributesModified, name)
		}
	}
	sort.Strings(details.AttributesAdded)
	sort.Strings(details.AttributesRemoved)
	sort.Strings(details.AttributesModified)

	if !equalConstraintExpressions(oldReq.Constraints, newReq.Constraints) {
		details.ConstraintsChanged = true
		details.ConstraintCountOld = len(oldReq.Constraints)
		details.ConstraintCountNew = len(newReq.Constraints)
	}

	return details
}

// =============================================================================
// Helpers
// =============================================================================

func indexByKey(reqs []req.Requirement) map[string]*req.Requirement {
	index := make(map[string]*req.Requirement, len(reqs))
	for i := range reqs {
		index[reqs[i].Key()] = &reqs[i]
	}
	return index
}

func fingerprintAll(reqs []req.Requirement) map[string]fingerprint.Fingerprint {
	fps := make(map[string]fingerprint.Fingerprint, len(reqs))
	for _, r := range reqs {
		fps[r.Key()] = fingerprint.New(r, 1, time.Time{})
	}
	return fps
}

func attributeNameSet(r req.Requirement) map[string]struct{} {
	set := make(map[string]struct{}, len(r.Attributes))
	for _, a := range r.Attributes {
		set[a.Name] = struct{}{}
	}
	return set
}

func attributesByName(r req.Requirement) map[string]req.Attribute {
	index := make(map[string]req.Attribute, len(r.Attributes))
	for _, a := range r.Attributes {
		index[a.Name] = a
	}
	return index
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func equalBound(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalConstraintExpressions(a, b []req.Constraint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Expression != b[i].Expression {
			return false
		}
	}
	return true
}
