// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package detect

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Sync Report
// =============================================================================

// SyncReport holds the full classification of one detection pass. The
// four buckets partition the union of the old and new requirement keys.
type SyncReport struct {
	Timestamp time.Time
	Added     []RequirementChange
	Deleted   []RequirementChange
	Modified  []RequirementChange
	Unchanged []RequirementChange
}

// TotalRequirements is the size of the key union across both sets.
func (r *SyncReport) TotalRequirements() int {
	return len(r.Added) + len(r.Deleted) + len(r.Modified) + len(r.Unchanged)
}

// TotalChanges counts requirements needing action.
func (r *SyncReport) TotalChanges() int {
	return len(r.Added) + len(r.Deleted) + len(r.Modified)
}

// HasChanges reports whether any requirement needs action.
func (r *SyncReport) HasChanges() bool {
	return r.TotalChanges() > 0
}

// BySeverity returns counts of changed requirements per severity.
func (r *SyncReport) BySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, bucket := range [][]RequirementChange{r.Added, r.Deleted, r.Modified} {
		for _, change := range bucket {
			counts[change.Severity]++
		}
	}
	return counts
}

// Changes returns every change needing action, added then deleted then
// modified, each bucket already sorted by requirement key.
func (r *SyncReport) Changes() []RequirementChange {
	out := make([]RequirementChange, 0, r.TotalChanges())
	out = append(out, r.Added...)
	out = append(out, r.Deleted...)
	out = append(out, r.Modified...)
	return out
}

// =============================================================================
// Serialization
// =============================================================================

type reportSummary struct {
	TotalRequirements int `json:"total_requirements"`
	TotalChanges      int `json:"total_changes"`
	Added             int `json:"added"`
	Deleted           int `json:"deleted"`
	Modified          int `json:"modified"`
	Unchanged         int `json:"unchanged"`
}

type reportJSON struct {
	Timestamp time.Time     `json:"timestamp"`
	Summary   reportSummary `json:"summary"`
	Changes   struct {
		Added    []RequirementChange `json:"added"`
		Deleted  []RequirementChange `json:"deleted"`
		Modified []RequirementChange `json:"modified"`
	} `json:"changes"`
}

// MarshalJSON emits the report shape consumed by tooling: a summary
// block plus the three action buckets. Unchanged requirements appear
// only in the summary counts.
func (r *SyncReport) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Timestamp: r.Timestamp,
		Summary: reportSummary{
			TotalRequirements: r.TotalRequirements(),
			TotalChanges:      r.TotalChanges(),
			Added:             len(r.Added),
			Deleted:           len(r.Deleted),
			Modified:          len(r.Modified),
			Unchanged:         len(r.Unchanged),
		},
	}
	out.Changes.Added = emptyIfNil(r.Added)
	out.Changes.Deleted = emptyIfNil(r.Deleted)
	out.Changes.Modified = emptyIfNil(r.Modified)
	return json.Marshal(out)
}

func emptyIfNil(changes []RequirementChange) []RequirementChange {
	if changes == nil {
		return []RequirementChange{}
	}
	return changes
}

// =============================================================================
// Rendering
// =============================================================================

// RenderText formats the report for terminal output.
func (r *SyncReport) RenderText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Requirement Sync Report (%s)\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "  Total requirements: %d\n", r.TotalRequirements())
	fmt.Fprintf(&b, "  Changes: %d added, %d deleted, %d modified, %d unchanged\n",
		len(r.Added), len(r.Deleted), len(r.Modified), len(r.Unchanged))

	if !r.HasChanges() {
		b.WriteString("  Everything in sync.\n")
		return b.String()
	}

	writeBucket := func(title string, changes []RequirementChange) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, change := range changes {
			fmt.Fprintf(&b, "  %-20s [%s]", change.RequirementID, change.Severity)
			if reasons := change.Details.reasons(); reasons != "" {
				fmt.Fprintf(&b, " %s", reasons)
			}
			b.WriteString("\n")
		}
	}

	writeBucket("Added", r.Added)
	writeBucket("Deleted", r.Deleted)
	writeBucket("Modified", r.Modified)
	return b.String()
}

// RenderMarkdown formats the report as a Markdown document suitable for
// pull-request comments and sync history logs.
func (r *SyncReport) RenderMarkdown() string {
	var b strings.Builder

	b.WriteString("# Requirement Sync Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", r.Timestamp.Format(time.RFC3339))
	b.WriteString("| Metric | Count |\n|--------|-------|\n")
	fmt.Fprintf(&b, "| Total requirements | %d |\n", r.TotalRequirements())
	fmt.Fprintf(&b, "| Added | %d |\n", len(r.Added))
	fmt.Fprintf(&b, "| Deleted | %d |\n", len(r.Deleted))
	fmt.Fprintf(&b, "| Modified | %d |\n", len(r.Modified))
	fmt.Fprintf(&b, "| Unchanged | %d |\n", len(r.Unchanged))

	writeBucket := func(title string, changes []RequirementChange) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		b.WriteString("| Requirement | Severity | Details |\n|-------------|----------|---------|\n")
		for _, change := range changes {
			fmt.Fprintf(&b, "| %s | %s | %s |\n",
				change.RequirementID, change.Severity, change.Details.reasons())
		}
	}

	writeBucket("Added", r.Added)
	writeBucket("Deleted", r.Deleted)
	writeBucket("Modified", r.Modified)
	return b.String()
}

// reasons renders a compact human-readable summary of the details.
func (d ChangeDetails) reasons() string {
	var parts []string
	if d.Reason != "" {
		parts = append(parts, d.Reason)
	}
	if d.NameChanged {
		parts = append(parts, fmt.Sprintf("renamed %q -> %q", d.OldName, d.NewName))
	}
	if d.DocumentationChanged {
		parts = append(parts, "documentation changed")
	}
	if len(d.AttributesAdded) > 0 {
		parts = append(parts, "attributes added: "+strings.Join(d.AttributesAdded, ", "))
	}
	if len(d.AttributesRemoved) > 0 {
		parts = append(parts, "attributes removed: "+strings.Join(d.AttributesRemoved, ", "))
	}
	if len(d.AttributesModified) > 0 {
		parts = append(parts, "attributes modified: "+strings.Join(d.AttributesModified, ", "))
	}
	if d.ConstraintsChanged {
		parts = append(parts, fmt.Sprintf("constraints changed (%d -> %d)",
			d.ConstraintCountOld, d.ConstraintCountNew))
	}
	return strings.Join(parts, "; ")
}
