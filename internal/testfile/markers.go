// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package testfile parses generated Go test files back into their
// marker-delimited regions so the updater can tell generated code from
// hand-written additions.
//
// Every generated test block has the shape:
//
//	// SYSML2TEST-METADATA-START
//	// requirement_id: REQ-001
//	// ...
//	// SYSML2TEST-METADATA-END
//	func TestVehicleHeight(t *testing.T) {
//		// SYSML2TEST-GENERATED-START
//		...machine-owned property check...
//		// SYSML2TEST-GENERATED-END
//		// SYSML2TEST-CUSTOM-START
//		...user-owned code, preserved across regenerations...
//		// SYSML2TEST-CUSTOM-END
//	}
package testfile

import "strings"

// Marker comments delimiting the regions of a generated test block.
// These strings are a compatibility contract with every previously
// generated file; never change them.
const (
	MetadataStart = "// SYSML2TEST-METADATA-START"
	MetadataEnd   = "// SYSML2TEST-METADATA-END"

	GeneratedStart = "// SYSML2TEST-GENERATED-START"
	GeneratedEnd   = "// SYSML2TEST-GENERATED-END"

	CustomStart = "// SYSML2TEST-CUSTOM-START"
	CustomEnd   = "// SYSML2TEST-CUSTOM-END"
)

// Metadata keys emitted inside the metadata region.
const (
	KeyRequirementID    = "requirement_id"
	KeyRequirementName  = "requirement_name"
	KeyContentHash      = "content_hash"
	KeyVersion          = "version"
	KeyGeneratedAt      = "generated_at"
	KeyGeneratorVersion = "generator_version"
)

// isMarker reports whether a line is the given marker, ignoring leading
// whitespace. Markers inside function bodies are indented.
func isMarker(line, marker string) bool {
	return strings.TrimSpace(line) == strings.TrimSpace(marker)
}
