// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package req

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document is the persisted requirements format:
// {"requirements": [...], "count": N}.
type Document struct {
	Requirements []Requirement `json:"requirements"`
	Count        int           `json:"count"`
}

// documentSchema validates incoming requirement documents before the sync
// pipeline touches them. It intentionally allows unknown fields so that
// newer extractor output still loads (extra data lands in Raw).
const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["requirements"],
  "properties": {
    "requirements": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["metadata"],
        "properties": {
          "metadata": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "id": {"type": "string"},
              "name": {"type": "string", "minLength": 1},
              "documentation": {"type": "string"}
            }
          },
          "attributes": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["name", "type"],
              "properties": {
                "name": {"type": "string", "minLength": 1},
                "type": {"enum": ["Integer", "Real", "Boolean", "String", "Unknown"]},
                "min_value": {"type": ["number", "null"]},
                "max_value": {"type": ["number", "null"]}
              }
            }
          },
          "constraints": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["kind", "expression"],
              "properties": {
                "kind": {"enum": ["assume", "require"]},
                "expression": {"type": "string", "minLength": 1}
              }
            }
          },
          "nested_requirements": {
            "type": "array",
            "items": {"type": "string"}
          }
        }
      }
    },
    "count": {"type": "integer", "minimum": 0}
  }
}`

var compiledSchema = jsonschema.MustCompileString("requirements.schema.json", documentSchema)

// ValidateDocument checks raw document JSON against the requirements
// document schema.
func ValidateDocument(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("parsing requirements document: %w", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return fmt.Errorf("requirements document failed schema validation: %w", err)
	}
	return nil
}

// LoadDocument reads and validates a requirements document.
//
// # Inputs
//
//   - path: Path to a JSON document of shape {"requirements": [...], "count": N}.
//
// # Outputs
//
//   - []Requirement: The decoded requirements, in document order.
//   - error: Non-nil if the file is missing, malformed, or fails schema
//     validation.
func LoadDocument(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading requirements document: %w", err)
	}

	if err := ValidateDocument(data); err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding requirements document: %w", err)
	}
	return doc.Requirements, nil
}

// SaveDocument writes requirements as a document, creating parent
// directories as needed. Count is always recomputed.
func SaveDocument(path string, requirements []Requirement) error {
	doc := Document{
		Requirements: requirements,
		Count:        len(requirements),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding requirements document: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating document directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing requirements document: %w", err)
	}
	return nil
}
