// Copyright (C) 2025 sysml2test contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/redasasin4/sysml2test/internal/req"
	"github.com/redasasin4/sysml2test/pkg/logging"
)

// requirementElementTypes are the SysML element @type values treated as
// requirements.
var requirementElementTypes = map[string]struct{}{
	"RequirementUsage":      {},
	"RequirementDefinition": {},
}

// APIClient extracts requirements from a SysML v2 API server.
//
// The client walks the standard project/commit/elements endpoints and
// converts requirement elements. Nested attribute and constraint
// structure varies across servers; fields the converter does not
// understand stay available under Requirement.Raw.
type APIClient struct {
	baseURL    string
	projectID  string
	commitID   string
	httpClient *http.Client
	logger     *logging.Logger
}

// APIConfig configures an APIClient.
type APIConfig struct {
	// BaseURL of the SysML v2 API server, e.g. "http://localhost:9000".
	BaseURL string

	// ProjectID and CommitID select the model to extract from. An empty
	// CommitID means the head commit.
	ProjectID string
	CommitID  string

	// Timeout for each HTTP request. Defaults to 30s.
	Timeout time.Duration
}

// NewAPIClient creates an APIClient. A nil logger falls back to the
// default stderr logger.
func NewAPIClient(config APIConfig, logger *logging.Logger) (*APIClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api source requires a base URL")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}
	if config.ProjectID == "" {
		return nil, fmt.Errorf("api source requires a project ID")
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &APIClient{
		baseURL:    config.BaseURL,
		projectID:  config.ProjectID,
		commitID:   config.CommitID,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
	}, nil
}

// Extract fetches all elements of the selected commit and converts the
// requirement elements.
func (c *APIClient) Extract(ctx context.Context) ([]req.Requirement, error) {
	commitID := c.commitID
	if commitID == "" {
		head, err := c.headCommit(ctx)
		if err != nil {
			return nil, err
		}
		commitID = head
	}

	elements, err := c.elements(ctx, commitID)
	if err != nil {
		return nil, err
	}

	var reqs []req.Requirement
	for _, element := range elements {
		elementType, _ := element["@type"].(string)
		if _, ok := requirementElementTypes[elementType]; !ok {
			continue
		}
		reqs = append(reqs, convertElement(element))
	}
	c.logger.Info("extracted requirements from api",
		"project_id", c.projectID,
		"commit_id", commitID,
		"elements", len(elements),
		"requirements", len(reqs),
	)
	return reqs, nil
}

func (c *APIClient) Describe() string {
	return fmt.Sprintf("api:%s/projects/%s", c.baseURL, c.projectID)
}

// headCommit returns the most recent commit of the project.
func (c *APIClient) headCommit(ctx context.Context) (string, error) {
	var commits []struct {
		ID string `json:"@id"`
	}
	path := fmt.Sprintf("/projects/%s/commits", url.PathEscape(c.projectID))
	if err := c.getJSON(ctx, path, &commits); err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("project %s has no commits", c.projectID)
	}
	return commits[0].ID, nil
}

// elements returns every element of one commit.
func (c *APIClient) elements(ctx context.Context, commitID string) ([]map[string]any, error) {
	var elements []map[string]any
	path := fmt.Sprintf("/projects/%s/commits/%s/elements",
		url.PathEscape(c.projectID), url.PathEscape(commitID))
	if err := c.getJSON(ctx, path, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}

func (c *APIClient) getJSON(ctx context.Context, path string, out any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("GET %s: status %d: %s", path, response.StatusCode, body)
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// convertElement maps one requirement element to the document model.
// Unrecognized structure is preserved under Raw.
func convertElement(element map[string]any) req.Requirement {
	r := req.Requirement{Raw: element}

	if v, ok := element["declaredShortName"].(string); ok && v != "" {
		r.Metadata.ID = v
	} else if v, ok := element["@id"].(string); ok {
		r.Metadata.ID = v
	}
	if v, ok := element["declaredName"].(string); ok && v != "" {
		r.Metadata.Name = v
	} else if v, ok := element["name"].(string); ok {
		r.Metadata.Name = v
	}
	if v, ok := element["qualifiedName"].(string); ok {
		r.Metadata.QualifiedName = v
	}
	if docs, ok := element["documentation"].([]any); ok && len(docs) > 0 {
		if doc, ok := docs[0].(map[string]any); ok {
			if body, ok := doc["body"].(string); ok {
				r.Metadata.Documentation = body
			}
		}
	}
	return r
}
