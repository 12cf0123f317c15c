// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
)

func boolPtr(b bool) *bool { return &b }

// toolDefinitions returns the six warehouse tools. All schemas are closed
// (unknown fields rejected) except execute_query's bound-parameter map,
// which is open by nature. Optional fields carry defaults the validator
// applies before dispatch.
func toolDefinitions() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "execute_query",
			Description: "Submit a SQL query to BigQuery, optionally as dry-run",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"projectId": map[string]interface{}{
						"type":        "string",
						"description": "Google Cloud project to bill the query to; server default when omitted",
					},
					"location": map[string]interface{}{
						"type":        "string",
						"description": "Job location, e.g. 'US' or 'asia-northeast1'",
					},
					"sql": map[string]interface{}{
						"type":        "string",
						"description": "Standard SQL statement",
					},
					"params": map[string]interface{}{
						"type":                 "object",
						"description":          "Named query parameters, referenced as @name in the SQL",
						"additionalProperties": true,
					},
					"dryRun": map[string]interface{}{
						"type":        "boolean",
						"description": "Validate and estimate cost without executing",
						"default":     false,
					},
				},
				"required":             []interface{}{"sql"},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:           "Execute Query",
				ReadOnlyHint:    boolPtr(false),
				DestructiveHint: boolPtr(true),
				IdempotentHint:  boolPtr(false),
				OpenWorldHint:   boolPtr(true),
			},
		},
		{
			Name:        "get_job_status",
			Description: "Poll job execution state",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type": "string",
					},
					"projectId": map[string]interface{}{
						"type": "string",
					},
					"location": map[string]interface{}{
						"type": "string",
					},
				},
				"required":             []interface{}{"jobId"},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:          "Get Job Status",
				ReadOnlyHint:   boolPtr(true),
				IdempotentHint: boolPtr(true),
				OpenWorldHint:  boolPtr(true),
			},
		},
		{
			Name:        "cancel_job",
			Description: "Cancel a running BigQuery job",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type": "string",
					},
					"projectId": map[string]interface{}{
						"type": "string",
					},
					"location": map[string]interface{}{
						"type": "string",
					},
				},
				"required":             []interface{}{"jobId"},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:           "Cancel Job",
				ReadOnlyHint:    boolPtr(false),
				DestructiveHint: boolPtr(false),
				IdempotentHint:  boolPtr(true),
				OpenWorldHint:   boolPtr(true),
			},
		},
		{
			Name:        "fetch_results_chunk",
			Description: "Page through results of a completed query job",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"jobId": map[string]interface{}{
						"type": "string",
					},
					"projectId": map[string]interface{}{
						"type": "string",
					},
					"location": map[string]interface{}{
						"type": "string",
					},
					"offset": map[string]interface{}{
						"type":    "integer",
						"minimum": 0,
						"default": 0,
					},
					"maxRows": map[string]interface{}{
						"type":    "integer",
						"minimum": 1,
						"default": 100,
					},
				},
				"required":             []interface{}{"jobId"},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:          "Fetch Results Chunk",
				ReadOnlyHint:   boolPtr(true),
				IdempotentHint: boolPtr(true),
				OpenWorldHint:  boolPtr(true),
			},
		},
		{
			Name:        "list_datasets",
			Description: "Enumerate datasets visible to the service account",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"projectId": map[string]interface{}{
						"type": "string",
					},
					"cursor": map[string]interface{}{
						"type":        "string",
						"description": "Continuation token from a previous page",
					},
				},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:          "List Datasets",
				ReadOnlyHint:   boolPtr(true),
				IdempotentHint: boolPtr(true),
				OpenWorldHint:  boolPtr(true),
			},
		},
		{
			Name:        "get_table_schema",
			Description: "Retrieve schema for a table",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"projectId": map[string]interface{}{
						"type": "string",
					},
					"datasetId": map[string]interface{}{
						"type": "string",
					},
					"tableId": map[string]interface{}{
						"type": "string",
					},
				},
				"required":             []interface{}{"projectId", "datasetId", "tableId"},
				"additionalProperties": false,
			},
			Annotations: &protocol.ToolAnnotations{
				Title:          "Get Table Schema",
				ReadOnlyHint:   boolPtr(true),
				IdempotentHint: boolPtr(true),
				OpenWorldHint:  boolPtr(true),
			},
		},
	}
}
