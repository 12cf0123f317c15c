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

package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryTool() Tool {
	return Tool{
		Name: "execute_query",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"sql":    map[string]interface{}{"type": "string"},
				"dryRun": map[string]interface{}{"type": "boolean", "default": false},
				"maxRows": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"default": 100,
				},
			},
			"required":             []interface{}{"sql"},
			"additionalProperties": false,
		},
	}
}

func TestValidateToolArguments_Valid(t *testing.T) {
	err := ValidateToolArguments(queryTool(), map[string]interface{}{
		"sql":    "SELECT 1",
		"dryRun": true,
	})
	assert.NoError(t, err)
}

func TestValidateToolArguments_MissingRequired(t *testing.T) {
	err := ValidateToolArguments(queryTool(), map[string]interface{}{})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "sql", verr.Fields[0].Field)
}

func TestValidateToolArguments_UnknownFieldRejected(t *testing.T) {
	// Closed schemas reject unknown fields before any backend call.
	err := ValidateToolArguments(queryTool(), map[string]interface{}{
		"sql":     "SELECT 1",
		"unknown": "field",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Fields)
}

func TestValidateToolArguments_WrongType(t *testing.T) {
	err := ValidateToolArguments(queryTool(), map[string]interface{}{
		"sql":    "SELECT 1",
		"dryRun": "yes",
	})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "dryRun", verr.Fields[0].Field)
}

func TestValidateToolArguments_MinimumViolation(t *testing.T) {
	err := ValidateToolArguments(queryTool(), map[string]interface{}{
		"sql":     "SELECT 1",
		"maxRows": float64(0),
	})
	assert.Error(t, err)
}

func TestValidateToolArguments_NilArguments(t *testing.T) {
	tool := Tool{
		Name: "list_datasets",
		InputSchema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"additionalProperties": false,
		},
	}
	assert.NoError(t, ValidateToolArguments(tool, nil))
}

func TestValidateToolArguments_NoSchema(t *testing.T) {
	assert.NoError(t, ValidateToolArguments(Tool{Name: "x"}, map[string]interface{}{"anything": 1}))
}

func TestValidationError_RPCError(t *testing.T) {
	verr := &ValidationError{
		Tool:   "execute_query",
		Fields: []FieldError{{Field: "sql", Description: "sql is required"}},
	}

	rpcErr := verr.RPCError()
	assert.Equal(t, InvalidParams, rpcErr.Code)
	assert.Contains(t, string(rpcErr.Data), `"sql"`)

	// Works through errors.As like any other error.
	var target *ValidationError
	assert.True(t, errors.As(error(verr), &target))
}

func TestApplyDefaults(t *testing.T) {
	tool := queryTool()

	out := ApplyDefaults(tool.InputSchema, map[string]interface{}{"sql": "SELECT 1"})
	assert.Equal(t, "SELECT 1", out["sql"])
	assert.Equal(t, false, out["dryRun"])
	assert.Equal(t, 100, out["maxRows"])
}

func TestApplyDefaults_DoesNotOverride(t *testing.T) {
	tool := queryTool()

	in := map[string]interface{}{"sql": "SELECT 1", "dryRun": true}
	out := ApplyDefaults(tool.InputSchema, in)
	assert.Equal(t, true, out["dryRun"])

	// The input map is left untouched.
	_, present := in["maxRows"]
	assert.False(t, present)
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{JSONRPC: "2.0", Method: "ping"}, false},
		{"wrong version", Request{JSONRPC: "1.0", Method: "ping"}, true},
		{"missing method", Request{JSONRPC: "2.0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(&tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
