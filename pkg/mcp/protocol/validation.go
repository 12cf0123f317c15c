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
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FieldError describes a single offending field in a validation failure.
type FieldError struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

// ValidationError is a structured parameter validation failure. It maps to
// the InvalidParams JSON-RPC code with field-level detail in the data payload.
type ValidationError struct {
	Tool   string       `json:"tool,omitempty"`
	Fields []FieldError `json:"errors"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Description)
	}
	return fmt.Sprintf("invalid arguments: %s", strings.Join(parts, "; "))
}

// RPCError converts the validation failure into a JSON-RPC InvalidParams error.
func (e *ValidationError) RPCError() *Error {
	return NewError(InvalidParams, e.Error(), e)
}

// ValidateToolArguments validates tool arguments against the tool's input
// schema. Schemas in this adapter are declared closed
// (additionalProperties: false), so unknown fields are rejected here before
// any backend call is attempted. Returns *ValidationError on failure.
func ValidateToolArguments(tool Tool, arguments map[string]interface{}) error {
	if len(tool.InputSchema) == 0 {
		return nil // No schema, no validation
	}
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.InputSchema)
	argsLoader := gojsonschema.NewGoLoader(arguments)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		verr := &ValidationError{Tool: tool.Name}
		for _, re := range result.Errors() {
			field := re.Field()
			if field == "(root)" {
				if prop, ok := re.Details()["property"].(string); ok {
					field = prop
				}
			}
			verr.Fields = append(verr.Fields, FieldError{
				Field:       field,
				Description: re.Description(),
			})
		}
		return verr
	}

	return nil
}

// ApplyDefaults fills in declared defaults for optional top-level properties
// that are absent from the argument map. The input map is not mutated; a
// copy is returned.
func ApplyDefaults(schema map[string]interface{}, arguments map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(arguments))
	for k, v := range arguments {
		out[k] = v
	}

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return out
	}
	for name, raw := range props {
		if _, present := out[name]; present {
			continue
		}
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if def, ok := prop["default"]; ok {
			out[name] = def
		}
	}
	return out
}

// ValidateRequest validates a JSON-RPC request envelope.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", req.JSONRPC, JSONRPCVersion)
	}

	if req.Method == "" {
		return fmt.Errorf("method is required")
	}

	return nil
}

// ValidateResponse validates a JSON-RPC response envelope.
func ValidateResponse(resp *Response) error {
	if resp.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("invalid jsonrpc version: %s (expected %s)", resp.JSONRPC, JSONRPCVersion)
	}

	if resp.ID == nil {
		return fmt.Errorf("response ID is required")
	}

	// Exactly one of Result or Error must be present
	hasResult := len(resp.Result) > 0
	hasError := resp.Error != nil

	if hasResult == hasError {
		return fmt.Errorf("response must have exactly one of result or error")
	}

	return nil
}
