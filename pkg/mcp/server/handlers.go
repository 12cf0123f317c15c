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

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
)

// newToolsListHandler creates a handler for tools/list.
func newToolsListHandler(provider ToolProvider) MethodHandler {
	return func(ctx context.Context, _ json.RawMessage, _ json.RawMessage) (interface{}, error) {
		tools, err := provider.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools: %w", err)
		}
		return protocol.ToolListResult{Tools: tools}, nil
	}
}

// newToolsCallHandler creates a handler for tools/call.
func newToolsCallHandler(provider ToolProvider) MethodHandler {
	return func(ctx context.Context, _ json.RawMessage, params json.RawMessage) (interface{}, error) {
		var callParams protocol.CallToolParams
		if err := json.Unmarshal(params, &callParams); err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid tool call params: %v", err), nil)
		}

		if callParams.Name == "" {
			return nil, protocol.NewError(protocol.InvalidParams, "tool name is required", nil)
		}

		result, err := provider.CallTool(ctx, callParams.Name, callParams.Arguments)
		if err != nil {
			// Protocol-level failures keep their JSON-RPC code; everything
			// else is a tool failure and travels as an isError result.
			var rpcErr *protocol.Error
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return &protocol.CallToolResult{
				Content: []protocol.Content{
					{Type: "text", Text: err.Error()},
				},
				IsError: true,
			}, nil
		}

		return result, nil
	}
}

// newResourcesListHandler creates a handler for resources/list.
func newResourcesListHandler(provider ResourceProvider) MethodHandler {
	return func(ctx context.Context, _ json.RawMessage, params json.RawMessage) (interface{}, error) {
		var listParams protocol.ListResourcesParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &listParams); err != nil {
				return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid resource list params: %v", err), nil)
			}
		}

		resources, nextCursor, err := provider.ListResources(ctx, listParams.Cursor)
		if err != nil {
			var rpcErr *protocol.Error
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return nil, fmt.Errorf("list resources: %w", err)
		}
		return protocol.ResourceListResult{Resources: resources, NextCursor: nextCursor}, nil
	}
}

// newResourcesReadHandler creates a handler for resources/read.
func newResourcesReadHandler(provider ResourceProvider) MethodHandler {
	return func(ctx context.Context, _ json.RawMessage, params json.RawMessage) (interface{}, error) {
		var readParams protocol.ReadResourceParams
		if err := json.Unmarshal(params, &readParams); err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid resource read params: %v", err), nil)
		}

		if readParams.URI == "" {
			return nil, protocol.NewError(protocol.InvalidParams, "resource URI is required", nil)
		}

		result, err := provider.ReadResource(ctx, readParams.URI)
		if err != nil {
			var rpcErr *protocol.Error
			if errors.As(err, &rpcErr) {
				return nil, rpcErr
			}
			return nil, fmt.Errorf("read resource %q: %w", readParams.URI, err)
		}

		return result, nil
	}
}

// mcpLogLevels are the level names logging/setLevel accepts, per the MCP
// logging capability.
var mcpLogLevels = map[string]bool{
	"debug": true, "info": true, "notice": true, "warning": true,
	"error": true, "critical": true, "alert": true, "emergency": true,
}

// newSetLevelHandler creates a handler for logging/setLevel.
func newSetLevelHandler(setLevel func(level string) error) MethodHandler {
	return func(_ context.Context, _ json.RawMessage, params json.RawMessage) (interface{}, error) {
		var levelParams protocol.SetLevelParams
		if err := json.Unmarshal(params, &levelParams); err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid setLevel params: %v", err), nil)
		}
		if !mcpLogLevels[levelParams.Level] {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("unknown log level: %s", levelParams.Level), nil)
		}
		if err := setLevel(levelParams.Level); err != nil {
			return nil, fmt.Errorf("set log level: %w", err)
		}
		return struct{}{}, nil
	}
}
