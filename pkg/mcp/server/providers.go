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

// Package server implements a Model Context Protocol (MCP) server.
// It provides a JSON-RPC dispatcher, method handlers, and provider interfaces
// that allow exposing tools and resources to MCP clients.
package server

import (
	"context"

	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
)

// ToolProvider supplies tools to the MCP server.
// Implementations map domain-specific capabilities to MCP tool definitions.
type ToolProvider interface {
	// ListTools returns all available tools.
	ListTools(ctx context.Context) ([]protocol.Tool, error)

	// CallTool invokes a tool by name with the given arguments.
	//
	// A returned *protocol.Error is forwarded to the client with its code
	// intact (validation, timeout, rate limit, backend failure). Any other
	// error becomes a tool result with isError set, per the MCP convention
	// that tool-level failures are results, not transport errors.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error)
}

// ResourceProvider supplies resources to the MCP server.
// Listings are cursor-paginated: a non-empty nextCursor means more pages.
type ResourceProvider interface {
	// ListResources returns one page of resources starting at cursor
	// ("" for the first page), plus the cursor for the next page.
	ListResources(ctx context.Context, cursor string) (resources []protocol.Resource, nextCursor string, err error)

	// ReadResource reads a resource by its URI.
	ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)
}

// clientIDKey carries the logical client identity through request contexts.
// Transports set it: stdio uses a fixed ID for its single peer, HTTP uses
// the session ID.
type clientIDKey struct{}

// WithClientID tags ctx with the logical client identity.
func WithClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, id)
}

// ClientIDFromContext returns the logical client identity, or "" when the
// transport did not set one.
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
