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

// Package tools exposes BigQuery operations as MCP tools: query execution,
// job polling and cancellation, result paging, dataset listing, and table
// schema retrieval.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/teradata-labs/bigquery-mcp/pkg/bigquery"
	"github.com/teradata-labs/bigquery-mcp/pkg/cursor"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/server"
	"github.com/teradata-labs/bigquery-mcp/pkg/ratelimit"
	"go.uber.org/zap"
)

const (
	// defaultQueryTimeout bounds each backend call.
	defaultQueryTimeout = 30 * time.Second

	// defaultMaxRowsLimit caps the per-page row count a client may request.
	defaultMaxRowsLimit = 1000

	// datasetPageSize is the fixed page size for dataset listings.
	datasetPageSize = 50
)

// Config holds the provider's operational defaults.
type Config struct {
	// ProjectID is the default project for queries and listings when the
	// caller does not name one.
	ProjectID string

	// Location is the default job location (e.g. "US", "asia-northeast1").
	Location string

	// QueryTimeout bounds each backend operation. Zero means
	// defaultQueryTimeout.
	QueryTimeout time.Duration

	// MaxRowsLimit caps maxRows on fetch_results_chunk. Zero means
	// defaultMaxRowsLimit.
	MaxRowsLimit int64

	// ExposeResources switches large payloads (schemas, result chunks) to
	// embedded resource references instead of inline data.
	ExposeResources bool
}

type toolHandler func(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error)

// Provider implements server.ToolProvider over a BigQuery client.
// It owns no job state; the warehouse is the source of truth.
type Provider struct {
	client   bigquery.Client
	cfg      Config
	limiter  *ratelimit.Limiter
	cursors  *cursor.Codec
	logger   *zap.Logger
	tools    []protocol.Tool
	handlers map[string]toolHandler
}

// NewProvider creates a tool provider. limiter may be nil to disable rate
// limiting; cursors is required for list_datasets pagination.
func NewProvider(client bigquery.Client, cfg Config, limiter *ratelimit.Limiter, cursors *cursor.Codec, logger *zap.Logger) *Provider {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.MaxRowsLimit <= 0 {
		cfg.MaxRowsLimit = defaultMaxRowsLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Provider{
		client:  client,
		cfg:     cfg,
		limiter: limiter,
		cursors: cursors,
		logger:  logger,
		tools:   toolDefinitions(),
	}
	p.handlers = map[string]toolHandler{
		"execute_query":       p.handleExecuteQuery,
		"get_job_status":      p.handleGetJobStatus,
		"cancel_job":          p.handleCancelJob,
		"fetch_results_chunk": p.handleFetchResultsChunk,
		"list_datasets":       p.handleListDatasets,
		"get_table_schema":    p.handleGetTableSchema,
	}
	return p
}

// ListTools implements server.ToolProvider. The registry is built once at
// construction, so the order is stable for the process lifetime.
func (p *Provider) ListTools(_ context.Context) ([]protocol.Tool, error) {
	return p.tools, nil
}

// CallTool implements server.ToolProvider. The pipeline is: rate limit,
// tool lookup, defaults + schema validation, then the handler under the
// configured timeout. Validation runs before any backend call, so a
// rejected request has no side effects.
func (p *Provider) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	clientID := server.ClientIDFromContext(ctx)
	if clientID == "" {
		clientID = "local"
	}
	if p.limiter != nil && !p.limiter.Allow(clientID) {
		p.logger.Warn("rate limited", zap.String("client_id", clientID), zap.String("tool", name))
		return nil, protocol.NewError(protocol.CodeRateLimited, "rate limit exceeded", nil)
	}

	tool, handler, err := p.lookup(name)
	if err != nil {
		return nil, err
	}

	args = protocol.ApplyDefaults(tool.InputSchema, args)
	if err := protocol.ValidateToolArguments(*tool, args); err != nil {
		var ve *protocol.ValidationError
		if errors.As(err, &ve) {
			return nil, ve.RPCError()
		}
		return nil, protocol.NewError(protocol.InvalidParams, err.Error(), nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	start := time.Now()
	result, err := handler(ctx, args)
	p.logger.Debug("tool call finished",
		zap.String("tool", name),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("failed", err != nil),
	)
	return result, err
}

// lookup resolves a tool name to its descriptor and handler. Unknown names
// fail before any backend interaction.
func (p *Provider) lookup(name string) (*protocol.Tool, toolHandler, error) {
	handler, ok := p.handlers[name]
	if !ok {
		return nil, nil, protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("unknown tool: %s", name), nil)
	}
	for i := range p.tools {
		if p.tools[i].Name == name {
			return &p.tools[i], handler, nil
		}
	}
	return nil, nil, protocol.NewError(protocol.MethodNotFound, fmt.Sprintf("unknown tool: %s", name), nil)
}

// backendError maps a backend failure to the protocol taxonomy. Timeouts
// get their own code so clients can choose retry over abandon. API errors
// that mean "your SQL is wrong" surface as tool errors (isError results);
// operational failures become JSON-RPC backend errors with the warehouse's
// native error body preserved in data.
func (p *Provider) backendError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return protocol.NewError(protocol.CodeTimeout, "operation timed out", nil)
	}

	var apiErr *bigquery.APIError
	if errors.As(err, &apiErr) {
		if bigquery.IsInvalidQuery(apiErr) {
			return err
		}
		var data interface{}
		if len(apiErr.Raw) > 0 {
			data = json.RawMessage(apiErr.Raw)
		}
		return protocol.NewError(protocol.CodeBackendError, apiErr.Message, data)
	}

	return protocol.NewError(protocol.CodeBackendError, err.Error(), nil)
}

// structuredResult wraps a JSON-friendly value as a tool result, inlining
// it both as text content and structured content.
func structuredResult(v map[string]interface{}) (*protocol.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &protocol.CallToolResult{
		Content: []protocol.Content{
			{Type: "text", Text: string(data)},
		},
		StructuredContent: v,
	}, nil
}

// argument accessors: arguments arrive as generic JSON and are already
// schema-validated, so the type assertions here only guard defaults.

func stringArg(args map[string]interface{}, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolArg(args map[string]interface{}, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func intArg(args map[string]interface{}, key string, fallback int64) int64 {
	switch v := args[key].(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
	}
	return fallback
}

func mapArg(args map[string]interface{}, key string) map[string]interface{} {
	m, _ := args[key].(map[string]interface{})
	return m
}
