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

// Package resources exposes warehouse metadata and result chunks as
// read-only MCP resources under the bq:// scheme:
//
//	bq://{project}/{dataset}                  dataset metadata
//	bq://{project}/{dataset}/{table}/schema   table schema
//	bq://results/{jobId}/{offset}             one page of query results
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/teradata-labs/bigquery-mcp/pkg/bigquery"
	"github.com/teradata-labs/bigquery-mcp/pkg/cursor"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
	"go.uber.org/zap"
)

const (
	// listPageSize bounds resources/list pages.
	listPageSize = 50

	// resultChunkRows is the page size for bq://results chunks.
	resultChunkRows = 100
)

// Config holds the resource provider's defaults.
type Config struct {
	// ProjectID is the default project for listings and result reads.
	ProjectID string

	// Location is the default job location for result reads.
	Location string
}

// Provider implements server.ResourceProvider over a BigQuery client.
type Provider struct {
	client  bigquery.Client
	cfg     Config
	cursors *cursor.Codec
	logger  *zap.Logger
}

// NewProvider creates a resource provider.
func NewProvider(client bigquery.Client, cfg Config, cursors *cursor.Codec, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		client:  client,
		cfg:     cfg,
		cursors: cursors,
		logger:  logger,
	}
}

// ListResources returns one page of dataset resources. Cursors are bound
// to the project's resource listing.
func (p *Provider) ListResources(ctx context.Context, token string) ([]protocol.Resource, string, error) {
	source := "resources/" + p.cfg.ProjectID
	offset := 0
	if token != "" {
		var err error
		offset, err = p.cursors.Resume(token, source)
		if err != nil {
			return nil, "", protocol.NewError(protocol.InvalidParams, "invalid cursor", nil)
		}
	}

	datasets, err := p.client.ListDatasets(ctx, p.cfg.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("list datasets: %w", err)
	}

	page, next, more := cursor.Page(datasets, offset, listPageSize)

	out := make([]protocol.Resource, len(page))
	for i, ds := range page {
		out[i] = protocol.Resource{
			URI:         fmt.Sprintf("bq://%s/%s", ds.ProjectID, ds.ID),
			Name:        ds.ID,
			Description: ds.FriendlyName,
			MimeType:    "application/json",
		}
	}

	nextCursor := ""
	if more {
		nextCursor = p.cursors.Mint(source, next)
	}
	return out, nextCursor, nil
}

// ReadResource resolves a bq:// URI and returns its contents as JSON.
func (p *Provider) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	rest, ok := strings.CutPrefix(uri, "bq://")
	if !ok {
		return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("unsupported resource URI: %s", uri), nil)
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 3 && parts[0] == "results":
		offset, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil || offset < 0 {
			return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("invalid result offset in URI: %s", uri), nil)
		}
		return p.readResultChunk(ctx, uri, parts[1], offset)

	case len(parts) == 4 && parts[3] == "schema":
		return p.readTableSchema(ctx, uri, parts[0], parts[1], parts[2])

	case len(parts) == 2:
		return p.readDataset(ctx, uri, parts[0], parts[1])
	}

	return nil, protocol.NewError(protocol.InvalidParams, fmt.Sprintf("unsupported resource URI: %s", uri), nil)
}

func (p *Provider) readDataset(ctx context.Context, uri, projectID, datasetID string) (*protocol.ReadResourceResult, error) {
	datasets, err := p.client.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	for _, ds := range datasets {
		if ds.ID == datasetID {
			return jsonContents(uri, ds)
		}
	}
	return nil, fmt.Errorf("dataset not found: %s.%s", projectID, datasetID)
}

func (p *Provider) readTableSchema(ctx context.Context, uri, projectID, datasetID, tableID string) (*protocol.ReadResourceResult, error) {
	meta, err := p.client.TableSchema(ctx, projectID, datasetID, tableID)
	if err != nil {
		return nil, fmt.Errorf("table schema: %w", err)
	}
	return jsonContents(uri, map[string]interface{}{
		"projectId": projectID,
		"datasetId": datasetID,
		"tableId":   tableID,
		"schema":    meta.Schema,
		"rowCount":  meta.NumRows,
	})
}

func (p *Provider) readResultChunk(ctx context.Context, uri, jobID string, offset int64) (*protocol.ReadResourceResult, error) {
	page, err := p.client.QueryResults(ctx, p.cfg.ProjectID, p.cfg.Location, jobID, offset, resultChunkRows)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	out := map[string]interface{}{
		"jobId":    jobID,
		"offset":   offset,
		"rowCount": len(page.Rows),
		"rows":     page.Rows,
		"hasMore":  page.HasMore(),
	}
	if page.HasMore() {
		out["nextOffset"] = offset + int64(len(page.Rows))
	}
	return jsonContents(uri, out)
}

func jsonContents(uri string, v interface{}) (*protocol.ReadResourceResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal resource contents: %w", err)
	}
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{
			{
				URI:      uri,
				MimeType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
