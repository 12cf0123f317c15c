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
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/bigquery-mcp/pkg/bigquery"
	"github.com/teradata-labs/bigquery-mcp/pkg/cursor"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
	"go.uber.org/zap"
)

// inlineRowLimit caps how many rows execute_query inlines when the job
// completes immediately; larger result sets go through fetch_results_chunk.
const inlineRowLimit = 100

func (p *Provider) handleExecuteQuery(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	sql := stringArg(args, "sql", "")
	projectID := stringArg(args, "projectId", p.cfg.ProjectID)
	location := stringArg(args, "location", p.cfg.Location)
	dryRun := boolArg(args, "dryRun")
	params := mapArg(args, "params")

	// INFORMATION_SCHEMA references need project qualification, and
	// region-scoped ones override the job location.
	if bigquery.HasInformationSchema(sql) {
		if region := bigquery.DetectRegionLocation(sql); region != "" {
			p.logger.Info("region-scoped metadata query", zap.String("location", region))
			location = region
		}
		sql = bigquery.QualifyInformationSchemaQuery(sql, projectID)
	}

	resp, err := p.client.Query(ctx, bigquery.QueryRequest{
		ProjectID:  projectID,
		Location:   location,
		SQL:        sql,
		Params:     params,
		DryRun:     dryRun,
		MaxResults: inlineRowLimit,
		Timeout:    p.cfg.QueryTimeout,
	})
	if err != nil {
		return nil, p.backendError(err)
	}

	// Dry-run yields an estimate only, never a job handle.
	if dryRun {
		return structuredResult(map[string]interface{}{
			"bytesProcessed": resp.TotalBytesProcessed,
			"isDryRun":       true,
			"projectId":      projectID,
			"location":       location,
		})
	}

	out := map[string]interface{}{
		"jobId":          resp.JobID,
		"status":         string(resp.State),
		"bytesProcessed": resp.TotalBytesProcessed,
		"projectId":      projectID,
		"location":       resp.Location,
	}
	if resp.Complete && len(resp.Rows) > 0 && resp.TotalRows <= uint64(len(resp.Rows)) {
		out["rows"] = resp.Rows
		out["totalRows"] = resp.TotalRows
	}
	return structuredResult(out)
}

func (p *Provider) handleGetJobStatus(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	jobID := stringArg(args, "jobId", "")
	projectID := stringArg(args, "projectId", p.cfg.ProjectID)
	location := stringArg(args, "location", p.cfg.Location)

	job, err := p.client.JobStatus(ctx, projectID, location, jobID)
	if err != nil {
		return nil, p.backendError(err)
	}

	out := map[string]interface{}{
		"jobId":          job.ID,
		"status":         string(job.State),
		"bytesProcessed": job.TotalBytesProcessed,
		"creationTime":   timeOrNil(job.CreationTime),
		"startTime":      timeOrNil(job.StartTime),
		"endTime":        timeOrNil(job.EndTime),
	}
	if job.Err != nil {
		out["error"] = job.Err
	}
	return structuredResult(out)
}

func (p *Provider) handleCancelJob(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	jobID := stringArg(args, "jobId", "")
	projectID := stringArg(args, "projectId", p.cfg.ProjectID)
	location := stringArg(args, "location", p.cfg.Location)

	// Cancellation is advisory and idempotent: cancelling a job that is
	// already terminal succeeds without changing anything.
	job, err := p.client.CancelJob(ctx, projectID, location, jobID)
	if err != nil {
		return nil, p.backendError(err)
	}

	return structuredResult(map[string]interface{}{
		"jobId":   job.ID,
		"status":  string(job.State),
		"success": true,
	})
}

func (p *Provider) handleFetchResultsChunk(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	jobID := stringArg(args, "jobId", "")
	projectID := stringArg(args, "projectId", p.cfg.ProjectID)
	location := stringArg(args, "location", p.cfg.Location)
	offset := intArg(args, "offset", 0)
	maxRows := intArg(args, "maxRows", 100)
	if maxRows > p.cfg.MaxRowsLimit {
		maxRows = p.cfg.MaxRowsLimit
	}

	job, err := p.client.JobStatus(ctx, projectID, location, jobID)
	if err != nil {
		return nil, p.backendError(err)
	}

	if !job.State.Terminal() {
		return structuredResult(map[string]interface{}{
			"jobId":   job.ID,
			"status":  string(job.State),
			"message": "Job is not complete yet",
		})
	}
	if job.Err != nil {
		return nil, fmt.Errorf("query failed: %s", job.Err.Message)
	}

	page, err := p.client.QueryResults(ctx, projectID, location, jobID, offset, maxRows)
	if err != nil {
		return nil, p.backendError(err)
	}

	columns := make([]string, len(page.Schema))
	for i, col := range page.Schema {
		columns[i] = col.Name
	}

	hasMore := page.HasMore()
	out := map[string]interface{}{
		"jobId":    jobID,
		"offset":   offset,
		"rowCount": len(page.Rows),
		"schema":   columns,
		"hasMore":  hasMore,
	}
	if hasMore {
		out["nextOffset"] = offset + int64(len(page.Rows))
	}

	if p.cfg.ExposeResources {
		uri := fmt.Sprintf("bq://results/%s/%d", jobID, offset)
		out["results"] = map[string]interface{}{
			"type": "resource",
			"uri":  uri,
		}
		result, err := structuredResult(out)
		if err != nil {
			return nil, err
		}
		result.Content = append(result.Content, protocol.Content{
			Type:     "resource",
			Resource: &protocol.ResourceRef{URI: uri, MimeType: "application/json"},
		})
		return result, nil
	}

	out["results"] = page.Rows
	return structuredResult(out)
}

func (p *Provider) handleListDatasets(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	projectID := stringArg(args, "projectId", p.cfg.ProjectID)
	token := stringArg(args, "cursor", "")

	// Cursors are bound to the listing they were minted against; a cursor
	// for another project's listing fails validation here.
	source := "datasets/" + projectID
	offset := 0
	if token != "" {
		var err error
		offset, err = p.cursors.Resume(token, source)
		if err != nil {
			return nil, protocol.NewError(protocol.InvalidParams, "invalid cursor", nil)
		}
	}

	datasets, err := p.client.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, p.backendError(err)
	}

	page, next, more := cursor.Page(datasets, offset, datasetPageSize)

	list := make([]map[string]interface{}, len(page))
	for i, ds := range page {
		list[i] = map[string]interface{}{
			"id":           ds.ID,
			"projectId":    ds.ProjectID,
			"location":     ds.Location,
			"friendlyName": ds.FriendlyName,
			"labels":       ds.Labels,
		}
	}

	out := map[string]interface{}{
		"datasets": list,
	}
	if more {
		out["nextCursor"] = p.cursors.Mint(source, next)
	}
	return structuredResult(out)
}

func (p *Provider) handleGetTableSchema(ctx context.Context, args map[string]interface{}) (*protocol.CallToolResult, error) {
	projectID := stringArg(args, "projectId", "")
	datasetID := stringArg(args, "datasetId", "")
	tableID := stringArg(args, "tableId", "")

	meta, err := p.client.TableSchema(ctx, projectID, datasetID, tableID)
	if err != nil {
		return nil, p.backendError(err)
	}

	out := map[string]interface{}{
		"projectId":        projectID,
		"datasetId":        datasetID,
		"tableId":          tableID,
		"rowCount":         meta.NumRows,
		"creationTime":     timeOrNil(meta.CreationTime),
		"lastModifiedTime": timeOrNil(meta.LastModifiedTime),
	}

	if p.cfg.ExposeResources {
		uri := fmt.Sprintf("bq://%s/%s/%s/schema", projectID, datasetID, tableID)
		out["schema"] = map[string]interface{}{
			"type": "resource",
			"uri":  uri,
		}
		result, err := structuredResult(out)
		if err != nil {
			return nil, err
		}
		result.Content = append(result.Content, protocol.Content{
			Type:     "resource",
			Resource: &protocol.ResourceRef{URI: uri, MimeType: "application/json"},
		})
		return result, nil
	}

	out["schema"] = schemaFields(meta.Schema)
	return structuredResult(out)
}

// schemaFields converts column descriptors to the result shape, keeping
// nested RECORD fields one level deep like the warehouse API reports them.
func schemaFields(cols []bigquery.Column) []map[string]interface{} {
	fields := make([]map[string]interface{}, len(cols))
	for i, col := range cols {
		f := map[string]interface{}{
			"name":        col.Name,
			"type":        col.Type,
			"mode":        col.Mode,
			"description": col.Description,
		}
		if len(col.Fields) > 0 {
			f["fields"] = schemaFields(col.Fields)
		}
		fields[i] = f
	}
	return fields
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(time.RFC3339)
}
