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

package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// DefaultEndpoint is the production BigQuery REST API.
	DefaultEndpoint = "https://bigquery.googleapis.com/bigquery/v2"

	scope = "https://www.googleapis.com/auth/bigquery"

	maxResponseBytes = 64 * 1024 * 1024
)

// Config configures the REST client.
type Config struct {
	// Endpoint overrides the API base URL. Used by tests.
	Endpoint string

	// CredentialsFile is a service account JSON key file. When empty,
	// Application Default Credentials are used.
	CredentialsFile string

	// HTTPClient overrides the authenticated client. When set, no
	// credential loading happens. Used by tests.
	HTTPClient *http.Client

	// Logger for request-level diagnostics.
	Logger *zap.Logger
}

// RESTClient implements Client over the BigQuery v2 REST API.
type RESTClient struct {
	endpoint string
	http     *http.Client
	logger   *zap.Logger
}

var _ Client = (*RESTClient)(nil)

// NewRESTClient creates a BigQuery REST client. Credentials are loaded once
// at construction; token refresh is handled by the oauth2 transport.
func NewRESTClient(ctx context.Context, cfg Config) (*RESTClient, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		ts, err := tokenSource(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		httpClient = oauth2.NewClient(ctx, ts)
	}

	return &RESTClient{
		endpoint: cfg.Endpoint,
		http:     httpClient,
		logger:   cfg.Logger,
	}, nil
}

// tokenSource builds an oauth2 token source from a key file or ADC.
func tokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile) // #nosec G304 -- path from operator config
		if err != nil {
			return nil, fmt.Errorf("read credentials file %s: %w", credentialsFile, err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, scope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials %s: %w", credentialsFile, err)
		}
		return creds.TokenSource, nil
	}

	creds, err := google.FindDefaultCredentials(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("application default credentials: %w", err)
	}
	return creds.TokenSource, nil
}

// Wire types for the BigQuery v2 API. Int64 fields arrive as decimal strings.

type jobReference struct {
	ProjectID string `json:"projectId"`
	JobID     string `json:"jobId"`
	Location  string `json:"location,omitempty"`
}

type tableFieldSchema struct {
	Name        string             `json:"name"`
	Type        string             `json:"type"`
	Mode        string             `json:"mode,omitempty"`
	Description string             `json:"description,omitempty"`
	Fields      []tableFieldSchema `json:"fields,omitempty"`
}

type tableSchema struct {
	Fields []tableFieldSchema `json:"fields"`
}

type tableCell struct {
	V interface{} `json:"v"`
}

type tableRow struct {
	F []tableCell `json:"f"`
}

type queryParameter struct {
	Name          string `json:"name"`
	ParameterType struct {
		Type string `json:"type"`
	} `json:"parameterType"`
	ParameterValue struct {
		Value string `json:"value"`
	} `json:"parameterValue"`
}

type queryRequestBody struct {
	Query           string           `json:"query"`
	UseLegacySQL    bool             `json:"useLegacySql"`
	DryRun          bool             `json:"dryRun,omitempty"`
	UseQueryCache   bool             `json:"useQueryCache"`
	Location        string           `json:"location,omitempty"`
	MaxResults      int64            `json:"maxResults,omitempty"`
	TimeoutMs       int64            `json:"timeoutMs,omitempty"`
	ParameterMode   string           `json:"parameterMode,omitempty"`
	QueryParameters []queryParameter `json:"queryParameters,omitempty"`
}

type queryResponseBody struct {
	JobReference        *jobReference `json:"jobReference"`
	JobComplete         bool          `json:"jobComplete"`
	Schema              *tableSchema  `json:"schema"`
	Rows                []tableRow    `json:"rows"`
	TotalRows           string        `json:"totalRows"`
	TotalBytesProcessed string        `json:"totalBytesProcessed"`
	CacheHit            bool          `json:"cacheHit"`
}

type jobStatusBody struct {
	State       string    `json:"state"`
	ErrorResult *JobError `json:"errorResult"`
}

type jobBody struct {
	JobReference *jobReference  `json:"jobReference"`
	Status       *jobStatusBody `json:"status"`
	Statistics   *struct {
		CreationTime string `json:"creationTime"`
		StartTime    string `json:"startTime"`
		EndTime      string `json:"endTime"`
		Query        *struct {
			TotalBytesProcessed string `json:"totalBytesProcessed"`
		} `json:"query"`
	} `json:"statistics"`
}

type datasetListBody struct {
	Datasets []struct {
		DatasetReference struct {
			DatasetID string `json:"datasetId"`
			ProjectID string `json:"projectId"`
		} `json:"datasetReference"`
		Location     string            `json:"location"`
		FriendlyName string            `json:"friendlyName"`
		Labels       map[string]string `json:"labels"`
	} `json:"datasets"`
	NextPageToken string `json:"nextPageToken"`
}

type tableBody struct {
	Schema           *tableSchema `json:"schema"`
	NumRows          string       `json:"numRows"`
	CreationTime     string       `json:"creationTime"`
	LastModifiedTime string       `json:"lastModifiedTime"`
}

// Query implements Client.
func (c *RESTClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	body := queryRequestBody{
		Query:         req.SQL,
		UseLegacySQL:  false,
		DryRun:        req.DryRun,
		UseQueryCache: true,
		Location:      req.Location,
		MaxResults:    req.MaxResults,
	}
	if req.Timeout > 0 {
		body.TimeoutMs = req.Timeout.Milliseconds()
	}
	if len(req.Params) > 0 {
		body.ParameterMode = "NAMED"
		body.QueryParameters = encodeParams(req.Params)
	}

	var resp queryResponseBody
	path := fmt.Sprintf("/projects/%s/queries", url.PathEscape(req.ProjectID))
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}

	out := &QueryResponse{
		Complete:            resp.JobComplete,
		DryRun:              req.DryRun,
		CacheHit:            resp.CacheHit,
		TotalBytesProcessed: parseInt64(resp.TotalBytesProcessed),
		TotalRows:           parseUint64(resp.TotalRows),
	}
	if resp.JobReference != nil {
		out.JobID = resp.JobReference.JobID
		out.Location = resp.JobReference.Location
	}
	if resp.JobComplete {
		out.State = JobDone
	} else {
		out.State = JobRunning
	}
	if resp.Schema != nil {
		out.Schema = convertSchema(resp.Schema.Fields)
		out.Rows = decodeRows(out.Schema, resp.Rows)
	}
	return out, nil
}

// JobStatus implements Client.
func (c *RESTClient) JobStatus(ctx context.Context, projectID, location, jobID string) (*Job, error) {
	var resp jobBody
	path := fmt.Sprintf("/projects/%s/jobs/%s", url.PathEscape(projectID), url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, path, locationQuery(location), nil, &resp); err != nil {
		return nil, err
	}
	return jobFromBody(&resp), nil
}

// CancelJob implements Client. BigQuery's cancel endpoint is itself
// idempotent: cancelling a terminal job returns the job unchanged.
func (c *RESTClient) CancelJob(ctx context.Context, projectID, location, jobID string) (*Job, error) {
	var resp struct {
		Job *jobBody `json:"job"`
	}
	path := fmt.Sprintf("/projects/%s/jobs/%s/cancel", url.PathEscape(projectID), url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodPost, path, locationQuery(location), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Job == nil {
		return nil, fmt.Errorf("cancel response missing job")
	}
	return jobFromBody(resp.Job), nil
}

// QueryResults implements Client.
func (c *RESTClient) QueryResults(ctx context.Context, projectID, location, jobID string, offset, maxRows int64) (*ResultPage, error) {
	q := url.Values{}
	if location != "" {
		q.Set("location", location)
	}
	q.Set("startIndex", strconv.FormatInt(offset, 10))
	if maxRows > 0 {
		q.Set("maxResults", strconv.FormatInt(maxRows, 10))
	}

	var resp queryResponseBody
	path := fmt.Sprintf("/projects/%s/queries/%s", url.PathEscape(projectID), url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
		return nil, err
	}

	page := &ResultPage{
		JobID:     jobID,
		Offset:    offset,
		TotalRows: parseUint64(resp.TotalRows),
	}
	if resp.Schema != nil {
		page.Schema = convertSchema(resp.Schema.Fields)
		page.Rows = decodeRows(page.Schema, resp.Rows)
	}
	return page, nil
}

// ListDatasets implements Client. The listing follows nextPageToken until
// exhaustion so callers see one complete set; the MCP layer repaginates
// with its own cursors.
func (c *RESTClient) ListDatasets(ctx context.Context, projectID string) ([]Dataset, error) {
	var out []Dataset
	pageToken := ""
	path := fmt.Sprintf("/projects/%s/datasets", url.PathEscape(projectID))

	for {
		q := url.Values{"maxResults": {"1000"}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var resp datasetListBody
		if err := c.do(ctx, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}
		for _, ds := range resp.Datasets {
			out = append(out, Dataset{
				ID:           ds.DatasetReference.DatasetID,
				ProjectID:    ds.DatasetReference.ProjectID,
				Location:     ds.Location,
				FriendlyName: ds.FriendlyName,
				Labels:       ds.Labels,
			})
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// TableSchema implements Client.
func (c *RESTClient) TableSchema(ctx context.Context, projectID, datasetID, tableID string) (*TableMetadata, error) {
	var resp tableBody
	path := fmt.Sprintf("/projects/%s/datasets/%s/tables/%s",
		url.PathEscape(projectID), url.PathEscape(datasetID), url.PathEscape(tableID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &resp); err != nil {
		return nil, err
	}

	meta := &TableMetadata{
		ProjectID:        projectID,
		DatasetID:        datasetID,
		TableID:          tableID,
		NumRows:          parseUint64(resp.NumRows),
		CreationTime:     parseMillis(resp.CreationTime),
		LastModifiedTime: parseMillis(resp.LastModifiedTime),
	}
	if resp.Schema != nil {
		meta.Schema = convertSchema(resp.Schema.Fields)
	}
	return meta, nil
}

// do performs one API call and decodes the response into out.
func (c *RESTClient) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bigquery request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("bigquery API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiErrorFromBody(resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func locationQuery(location string) url.Values {
	if location == "" {
		return nil
	}
	return url.Values{"location": {location}}
}

func jobFromBody(b *jobBody) *Job {
	j := &Job{}
	if b.JobReference != nil {
		j.ID = b.JobReference.JobID
		j.ProjectID = b.JobReference.ProjectID
		j.Location = b.JobReference.Location
	}
	if b.Status != nil {
		j.State = JobState(b.Status.State)
		j.Err = b.Status.ErrorResult
	}
	if b.Statistics != nil {
		j.CreationTime = parseMillis(b.Statistics.CreationTime)
		j.StartTime = parseMillis(b.Statistics.StartTime)
		j.EndTime = parseMillis(b.Statistics.EndTime)
		if b.Statistics.Query != nil {
			j.TotalBytesProcessed = parseInt64(b.Statistics.Query.TotalBytesProcessed)
		}
	}
	return j
}

// encodeParams converts named parameters to the API's typed encoding.
// Supported Go kinds are string, bool, and numbers; anything else is passed
// as its string form.
func encodeParams(params map[string]interface{}) []queryParameter {
	out := make([]queryParameter, 0, len(params))
	for name, value := range params {
		var p queryParameter
		p.Name = name
		switch v := value.(type) {
		case string:
			p.ParameterType.Type = "STRING"
			p.ParameterValue.Value = v
		case bool:
			p.ParameterType.Type = "BOOL"
			p.ParameterValue.Value = strconv.FormatBool(v)
		case float64:
			// JSON numbers decode as float64; keep integral values INT64.
			if v == float64(int64(v)) {
				p.ParameterType.Type = "INT64"
				p.ParameterValue.Value = strconv.FormatInt(int64(v), 10)
			} else {
				p.ParameterType.Type = "FLOAT64"
				p.ParameterValue.Value = strconv.FormatFloat(v, 'g', -1, 64)
			}
		case int:
			p.ParameterType.Type = "INT64"
			p.ParameterValue.Value = strconv.Itoa(v)
		case int64:
			p.ParameterType.Type = "INT64"
			p.ParameterValue.Value = strconv.FormatInt(v, 10)
		default:
			p.ParameterType.Type = "STRING"
			p.ParameterValue.Value = fmt.Sprint(v)
		}
		out = append(out, p)
	}
	return out
}

func convertSchema(fields []tableFieldSchema) []Column {
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{
			Name:        f.Name,
			Type:        f.Type,
			Mode:        f.Mode,
			Description: f.Description,
			Fields:      convertSchema(f.Fields),
		}
		if len(f.Fields) == 0 {
			cols[i].Fields = nil
		}
	}
	return cols
}

// decodeRows converts the API's positional f/v row encoding into maps keyed
// by column name.
func decodeRows(schema []Column, rows []tableRow) []map[string]interface{} {
	if len(rows) == 0 {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]interface{}, len(schema))
		for i, col := range schema {
			if i >= len(row.F) {
				break
			}
			m[col.Name] = decodeCell(col, row.F[i].V)
		}
		out = append(out, m)
	}
	return out
}

// decodeCell converts one cell following the column's type and mode.
func decodeCell(col Column, v interface{}) interface{} {
	if v == nil {
		return nil
	}

	if col.Mode == "REPEATED" {
		items, ok := v.([]interface{})
		if !ok {
			return v
		}
		elem := col
		elem.Mode = ""
		out := make([]interface{}, 0, len(items))
		for _, item := range items {
			if cell, ok := item.(map[string]interface{}); ok {
				out = append(out, decodeCell(elem, cell["v"]))
			}
		}
		return out
	}

	switch col.Type {
	case "RECORD", "STRUCT":
		nested, ok := v.(map[string]interface{})
		if !ok {
			return v
		}
		rawCells, _ := nested["f"].([]interface{})
		m := make(map[string]interface{}, len(col.Fields))
		for i, sub := range col.Fields {
			if i >= len(rawCells) {
				break
			}
			if cell, ok := rawCells[i].(map[string]interface{}); ok {
				m[sub.Name] = decodeCell(sub, cell["v"])
			}
		}
		return m
	case "INTEGER", "INT64":
		if s, ok := v.(string); ok {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
	case "FLOAT", "FLOAT64":
		if s, ok := v.(string); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
	case "BOOLEAN", "BOOL":
		if s, ok := v.(string); ok {
			if b, err := strconv.ParseBool(s); err == nil {
				return b
			}
		}
	}
	// STRING, NUMERIC, TIMESTAMP, DATE, etc. stay in their wire form.
	return v
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseUint64(s string) uint64 {
	n, _ := strconv.ParseUint(s, 10, 64)
	return n
}

// parseMillis parses an epoch-milliseconds decimal string.
func parseMillis(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
