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

// Package bigquery is the adapter's boundary to the Google BigQuery query
// service. It defines the five warehouse operations the MCP layer consumes
// and a REST implementation of them. The adapter never interprets SQL
// semantics itself, and it holds no job state: BigQuery is the source of
// truth for job lifecycle.
package bigquery

import "time"

// JobState is the backend-reported execution state of a query job.
type JobState string

const (
	JobPending JobState = "PENDING"
	JobRunning JobState = "RUNNING"
	JobDone    JobState = "DONE"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool { return s == JobDone }

// JobError is BigQuery's native error structure for a failed job.
type JobError struct {
	Reason   string `json:"reason,omitempty"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

// Job is a handle to an in-flight or completed query job. It is a snapshot
// of backend state, never locally inferred.
type Job struct {
	ID                  string
	ProjectID           string
	Location            string
	State               JobState
	Err                 *JobError // errorResult, set when the job failed
	TotalBytesProcessed int64
	CreationTime        time.Time
	StartTime           time.Time
	EndTime             time.Time
}

// Failed reports whether the job finished with an error.
func (j *Job) Failed() bool { return j.State == JobDone && j.Err != nil }

// QueryRequest describes a query submission.
type QueryRequest struct {
	ProjectID string
	Location  string
	SQL       string
	// Params are named query parameters (@name placeholders).
	Params map[string]interface{}
	// DryRun validates the query and estimates cost without executing it.
	DryRun bool
	// MaxResults bounds the rows inlined in the immediate response.
	MaxResults int64
	// Timeout is how long the backend call may wait for completion before
	// returning a still-running job handle.
	Timeout time.Duration
}

// Column describes one field of a result or table schema. Fields is set for
// RECORD columns.
type Column struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Mode        string   `json:"mode,omitempty"`
	Description string   `json:"description,omitempty"`
	Fields      []Column `json:"fields,omitempty"`
}

// QueryResponse is the immediate result of a query submission. For dry runs
// only the byte estimate is populated; DryRun submissions never yield a job
// handle. For real submissions with small result sets, rows may be inlined.
type QueryResponse struct {
	JobID               string
	Location            string
	State               JobState
	Complete            bool
	DryRun              bool
	CacheHit            bool
	TotalBytesProcessed int64
	Schema              []Column
	Rows                []map[string]interface{}
	TotalRows           uint64
}

// ResultPage is one bounded page of rows for a completed job.
type ResultPage struct {
	JobID     string
	Offset    int64
	Schema    []Column
	Rows      []map[string]interface{}
	TotalRows uint64
}

// HasMore reports whether rows remain beyond this page.
func (p *ResultPage) HasMore() bool {
	return uint64(p.Offset)+uint64(len(p.Rows)) < p.TotalRows
}

// Dataset identifies one dataset visible to the configured credentials.
// It carries only the fields the list endpoint returns; timestamps live on
// TableMetadata, where the per-table lookup supplies them.
type Dataset struct {
	ID           string            `json:"id"`
	ProjectID    string            `json:"projectId"`
	Location     string            `json:"location,omitempty"`
	FriendlyName string            `json:"friendlyName,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// TableMetadata is the schema and bookkeeping for one table.
type TableMetadata struct {
	ProjectID        string
	DatasetID        string
	TableID          string
	Schema           []Column
	NumRows          uint64
	CreationTime     time.Time
	LastModifiedTime time.Time
}
