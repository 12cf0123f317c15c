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

import "context"

// Client is the external collaborator boundary: the five warehouse
// operations the adapter consumes. Implementations must be safe for
// concurrent use.
type Client interface {
	// Query submits SQL for execution (or validation when DryRun is set).
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)

	// JobStatus polls the backend for the current state of a job.
	JobStatus(ctx context.Context, projectID, location, jobID string) (*Job, error)

	// CancelJob requests cancellation. Cancellation is advisory to the
	// backend; cancelling an already-terminal job is a no-op success.
	CancelJob(ctx context.Context, projectID, location, jobID string) (*Job, error)

	// QueryResults fetches a bounded page of rows for a completed job.
	QueryResults(ctx context.Context, projectID, location, jobID string, offset, maxRows int64) (*ResultPage, error)

	// ListDatasets enumerates all datasets visible in the project.
	ListDatasets(ctx context.Context, projectID string) ([]Dataset, error)

	// TableSchema retrieves column descriptors for the named table.
	TableSchema(ctx context.Context, projectID, datasetID, tableID string) (*TableMetadata, error)
}
