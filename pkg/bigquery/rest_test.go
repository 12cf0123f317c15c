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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient points a RESTClient at a stub API server. The stub handler
// receives the decoded request body (POST) and writes its response.
func newTestClient(t *testing.T, handler http.HandlerFunc) (*RESTClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewRESTClient(context.Background(), Config{
		Endpoint:   srv.URL,
		HTTPClient: srv.Client(),
	})
	require.NoError(t, err)
	return client, srv
}

func TestRESTClient_Query(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/projects/my-project/queries", r.URL.Path)

		var body queryRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "SELECT name, age FROM people", body.Query)
		assert.False(t, body.UseLegacySQL)

		resp := map[string]interface{}{
			"jobReference": map[string]string{
				"projectId": "my-project",
				"jobId":     "job_abc",
				"location":  "US",
			},
			"jobComplete": true,
			"totalRows":   "2",
			"schema": map[string]interface{}{
				"fields": []map[string]interface{}{
					{"name": "name", "type": "STRING"},
					{"name": "age", "type": "INT64"},
				},
			},
			"rows": []map[string]interface{}{
				{"f": []map[string]interface{}{{"v": "alice"}, {"v": "30"}}},
				{"f": []map[string]interface{}{{"v": "bob"}, {"v": "25"}}},
			},
			"totalBytesProcessed": "1024",
			"cacheHit":            false,
		}
		_ = json.NewEncoder(w).Encode(resp)
	})

	resp, err := client.Query(context.Background(), QueryRequest{
		ProjectID: "my-project",
		SQL:       "SELECT name, age FROM people",
	})
	require.NoError(t, err)

	assert.Equal(t, "job_abc", resp.JobID)
	assert.Equal(t, "US", resp.Location)
	assert.Equal(t, JobDone, resp.State)
	assert.True(t, resp.Complete)
	assert.Equal(t, int64(1024), resp.TotalBytesProcessed)
	assert.Equal(t, uint64(2), resp.TotalRows)

	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "alice", resp.Rows[0]["name"])
	assert.Equal(t, int64(30), resp.Rows[0]["age"], "INT64 cells decode to int64")
}

func TestRESTClient_Query_DryRun(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body queryRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.DryRun)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jobComplete":         true,
			"totalBytesProcessed": "65536",
		})
	})

	resp, err := client.Query(context.Background(), QueryRequest{
		ProjectID: "my-project",
		SQL:       "SELECT 1",
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.True(t, resp.DryRun)
	assert.Empty(t, resp.JobID, "dry-run yields no job handle")
	assert.Equal(t, int64(65536), resp.TotalBytesProcessed)
}

func TestRESTClient_Query_NamedParams(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body queryRequestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "NAMED", body.ParameterMode)

		byName := map[string]queryParameter{}
		for _, p := range body.QueryParameters {
			byName[p.Name] = p
		}
		assert.Equal(t, "STRING", byName["name"].ParameterType.Type)
		assert.Equal(t, "alice", byName["name"].ParameterValue.Value)
		assert.Equal(t, "INT64", byName["age"].ParameterType.Type)
		assert.Equal(t, "30", byName["age"].ParameterValue.Value)
		assert.Equal(t, "BOOL", byName["active"].ParameterType.Type)
		assert.Equal(t, "FLOAT64", byName["score"].ParameterType.Type)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jobComplete": true})
	})

	_, err := client.Query(context.Background(), QueryRequest{
		ProjectID: "my-project",
		SQL:       "SELECT * FROM people WHERE name = @name",
		Params: map[string]interface{}{
			"name":   "alice",
			"age":    float64(30), // JSON numbers arrive as float64
			"active": true,
			"score":  1.5,
		},
	})
	require.NoError(t, err)
}

func TestRESTClient_Query_BackendError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Syntax error: Unexpected end of script","errors":[{"reason":"invalidQuery","message":"Syntax error"}]}}`))
	})

	_, err := client.Query(context.Background(), QueryRequest{
		ProjectID: "my-project",
		SQL:       "SELEC",
	})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalidQuery", apiErr.Reason)
	assert.Contains(t, apiErr.Message, "Syntax error")
	assert.NotEmpty(t, apiErr.Raw, "native error body is preserved verbatim")
	assert.True(t, IsInvalidQuery(apiErr))
}

func TestRESTClient_JobStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/my-project/jobs/job_abc", r.URL.Path)
		assert.Equal(t, "US", r.URL.Query().Get("location"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jobReference": map[string]string{"projectId": "my-project", "jobId": "job_abc", "location": "US"},
			"status":       map[string]interface{}{"state": "DONE"},
			"statistics": map[string]interface{}{
				"creationTime": "1700000000000",
				"startTime":    "1700000001000",
				"endTime":      "1700000002000",
				"query":        map[string]string{"totalBytesProcessed": "2048"},
			},
		})
	})

	job, err := client.JobStatus(context.Background(), "my-project", "US", "job_abc")
	require.NoError(t, err)
	assert.Equal(t, "job_abc", job.ID)
	assert.Equal(t, JobDone, job.State)
	assert.True(t, job.State.Terminal())
	assert.Nil(t, job.Err)
	assert.Equal(t, int64(2048), job.TotalBytesProcessed)
	assert.Equal(t, int64(1700000000), job.CreationTime.Unix())
}

func TestRESTClient_JobStatus_Failed(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jobReference": map[string]string{"jobId": "job_bad"},
			"status": map[string]interface{}{
				"state":       "DONE",
				"errorResult": map[string]string{"reason": "invalidQuery", "message": "Table not found"},
			},
		})
	})

	job, err := client.JobStatus(context.Background(), "my-project", "", "job_bad")
	require.NoError(t, err)
	assert.True(t, job.Failed())
	assert.Equal(t, "Table not found", job.Err.Message)
}

func TestRESTClient_CancelJob(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/projects/my-project/jobs/job_abc/cancel", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"job": map[string]interface{}{
				"jobReference": map[string]string{"jobId": "job_abc"},
				"status":       map[string]interface{}{"state": "DONE"},
			},
		})
	})

	job, err := client.CancelJob(context.Background(), "my-project", "", "job_abc")
	require.NoError(t, err)
	assert.Equal(t, "job_abc", job.ID)
	assert.Equal(t, JobDone, job.State)
}

func TestRESTClient_QueryResults(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/my-project/queries/job_abc", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("startIndex"))
		assert.Equal(t, "50", r.URL.Query().Get("maxResults"))

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jobComplete": true,
			"totalRows":   "150",
			"schema": map[string]interface{}{
				"fields": []map[string]interface{}{{"name": "n", "type": "INT64"}},
			},
			"rows": []map[string]interface{}{
				{"f": []map[string]interface{}{{"v": "100"}}},
				{"f": []map[string]interface{}{{"v": "101"}}},
			},
		})
	})

	page, err := client.QueryResults(context.Background(), "my-project", "", "job_abc", 100, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(100), page.Offset)
	assert.Equal(t, uint64(150), page.TotalRows)
	assert.Len(t, page.Rows, 2)
	assert.True(t, page.HasMore())
}

func TestRESTClient_ListDatasets_FollowsPageTokens(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/my-project/datasets", r.URL.Path)
		calls++

		if r.URL.Query().Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"datasets": []map[string]interface{}{
					{"datasetReference": map[string]string{"datasetId": "ds1", "projectId": "my-project"}, "location": "US"},
				},
				"nextPageToken": "page2",
			})
			return
		}

		assert.Equal(t, "page2", r.URL.Query().Get("pageToken"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"datasets": []map[string]interface{}{
				{"datasetReference": map[string]string{"datasetId": "ds2", "projectId": "my-project"}},
			},
		})
	})

	datasets, err := client.ListDatasets(context.Background(), "my-project")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, datasets, 2)
	assert.Equal(t, "ds1", datasets[0].ID)
	assert.Equal(t, "ds2", datasets[1].ID)
}

func TestRESTClient_TableSchema(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/projects/my-project/datasets/ds/tables/people", r.URL.Path)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"schema": map[string]interface{}{
				"fields": []map[string]interface{}{
					{"name": "name", "type": "STRING", "mode": "REQUIRED"},
					{
						"name": "address", "type": "RECORD",
						"fields": []map[string]interface{}{
							{"name": "city", "type": "STRING"},
						},
					},
				},
			},
			"numRows":      "42",
			"creationTime": "1700000000000",
		})
	})

	meta, err := client.TableSchema(context.Background(), "my-project", "ds", "people")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), meta.NumRows)
	require.Len(t, meta.Schema, 2)
	assert.Equal(t, "REQUIRED", meta.Schema[0].Mode)
	require.Len(t, meta.Schema[1].Fields, 1)
	assert.Equal(t, "city", meta.Schema[1].Fields[0].Name)
}

func TestRESTClient_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not found: Job job_nope","errors":[{"reason":"notFound"}]}}`))
	})

	_, err := client.JobStatus(context.Background(), "my-project", "", "job_nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestDecodeCell_Repeated(t *testing.T) {
	col := Column{Name: "tags", Type: "STRING", Mode: "REPEATED"}
	v := decodeCell(col, []interface{}{
		map[string]interface{}{"v": "a"},
		map[string]interface{}{"v": "b"},
	})
	assert.Equal(t, []interface{}{"a", "b"}, v)
}

func TestDecodeCell_NullAndScalars(t *testing.T) {
	assert.Nil(t, decodeCell(Column{Type: "STRING"}, nil))
	assert.Equal(t, "x", decodeCell(Column{Type: "STRING"}, "x"))
	assert.Equal(t, int64(7), decodeCell(Column{Type: "INTEGER"}, "7"))
	assert.Equal(t, 2.5, decodeCell(Column{Type: "FLOAT"}, "2.5"))
	assert.Equal(t, true, decodeCell(Column{Type: "BOOL"}, "true"))
	// NUMERIC stays in its exact wire form.
	assert.Equal(t, "123.456", decodeCell(Column{Type: "NUMERIC"}, "123.456"))
}
