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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/protocol"
	"github.com/teradata-labs/bigquery-mcp/pkg/mcp/transport"
)

// stubToolProvider returns canned tools and delegates calls to callFn.
type stubToolProvider struct {
	tools  []protocol.Tool
	callFn func(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error)
}

func (s *stubToolProvider) ListTools(_ context.Context) ([]protocol.Tool, error) {
	return s.tools, nil
}

func (s *stubToolProvider) CallTool(ctx context.Context, name string, args map[string]interface{}) (*protocol.CallToolResult, error) {
	return s.callFn(ctx, name, args)
}

type stubResourceProvider struct{}

func (s *stubResourceProvider) ListResources(_ context.Context, _ string) ([]protocol.Resource, string, error) {
	return []protocol.Resource{{URI: "bq://my-project/ds1", Name: "ds1"}}, "", nil
}

func (s *stubResourceProvider) ReadResource(_ context.Context, uri string) (*protocol.ReadResourceResult, error) {
	return &protocol.ReadResourceResult{
		Contents: []protocol.ResourceContents{{URI: uri, MimeType: "application/json", Text: "{}"}},
	}, nil
}

func handle(t *testing.T, s *MCPServer, msg string) *protocol.Response {
	t.Helper()
	respBytes, err := s.HandleMessage(context.Background(), []byte(msg))
	require.NoError(t, err)
	require.NotNil(t, respBytes)
	var resp protocol.Response
	require.NoError(t, json.Unmarshal(respBytes, &resp))
	assert.Equal(t, protocol.JSONRPCVersion, resp.JSONRPC)
	return &resp
}

func TestHandleMessage_Initialize(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil,
		WithToolProvider(&stubToolProvider{}),
		WithLogLevelSetter(func(string) error { return nil }),
	)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test-client","version":"0.1"},"capabilities":{}}}`)
	require.Nil(t, resp.Error)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocol.ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "bigquery-mcp", result.ServerInfo.Name)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.NotNil(t, result.Capabilities.Logging)
	assert.Nil(t, result.Capabilities.Resources, "resources capability stays off without a provider")

	require.NotNil(t, s.ClientInfo())
	assert.Equal(t, "test-client", s.ClientInfo().Name)
}

func TestHandleMessage_InitializeVersionMismatchStillAnswers(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"old","version":"0"}}}`)
	require.Nil(t, resp.Error)

	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, protocol.ProtocolVersion, result.ProtocolVersion)

	// The mismatch is also surfaced to the client as a log notification.
	select {
	case notif := <-s.Notifications():
		var msg struct {
			Method string                   `json:"method"`
			Params protocol.LogNotification `json:"params"`
		}
		require.NoError(t, json.Unmarshal(notif, &msg))
		assert.Equal(t, "notifications/message", msg.Method)
		assert.Equal(t, "warning", msg.Params.Level)
	default:
		t.Fatal("expected a version mismatch notification")
	}
}

func TestHandleMessage_Ping(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)
	resp := handle(t, s, `{"jsonrpc":"2.0","id":"ping-1","method":"ping"}`)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{}`, string(resp.Result))
	require.NotNil(t, resp.ID)
	require.NotNil(t, resp.ID.Str)
	assert.Equal(t, "ping-1", *resp.ID.Str)
}

func TestHandleMessage_IDEcho(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)

	resp := handle(t, s, `{"jsonrpc":"2.0","id":42,"method":"ping"}`)
	require.NotNil(t, resp.ID.Num)
	assert.Equal(t, int64(42), *resp.ID.Num)

	resp = handle(t, s, `{"jsonrpc":"2.0","id":"abc","method":"ping"}`)
	require.NotNil(t, resp.ID.Str)
	assert.Equal(t, "abc", *resp.ID.Str)
}

func TestHandleMessage_ParseError(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)
	resp := handle(t, s, `{not json`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ParseError, resp.Error.Code)
}

func TestHandleMessage_InvalidRequest(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)
	resp := handle(t, s, `{"jsonrpc":"1.0","id":1,"method":"ping"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidRequest, resp.Error.Code)
}

func TestHandleMessage_MethodNotFound(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)
	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"no/such/method"}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.MethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no/such/method")
}

func TestHandleMessage_NotificationsProduceNoResponse(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)

	resp, err := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	assert.Nil(t, resp)

	// Unknown-method notifications are dropped, not answered with an error.
	resp, err = s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/unknown"}`))
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestToolsCall_ProtocolErrorKeepsCode(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		callFn: func(_ context.Context, _ string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
			return nil, protocol.NewError(protocol.CodeRateLimited, "rate limit exceeded", nil)
		},
	}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_query","arguments":{"sql":"SELECT 1"}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeRateLimited, resp.Error.Code)
	assert.Nil(t, resp.Result)
}

func TestToolsCall_PlainErrorBecomesToolError(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		callFn: func(_ context.Context, _ string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
			return nil, errors.New("query failed: Table not found")
		},
	}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"execute_query","arguments":{"sql":"SELECT 1"}}}`)
	require.Nil(t, resp.Error, "tool failures travel inside the result")

	var result protocol.CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.True(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Contains(t, result.Content[0].Text, "Table not found")
}

func TestToolsCall_MissingName(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		callFn: func(_ context.Context, _ string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
			t.Fatal("provider must not be called without a tool name")
			return nil, nil
		},
	}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"arguments":{}}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestToolsList(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		tools: []protocol.Tool{{Name: "execute_query"}, {Name: "list_datasets"}},
	}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Nil(t, resp.Error)

	var result protocol.ToolListResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Tools, 2)
	assert.Equal(t, "execute_query", result.Tools[0].Name)
}

func TestResourcesListAndRead(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithResourceProvider(&stubResourceProvider{}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"resources/list"}`)
	require.Nil(t, resp.Error)
	var list protocol.ResourceListResult
	require.NoError(t, json.Unmarshal(resp.Result, &list))
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "bq://my-project/ds1", list.Resources[0].URI)

	resp = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"bq://my-project/ds1"}}`)
	require.Nil(t, resp.Error)
	var read protocol.ReadResourceResult
	require.NoError(t, json.Unmarshal(resp.Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MimeType)

	resp = handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"resources/read","params":{}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

func TestSetLevel(t *testing.T) {
	var got string
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithLogLevelSetter(func(level string) error {
		got = level
		return nil
	}))

	resp := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"logging/setLevel","params":{"level":"warning"}}`)
	require.Nil(t, resp.Error)
	assert.Equal(t, "warning", got)

	resp = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"logging/setLevel","params":{"level":"loud"}}`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.InvalidParams, resp.Error.Code)
}

// TestServe_PipelinedRequests drives a full session over a pipe transport:
// several requests written back to back, each answered on the same
// connection, correlated by id.
func TestServe_PipelinedRequests(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		tools: []protocol.Tool{{Name: "execute_query"}},
		callFn: func(_ context.Context, name string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
			return &protocol.CallToolResult{
				Content: []protocol.Content{{Type: "text", Text: name + " ok"}},
			}, nil
		},
	}))

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	tr := transport.NewStdioServerTransport(inR, outW)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- s.Serve(ctx, tr) }()

	_, err := inW.Write([]byte(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}` + "\n" +
			`{"jsonrpc":"2.0","method":"notifications/initialized"}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n" +
			`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"execute_query","arguments":{"sql":"SELECT 1"}}}` + "\n",
	))
	require.NoError(t, err)

	// Three requests carry ids, so three responses come back. Order is not
	// guaranteed with concurrent workers.
	scanner := bufio.NewScanner(outR)
	byID := map[int64]protocol.Response{}
	for i := 0; i < 3; i++ {
		require.True(t, scanner.Scan(), "expected response %d: %v", i, scanner.Err())
		var resp protocol.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		require.NotNil(t, resp.ID)
		require.NotNil(t, resp.ID.Num)
		byID[*resp.ID.Num] = resp
	}
	require.Len(t, byID, 3)

	require.Nil(t, byID[1].Error)
	var initResult protocol.InitializeResult
	require.NoError(t, json.Unmarshal(byID[1].Result, &initResult))
	assert.Equal(t, protocol.ProtocolVersion, initResult.ProtocolVersion)

	require.Nil(t, byID[2].Error)
	var toolList protocol.ToolListResult
	require.NoError(t, json.Unmarshal(byID[2].Result, &toolList))
	require.Len(t, toolList.Tools, 1)

	require.Nil(t, byID[3].Error)
	var callResult protocol.CallToolResult
	require.NoError(t, json.Unmarshal(byID[3].Result, &callResult))
	assert.Equal(t, "execute_query ok", callResult.Content[0].Text)

	cancel()
	select {
	case err := <-serveDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

// TestServe_DisconnectAfterBurstFlushesResponses covers the client that
// writes several requests and then hangs up. Serve must answer everything
// it already received and then return, rather than hanging on the worker
// pool.
func TestServe_DisconnectAfterBurstFlushesResponses(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil, WithToolProvider(&stubToolProvider{
		tools: []protocol.Tool{{Name: "execute_query"}},
		callFn: func(_ context.Context, name string, _ map[string]interface{}) (*protocol.CallToolResult, error) {
			return &protocol.CallToolResult{
				Content: []protocol.Content{{Type: "text", Text: name + " ok"}},
			}, nil
		},
	}))

	// The reader sees EOF as soon as the burst is consumed.
	in := strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26"}}` + "\n" +
			`{"jsonrpc":"2.0","id":2,"method":"tools/list"}` + "\n" +
			`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"execute_query","arguments":{"sql":"SELECT 1"}}}` + "\n",
	)
	var out bytes.Buffer
	tr := transport.NewStdioServerTransport(in, &out)

	serveDone := make(chan error, 1)
	go func() { serveDone <- s.Serve(context.Background(), tr) }()

	select {
	case err := <-serveDone:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the client disconnected")
	}

	ids := map[int64]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	for scanner.Scan() {
		var resp protocol.Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		require.NotNil(t, resp.ID)
		require.NotNil(t, resp.ID.Num)
		require.Nil(t, resp.Error)
		ids[*resp.ID.Num] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, ids)
}

func TestNotifyLog(t *testing.T) {
	s := NewMCPServer("bigquery-mcp", "1.0.0", nil)
	s.NotifyLog("warning", "bigquery", map[string]interface{}{"msg": "slot contention"})

	select {
	case notif := <-s.notifyCh:
		var msg struct {
			JSONRPC string                 `json:"jsonrpc"`
			Method  string                 `json:"method"`
			Params  protocol.LogNotification `json:"params"`
		}
		require.NoError(t, json.Unmarshal(notif, &msg))
		assert.Equal(t, "notifications/message", msg.Method)
		assert.Equal(t, "warning", msg.Params.Level)
		assert.Equal(t, "bigquery", msg.Params.Logger)
	default:
		t.Fatal("expected a queued notification")
	}
}
