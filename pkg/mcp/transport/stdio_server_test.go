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

package transport

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioReceive(t *testing.T) {
	in := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	tr := NewStdioServerTransport(in, io.Discard)

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, string(msg))

	_, err = tr.Receive(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStdioReceive_Pipelined(t *testing.T) {
	in := strings.NewReader("{\"id\":1}\n{\"id\":2}\n{\"id\":3}\n")
	tr := NewStdioServerTransport(in, io.Discard)

	for _, want := range []string{`{"id":1}`, `{"id":2}`, `{"id":3}`} {
		msg, err := tr.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, string(msg))
	}
}

func TestStdioReceive_TrimsCRLFAndSkipsBlankLines(t *testing.T) {
	in := strings.NewReader("{\"id\":1}\r\n\n\r\n{\"id\":2}\n")
	tr := NewStdioServerTransport(in, io.Discard)

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, string(msg))

	msg, err = tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":2}`, string(msg))
}

func TestStdioReceive_ContextCancel(t *testing.T) {
	inR, _ := io.Pipe() // never written: Receive blocks until cancel
	tr := NewStdioServerTransport(inR, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdioReceive_ReaderSurvivesCancelledCall(t *testing.T) {
	inR, inW := io.Pipe()
	tr := NewStdioServerTransport(inR, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	_, err := tr.Receive(ctx)
	cancel()
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// A line arriving after the cancelled call is delivered to the next one.
	go func() {
		_, _ = inW.Write([]byte("{\"id\":7}\n"))
	}()

	msg, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"id":7}`, string(msg))
}

func TestStdioSend(t *testing.T) {
	var out bytes.Buffer
	tr := NewStdioServerTransport(strings.NewReader(""), &out)

	require.NoError(t, tr.Send(context.Background(), []byte(`{"id":1,"result":{}}`)))
	require.NoError(t, tr.Send(context.Background(), []byte(`{"id":2,"result":{}}`)))

	assert.Equal(t, "{\"id\":1,\"result\":{}}\n{\"id\":2,\"result\":{}}\n", out.String())
}

func TestStdioClosed(t *testing.T) {
	tr := NewStdioServerTransport(strings.NewReader(""), io.Discard)
	require.NoError(t, tr.Close())

	err := tr.Send(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = tr.Receive(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
