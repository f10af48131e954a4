// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, send func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		send(conn)
		time.Sleep(200 * time.Millisecond)
	}))
	return srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestTracker_ProgressEventUpsertsEntry(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"progress","data":{"value":5,"max":10,"node":"n1","prompt_id":"job-1"}}`))
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), "agent-client", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		e, ok := tr.Lookup("job-1")
		return ok && e.Percent == 50 && e.Status == StatusRunning
	}, 800*time.Millisecond, 10*time.Millisecond)
}

func TestTracker_ExecutedMarksCompleted(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"progress","data":{"value":1,"max":10,"prompt_id":"job-2"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"executed","data":{"prompt_id":"job-2"}}`))
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), "agent-client", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		e, ok := tr.Lookup("job-2")
		return ok && e.Status == StatusCompleted && e.Percent == 100
	}, 800*time.Millisecond, 10*time.Millisecond)
}

func TestTracker_CompletedIsStickyAgainstStragglingProgress(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"executed","data":{"prompt_id":"job-3"}}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"progress","data":{"value":1,"max":10,"prompt_id":"job-3"}}`))
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), "agent-client", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		e, ok := tr.Lookup("job-3")
		return ok && e.Status == StatusCompleted
	}, 800*time.Millisecond, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	e, ok := tr.Lookup("job-3")
	require.True(t, ok)
	require.Equal(t, StatusCompleted, e.Status)
	require.Equal(t, 100.0, e.Percent)
}

func TestTracker_ExecutionErrorOverwritesEntry(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"execution_error","data":{"prompt_id":"job-4","exception_message":"boom"}}`))
	})
	defer srv.Close()

	tr := New(wsURL(srv.URL), "agent-client", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		e, ok := tr.Lookup("job-4")
		return ok && e.Status == StatusError && e.Error == "boom"
	}, 800*time.Millisecond, 10*time.Millisecond)
}

func TestTracker_ConnectedFlag(t *testing.T) {
	srv := newTestServer(t, func(conn *websocket.Conn) {})
	defer srv.Close()

	tr := New(wsURL(srv.URL), "agent-client", nil)
	require.False(t, tr.Connected())

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool {
		return tr.Connected()
	}, 800*time.Millisecond, 10*time.Millisecond)
}
