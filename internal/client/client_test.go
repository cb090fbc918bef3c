package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/mirror/internal/proto"
	"github.com/charmbracelet/mirror/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = proto.SessionKey{Directory: "/work", ID: "s1"}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := New("tcp://" + srv.Listener.Addr().String())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestParseHostURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host    string
		scheme  string
		addr    string
		wantErr bool
	}{
		{host: "unix:///tmp/crush.sock", scheme: "unix", addr: "/tmp/crush.sock"},
		{host: "tcp://127.0.0.1:8080", scheme: "tcp", addr: "127.0.0.1:8080"},
		{host: "npipe:////./pipe/crush.sock", scheme: "npipe", addr: "//./pipe/crush.sock"},
		{host: "127.0.0.1:8080", wantErr: true},
		{host: "ftp://example.com", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			t.Parallel()
			u, err := ParseHostURL(tt.host)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.scheme, u.Scheme)
			require.Equal(t, tt.addr, u.Host)
		})
	}
}

func TestDefaultHost(t *testing.T) {
	t.Parallel()

	u, err := ParseHostURL(DefaultHost())
	require.NoError(t, err)
	require.Contains(t, []string{"unix", "npipe"}, u.Scheme)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("GET /v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, proto.VersionInfo{Version: "v0.9.0"})
	})
	c := newTestClient(t, mux)

	require.NoError(t, c.Health(t.Context()))
	vi, err := c.VersionInfo(t.Context())
	require.NoError(t, err)
	require.Equal(t, "v0.9.0", vi.Version)
}

func TestClient_Sessions(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/work", r.URL.Query().Get("directory"))
		writeJSON(w, []proto.Session{{ID: "s1", Directory: "/work", Title: "first"}})
	})
	mux.HandleFunc("GET /v1/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "s1" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, proto.Error{Message: "session not found"})
			return
		}
		writeJSON(w, proto.Session{ID: "s1", Title: "first", Summary: &proto.DiffSummary{Additions: 3, Files: 1}})
	})
	c := newTestClient(t, mux)

	sessions, err := c.ListSessions(t.Context(), "/work")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, testKey, sessions[0].Key())

	sess, err := c.GetSession(t.Context(), testKey)
	require.NoError(t, err)
	require.Equal(t, testKey, sess.Key(), "directory is filled from the key")
	require.Equal(t, &proto.DiffSummary{Additions: 3, Files: 1}, sess.Summary)

	_, err = c.GetSession(t.Context(), proto.SessionKey{Directory: "/work", ID: "nope"})
	var serr *StatusError
	require.True(t, errors.As(err, &serr))
	require.True(t, serr.NotFound())
	require.Equal(t, "session not found", serr.Message)
}

func TestClient_ListMessages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[
			{"info": {"id": "a", "sessionID": "s1", "role": "user", "time": {"created": 1}},
			 "parts": [{"id": "p1", "sessionID": "s1", "messageID": "a", "type": "text", "text": "hi"}]},
			{"info": {"id": "b", "sessionID": "s1", "role": "assistant", "parentID": "a", "time": {"created": 2}},
			 "parts": [{"id": "p2", "sessionID": "s1", "messageID": "b", "type": "tool", "tool": "bash",
			            "callID": "c1", "state": {"status": "running"}}]}
		]`)
	})
	c := newTestClient(t, mux)

	msgs, err := c.ListMessages(t.Context(), testKey)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, proto.UserMessage{ID: "a", SessionID: "s1", Time: proto.MessageTime{Created: 1}}, msgs[0].Info)
	require.Equal(t, "a", msgs[1].Info.(proto.AssistantMessage).ParentID)
	require.Equal(t, proto.ToolStatusRunning, msgs[1].Parts[0].(proto.ToolPart).State.Status)
}

func TestClient_ListDiffs(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session/{id}/diff", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []proto.FileDiff{{File: "a.go", Before: "", After: "x\ny\n"}})
	})
	c := newTestClient(t, mux)

	diffs, err := c.ListDiffs(t.Context(), testKey)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	require.Equal(t, 2, diffs[0].Additions, "missing counts are computed")
}

func TestClient_ServerError(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/session/{id}/message", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestClient(t, mux)

	_, err := c.ListMessages(t.Context(), testKey)
	var serr *StatusError
	require.ErrorAs(t, err, &serr)
	require.Equal(t, http.StatusInternalServerError, serr.Code)
	require.False(t, serr.NotFound())
	require.Equal(t, "get messages", serr.Op)
}

func TestClient_SubscribeEvents(t *testing.T) {
	t.Parallel()

	part := pubsub.Event[proto.PartEvent]{
		Type: pubsub.UpdatedEvent,
		Payload: proto.PartEvent{
			Directory: "/work",
			SessionID: "s1",
			Part:      proto.TextPart{PartBase: proto.PartBase{ID: "p1", SessionID: "s1", MessageID: "a"}, Text: "hel"},
		},
	}
	partData, err := json.Marshal(part)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/event", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, ": keepalive\n\n")
		_, _ = fmt.Fprint(w, `data: {"type":"created","payload":{"type":"server_connected","payload":{}}}`+"\n\n")
		_, _ = fmt.Fprint(w, "data: not json\n\n")
		_, _ = fmt.Fprintf(w, "data: %s\n\n", partData)
	})
	c := newTestClient(t, mux)

	events, err := c.SubscribeEvents(t.Context(), "/work")
	require.NoError(t, err)

	var got []any
	timeout := time.After(5 * time.Second)
	for done := false; !done; {
		select {
		case ev, ok := <-events:
			if !ok {
				done = true
				break
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out reading events")
		}
	}

	require.Equal(t, []any{
		pubsub.Event[proto.ServerConnected]{Type: pubsub.CreatedEvent},
		part,
	}, got)
}

func TestClient_SubscribeEventsCancel(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/event", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	c := newTestClient(t, mux)

	ctx, cancel := context.WithCancel(t.Context())
	events, err := c.SubscribeEvents(ctx, "")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-events:
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("stream was not closed")
	}
}

func TestLoggingTransport(t *testing.T) {
	t.Parallel()

	var calls int
	tr := loggingTransport{next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls++
		if r.URL.Path == "/fail" {
			return nil, errors.New("boom")
		}
		return &http.Response{StatusCode: http.StatusTeapot, Body: http.NoBody}, nil
	})}

	req, err := http.NewRequest(http.MethodGet, "http://"+DummyHost+"/ok", nil)
	require.NoError(t, err)
	rsp, err := tr.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, rsp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, "http://"+DummyHost+"/fail", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	require.EqualError(t, err, "boom")
	require.Equal(t, 2, calls)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
