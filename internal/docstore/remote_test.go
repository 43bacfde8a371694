package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// frameServer upgrades every listener request and sends frames in order,
// then waits for the client to hang up.
func frameServer(t *testing.T, frames ...Frame) (*httptest.Server, chan *http.Request) {
	t.Helper()
	seen := make(chan *http.Request, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			data, err := EncodeFrame(f)
			if err != nil {
				t.Errorf("encode frame: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestNewRemoteClient_RejectsBadURL(t *testing.T) {
	_, err := NewRemoteClient("ftp://example.com")
	assert.Error(t, err)

	_, err = NewRemoteClient("://nope")
	assert.Error(t, err)
}

func TestRemoteClient_OpenListenerDeliversSnapshots(t *testing.T) {
	srv, seen := frameServer(t,
		Frame{Type: FrameSnapshot},
		Frame{Type: FrameSnapshot, Documents: []Document{{ID: "a", Fields: map[string]any{"amount": 4.0}}}},
	)

	c, err := NewRemoteClient(srv.URL, WithToken("secret"))
	require.NoError(t, err)

	rec := newRecorder()
	closeFn, err := c.OpenListener("ledger", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer closeFn()

	r := <-seen
	assert.Equal(t, "/api/collections/ledger/ws", r.URL.Path)
	assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

	snap := rec.waitFor(t, func(d []Document) bool { return len(d) == 1 })
	assert.Equal(t, "a", snap[0].ID)

	rec.mu.Lock()
	assert.NotNil(t, rec.snaps[0], "empty snapshot is an empty list, not nil")
	assert.Empty(t, rec.errs)
	rec.mu.Unlock()
}

func TestRemoteClient_ErrorFrameEndsListener(t *testing.T) {
	srv, _ := frameServer(t, Frame{Type: FrameError, Error: "permission denied"})

	c, err := NewRemoteClient(srv.URL)
	require.NoError(t, err)

	rec := newRecorder()
	closeFn, err := c.OpenListener("Active_Agents", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer closeFn()

	rec.wait(t)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0].Error(), "permission denied")
}

func TestRemoteClient_ServerHangupReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()

	c, err := NewRemoteClient(srv.URL)
	require.NoError(t, err)

	rec := newRecorder()
	closeFn, err := c.OpenListener("ledger", rec.onSnapshot, rec.onError)
	require.NoError(t, err)
	defer closeFn()

	rec.wait(t)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.errs, 1)
	assert.Contains(t, rec.errs[0].Error(), "connection lost")
}

func TestRemoteClient_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewRemoteClient(srv.URL)
	require.NoError(t, err)

	_, err = c.OpenListener("ledger", func([]Document) {}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestRemoteClient_WriteDocument(t *testing.T) {
	var (
		gotPath string
		gotBody WriteRequest
		gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewRemoteClient(srv.URL, WithToken("tok"))
	require.NoError(t, err)

	err = c.WriteDocument(context.Background(), "System_Status", "main api", map[string]any{"RCIA_SCRAPE": true}, true)
	require.NoError(t, err)

	assert.Equal(t, "/api/collections/System_Status/documents/main%20api", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.True(t, gotBody.Merge)
	assert.Equal(t, true, gotBody.Fields["RCIA_SCRAPE"])
}

func TestRemoteClient_WriteDocumentStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		denied  bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"missing token"}`, wantErr: "missing token", denied: true},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":"nope"}`, wantErr: "nope", denied: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad field"}`, wantErr: "write rejected: bad field"},
		{name: "server error", status: http.StatusServiceUnavailable, body: "down", wantErr: "status 503: down"},
		{name: "empty body", status: http.StatusInternalServerError, wantErr: "empty response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := NewRemoteClient(srv.URL)
			require.NoError(t, err)

			err = c.WriteDocument(context.Background(), "ledger", "a", map[string]any{}, false)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "got %q", err)
			assert.Equal(t, tt.denied, errors.Is(err, ErrPermissionDenied))
		})
	}
}

func TestRemoteClient_WriteValidation(t *testing.T) {
	c, err := NewRemoteClient("http://127.0.0.1:1")
	require.NoError(t, err)

	assert.ErrorIs(t, c.WriteDocument(context.Background(), "", "a", nil, true), ErrInvalidCollection)
	assert.ErrorIs(t, c.WriteDocument(context.Background(), "ledger", "a/b", nil, true), ErrInvalidDocumentID)
}
