package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestManager(t *testing.T, tenantID string) (*Manager, *httptest.Server) {
	t.Helper()
	m := NewManager(5 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		m.HandleConnection(r.Context(), conn, tenantID)
	}))
	t.Cleanup(server.Close)
	return m, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestManager_ConnectSendsEstablished(t *testing.T) {
	_, server := setupTestManager(t, "tenant-1")
	conn := connectWS(t, server)
	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
}

func TestManager_PublishDeliversToSameTenantOnly(t *testing.T) {
	m, server := setupTestManager(t, "tenant-1")
	conn := connectWS(t, server)
	readJSON(t, conn) // drain connection.established

	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	m.Publish(Event{Type: "job.created", TenantID: "tenant-1", Payload: map[string]any{"job_id": "JOB-2026-0001"}})
	msg := readJSON(t, conn)
	assert.Equal(t, "job.created", msg["type"])

	// A publish to a different tenant must not reach this connection; we
	// can't prove a negative with a read (it would block), so instead
	// confirm the other tenant has no registered connections to receive it.
	m.Publish(Event{Type: "job.created", TenantID: "tenant-2", Payload: nil})
	assert.Equal(t, 1, m.ActiveConnections())
}

func TestManager_UnregisterOnClose(t *testing.T) {
	m, server := setupTestManager(t, "tenant-1")
	conn := connectWS(t, server)
	readJSON(t, conn)
	require.Eventually(t, func() bool { return m.ActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return m.ActiveConnections() == 0 }, time.Second, 10*time.Millisecond)
}
