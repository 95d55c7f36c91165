// Package events implements the internal dashboard/events fan-out
// connection manager: operations staff watch job and session lifecycle
// events over a WebSocket, subscribed per tenant. Grounded on the
// teacher's pkg/events/manager.go connection registry, adapted from its
// Postgres LISTEN/NOTIFY-backed channel model to a simpler in-process
// publish/subscribe (this service emits its own events synchronously at
// the point of mutation, so there is no out-of-process NOTIFY source to
// bridge).
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Event is one fan-out message. Type names a lifecycle event
// ("job.created", "job.status_changed", "session.opened",
// "session.closed", "escalation.triggered").
type Event struct {
	Type      string         `json:"type"`
	TenantID  string         `json:"tenant_id"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload"`
}

// Manager manages dashboard WebSocket connections and their tenant-scoped
// subscriptions. One Manager instance per process.
type Manager struct {
	connections map[string]*connection
	mu          sync.RWMutex

	tenants   map[string]map[string]bool // tenantID -> set of connection ids
	tenantsMu sync.RWMutex

	writeTimeout time.Duration
}

type connection struct {
	id       string
	conn     *websocket.Conn
	tenantID string
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewManager constructs a Manager.
func NewManager(writeTimeout time.Duration) *Manager {
	return &Manager{
		connections:  make(map[string]*connection),
		tenants:      make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages one dashboard client's lifecycle: registers it
// under tenantID, sends a connection.established message, then blocks
// reading (and discarding) client frames until the socket closes — the
// dashboard channel is server-push only, so inbound frames are just
// liveness pings.
func (m *Manager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, tenantID string) {
	ctx, cancel := context.WithCancel(parentCtx)
	c := &connection{id: uuid.NewString(), conn: conn, tenantID: tenantID, ctx: ctx, cancel: cancel}

	m.register(c)
	defer m.unregister(c)

	m.sendJSON(c, map[string]string{"type": "connection.established", "connection_id": c.id})

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Publish fans an event out to every connection subscribed to its tenant.
func (m *Manager) Publish(evt Event) {
	m.tenantsMu.RLock()
	ids, ok := m.tenants[evt.TenantID]
	if !ok {
		m.tenantsMu.RUnlock()
		return
	}
	idList := make([]string, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	m.tenantsMu.RUnlock()

	m.mu.RLock()
	conns := make([]*connection, 0, len(idList))
	for _, id := range idList {
		if c, ok := m.connections[id]; ok {
			conns = append(conns, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range conns {
		m.sendJSON(c, evt)
	}
}

// ActiveConnections reports the number of live dashboard connections.
func (m *Manager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

func (m *Manager) register(c *connection) {
	m.mu.Lock()
	m.connections[c.id] = c
	m.mu.Unlock()

	m.tenantsMu.Lock()
	if m.tenants[c.tenantID] == nil {
		m.tenants[c.tenantID] = make(map[string]bool)
	}
	m.tenants[c.tenantID][c.id] = true
	m.tenantsMu.Unlock()
}

func (m *Manager) unregister(c *connection) {
	m.tenantsMu.Lock()
	if subs, ok := m.tenants[c.tenantID]; ok {
		delete(subs, c.id)
		if len(subs) == 0 {
			delete(m.tenants, c.tenantID)
		}
	}
	m.tenantsMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.id)
	m.mu.Unlock()

	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "")
}

func (m *Manager) sendJSON(c *connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("failed to marshal dashboard event", "connection_id", c.id, "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("failed to send dashboard event", "connection_id", c.id, "error", err)
	}
}
