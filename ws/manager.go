package ws

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// ErrNotConnected is returned when a device has no live socket.
var ErrNotConnected = errors.New("device not connected")

// Conn is one device socket. gorilla allows a single concurrent writer, so writes go
// through mu.
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *Conn) write(payload []byte, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Manager keeps track of active device websocket connections.
type Manager struct {
	connections cmap.ConcurrentMap[string, *Conn] // deviceID -> conn
}

func NewManager() *Manager {
	return &Manager{connections: cmap.New[*Conn]()}
}

// Register registers a device connection, replacing and closing any existing one.
func (m *Manager) Register(deviceID string, conn *websocket.Conn) *Conn {
	c := &Conn{conn: conn}
	m.connections.Upsert(deviceID, c, func(exist bool, old *Conn, new *Conn) *Conn {
		if exist && old.conn != conn {
			_ = old.conn.Close()
		}
		return new
	})
	return c
}

// Unregister removes the device connection if it is still c. It reports whether the
// device is now without a socket.
func (m *Manager) Unregister(deviceID string, c *Conn) bool {
	removed := m.connections.RemoveCb(deviceID, func(key string, v *Conn, exists bool) bool {
		return exists && v == c
	})
	_ = c.conn.Close()
	return removed
}

// SendToDevice sends a text message to a device if connected. A zero deadline means
// no write deadline.
func (m *Manager) SendToDevice(deviceID string, payload []byte, deadline time.Time) error {
	c, ok := m.connections.Get(deviceID)
	if !ok {
		return ErrNotConnected
	}
	return c.write(payload, deadline)
}

// IsConnected returns whether a device is currently connected.
func (m *Manager) IsConnected(deviceID string) bool {
	return m.connections.Has(deviceID)
}

// List returns the connected device IDs in ascending order.
func (m *Manager) List() []string {
	ids := m.connections.Keys()
	sort.Strings(ids)
	return ids
}
