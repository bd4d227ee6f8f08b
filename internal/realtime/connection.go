package realtime

import (
	"sync"
	"time"
)

// Sender is the write side of a websocket connection
type Sender interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Connection represents a live-update client
type Connection struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn   Sender
	mu     sync.Mutex
	closed bool
}

// NewConnection wraps conn
func NewConnection(id string, conn Sender, remoteAddr string) *Connection {
	return &Connection{
		ID:          id,
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// SendMessage writes msg to the client. Writes are serialized.
func (c *Connection) SendMessage(msg interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	return c.conn.WriteJSON(msg)
}

// Close closes the underlying connection once
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
