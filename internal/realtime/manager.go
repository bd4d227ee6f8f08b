// Package realtime pushes live-update signals to dev clients over websockets.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/pubsub"
)

var errConnectionClosed = errors.New("connection closed")

// Manager tracks live-update connections and fans signals out to them.
// With a pub/sub backend every signal goes through the shared stream, so
// clients of other dev servers on the same stream receive it too.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	ps          pubsub.PubSub
	metrics     *observability.Metrics
	wg          sync.WaitGroup
}

// NewManager creates a manager. ps may be nil for local-only delivery.
func NewManager(ctx context.Context, ps pubsub.PubSub, metrics *observability.Metrics) (*Manager, error) {
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		connections: make(map[string]*Connection),
		ctx:         ctx,
		cancel:      cancel,
		ps:          ps,
		metrics:     metrics,
	}

	if ps != nil {
		ch, err := ps.Subscribe(ctx, pubsub.LiveUpdateChannel)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe to live-update channel: %w", err)
		}
		m.wg.Add(1)
		go m.consume(ch)
	}

	return m, nil
}

func (m *Manager) consume(ch <-chan pubsub.Message) {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var message ServerMessage
			if err := json.Unmarshal(msg.Payload, &message); err != nil {
				log.Error().Err(err).Msg("Failed to decode live-update message")
				continue
			}
			m.deliver(message)
		}
	}
}

// AddConnection registers conn and greets it
func (m *Manager) AddConnection(conn Sender, remoteAddr string) *Connection {
	connection := NewConnection(uuid.New().String(), conn, remoteAddr)

	m.mu.Lock()
	m.connections[connection.ID] = connection
	count := len(m.connections)
	m.mu.Unlock()

	m.metrics.UpdateLiveConnections(count)

	if err := connection.SendMessage(ConnectedMessage()); err != nil {
		log.Debug().Err(err).Str("connection_id", connection.ID).Msg("Failed to greet live-update client")
	}

	log.Debug().
		Str("connection_id", connection.ID).
		Str("remote_addr", remoteAddr).
		Msg("Live-update client connected")

	return connection
}

// RemoveConnection unregisters and closes a connection
func (m *Manager) RemoveConnection(id string) {
	m.mu.Lock()
	connection, exists := m.connections[id]
	if !exists {
		m.mu.Unlock()
		return
	}
	delete(m.connections, id)
	count := len(m.connections)
	m.mu.Unlock()

	_ = connection.Close()
	m.metrics.UpdateLiveConnections(count)

	log.Debug().Str("connection_id", id).Msg("Live-update client disconnected")
}

// ConnectionCount returns the number of connected clients
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Broadcast sends message to every client, through the pub/sub stream when
// one is configured
func (m *Manager) Broadcast(message ServerMessage) error {
	m.metrics.RecordLiveBroadcast(string(message.Type))

	if m.ps == nil {
		m.deliver(message)
		return nil
	}

	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return m.ps.Publish(m.ctx, pubsub.LiveUpdateChannel, payload)
}

// deliver writes message to the local clients. Clients whose write fails
// are dropped.
func (m *Manager) deliver(message ServerMessage) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()

	sent := 0
	for _, conn := range conns {
		if err := conn.SendMessage(message); err != nil {
			log.Debug().
				Err(err).
				Str("connection_id", conn.ID).
				Msg("Failed to send live-update message")
			m.RemoveConnection(conn.ID)
			continue
		}
		sent++
	}

	log.Debug().
		Str("type", string(message.Type)).
		Int("recipients", sent).
		Msg("Live-update message sent")

	return sent
}

// ScriptUpdated reloads clients and names the script that changed
func (m *Manager) ScriptUpdated(file string) {
	m.broadcastLogged(FullReloadMessage())
	m.broadcastLogged(FunctionsUpdatedMessage(file))
}

// ManifestUpdated names the manifest that changed
func (m *Manager) ManifestUpdated(file string) {
	m.broadcastLogged(FunctionsUpdatedMessage(file))
}

func (m *Manager) broadcastLogged(message ServerMessage) {
	if err := m.Broadcast(message); err != nil {
		log.Warn().Err(err).Str("type", string(message.Type)).Msg("Failed to broadcast live-update message")
	}
}

// StartPing pings every client each interval until Shutdown. Pings stay
// local to this server.
func (m *Manager) StartPing(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				m.deliver(PingMessage())
			}
		}
	}()
}

// Shutdown stops background work and closes every connection
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	connsToClose := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		connsToClose = append(connsToClose, conn)
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range connsToClose {
		_ = conn.Close()
	}
	m.metrics.UpdateLiveConnections(0)
}
