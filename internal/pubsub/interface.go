// Package pubsub fans live-update events out to every dev server subscribed
// to the same stream. The local backend stays in-process; the redis backend
// lets several dev servers share one notification stream.
package pubsub

import (
	"context"
)

// Message represents a pub/sub message
type Message struct {
	// Channel is the channel the message was published to
	Channel string `json:"channel"`

	// Payload is the encoded live-update event
	Payload []byte `json:"payload"`
}

// PubSub is the interface for pub/sub backends.
// Implementations must be safe for concurrent use.
type PubSub interface {
	// Publish sends a message to all subscribers of a channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a channel that receives messages published to the given channel.
	// The returned channel is closed when the context is cancelled or Close is called.
	// Multiple calls to Subscribe with the same channel create independent subscriptions.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)

	// Close releases all resources and closes all subscriptions.
	Close() error
}

// LiveUpdateChannel carries artifact update events between dev servers
const LiveUpdateChannel = "officefn:live-update"
