package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
)

// subscriberBuffer is how many undelivered events a subscriber may hold
const subscriberBuffer = 32

type localSubscriber struct {
	ch     chan Message
	closed bool
	mu     sync.Mutex
}

// send delivers without blocking. Returns false if the subscriber is closed
// or its buffer is full.
func (s *localSubscriber) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}

func (s *localSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// LocalPubSub delivers messages within the same process
type LocalPubSub struct {
	subscribers map[string][]*localSubscriber
	mu          sync.RWMutex
	dropped     atomic.Int64
}

// NewLocalPubSub creates a new local pub/sub.
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{
		subscribers: make(map[string][]*localSubscriber),
	}
}

// Publish sends a message to all local subscribers of a channel. Slow
// subscribers miss the message instead of blocking the publisher.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.RLock()
	subs := make([]*localSubscriber, len(l.subscribers[channel]))
	copy(subs, l.subscribers[channel])
	l.mu.RUnlock()

	msg := Message{
		Channel: channel,
		Payload: payload,
	}

	for _, sub := range subs {
		if !sub.send(msg) {
			l.dropped.Add(1)
		}
	}

	return nil
}

// Subscribe returns a channel that receives messages published to the given channel.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &localSubscriber{
		ch: make(chan Message, subscriberBuffer),
	}

	l.mu.Lock()
	l.subscribers[channel] = append(l.subscribers[channel], sub)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unsubscribe(channel, sub)
	}()

	return sub.ch, nil
}

// Subscribers returns the number of live subscriptions on channel
func (l *LocalPubSub) Subscribers(channel string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subscribers[channel])
}

// Dropped returns how many deliveries were skipped because a subscriber was
// closed or full
func (l *LocalPubSub) Dropped() int64 {
	return l.dropped.Load()
}

func (l *LocalPubSub) unsubscribe(channel string, sub *localSubscriber) {
	l.mu.Lock()
	subs := l.subscribers[channel]
	for i, s := range subs {
		if s == sub {
			l.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(l.subscribers[channel]) == 0 {
		delete(l.subscribers, channel)
	}
	l.mu.Unlock()

	sub.close()
}

// Close closes every subscription.
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	allSubs := make([]*localSubscriber, 0)
	for _, subs := range l.subscribers {
		allSubs = append(allSubs, subs...)
	}
	l.subscribers = make(map[string][]*localSubscriber)
	l.mu.Unlock()

	for _, sub := range allSubs {
		sub.close()
	}

	return nil
}
