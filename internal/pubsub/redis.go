package pubsub

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// connectTimeout bounds the initial ping
const connectTimeout = 5 * time.Second

// RedisPubSub implements PubSub on a Redis-compatible server (Redis,
// Dragonfly, Valkey). Messages are not persisted: a dev server that is not
// subscribed when an update is published misses it and picks up the next one.
type RedisPubSub struct {
	client      *redis.Client
	subscribers map[string][]chan Message
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewRedisPubSub connects to url, in the form redis://[password@]host:port[/db]
func NewRedisPubSub(url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	return newRedisPubSub(redis.NewClient(opts))
}

func newRedisPubSub(client *redis.Client) (*RedisPubSub, error) {
	pingCtx, cancelPing := context.WithTimeout(context.Background(), connectTimeout)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	log.Info().Str("addr", client.Options().Addr).Msg("Connected to Redis-compatible backend for pub/sub")

	ctx, cancel := context.WithCancel(context.Background())
	return &RedisPubSub{
		client:      client,
		subscribers: make(map[string][]chan Message),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Publish sends a message to all subscribers of a channel, on every server.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// Subscribe returns a channel that receives messages published to the given channel.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	ch := make(chan Message, subscriberBuffer)

	sub := r.client.Subscribe(r.ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	r.mu.Lock()
	r.subscribers[channel] = append(r.subscribers[channel], ch)
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.unsubscribe(channel, ch)
			_ = sub.Close()
		}()

		msgCh := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.ctx.Done():
				return
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				select {
				case ch <- Message{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					log.Warn().Str("channel", channel).Msg("Pub/sub subscriber channel full, dropping message")
				}
			}
		}
	}()

	return ch, nil
}

// unsubscribe removes and closes a subscriber channel once
func (r *RedisPubSub) unsubscribe(channel string, ch chan Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subscribers[channel]
	for i, sub := range subs {
		if sub == ch {
			r.subscribers[channel] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
}

// Close stops every subscription and closes the client.
func (r *RedisPubSub) Close() error {
	r.cancel()
	r.wg.Wait()

	err := r.client.Close()
	log.Debug().Msg("Redis pub/sub closed")
	return err
}
