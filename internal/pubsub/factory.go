package pubsub

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/config"
)

// NewPubSub creates the live-update stream backend.
//
// Backend options:
// - "local": in-process delivery (default, one dev server)
// - "redis": Redis-compatible pub/sub shared by several dev servers
func NewPubSub(cfg *config.LiveConfig) (PubSub, error) {
	switch cfg.Backend {
	case "local", "":
		log.Debug().Msg("Using local pub/sub for live updates")
		return NewLocalPubSub(), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis pub/sub backend")
		}
		log.Info().Msg("Using Redis-compatible pub/sub for live updates")
		ps, err := NewRedisPubSub(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis for pub/sub: %w", err)
		}
		return ps, nil

	default:
		return nil, fmt.Errorf("unknown pub/sub backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
