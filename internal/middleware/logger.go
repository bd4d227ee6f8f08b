// Package middleware holds the dev server's Fiber middleware.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RequestLoggerConfig holds configuration for request logging
type RequestLoggerConfig struct {
	// SkipPaths are paths that should not be logged
	SkipPaths []string
	// SkipSuccessfulRequests logs only 4xx/5xx responses and slow requests
	SkipSuccessfulRequests bool
	// Logger is the zerolog logger to use (defaults to global log)
	Logger *zerolog.Logger
	// SlowRequestThreshold logs slow requests with WARN level (0 = disabled)
	SlowRequestThreshold time.Duration
}

// DefaultRequestLoggerConfig returns default configuration
func DefaultRequestLoggerConfig() RequestLoggerConfig {
	return RequestLoggerConfig{
		SkipPaths:            []string{"/metrics"},
		SlowRequestThreshold: 1 * time.Second,
	}
}

// RequestLogger logs each request as one structured entry. Artifact
// responses also log the generation they served.
func RequestLogger(config ...RequestLoggerConfig) fiber.Handler {
	cfg := DefaultRequestLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		logger := log.Logger
		if cfg.Logger != nil {
			logger = *cfg.Logger
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		slow := cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold
		if cfg.SkipSuccessfulRequests && status < 400 && err == nil && !slow {
			return err
		}

		var event *zerolog.Event
		switch {
		case err != nil:
			event = logger.Error().Err(err)
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case slow:
			event = logger.Warn().Bool("slow_request", true)
		default:
			event = logger.Debug()
		}

		event = event.
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("response_bytes", len(c.Response().Body()))

		if generation := c.GetRespHeader(GenerationHeader); generation != "" {
			event = event.Str("generation", generation)
		}
		if cycle := c.GetRespHeader(CycleHeader); cycle != "" {
			event = event.Str("cycle", cycle)
		}
		if ua := c.Get("User-Agent"); ua != "" {
			event = event.Str("user_agent", ua)
		}

		event.Msg("HTTP request")
		return err
	}
}
