// Package devserver serves the generated artifacts from memory during a dev
// session, alongside a status endpoint and the live-update websocket.
package devserver

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/config"
	"github.com/fluxbase-eu/officefn/internal/middleware"
	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/pipeline"
	"github.com/fluxbase-eu/officefn/internal/realtime"
)

// Internal routes
const (
	StatusPath = "/__officefn/status"
	LivePath   = "/__officefn/ws"
)

// Content types of the served artifacts
const (
	ScriptContentType   = "application/javascript"
	ManifestContentType = "application/json"
)

// StatusSource reports the scheduling state of the pipeline
type StatusSource interface {
	Status() pipeline.Status
	LastReport() (pipeline.Report, bool)
}

// Options configures a Server
type Options struct {
	Server       config.ServerConfig
	ScriptName   string
	ManifestName string
	Store        *artifact.Store

	// Pipeline is optional; when set the status endpoint includes it
	Pipeline StatusSource
	// Live is optional; when set the websocket endpoint is registered
	Live *realtime.Manager
	// Metrics is optional; when set requests are measured and MetricsPath
	// serves the registry
	Metrics     *observability.Metrics
	MetricsPath string
	Tracing     bool
	Debug       bool
}

// Server is the dev HTTP server
type Server struct {
	app  *fiber.App
	opts Options
}

// New creates the server and registers its routes
func New(opts Options) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	app := fiber.New(fiber.Config{
		ServerHeader:          "officefn",
		AppName:               "officefn dev server",
		ReadTimeout:           opts.Server.ReadTimeout,
		WriteTimeout:          opts.Server.WriteTimeout,
		IdleTimeout:           opts.Server.IdleTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{app: app, opts: opts}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.opts.Debug,
	}))

	origins := s.opts.Server.CorsOrigins
	if origins == "" {
		origins = "*"
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  "GET,HEAD,OPTIONS",
		ExposeHeaders: middleware.GenerationHeader + "," + middleware.CycleHeader,
	}))

	s.app.Use(middleware.Tracing(middleware.TracingConfig{
		Enabled:   s.opts.Tracing,
		SkipPaths: []string{s.opts.MetricsPath, LivePath},
	}))
	s.app.Use(middleware.RequestLogger(middleware.RequestLoggerConfig{
		SkipPaths:            []string{s.opts.MetricsPath},
		SlowRequestThreshold: middleware.DefaultRequestLoggerConfig().SlowRequestThreshold,
	}))
	if s.opts.Metrics != nil {
		s.app.Use(s.opts.Metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.ArtifactCache(middleware.ArtifactCacheConfig{
		Paths:             []string{s.scriptPath(), s.manifestPath()},
		Weak:              true,
		EnableConditional: true,
	}))
	s.app.Use(s.serveArtifacts)
}

func (s *Server) setupRoutes() {
	s.app.Get(StatusPath, s.handleStatus)

	if s.opts.Live != nil {
		s.app.Get(LivePath, realtime.NewHandler(s.opts.Live).HandleWebSocket)
	}

	if s.opts.Metrics != nil {
		s.app.Get(s.opts.MetricsPath, s.opts.Metrics.Handler())
	}

	if s.opts.Server.PublicDir != "" {
		s.app.Static("/", s.opts.Server.PublicDir)
	}
}

func (s *Server) scriptPath() string {
	return "/" + s.opts.ScriptName
}

func (s *Server) manifestPath() string {
	return "/" + s.opts.ManifestName
}

// serveArtifacts answers exact requests for the two artifacts from the
// store. Everything else passes through.
func (s *Server) serveArtifacts(c *fiber.Ctx) error {
	method := c.Method()
	if method != fiber.MethodGet && method != fiber.MethodHead {
		return c.Next()
	}

	var (
		half        artifact.Half
		contentType string
	)
	switch c.Path() {
	case s.manifestPath():
		half, contentType = artifact.Manifest, ManifestContentType
	case s.scriptPath():
		half, contentType = artifact.Script, ScriptContentType
	default:
		return c.Next()
	}

	state, err := s.opts.Store.Read(half)
	if err != nil {
		s.opts.Metrics.RecordArtifactRequest(string(half), fiber.StatusInternalServerError)
		return err
	}
	if !state.Present() {
		s.opts.Metrics.RecordArtifactRequest(string(half), fiber.StatusNotFound)
		return c.SendStatus(fiber.StatusNotFound)
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(middleware.GenerationHeader, strconv.FormatUint(state.Generation, 10))
	c.Set(middleware.CycleHeader, strconv.FormatUint(state.Cycle, 10))
	s.opts.Metrics.RecordArtifactRequest(string(half), fiber.StatusOK)
	return c.SendString(*state.Content)
}

// App returns the fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address until Shutdown
func (s *Server) Start() error {
	log.Info().
		Str("address", s.opts.Server.Address).
		Str("script", s.scriptPath()).
		Str("manifest", s.manifestPath()).
		Msg("Dev server listening")
	return s.app.Listen(s.opts.Server.Address)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
