package api

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/qrlink/relay/internal/metrics"
	"github.com/qrlink/relay/internal/requestid"
)

// ServerConfig holds configuration for the relay HTTP server.
type ServerConfig struct {
	ListenAddr  string
	CORSOrigins string
	RateLimit   RateLimitConfig
	Auth        AuthConfig
}

// Server is the relay Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures the relay HTTP server.
func NewServer(cfg ServerConfig, h *Handlers, m *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s := &Server{
		app:      app,
		handlers: h,
		logger:   logger.With().Str("component", "api_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, m, logger)
	s.setupRoutes(h, m)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics, logger zerolog.Logger) {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware. An inbound X-Request-ID is kept so the
	// sender and receiver halves of one scan can share an id.
	s.app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get("X-Request-ID")
		if reqID == "" {
			reqID = requestid.Generate()
		}
		c.Set("X-Request-ID", reqID)
		c.Locals("request_id", reqID)
		return c.Next()
	})

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, DELETE, OPTIONS",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	// Request timing + debug log; probes stay out of both.
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		m.ObserveDuration(c.Route().Path, time.Since(start).Seconds())

		reqID, _ := c.Locals("request_id").(string)
		logger.Debug().
			Str("method", c.Method()).
			Str("path", path).
			Int("status", c.Response().StatusCode()).
			Str("ip", c.IP()).
			Str("request_id", reqID).
			Msg("api request")

		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, m *metrics.Metrics) {
	// Probes and Prometheus metrics
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)
	s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))

	v1 := s.app.Group("/api/v1")

	// Relay core
	v1.Post("/send", h.Send)
	v1.Get("/next", h.Next)
	v1.Get("/status", h.GetStatus)
	v1.Post("/status", h.SetStatus)

	// Presence. The register/unregister heartbeats come from unauthenticated
	// receiver pages; only the admin listing sits behind the token check.
	v1.Get("/viewers", requireToken(s.config.Auth, s.logger), h.ListViewers)
	v1.Post("/viewers", h.RegisterViewer)
	v1.Delete("/viewers", h.UnregisterViewer)

	// Operator login + effective config
	v1.Post("/login", h.Login)
	v1.Get("/config", requireToken(s.config.Auth, s.logger), h.GetConfig)
}

// App returns the underlying Fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Info().Str("addr", addr).Msg("relay API server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("relay API server shutting down")
	return s.app.Shutdown()
}
