// Package api exposes the people DAO over HTTP with echo.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/people-cache/pkg/dao"
	"github.com/Sternrassler/people-cache/pkg/metrics"
)

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds the HTTP server configuration.
type Config struct {
	// Listen is the bind address (e.g., ":8080")
	Listen string

	// Daemon names the service in health responses
	Daemon string

	// Checks are the dependencies /ready pings, by name
	Checks map[string]Pinger

	// ReadyTimeout bounds each readiness check
	ReadyTimeout time.Duration

	// Registerer and Gatherer back the request metrics and /metrics
	// (default: metrics.Registry and metrics.Gatherer)
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Listen:       ":8080",
		Daemon:       "people-api",
		ReadyTimeout: 2 * time.Second,
		Registerer:   metrics.Registry,
		Gatherer:     metrics.Gatherer,
	}
}

// Server is the HTTP front of the DAO.
type Server struct {
	echo   *echo.Echo
	httpd  *http.Server
	config Config
	logger zerolog.Logger
}

// NewServer builds the router for d.
func NewServer(d *dao.DAO, cfg Config, logger zerolog.Logger) *Server {
	defaults := DefaultConfig()
	if cfg.Daemon == "" {
		cfg.Daemon = defaults.Daemon
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaults.ReadyTimeout
	}
	if cfg.Registerer == nil {
		cfg.Registerer = defaults.Registerer
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = defaults.Gatherer
	}

	logger = logger.With().Str("component", "api").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		logger: logger,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           cfg.Listen,
		WriteTimeout:   time.Minute,
		ReadTimeout:    time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	e.HTTPErrorHandler = srv.errorHandler
	e.Use(middleware.Recover())
	e.Use(srv.requestLogger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "people_api",
		Registerer: cfg.Registerer,
	}))
	e.Use(middleware.BodyLimit("1M"))

	h := NewHandlers(d, cfg, logger)

	e.GET("/_health", h.Health)
	e.GET("/ready", h.Ready)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	people := e.Group("/people")
	people.GET("", h.ListPeople)
	people.POST("", h.CreatePerson)
	people.GET("/search", h.SearchPeople)
	people.GET("/by-email", h.FindByEmail)
	people.GET("/by-phone", h.FindByPhone)
	people.GET("/:id", h.GetPerson)
	people.PATCH("/:id", h.UpdatePerson)
	people.DELETE("/:id", h.DeletePerson)

	admin := e.Group("/cache")
	admin.GET("/stats", h.CacheStats)
	admin.DELETE("", h.InvalidateCache)
	admin.DELETE("/:key", h.EvictCacheKey)
	admin.POST("/sweep", h.SweepCache)

	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	s.echo.ServeHTTP(rw, req)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("listen", s.config.Listen).Msg("Starting HTTP server")
	if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.httpd.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := s.logger.Debug()
			if v.Status >= http.StatusInternalServerError {
				event = s.logger.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Msg("Request")
			return nil
		},
	})
}
