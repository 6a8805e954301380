package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/greenbond-oracle/internal/domain"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/handler"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/middleware"
	"github.com/alanyoungcy/greenbond-oracle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, mutating routes are open

	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter     domain.RateLimiter
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Bonds   *handler.BondHandler
	Oracle  *handler.OracleHandler
	Journal *handler.JournalHandler
}

// Server is the HTTP + WebSocket API of the oracle.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// the middleware chain applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewHandler(cfg, handlers, wsHub, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Batch recomputes over the full history and ledger writes can be slow.
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handlers.Health.Root)
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Bond registry.
	mux.HandleFunc("GET /api/v1/bonds", handlers.Bonds.ListBonds)
	mux.HandleFunc("POST /api/v1/bonds", handlers.Bonds.CreateBond)
	mux.HandleFunc("GET /api/v1/bonds/{bond_id}", handlers.Bonds.GetBond)
	mux.HandleFunc("GET /api/v1/bonds/{bond_id}/validate/{date}", handlers.Bonds.ValidateDay)

	// Oracle.
	mux.HandleFunc("GET /oracle/pr/{bond_id}/{date}", handlers.Oracle.PerformanceRatio)
	mux.HandleFunc("GET /oracle/audit/{bond_id}", handlers.Oracle.AuditLog)
	mux.HandleFunc("GET /oracle/penalty-summary/{bond_id}", handlers.Oracle.PenaltySummary)
	mux.HandleFunc("POST /oracle/publish/{bond_id}/{date}", handlers.Oracle.Publish)
	mux.HandleFunc("GET /oracle/contract-info", handlers.Oracle.ContractInfo)

	if handlers.Journal != nil {
		mux.HandleFunc("GET /api/v1/journal", handlers.Journal.ListEntries)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws/oracle/{bond_id}", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RequireAPIKey(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateLimitWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
