// Package http serves the benefit and wage forms and their JSON API.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"laborcond/inference"
	"laborcond/registry"
)

const maxRequestBytes = 1 << 20

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig holds the listener and cross-origin settings.
type ServerConfig struct {
	Port    int
	Timeout time.Duration
	// MaxConnections caps concurrently accepted connections; 0 means no cap.
	MaxConnections int
	// AllowedOrigins lists cross-origin callers. "*" opens CORS to every
	// origin but never the form websocket, which only accepts listed
	// origins and its own host.
	AllowedOrigins []string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		MaxConnections: 100,
	}
}

// Dependencies are the components the handlers are built from. Metrics may
// be nil.
type Dependencies struct {
	Registry *registry.Registry
	Benefits *inference.BenefitInvoker
	Wages    *inference.WageComparator
	Logger   *zap.Logger
	Assets   Assets
	Metrics  MetricsProvider
}

// MetricsProvider exposes request observation and the scrape endpoint.
type MetricsProvider interface {
	RequestObserver
	Handler() http.Handler
}

// NewHandler builds the routed handler with its middleware chain.
func NewHandler(config ServerConfig, deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	handlers, err := NewHandlers(deps)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	handlers.Register(mux)
	NewFormSocket(handlers, config.AllowedOrigins).Register(mux)

	var observer RequestObserver
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
		observer = deps.Metrics
	}

	chain := Chain(
		RecoveryMiddleware(deps.Logger),
		LoggerMiddleware(deps.Logger),
		InstrumentMiddleware(mux, observer),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(maxRequestBytes),
		TimeoutMiddleware(config.Timeout),
	)
	return chain(mux), nil
}

// NewServer builds the handler chain and the listener settings for config.
func NewServer(config ServerConfig, deps Dependencies) (*Server, error) {
	handler, err := NewHandler(config, deps)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}, nil
}

// Start blocks until the server stops. A graceful Stop is not an error.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.String("addr", s.server.Addr),
		zap.String("websocket", "ws://localhost"+s.server.Addr+"/api/ws/form"))

	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	if s.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.MaxConnections)
	}

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
