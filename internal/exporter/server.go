package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"stellarexporter/internal/config"
	"stellarexporter/internal/core"
)

const (
	serverReadHeaderTimeout = 5 * time.Second
	serverShutdownTimeout   = 5 * time.Second
)

// Server runs the exporter HTTP endpoint tied to a lifecycle context.
// Params: listen address, handler, and logger for diagnostics.
// Returns: runnable HTTP server instance.
type Server struct {
	listen string
	ln     net.Listener
	server *http.Server
	logger *slog.Logger
}

// NewServer creates an HTTP server and binds to the listen address.
// Params: listen address in host:port; handler HTTP handler; logger root logger.
// Returns: server instance or bind error.
func NewServer(listen string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", listen, err)
	}

	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	return &Server{
		listen: listen,
		ln:     ln,
		server: server,
		logger: logger,
	}, nil
}

// NewFromConfig wires node client, exporter and HTTP server from validated config.
// Params: _ reserved lifecycle context; cfg runtime config; logger root logger.
// Returns: bound server or error.
func NewFromConfig(_ context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	client := core.NewClient(cfg.Core.Address, cfg.Core.Timeout.Duration)
	exp := New(client, Options{
		Namespace:       cfg.Metrics.Namespace,
		Filter:          cfg.Metrics.Filter,
		Drop:            cfg.Metrics.Drop,
		Strict:          cfg.Server.StrictMode(),
		SelfMetricsPath: cfg.Server.SelfMetricsEndpoint(),
		Logger:          logger.With(slog.String("core", client.Address())),
	})
	return NewServer(cfg.Server.Listen, exp.Handler(), logger)
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Run starts serving and shuts down on context cancellation.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop; error on early serve failures.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(s.ln)
	}()
	s.logger.Info("exporter listening", slog.String("listen", s.ln.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		err := <-errCh
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.logger.Error("exporter server stopped unexpectedly", slog.String("listen", s.listen), slog.String("error", err.Error()))
		return err
	}
}

// Close releases the listener of a server that never ran.
func (s *Server) Close() error {
	return s.ln.Close()
}
