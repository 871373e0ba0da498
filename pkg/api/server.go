// Package api wires the MCP endpoint and the management surface onto a
// single HTTP server. The management routes expose session metadata, the
// effective configuration, and both prometheus and JSON metric snapshots.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spacegate/spacegate/pkg/config"
	"github.com/spacegate/spacegate/pkg/logger"
	"github.com/spacegate/spacegate/pkg/transport"
)

const (
	readHeaderTimeout = 10 * time.Second
	managementTimeout = 30 * time.Second
	drainGracePeriod  = 10 * time.Second
)

// Server hosts a transport at /mcp plus the management routes.
type Server struct {
	cfg       *config.Config
	tr        transport.Transport
	version   string
	startedAt time.Time
}

// NewServer builds the HTTP surface around the given transport.
func NewServer(cfg *config.Config, tr transport.Transport, version string) *Server {
	return &Server{
		cfg:       cfg,
		tr:        tr,
		version:   version,
		startedAt: time.Now(),
	}
}

// Router assembles the chi router. The MCP endpoint is mounted outside the
// management middleware chain so SSE streams are never subject to the
// management timeout.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.Mount("/mcp", s.tr)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(managementTimeout))
		r.Use(jsonContentType)
		r.Get("/health", s.getHealth)
		r.Get("/api/sessions", s.getSessions)
		r.Get("/api/config", s.getConfig)
		r.Get("/api/metrics", s.getMetrics)
	})

	r.Method(http.MethodGet, "/metrics", s.tr.PrometheusHandler())

	return r
}

// Serve runs the server until ctx is cancelled, then drains: the transport
// stops accepting work first, in-flight requests get a bounded grace period,
// and sessions are cleaned up last.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.tr.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped with error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down, draining in-flight requests")
	s.tr.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Forced shutdown after grace period: %v", err)
	}

	if err := s.tr.Cleanup(shutdownCtx); err != nil {
		return fmt.Errorf("transport cleanup failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// requestLogger logs every request at debug level with status and latency.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

// recoverer converts panics into the protocol's internal_error envelope
// instead of chi's plain-text 500.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Errorf("panic handling %s %s: %v", r.Method, r.URL.Path, rec)
				transport.WriteError(w, http.StatusInternalServerError,
					transport.CodeInternalError, transport.MsgInternalError, nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
