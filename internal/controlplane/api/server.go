// Package api serves the control-plane surface over REST and publishes the
// cluster verdict over the gRPC health protocol.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"

	"swarmorch/internal/check"
	"swarmorch/internal/errdefs"
	"swarmorch/pkg/sdk/client"
	"swarmorch/pkg/sdk/types"
)

const (
	serverGoroutineCount = 2
	shutdownTimeout      = 10 * time.Second
)

type Server struct {
	api    client.API
	health *HealthService
	log    *slog.Logger
}

type Option func(*Server)

// WithHealthService exposes h on the gRPC listener.
func WithHealthService(h *HealthService) Option {
	return func(s *Server) { s.health = h }
}

func New(api client.API, opts ...Option) *Server {
	check.Assert(api != nil, "api.New: api must not be nil")

	s := &Server{api: api, log: slog.With("component", "api")}
	for _, opt := range opts {
		opt(s)
	}
	if s.health == nil {
		s.health = NewHealthService()
	}
	return s
}

// Handler returns the REST router. Every route is served at the root and
// again under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chimiddleware.Recoverer)

	s.routes(r)
	r.Route("/api", s.routes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, fmt.Errorf("route %s %s: %w", r.Method, r.URL.Path, errdefs.ErrNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, types.ErrorBody{
			Error: fmt.Sprintf("method %s not allowed on %s", r.Method, r.URL.Path),
			Kind:  errdefs.KindInvalidArgument.String(),
		})
	})

	return otelhttp.NewHandler(r, "swarmorch.api")
}

// ListenAndServe serves REST on httpAddr and, when grpcAddr is set, the
// gRPC health service on grpcAddr. It returns when ctx is done or a
// listener fails. ready, if non-nil, is called once both are listening.
func (s *Server) ListenAndServe(ctx context.Context, httpAddr, grpcAddr string, ready func()) error {
	log := s.log.With("listen", httpAddr)

	httpLn, err := listen(httpAddr)
	if err != nil {
		return fmt.Errorf("listen api: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, serverGoroutineCount)
	go func() { serveErr <- httpSrv.Serve(httpLn) }()
	log.Info("api listening", "addr", httpLn.Addr().String())

	var grpcSrv *grpc.Server
	if grpcAddr != "" {
		grpcLn, err := listen(grpcAddr)
		if err != nil {
			_ = httpSrv.Close() // best-effort cleanup
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcSrv = s.health.NewGRPCServer()
		go func() { serveErr <- grpcSrv.Serve(grpcLn) }()
		log.Info("grpc health listening", "addr", grpcLn.Addr().String())
	}

	if ready != nil {
		ready()
	}

	var retErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down listeners")
	case retErr = <-serveErr:
		log.Error("listener exited", "err", retErr)
	}

	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", "err", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	for _, addr := range []string{httpAddr, grpcAddr} {
		if path, ok := socketPath(addr); ok {
			_ = os.Remove(path) // best-effort cleanup
		}
	}

	if errors.Is(retErr, http.ErrServerClosed) || errors.Is(retErr, grpc.ErrServerStopped) {
		return nil
	}
	return retErr
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
