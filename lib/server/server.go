// Package server exposes the compiler bridge over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/snowmerak/swc.go/lib/logging"
	"github.com/snowmerak/swc.go/lib/swc"
)

// maxBodyBytes bounds request bodies. Source files larger than this are not
// accepted over HTTP.
const maxBodyBytes = 8 << 20

// Compiler is the subset of *swc.Bridge the server uses.
type Compiler interface {
	Parse(ctx context.Context, opts swc.ParseOptions) (*swc.Program, error)
	Print(ctx context.Context, opts swc.PrintOptions) (*swc.PrintResult, error)
	ExtractDependencies(ctx context.Context, opts swc.AnalyzeOptions) ([]swc.Dependency, error)
}

// Server serves the compiler operations.
type Server struct {
	addr      string
	compiler  Compiler
	logger    *zap.Logger
	server    *http.Server
	startedAt time.Time
}

func New(addr string, compiler Compiler) *Server {
	return &Server{
		addr:      addr,
		compiler:  compiler,
		logger:    logging.Named("server"),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("server starting", zap.String("listen", s.addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Post("/parse", s.handleParse)
	r.Post("/print", s.handlePrint)
	r.Post("/dependencies", s.handleDependencies)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var opts swc.ParseOptions
	if !s.decode(w, r, &opts) {
		return
	}
	program, err := s.compiler.Parse(r.Context(), opts)
	s.respond(w, r, program, err)
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	var opts swc.PrintOptions
	if !s.decode(w, r, &opts) {
		return
	}
	if opts.Program == nil {
		writeError(w, http.StatusBadRequest, "program is required")
		return
	}
	result, err := s.compiler.Print(r.Context(), opts)
	s.respond(w, r, result, err)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	var opts swc.AnalyzeOptions
	if !s.decode(w, r, &opts) {
		return
	}
	deps, err := s.compiler.ExtractDependencies(r.Context(), opts)
	if deps == nil && err == nil {
		deps = []swc.Dependency{}
	}
	s.respond(w, r, deps, err)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}

	status := statusFor(err)
	s.logger.Warn("operation failed",
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, swc.ErrNotInitialized):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, swc.ErrNoResponse), errors.Is(err, swc.ErrDecode), swc.IsPluginError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
