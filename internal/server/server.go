// Package server runs the HTTP API and the background components that
// share its lifetime.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/offersplus/backend/internal/logger"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// Options configure the HTTP server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout must cover the slowest export.
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultOptions listens on addr with conservative timeouts.
func DefaultOptions(addr string) Options {
	return Options{
		Addr:              addr,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

// Server owns the http.Server and the shutdown hooks of everything started
// alongside it.
type Server struct {
	http  *http.Server
	opts  Options
	log   *slog.Logger
	hooks []hook
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// New builds a server for h. base is handed to every request as its
// parent context.
func New(h http.Handler, opts Options, base context.Context) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	if base != nil {
		srv.BaseContext = func(net.Listener) context.Context { return base }
	}
	return &Server{http: srv, opts: opts, log: logger.WithComponent("server")}
}

// OnShutdown registers fn to run after the listener stops. Hooks run in
// reverse registration order.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.hooks = append(s.hooks, hook{name: name, fn: fn})
}

// Run listens on the configured address until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- s.http.Serve(ln)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("HTTP server shutdown incomplete", "error", err)
		_ = s.http.Close()
	}
	return errors.Join(serveErr, s.runHooks(shutdownCtx))
}

func (s *Server) runHooks(ctx context.Context) error {
	var errs []error
	for i := len(s.hooks) - 1; i >= 0; i-- {
		h := s.hooks[i]
		if err := h.fn(ctx); err != nil {
			s.log.Error("shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
