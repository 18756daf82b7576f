// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 10 * time.Second

// HTTPServerConfig configures an HTTPServer.
type HTTPServerConfig struct {
	// Address is a TCP listen address such as "127.0.0.1:9464". With
	// port 0 the kernel picks one; Addr reports it once Ready closes.
	Address string

	Handler http.Handler

	// ShutdownTimeout bounds how long in-flight requests may run after
	// the context is cancelled. Zero means 10 seconds.
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

// HTTPServer runs the dashboard's TCP listener.
type HTTPServer struct {
	config HTTPServerConfig
	ready  chan struct{}
	addr   net.Addr
}

// NewHTTPServer panics if Address, Handler, or Logger is missing.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	switch {
	case config.Address == "":
		panic("service.HTTPServer: Address is required")
	case config.Handler == nil:
		panic("service.HTTPServer: Handler is required")
	case config.Logger == nil:
		panic("service.HTTPServer: Logger is required")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServer{config: config, ready: make(chan struct{})}
}

// Ready is closed once the listener is bound.
func (s *HTTPServer) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address, valid after Ready.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Serve blocks until ctx is cancelled and in-flight requests drain, or
// until the listener fails. A clean shutdown returns nil.
func (s *HTTPServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("http: listen %s: %w", s.config.Address, err)
	}
	s.addr = listener.Addr()

	server := &http.Server{
		Handler:           s.config.Handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
		ErrorLog:          slog.NewLogLogger(s.config.Logger.Handler(), slog.LevelWarn),
	}

	shutdownErr := make(chan error, 1)
	stop := context.AfterFunc(ctx, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		shutdownErr <- server.Shutdown(drainCtx)
	})
	defer stop()

	s.config.Logger.Info("http server listening", "address", s.addr.String())
	close(s.ready)

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: serve: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		return fmt.Errorf("http: shutdown: %w", err)
	}
	s.config.Logger.Info("http server stopped")
	return nil
}
