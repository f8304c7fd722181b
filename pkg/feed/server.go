// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package feed serves the controller to a presentation layer: a JSON API
// for commands and a WebSocket stream of arm snapshots.
package feed

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/controller"
	"github.com/Thermoquad/quill/pkg/logging"
	"github.com/Thermoquad/quill/pkg/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second
	pongTimeout     = 60 * time.Second
	pingInterval    = 30 * time.Second
	maxBodyBytes    = 4 << 20
	subscriberQueue = 4
)

// Server is the feed HTTP server.
type Server struct {
	ctrl     *controller.Controller
	log      *zap.Logger
	m        *metrics.Metrics
	upgrader websocket.Upgrader
	clients  atomic.Int64
}

// New creates a Server for ctrl.
func New(ctrl *controller.Controller, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		ctrl: ctrl,
		log:  logger,
		m:    ctrl.Metrics(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(logging.RequestLogger(s.log))
	if s.m != nil {
		r.Use(metrics.RequestMiddleware(s.m))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.m.Handler(s.updateGauges).ServeHTTP(w, r)
		})
	}

	r.Get("/ws/state", s.handleWebSocket)
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/pose", s.handlePose)
		r.Get("/stats", s.handleStats)
		r.Get("/trajectory", s.handleLastTrajectory)
		r.Post("/trajectory", s.handleTrajectory)
		r.Post("/stop", s.handleStop)
		r.Post("/home", s.handleHome)
		r.Get("/recording", s.handleRecording)
	})
	return r
}

func (s *Server) updateGauges() {
	s.m.SetFeedSubscribers(int(s.clients.Load()))
	s.m.SetBufferLevel(int(s.ctrl.State().Snapshot().BufferLevel))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Router(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.log.Info("feed server listening", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down feed server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
