/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the catalog over HTTP: media bytes, thumbnails,
// live video streams, scan invocation over SSE, and the log buffer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/memorix/internal/config"
	"github.com/friendsincode/memorix/internal/events"
	"github.com/friendsincode/memorix/internal/logbuffer"
	"github.com/friendsincode/memorix/internal/scan"
	"github.com/friendsincode/memorix/internal/telemetry"
)

// Server bundles the HTTP surface and its dependencies.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	db        *gorm.DB
	bus       *events.Bus
	logBuffer *logbuffer.Buffer
	scans     *scan.Service
}

// New assembles the router and HTTP server. Scan runs started through the
// SSE endpoint use the shared scan service so concurrent requests for the
// same storage serialize.
func New(cfg *config.Config, db *gorm.DB, bus *events.Bus, scans *scan.Service, logBuf *logbuffer.Buffer, logger zerolog.Logger) *Server {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for streaming and SSE connections.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/media/stream/") {
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(r.URL.Path, "/api/storage/") && strings.HasSuffix(r.URL.Path, "/scan") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger.With().Str("component", "server").Logger(),
		router:    router,
		db:        db,
		bus:       bus,
		logBuffer: logBuf,
		scans:     scans,
	}
	srv.configureRoutes()

	srv.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler: router,
		// Header deadline only; streaming handlers manage their own pacing.
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Get("/api/media/{id}", s.handleMedia)
	s.router.Get("/api/media/thumb/{id}", s.handleThumb)
	s.router.Get("/api/media/stream/{id}", s.handleStream)
	s.router.Get("/api/storage/{id}/scan", s.handleScan)
	s.router.Get("/api/logs", s.handleLogs)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until the listener fails or Close is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the HTTP server down gracefully.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
