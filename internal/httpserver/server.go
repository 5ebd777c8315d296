// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package httpserver is the operations endpoint of the binaries: Prometheus
// metrics, a health check and whatever routes the binary adds.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/TranDung6129/sensor-telemetry/internal/log"
	"github.com/TranDung6129/sensor-telemetry/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	// Server serves /metrics, /health and any added routes.
	Server struct {
		router   *mux.Router
		server   *http.Server
		listener net.Listener
		log      log.Logger
	}

	// HealthFunc reports an error when the binary is not healthy.
	HealthFunc func(context.Context) error

	responseWriter struct {
		http.ResponseWriter
		statusCode int
	}
)

const shutdownTimeout = 5 * time.Second

// New creates a server for addr. A nil health function always reports
// healthy.
func New(addr string, health HealthFunc, logger *slog.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		router: router,
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log.Wrap(logger),
	}

	router.Use(s.instrument)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			if err := health(r.Context()); err != nil {
				WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	return s
}

// Router exposes the router so binaries can add routes before Start.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Start listens and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.listener = l

	s.log.Info(ctx, "operations server listening", slog.String("addr", s.Addr()))
	go func() {
		if err := s.server.Serve(l); err != nil && err != http.ErrServerClosed {
			s.log.Err(ctx, err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting briefly for requests in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// WriteJSON writes v as the JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		elapsed := time.Since(start)
		status := strconv.Itoa(rw.statusCode)

		metrics.HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).
			Observe(elapsed.Seconds())
		s.log.Debug(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.statusCode),
			slog.Duration("duration", elapsed),
		)
	})
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
