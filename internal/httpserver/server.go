// Package httpserver wraps the standard HTTP server with lifecycle
// management and profile-driven header behavior.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gridwise/utility-rates/internal/config"
	"github.com/gridwise/utility-rates/pkg/logger"
)

const serverIdent = "utility-rates"

// Server is a lifecycle-managed HTTP server. It satisfies the system.Service
// interface so it can be registered with the application manager.
type Server struct {
	srv     *http.Server
	log     *logger.Logger
	mu      sync.Mutex
	running bool
}

// New builds the server around the given handler. The production profile
// suppresses the Server response header.
func New(cfg config.ServerConfig, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpserver")
	}

	if !cfg.SuppressServerHeader {
		inner := handler
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Server", serverIdent)
			inner.ServeHTTP(w, r)
		})
	}

	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      handler,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Name implements system.Service.
func (s *Server) Name() string { return "httpserver" }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.srv.Addr }

// Start begins serving in the background. Listener failures other than a
// clean shutdown are fatal: a service that cannot bind its port has nothing
// left to do.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("httpserver already started")
	}
	s.running = true

	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Fatalf("http server failed")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	s.log.Info("http server shutting down")
	return s.srv.Shutdown(ctx)
}
