// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/qtag/internal/api/handlers"
	"github.com/autobrr/qtag/internal/api/middleware"
	"github.com/autobrr/qtag/internal/domain"
)

type Server struct {
	server  *http.Server
	logger  zerolog.Logger
	config  domain.Config
	version string

	engine   handlers.TagEngine
	client   handlers.ClientStatus
	gatherer prometheus.Gatherer
}

type Dependencies struct {
	Config  domain.Config
	Version string
	Engine  handlers.TagEngine
	Client  handlers.ClientStatus
	// Gatherer backs /metrics when metrics are enabled.
	Gatherer prometheus.Gatherer
}

func NewServer(deps *Dependencies) *Server {
	s := Server{
		server: &http.Server{
			ReadHeaderTimeout: time.Second * 15,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      120 * time.Second,
			IdleTimeout:       180 * time.Second,
		},
		logger:   log.Logger.With().Str("module", "api").Logger(),
		config:   deps.Config,
		version:  deps.Version,
		engine:   deps.Engine,
		client:   deps.Client,
		gatherer: deps.Gatherer,
	}

	return &s
}

func (s *Server) ListenAndServe() error {
	return s.open(nil)
}

// ListenAndServeReady behaves like ListenAndServe but signals once the listener is active.
func (s *Server) ListenAndServeReady(ready chan<- struct{}) error {
	return s.open(ready)
}

func (s *Server) open(ready chan<- struct{}) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	var lastErr error
	for _, proto := range []string{"tcp", "tcp4", "tcp6"} {
		err := s.tryToServe(addr, proto, ready)
		if err == nil {
			return nil
		}

		if errors.Is(err, http.ErrServerClosed) {
			return err
		}

		s.logger.Error().Err(err).Str("addr", addr).Str("proto", proto).Msgf("Failed to start server")
		lastErr = err
	}

	return lastErr
}

func (s *Server) tryToServe(addr, protocol string, ready chan<- struct{}) error {
	listener, err := net.Listen(protocol, addr)
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("protocol", protocol).
		Str("addr", listener.Addr().String()).
		Str("base_url", s.baseURL()).
		Msg("Starting API server")

	handler, err := s.Handler()
	if err != nil {
		listener.Close()
		return fmt.Errorf("build API router: %w", err)
	}

	s.server.Handler = handler

	if ready != nil {
		select {
		case ready <- struct{}{}:
		default:
		}
	}

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) baseURL() string {
	baseURL := s.config.BaseURL
	if baseURL == "" {
		baseURL = "/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL
}

func (s *Server) Handler() (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	compressor, err := httpcompression.DefaultAdapter(
		httpcompression.MinSize(1024),
		httpcompression.GzipCompressionLevel(2),
		httpcompression.Prefer(httpcompression.PreferServer),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP compression adapter")
	} else {
		r.Use(compressor)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedMethods: []string{"HEAD", "OPTIONS", "GET", "POST", "PUT", "DELETE"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-None-Match", middleware.RequestIDHeader},
		ExposedHeaders: []string{"ETag", middleware.RequestIDHeader},
		MaxAge:         300,
	})
	r.Use(corsMiddleware.Handler)

	healthHandler := handlers.NewHealthHandler(s.client)
	tagsHandler := handlers.NewTagsHandler(s.engine)
	itemsHandler := handlers.NewItemsHandler(s.engine)
	preferencesHandler := handlers.NewPreferencesHandler(s.engine)

	apiRouter := chi.NewRouter()
	apiRouter.Group(func(r chi.Router) {
		r.Use(middleware.Logger(s.logger))

		r.Route("/tags", tagsHandler.Routes)
		r.Route("/items", itemsHandler.Routes)
		r.Route("/preferences", preferencesHandler.Routes)

		if s.client != nil {
			clientHandler := handlers.NewClientHandler(s.client)
			r.Get("/qbittorrent/status", clientHandler.GetStatus)
		}
	})

	baseURL := s.baseURL()

	r.Get(baseURL+"health", healthHandler.HandleHealth)
	r.Get(baseURL+"healthz/readiness", healthHandler.HandleReady)
	r.Get(baseURL+"healthz/liveness", healthHandler.HandleLiveness)

	if s.config.MetricsEnabled && s.gatherer != nil {
		r.Method(http.MethodGet, baseURL+"metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Mount(baseURL+"api", apiRouter)

	return r, nil
}
