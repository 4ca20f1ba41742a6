/*
Copyright (C) 2026 AdVero Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server wires the agent together: store, change notifier,
// playback engine, activity recorder, and the HTTP surfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/adverolabs/advero/internal/activity"
	"github.com/adverolabs/advero/internal/api"
	"github.com/adverolabs/advero/internal/cache"
	"github.com/adverolabs/advero/internal/config"
	"github.com/adverolabs/advero/internal/db"
	"github.com/adverolabs/advero/internal/eventbus"
	"github.com/adverolabs/advero/internal/events"
	"github.com/adverolabs/advero/internal/logbuffer"
	"github.com/adverolabs/advero/internal/playback"
	"github.com/adverolabs/advero/internal/preload"
	"github.com/adverolabs/advero/internal/store"
	"github.com/adverolabs/advero/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	notifier  eventbus.Bus
	store     *store.Service
	engine    *playback.Engine
	api       *api.API

	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		logBuffer: logBuf,
		bus:       events.NewBus(),
	}

	if err := s.initDependencies(); err != nil {
		return nil, err
	}

	s.configureRoutes()
	s.startBackgroundWorkers()
	s.startConfiguredScreens()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(s.db) })

	if err := db.RegisterCallbacks(s.db); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	if err := db.Migrate(s.db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	notifier, err := s.initNotifier()
	if err != nil {
		return fmt.Errorf("init change notifier: %w", err)
	}
	s.notifier = notifier
	s.DeferClose(notifier.Close)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	cacheSvc, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	s.cache = cacheSvc
	s.DeferClose(cacheSvc.Close)

	s.store = store.New(s.db, s.notifier, s.logger)

	preloader := preload.New(s.logger)

	engineCfg := playback.EngineConfig{
		PollInterval: s.cfg.PollInterval,
		Session: playback.Config{
			PromoEvery:      s.cfg.PromoEvery,
			PromoDuration:   s.cfg.PromoDuration,
			MinItemDuration: s.cfg.MinItemDuration,
			ProgressTick:    s.cfg.ProgressTick,
			HealthInterval:  30 * time.Second,
		},
	}
	s.engine = playback.NewEngine(engineCfg, s.store, preloader, s.notifier, s.bus, s.logger)

	s.api = api.New(s.engine, s.store, s.cache, s.bus, s.logBuffer, s.cfg.BaseURL, s.logger)
	return nil
}

// initNotifier selects the change feed transport. Whatever transport
// is chosen, local events still reach local subscribers: the remote
// buses bridge into an in-process fallback when the broker is down.
func (s *Server) initNotifier() (eventbus.Bus, error) {
	nodeID := s.cfg.InstanceID
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	switch s.cfg.NotifierBackend {
	case config.NotifierRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		return eventbus.NewRedisBus(redisCfg, nodeID, s.logger)
	case config.NotifierNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		return eventbus.NewNATSBus(natsCfg, nodeID, s.logger)
	default:
		return eventbus.NewMemoryBus(s.bus), nil
	}
}

func (s *Server) configureRoutes() {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.TracingMiddleware("advero-screen-agent"))
	router.Use(telemetry.MetricsMiddleware)

	// WebSocket upgrades must bypass the request timeout.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	s.api.Routes(router)
	s.router = router
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.bgDone = make(chan struct{})

	activitySvc := activity.New(s.store, s.bus, s.logger)

	go func() {
		defer close(s.bgDone)
		if err := activitySvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("activity recorder exited")
		}
	}()

	// Connection pool gauge refresh.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

// startConfiguredScreens brings up sessions for every screen listed in
// the environment. Further sessions start and stop over the API.
func (s *Server) startConfiguredScreens() {
	for _, screenID := range s.cfg.ScreenIDs {
		s.engine.Start(screenID)
	}
}

// HTTPServer returns the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsHandler serves the Prometheus scrape endpoint, bound on a
// separate listener.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.Handler())
	return mux
}

// Close stops sessions and background workers, then releases
// resources in reverse initialization order.
func (s *Server) Close() error {
	s.engine.Close()

	if s.bgCancel != nil {
		s.bgCancel()
		select {
		case <-s.bgDone:
		case <-time.After(5 * time.Second):
			s.logger.Warn().Msg("background workers did not stop in time")
		}
	}

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers cleanup to run on Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}
