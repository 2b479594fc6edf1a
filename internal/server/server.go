/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"gorm.io/gorm"

	"github.com/botdeckhq/botdeck/internal/api"
	"github.com/botdeckhq/botdeck/internal/approval"
	"github.com/botdeckhq/botdeck/internal/audit"
	"github.com/botdeckhq/botdeck/internal/automation"
	"github.com/botdeckhq/botdeck/internal/cache"
	"github.com/botdeckhq/botdeck/internal/config"
	"github.com/botdeckhq/botdeck/internal/coupons"
	"github.com/botdeckhq/botdeck/internal/db"
	"github.com/botdeckhq/botdeck/internal/delivery"
	"github.com/botdeckhq/botdeck/internal/eventbus"
	"github.com/botdeckhq/botdeck/internal/events"
	"github.com/botdeckhq/botdeck/internal/leadership"
	"github.com/botdeckhq/botdeck/internal/logbuffer"
	"github.com/botdeckhq/botdeck/internal/matches"
	"github.com/botdeckhq/botdeck/internal/migration"
	"github.com/botdeckhq/botdeck/internal/migration/legacy"
	"github.com/botdeckhq/botdeck/internal/storage"
	"github.com/botdeckhq/botdeck/internal/telemetry"
	"github.com/botdeckhq/botdeck/internal/version"
)

// Server bundles the HTTP API and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	logBuffer     *logbuffer.Buffer
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	db                    *gorm.DB
	cache                 *cache.Cache
	bus                   events.PubSub
	api                   *api.API
	automation            *automation.Service
	leaderAwareAutomation *automation.LeaderAware
	auditSvc              *audit.Service
	migrationSvc          *migration.Service

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(otelhttp.NewMiddleware("botdeck-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Skip the request timeout for websocket upgrades (the event stream is
	// long-lived by design).
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

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		logBuffer: logBuf,
		router:    router,
	}

	if err := srv.initDependencies(); err != nil {
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:    addr,
		Handler: srv.router,
		// Header deadline protects against slowloris; the body deadline
		// stays off so creative uploads are not cut mid-request.
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'; base-uri 'self'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	// Tracing exports to an OTLP collector when enabled; otherwise the
	// provider is a no-op.
	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "botdeck",
		ServiceVersion: version.Version,
		OTLPEndpoint:   s.cfg.OTLPEndpoint,
		Enabled:        s.cfg.TracingEnabled,
		SampleRate:     s.cfg.TracingSampleRate,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	s.DeferClose(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return tracerProvider.Shutdown(ctx)
	})

	s.bus = s.buildBus()

	// Redis cache for hot read paths; the dashboard polls channel and rule
	// lists aggressively.
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	entityCache, err := cache.New(cacheCfg, s.logger)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
	} else {
		s.cache = entityCache
		s.DeferClose(func() error { return s.cache.Close() })
	}

	store, err := storage.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	dispatcher := delivery.NewClient(s.cfg.DeliveryEngineURL, s.cfg.DeliverySecret, s.cfg.DeliveryTimeout, s.logger)
	if s.cfg.DeliveryEngineURL == "" {
		s.logger.Warn().Msg("delivery engine URL not configured, dispatches will fail until BOTDECK_DELIVERY_ENGINE_URL is set")
	}

	approvalSvc := approval.NewService(database, s.bus, s.logger)
	couponSvc := coupons.NewService(database, s.bus, s.cache, store, s.logger)
	matchSvc := matches.NewService(database, s.bus, s.cfg.MatchesSelectTopN, s.logger)

	s.automation = automation.New(database, s.bus, dispatcher, s.cfg.AutomationTick, s.cfg.DeliveryLogRetention, s.logger)
	if s.cache != nil {
		s.automation.SetCache(s.cache)
	}

	if s.cfg.LeaderElectionEnabled {
		election, err := leadership.NewElection(leadership.ElectionConfig{
			RedisAddr:       s.cfg.RedisAddr,
			RedisPassword:   s.cfg.RedisPassword,
			RedisDB:         s.cfg.RedisDB,
			ElectionKey:     "botdeck:leader:automation",
			LeaseDuration:   15 * time.Second,
			RenewalInterval: 5 * time.Second,
			RetryInterval:   2 * time.Second,
			InstanceID:      s.cfg.InstanceID,
		}, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.leaderAwareAutomation = automation.NewLeaderAware(s.automation, election, s.logger)
		s.DeferClose(func() error { return s.leaderAwareAutomation.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", s.cfg.InstanceID).
			Msg("leader election enabled for automation loop")
	}

	s.auditSvc = audit.NewService(database, s.bus, s.logger)

	s.migrationSvc = migration.NewService(database, s.bus, s.logger)
	s.migrationSvc.RegisterImporter(migration.SourceTypeLegacyDashboard, legacy.NewImporter(database, s.logger))

	s.api = api.New(database, approvalSvc, couponSvc, matchSvc, s.automation, s.auditSvc, s.cache, s.bus, s.logBuffer, s.logger)
	return nil
}

// buildBus selects the event bus backend. Redis and NATS buses degrade to
// an in-memory bus when the broker is unreachable.
func (s *Server) buildBus() events.PubSub {
	switch s.cfg.BusBackend {
	case config.BusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		bus, err := eventbus.NewRedisBus(redisCfg, s.cfg.InstanceID, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("redis bus unavailable, using in-memory bus")
			return events.NewBus()
		}
		s.DeferClose(bus.Close)
		return bus
	case config.BusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		bus, err := eventbus.NewNATSBus(natsCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats bus unavailable, using in-memory bus")
			return events.NewBus()
		}
		s.DeferClose(bus.Close)
		return bus
	default:
		return events.NewBus()
	}
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus listener, if configured.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Automation loop: leader-aware when configured, direct otherwise.
	if s.leaderAwareAutomation != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.leaderAwareAutomation.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("leader-aware automation exited")
			}
		}()
	} else {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := s.automation.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Msg("automation loop exited")
			}
		}()
	}

	// Audit trail consumer.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	// Mark import jobs orphaned by a previous crash.
	if err := s.migrationSvc.RecoverStaleJobs(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to recover stale import jobs")
	}

	// Database pool metrics.
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
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

	if s.cache != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.runCacheInvalidationListener(ctx)
		}()
	}
}

// runCacheInvalidationListener subscribes to mutation events and drops the
// affected cache entries. With a distributed bus this also covers writes
// made by other instances.
func (s *Server) runCacheInvalidationListener(ctx context.Context) {
	channelCreated := s.bus.Subscribe(events.EventChannelCreated)
	channelUpdated := s.bus.Subscribe(events.EventChannelUpdated)
	channelDeleted := s.bus.Subscribe(events.EventChannelDeleted)
	ruleCreated := s.bus.Subscribe(events.EventRuleCreated)
	ruleUpdated := s.bus.Subscribe(events.EventRuleUpdated)
	ruleDeleted := s.bus.Subscribe(events.EventRuleDeleted)
	couponUpdated := s.bus.Subscribe(events.EventCouponUpdated)

	defer func() {
		s.bus.Unsubscribe(events.EventChannelCreated, channelCreated)
		s.bus.Unsubscribe(events.EventChannelUpdated, channelUpdated)
		s.bus.Unsubscribe(events.EventChannelDeleted, channelDeleted)
		s.bus.Unsubscribe(events.EventRuleCreated, ruleCreated)
		s.bus.Unsubscribe(events.EventRuleUpdated, ruleUpdated)
		s.bus.Unsubscribe(events.EventRuleDeleted, ruleDeleted)
		s.bus.Unsubscribe(events.EventCouponUpdated, couponUpdated)
	}()

	s.logger.Info().Msg("cache invalidation listener started")

	invalidateChannel := func(payload events.Payload) {
		s.cache.InvalidateChannelList(ctx)
		if channelID, ok := payload["channel_id"].(string); ok {
			s.cache.InvalidateChannel(ctx, channelID)
		}
	}
	invalidateRules := func(payload events.Payload) {
		if channelID, ok := payload["channel_id"].(string); ok {
			s.cache.InvalidateChannelRules(ctx, channelID)
		}
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("cache invalidation listener stopped")
			return
		case payload := <-channelCreated:
			invalidateChannel(payload)
		case payload := <-channelUpdated:
			invalidateChannel(payload)
		case payload := <-channelDeleted:
			invalidateChannel(payload)
		case payload := <-ruleCreated:
			invalidateRules(payload)
		case payload := <-ruleUpdated:
			invalidateRules(payload)
		case payload := <-ruleDeleted:
			invalidateRules(payload)
		case <-couponUpdated:
			s.cache.InvalidateCouponStats(ctx)
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok"`
		if s.leaderAwareAutomation != nil {
			if s.leaderAwareAutomation.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.api.Routes(s.router)

	// Prometheus scrapes a separate listener so metrics stay off the
	// public surface.
	if s.cfg.MetricsBind != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
}
