package main

import (
	"context"
	"net/http"

	"contact-guard/internal/config"
	"contact-guard/internal/delivery"
	"contact-guard/internal/handler"
	"contact-guard/internal/metrics"
	"contact-guard/internal/middleware"
	"contact-guard/internal/repository"
	"contact-guard/internal/service"

	"github.com/rs/zerolog"
)

// app is the wired contactd process: one store, one limiter, one handler tree.
type app struct {
	store   repository.Store
	limiter *service.Limiter
	metrics *metrics.Registry
	handler http.Handler
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger) *app {
	a := &app{metrics: metrics.NewRegistry()}

	// storage, chosen once
	a.store = repository.Open(ctx, repository.RedisOptions{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		PoolSize:     cfg.Redis.PoolSize,
	}, logger)
	if mem, ok := a.store.(*repository.MemoryStore); ok {
		mem.StartJanitor(ctx, cfg.Limits.SweepInterval)
		a.metrics.TrackLocalKeys(mem.Len)
	}

	// services
	breaker := service.NewCircuitBreaker(cfg.Breaker.FailureThreshold, cfg.Breaker.SuccessThreshold, cfg.Breaker.ResetTimeout)
	breaker.OnStateChange(func(from, to service.BreakerState) {
		a.metrics.SetBreakerState(string(to))
		logger.Warn().Str("from", string(from)).Str("to", string(to)).Msg("counter store breaker changed state")
	})
	a.limiter = service.NewLimiter(a.store, service.Options{
		IPLimit:       cfg.Limits.IPRequests,
		IPWindow:      cfg.Limits.IPWindow,
		EmailCooldown: cfg.Limits.EmailCooldown,
		StoreTimeout:  cfg.Limits.StoreTimeout,
		FailurePolicy: service.ParseFailurePolicy(cfg.Limits.FailurePolicy),
		Breaker:       breaker,
		Recorder:      a.metrics,
		Logger:        &logger,
	})

	var sender delivery.Sender = delivery.NewLogSender(logger)
	if cfg.Delivery.WebhookURL != "" {
		sender = delivery.NewWebhookSender(cfg.Delivery.WebhookURL, cfg.Delivery.Rate, cfg.Delivery.Burst, nil)
		logger.Info().Msg("webhook delivery enabled")
	}

	contactOpts := handler.ContactOptions{Recorder: a.metrics, Logger: &logger}
	if v := handler.NewTurnstileVerifier(cfg.Turnstile.Secret, cfg.Turnstile.VerifyURL, nil); v != nil {
		contactOpts.Verifier = v
		logger.Info().Msg("turnstile bot check enabled")
	}

	// handlers
	contact := handler.NewContactHandler(a.limiter, sender, contactOpts)
	health := handler.NewHealthHandler(a.limiter)
	health.Breaker = func() string { return string(breaker.State()) }

	mux := http.NewServeMux()
	mux.Handle("POST /api/contact", middleware.RateLimit(a.limiter)(contact))
	mux.Handle("GET /metrics", a.metrics.Handler())
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /ready", health.Readiness)
	mux.HandleFunc("GET /status", health.Status)

	// admin reset is only mounted when a signing secret is configured
	if cfg.Admin.JWTSecret != "" {
		auth := middleware.NewJWTMiddleware([]byte(cfg.Admin.JWTSecret), cfg.Admin.JWTIssuer)
		admin := handler.NewAdminHandler(a.limiter)
		mux.Handle("POST /admin/limits/reset", auth(middleware.RequireRole(middleware.RoleAdmin, middleware.RoleOperator)(admin)))
		logger.Info().Msg("admin endpoints enabled")
	}

	// middleware chain, outermost last
	var h http.Handler = mux
	h = middleware.RequestSizeLimit(cfg.MaxBodyBytes)(h)
	h = middleware.Metrics(a.metrics, "/api/contact", "/admin/limits/reset", "/health", "/ready", "/status", "/metrics")(h)
	h = middleware.LoggingWith(logger)(h)
	h = middleware.RequestID(h)
	a.handler = h

	return a
}

func (a *app) close() {
	_ = a.store.Close()
}
