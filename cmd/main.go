// Command taylordashd boots the TaylorDash core platform: the HTTP surface,
// the event pipeline's bus subscription, and the background sweepers
// (retention, session cleanup, plugin health checks) the ambient stack
// depends on.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"

	"github.com/taylordash/taylordash/internal/auth"
	"github.com/taylordash/taylordash/internal/bus"
	"github.com/taylordash/taylordash/internal/cache"
	"github.com/taylordash/taylordash/internal/config"
	"github.com/taylordash/taylordash/internal/db"
	apperrors "github.com/taylordash/taylordash/internal/errors"
	"github.com/taylordash/taylordash/internal/events"
	"github.com/taylordash/taylordash/internal/health"
	"github.com/taylordash/taylordash/internal/httpapi"
	"github.com/taylordash/taylordash/internal/logger"
	"github.com/taylordash/taylordash/internal/metrics"
	mw "github.com/taylordash/taylordash/internal/middleware"
	"github.com/taylordash/taylordash/internal/models"
	"github.com/taylordash/taylordash/internal/plugins"
	"github.com/taylordash/taylordash/internal/sync"
)

// ingestTopics are the bus patterns the event pipeline subscribes to on
// startup, covering the "tracker/events/<domain>/<action>" convention.
var ingestTopics = []string{"tracker/events/#"}

// pluginHealthSchedule polls every installed plugin's declared health
// endpoint once a minute.
const pluginHealthSchedule = "@every 1m"

func main() {
	cfg := config.Load()

	logger.Initialize(logger.Config{
		Level:    cfg.LogLevel,
		Pretty:   cfg.LogPretty,
		FilePath: cfg.LogFilePath,
	})
	log := logger.Log
	log.Info().Str("environment", cfg.Environment).Msg("starting taylordashd")

	store, err := db.Open(db.Config{URL: cfg.DatabaseURL, MinConns: cfg.DBMinConns, MaxConns: cfg.DBMaxConns})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage adapter")
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Host:     hostOnly(cfg.RedisAddr),
		Port:     portOnly(cfg.RedisAddr),
		Password: cfg.RedisPassword,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis cache unavailable, continuing without acceleration")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	broker, err := bus.Connect(bus.Config{
		BrokerURL: cfg.BusBrokerURL,
		Username:  cfg.BusUsername,
		Password:  cfg.BusPassword,
		ClientID:  "taylordashd",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to message bus")
	}
	defer broker.Close()

	// Logging sink: async ApplicationLog writer plus the hourly retention
	// sweep.
	sink := logger.NewSink(store, 10000, metrics.LoggingSinkDroppedTotal)
	if err := sink.StartRetentionSweep(); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule log retention sweep")
	}
	defer sink.Stop()

	// Event Pipeline: subscribe before anything can publish so no
	// message is missed in the gap between connect and subscribe.
	pipeline := events.NewPipeline(store, broker)
	if err := pipeline.Start(ingestTopics); err != nil {
		log.Fatal().Err(err).Msg("failed to start event pipeline")
	}

	// Auth Service. Sessions are read straight from Postgres on every
	// validation; no cache sits in front of revocation.
	authSvc := auth.NewService(store)

	sessionCleanup := cron.New()
	if _, err := sessionCleanup.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := authSvc.ExpireStaleSessions(ctx)
		authLog := logger.Auth()
		if err != nil {
			authLog.Error().Err(err).Msg("session cleanup sweep failed")
			return
		}
		authLog.Info().Int64("expired", n).Msg("session cleanup sweep completed")
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule session cleanup")
	}
	sessionCleanup.Start()
	defer sessionCleanup.Stop()

	// Plugin Lifecycle.
	gitClient := sync.NewGitClient()
	if err := gitClient.Validate(); err != nil {
		log.Fatal().Err(err).Msg("git binary unavailable, plugin installs cannot run")
	}
	pluginSvc := plugins.NewService(store, gitClient, pipeline, cfg.PluginBaseDir)
	healthCron, err := pluginSvc.StartHealthChecks(pluginHealthSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule plugin health checks")
	}
	defer healthCron.Stop()

	// Health Aggregator.
	aggregator := health.NewAggregator(store, broker, "taylordash", func(ctx context.Context) (int, error) {
		list, err := pluginSvc.ListPlugins(ctx)
		if err != nil {
			return 0, err
		}
		return len(list), nil
	})

	router := buildRouter(cfg, store, redisCache, sink, authSvc, pipeline, pluginSvc, aggregator)

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}

	go func() {
		log.Info().Str("addr", cfg.APIAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("api server failed")
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	_ = metricsSrv.Shutdown(ctx)
}

// buildRouter assembles the Gin engine and the full middleware chain:
// request-id, then tracing, then per-route auth/authz, then dispatch, with
// metrics and logging observing every request, plus the process-wide
// security/rate-limit/size-limit layers.
func buildRouter(
	cfg config.Config,
	store *db.Database,
	redisCache *cache.Cache,
	sink *logger.Sink,
	authSvc *auth.Service,
	pipeline *events.Pipeline,
	pluginSvc *plugins.Service,
	aggregator *health.Aggregator,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	host, _ := os.Hostname()

	// Development runs behind no TLS proxy and serves local tooling, so it
	// gets the relaxed CSP variant.
	secHeaders := mw.SecurityHeaders()
	if cfg.Environment == "development" {
		secHeaders = mw.SecurityHeadersRelaxed()
	}

	inputValidator := mw.NewInputValidator()
	router.Use(
		mw.RequestID(),
		apperrors.Recovery(logger.HTTP()),
		secHeaders,
		mw.Gzip(mw.DefaultCompression),
		mw.DefaultSizeLimiter(),
		mw.Timeout(mw.DefaultTimeoutConfig()),
		inputValidator.Middleware(),
		inputValidator.SanitizeJSONMiddleware(),
		mw.Observability(sink, cfg.Environment, host),
		apperrors.ErrorHandler(logger.HTTP()),
	)

	rateLimiter := mw.NewRateLimiter(5, 20)
	router.Use(rateLimiter.Middleware())

	// /metrics carries no auth middleware; operators restrict it at the
	// network layer.
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")

		protected := v1.Group("")
		protected.Use(requireAuth(authSvc))

		adminOnly := v1.Group("")
		adminOnly.Use(requireAuth(authSvc), requireAdmin())

		// Health Aggregator: /health/live and /health/ready are
		// unauthenticated; /api/v1/health/stack is admin-gated.
		aggregator.RegisterRoutes(router, adminOnly)

		authHandler := auth.NewHandler(authSvc)
		authHandler.RegisterRoutes(authGroup, protected.Group("/auth"), adminOnly.Group("/auth"))

		projectHandler := httpapi.NewProjectHandler(store, redisCache)
		projectHandler.RegisterRoutes(protected, adminOnly)

		componentHandler := httpapi.NewComponentHandler(store)
		componentHandler.RegisterRoutes(protected, adminOnly)

		eventsHandler := events.NewHandler(pipeline)
		eventsHandler.RegisterRoutes(protected, adminOnly)

		// Plugin mutations fan out to git clones and security scans, so
		// they get a tighter per-user budget on top of the per-IP limiter.
		installLimiter := mw.NewEndpointRateLimiter(60, 10)
		pluginAdmin := adminOnly.Group("")
		pluginAdmin.Use(installLimiter.Middleware("plugins.admin"))

		pluginsHandler := plugins.NewHandler(pluginSvc)
		pluginsHandler.RegisterRoutes(protected, pluginAdmin)

		logsHandler := httpapi.NewLogHandler(store)
		logsHandler.RegisterRoutes(adminOnly)
	}

	return router
}

func requireAuth(svc *auth.Service) gin.HandlerFunc { return auth.RequireAuth(svc) }
func requireAdmin() gin.HandlerFunc                 { return auth.RequireRole(models.RoleAdmin) }

// hostOnly/portOnly split a "host:port" address; cache.Config (unlike
// config.Config's single REDIS_ADDR) wants the two separately.
func hostOnly(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return addr[:i]
		}
	}
	return addr
}

func portOnly(addr string) string {
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return "6379"
}
