package main

import (
	"context"
	"time"

	"asocial/api_feed/internal/feed"
	"asocial/api_feed/internal/handlers"
	"asocial/api_feed/internal/metrics"
	"asocial/api_feed/internal/scorecache"
	"asocial/api_feed/internal/store"
	"asocial/api_feed/pkg/cache"
	"asocial/api_feed/pkg/config"
	"asocial/api_feed/pkg/database"
	"asocial/api_feed/pkg/logging"
	"asocial/api_feed/pkg/middleware"
	"asocial/api_feed/pkg/monitoring"
	"asocial/api_feed/pkg/redis"
	"asocial/api_feed/pkg/server"
	"asocial/api_feed/pkg/version"
)

func main() {
	logger := logging.NewLoggerWithService("crowsnest")
	config.LoadEnv(logger)

	logger.Info("Starting Crowsnest (Feed Aggregation API)")

	dbURL := config.RequireEnv("DATABASE_URL")

	dbConfig := database.DefaultConfig()
	dbConfig.URL = dbURL
	contentDB := database.MustConnect(dbConfig, logger)
	defer func() { _ = contentDB.Close() }()

	if config.GetEnvBool("DB_BOOTSTRAP", false) {
		if err := database.ApplySchema(context.Background(), contentDB, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply content schema")
		}
	}

	healthChecker := monitoring.NewHealthChecker("crowsnest", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("crowsnest", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(contentDB))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL": dbURL,
	}))

	serviceMetrics := &metrics.Metrics{
		FeedPages:         metricsCollector.NewCounter("feed_pages_total", "Feed pages served", []string{"status"}),
		ItemsScored:       metricsCollector.NewCounter("items_scored_total", "Content items scored", []string{"kind"}),
		ItemsDropped:      metricsCollector.NewCounter("items_dropped_total", "Content items excluded from pages", []string{"reason"}),
		SourceErrors:      metricsCollector.NewCounter("source_errors_total", "Content source failures", []string{"source"}),
		AggregateDuration: metricsCollector.NewHistogram("aggregate_duration_seconds", "Feed aggregation stage duration", []string{"stage"}, nil),
		ScoreCacheLookups: metricsCollector.NewCounter("score_cache_lookups_total", "Score cache lookups", []string{"result"}),
	}

	// Content store with per-source query policies so one slow source
	// degrades instead of stalling whole pages.
	storeConfig := store.DefaultResilientConfig()
	storeConfig.QueryTimeout = config.GetEnvDuration("SOURCE_QUERY_TIMEOUT", storeConfig.QueryTimeout)
	contentStore := store.NewResilient(store.NewPostgres(contentDB, logger), storeConfig)

	scorer := feed.NewScorer(feed.ScorerConfig{
		ConstructiveFloor: config.GetEnvFloat("CONSTRUCTIVE_FLOOR", 0.6),
		ShareDecay:        config.GetEnvFloat("SHARE_DECAY", 0.85),
	})

	scoreTTL := config.GetEnvDuration("SCORE_CACHE_TTL", scorecache.DefaultTTL)
	scores := buildScoreCache(logger, healthChecker, serviceMetrics, scoreTTL)

	aggregatorConfig := feed.DefaultConfig()
	aggregatorConfig.RerankWindow = config.GetEnvInt("FEED_RERANK_WINDOW", aggregatorConfig.RerankWindow)
	aggregator := feed.NewAggregator(contentStore, scorer, scores, aggregatorConfig, logger, serviceMetrics)

	router := server.SetupServiceRouter(logger, "crowsnest", healthChecker, metricsCollector)

	feedHandler := handlers.NewFeedHandler(aggregator, logger, serviceMetrics)

	api := router.Group("/api")
	if serviceToken := config.GetEnv("SERVICE_TOKEN", ""); serviceToken != "" {
		api.Use(middleware.ServiceAuthMiddleware(serviceToken))
	}
	api.GET("/feed/:userID", feedHandler.GetFeed)

	serverConfig := server.DefaultConfig("crowsnest", "18040")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.Fatal(err.Error())
	}
}

// buildScoreCache selects the short-window score cache backend: Redis when
// REDIS_URL is set, in-process otherwise.
func buildScoreCache(logger logging.Logger, healthChecker *monitoring.HealthChecker, serviceMetrics *metrics.Metrics, ttl time.Duration) scorecache.Cache {
	redisURL := config.GetEnv("REDIS_URL", "")
	if redisURL == "" {
		return scorecache.NewMemory(ttl, cacheHooks(serviceMetrics))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClientFromURL(ctx, redisURL)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, using in-process score cache")
		return scorecache.NewMemory(ttl, cacheHooks(serviceMetrics))
	}

	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(client))
	return scorecache.NewRedis(client, ttl)
}

func cacheHooks(serviceMetrics *metrics.Metrics) cache.MetricsHooks {
	observe := func(result string) func(map[string]string) {
		return func(map[string]string) {
			serviceMetrics.ScoreCacheLookups.WithLabelValues(result).Inc()
		}
	}
	return cache.MetricsHooks{
		OnHit:   observe("hit"),
		OnMiss:  observe("miss"),
		OnStale: observe("stale"),
	}
}
