package di

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/repository"
	"FinCast/internal/handler/api"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/service/cache"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
	pkgch "FinCast/pkg/clickhouse"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"
	"FinCast/pkg/server"
)

// ProvideLogger creates the process logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, func(), error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return l, func() { _ = l.Close() }, nil
}

// ProvideEngineLogs opens one append-only log per forecasting engine. Its
// cleanup runs after the app has stopped HTTP and the consumer; a fit still
// running past that point logs into a closed file, which drops the lines.
func ProvideEngineLogs(cfg *config.Config) (*logger.EngineLogs, func(), error) {
	logs, err := logger.OpenEngineLogs(logger.EngineLogsConfig{
		Level:  cfg.Logging.Level,
		Format: "json",
		Files:  cfg.Logging.Engines,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("engine logs: %w", err)
	}
	return logs, func() { _ = logs.Close() }, nil
}

// ProvideEngineRegistry builds the sarima, prophet and gb engines.
func ProvideEngineRegistry(cfg *config.Config, logs *logger.EngineLogs) *forecast.Registry {
	return forecast.NewRegistry(forecast.Config{
		Seasonal:      forecast.SeasonalConfig(cfg.Forecast.Seasonal),
		Decomposition: forecast.DecompositionConfig(cfg.Forecast.Decomposition),
		Boosting:      forecast.BoostingConfig(cfg.Forecast.Boosting),
	}, logs)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects to ClickHouse, or returns nil when the
// archive is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(10, 5, 0),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideResultSink creates the forecast archive and its schema.
func ProvideResultSink(client *pkgch.Client, cfg *config.Config) (repository.ResultSink, error) {
	if client == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseForecastStore(client.DB(), cfg.ClickHouse.Database, cfg.ClickHouse.Table)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, nil
}

// ProvideKafkaProducer creates a Kafka producer, or returns nil when Kafka
// is disabled. With logging.error_digest set, error lines of log are
// aggregated and published to the errors topic.
func ProvideKafkaProducer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithDelivery(cfg.Kafka.RequiredAcks, cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerLogger(log),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}

	if cfg.Logging.ErrorDigest && cfg.Kafka.ErrorsTopic != "" {
		log.AddCollector(&logger.CollectionConfig{
			TimeInterval: cfg.Logging.ErrorDigestInterval,
			Topic:        cfg.Kafka.ErrorsTopic,
			Publisher:    producer,
		})
	}

	// The collector flushes through the producer, so it goes first.
	cleanup := func() {
		log.RemoveCollector()
		_ = producer.Close()
	}
	return producer, cleanup, nil
}

// ProvideResultPublisher publishes finished batches to the results topic.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

// ProvideBatchForecaster creates the per-category orchestrator.
func ProvideBatchForecaster(
	cfg *config.Config,
	registry *forecast.Registry,
	sink repository.ResultSink,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.BatchForecaster {
	return usecase.NewBatchForecaster(registry, sink, m, log, cfg.Forecast.Workers, cfg.Forecast.LagCount)
}

// ProvideResponseCache creates the memory or Redis response cache, or nil
// when caching is disabled.
func ProvideResponseCache(cfg *config.Config) (cache.BytesCache, func(), error) {
	if !cfg.Cache.Enabled {
		return nil, func() {}, nil
	}
	if cfg.Cache.Backend != "redis" {
		return cache.NewTTLCache(cfg.Cache.MaxEntries), func() {}, nil
	}

	rc := cache.NewRedisCache(cache.RedisConfig{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx); err != nil {
		_ = rc.Close()
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideRateLimiter creates the per-client limiter of the predict endpoints.
func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if !cfg.RateLimit.Enabled {
		return nil
	}
	return ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
}

// ProvideForecastHandler creates the HTTP and WebSocket forecast handler.
func ProvideForecastHandler(
	cfg *config.Config,
	log *logger.Logger,
	forecaster *usecase.BatchForecaster,
	c cache.BytesCache,
	limiter *ratelimit.Limiter,
	sink repository.ResultSink,
) *api.ForecastEchoHandler {
	readiness := map[string]func(context.Context) error{}
	if sink != nil {
		readiness["clickhouse"] = sink.Health
	}
	if p, ok := c.(interface{ Ping(context.Context) error }); ok {
		readiness["redis"] = p.Ping
	}
	return api.NewForecastEchoHandler(log, forecaster, api.ForecastHandlerOptions{
		Cache:          c,
		CacheTTL:       cfg.Cache.TTL,
		Limiter:        limiter,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Readiness:      readiness,
	})
}

// ProvideHTTPServer creates the Echo server hosting h.
func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, h *api.ForecastEchoHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.AllowedOrigins),
		// multipart framing on top of the largest accepted upload
		xhttp.WithBodyLimit(cfg.Server.MaxUploadBytes+1<<20),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log),
	)
}

// ProvideKafkaConsumer creates the forecast job consumer, or nil when Kafka
// is disabled.
func ProvideKafkaConsumer(cfg *config.Config, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerHandleTimeout(cfg.Kafka.Consumer.JobTimeout),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideForecastJobHandler handles jobs of the requests topic.
func ProvideForecastJobHandler(
	cfg *config.Config,
	forecaster *usecase.BatchForecaster,
	publisher repository.ResultPublisher,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.ForecastJobHandler {
	return usecase.NewForecastJobHandler(cfg.Kafka.RequestsTopic, forecaster, publisher, m, log)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	jobs *usecase.ForecastJobHandler,
) *server.App {
	if consumer == nil {
		return server.New(cfg, log, httpServer, nil, nil)
	}
	return server.New(cfg, log, httpServer, consumer, jobs)
}
