package repository

import (
	"context"

	"FinCast/internal/domain/models"
)

// ResultSink archives completed batches.
type ResultSink interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreBatch(ctx context.Context, b *models.ForecastBatch) error
	Health(ctx context.Context) error
	Close() error
}

// ResultPublisher announces completed batches to downstream consumers.
type ResultPublisher interface {
	PublishBatch(ctx context.Context, b *models.ForecastBatch) error
	Close() error
}

type Metrics interface {
	RecordForecast(strategy, outcome string)
	RecordFitDuration(strategy string, seconds float64)
	RecordBatch(strategy string, categories, failed int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
