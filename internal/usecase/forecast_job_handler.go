package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"FinCast/internal/domain/models"
	drepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/ingest"
	"FinCast/pkg/logger"
	pkgkafka "FinCast/pkg/kafka"
)

// ForecastJobHandler consumes forecast jobs from Kafka, runs them and
// publishes the completed batch.
type ForecastJobHandler struct {
	topic      string
	forecaster *BatchForecaster
	publisher  drepo.ResultPublisher
	metrics    drepo.Metrics
	log        *logger.Logger
	validate   *validator.Validate
}

func NewForecastJobHandler(topic string, forecaster *BatchForecaster, publisher drepo.ResultPublisher, metrics drepo.Metrics, log *logger.Logger) *ForecastJobHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ForecastJobHandler{
		topic:      topic,
		forecaster: forecaster,
		publisher:  publisher,
		metrics:    metrics,
		log:        log,
		validate:   validator.New(),
	}
}

func (h *ForecastJobHandler) Topic() string { return h.topic }

// incoming message schema: {job_id, model, lags, format, data(base64)}
func (h *ForecastJobHandler) Handle(ctx context.Context, b []byte) error {
	var job models.ForecastJob
	if err := defaults.Set(&job); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &job); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", models.ErrDataFormat, err))
	}
	if err := h.validate.Struct(&job); err != nil {
		h.metrics.RecordError("consumer_validate")
		return pkgkafka.Permanent(fmt.Errorf("%w: %v", models.ErrDataFormat, err))
	}

	strategy, err := models.ParseStrategy(job.Model)
	if err != nil {
		h.metrics.RecordError("invalid_strategy")
		return pkgkafka.Permanent(err)
	}
	format, err := ingest.DetectFormat("", job.Format)
	if err != nil {
		return pkgkafka.Permanent(err)
	}

	start := time.Now()
	ds, err := ingest.Parse(bytes.NewReader(job.Data), format, strategy)
	h.metrics.RecordLatency("job_parse_seconds", time.Since(start).Seconds())
	if err != nil {
		h.metrics.RecordError("consumer_parse")
		return pkgkafka.Permanent(err)
	}

	batch, err := h.forecaster.RunBatch(ctx, ds, strategy, RunOptions{JobID: job.JobID, LagCount: job.Lags})
	if err != nil {
		if models.IsClientError(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}

	if h.publisher == nil {
		return nil
	}
	if err := h.publisher.PublishBatch(ctx, batch); err != nil {
		h.metrics.RecordError("publish_result")
		return fmt.Errorf("publish batch %s: %w", batch.BatchID, err)
	}
	h.log.Info("job completed",
		logger.String("job_id", job.JobID),
		logger.String("trace_id", pkgkafka.TraceID(ctx)),
		logger.String("batch_id", batch.BatchID),
		logger.Int("categories", batch.Results.Len()))
	return nil
}

var _ pkgkafka.MessageHandler = (*ForecastJobHandler)(nil)
