package repository

import (
	"context"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
	"FinCast/internal/services/report"
	pkgkafka "FinCast/pkg/kafka"
)

// producer is the subset of *pkgkafka.Producer the publisher needs.
type producer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// ResultEvent is published once per completed batch.
type ResultEvent struct {
	JobID     string          `json:"job_id,omitempty"`
	BatchID   string          `json:"batch_id"`
	Model     string          `json:"model"`
	CreatedAt time.Time       `json:"created_at"`
	ElapsedMS int64           `json:"elapsed_ms"`
	Failed    int             `json:"failed"`
	Results   []report.Row    `json:"results"`
	Forecasts report.Document `json:"forecasts"`
}

// NewResultEvent builds the event payload of b.
func NewResultEvent(b *models.ForecastBatch) ResultEvent {
	return ResultEvent{
		JobID:     b.JobID,
		BatchID:   b.BatchID,
		Model:     b.Strategy.String(),
		CreatedAt: b.CreatedAt,
		ElapsedMS: b.Elapsed.Milliseconds(),
		Failed:    b.Results.Failed(),
		Results:   report.Rows(b.Results),
		Forecasts: report.Render(b.Strategy, b.Results),
	}
}

// KafkaResultPublisher implements ResultPublisher for Kafka.
type KafkaResultPublisher struct {
	producer producer
	topic    string
}

// NewKafkaResultPublisher creates Kafka publisher.
func NewKafkaResultPublisher(p *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: p, topic: topic}
}

var _ repository.ResultPublisher = (*KafkaResultPublisher)(nil)

// PublishBatch keys the event by job id so a job's results stay ordered.
// The trace id of the originating request travels as a header.
func (p *KafkaResultPublisher) PublishBatch(ctx context.Context, b *models.ForecastBatch) error {
	key := b.JobID
	if key == "" {
		key = b.BatchID
	}
	msg := pkgkafka.Message{Key: []byte(key), Value: NewResultEvent(b)}
	if id := pkgkafka.TraceID(ctx); id != "" {
		msg.Headers = map[string]string{"trace_id": id}
	}
	return p.producer.PublishBatch(ctx, p.topic, []pkgkafka.Message{msg})
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
