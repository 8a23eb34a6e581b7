package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/repository"
)

// execer is the subset of *sql.DB the store needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	PingContext(ctx context.Context) error
}

// ClickHouseForecastStore archives completed batches, one row per category.
type ClickHouseForecastStore struct {
	db       execer
	database string
	table    string
}

// NewClickHouseForecastStore creates the forecast archive.
func NewClickHouseForecastStore(db *sql.DB, database, table string) *ClickHouseForecastStore {
	return newForecastStore(db, database, table)
}

func newForecastStore(db execer, database, table string) *ClickHouseForecastStore {
	return &ClickHouseForecastStore{db: db, database: database, table: table}
}

var _ repository.ResultSink = (*ClickHouseForecastStore)(nil)

func (s *ClickHouseForecastStore) qualified() string {
	return fmt.Sprintf("%s.%s", s.database, s.table)
}

// Schema returns the idempotent DDL of the archive.
func (s *ClickHouseForecastStore) Schema() []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", s.database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	batch_id String,
	job_id String,
	created_at DateTime64(3, 'UTC'),
	strategy LowCardinality(String),
	position UInt32,
	category String,
	value Nullable(Float64),
	train_time_seconds Nullable(Float64),
	failure String
) ENGINE = MergeTree
PARTITION BY toYYYYMM(created_at)
ORDER BY (strategy, created_at, batch_id, position)`, s.qualified()),
	}
}

func (s *ClickHouseForecastStore) Init(ctx context.Context) error {
	for _, stmt := range s.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init forecast archive: %w", err)
		}
	}
	return nil
}

// StoreBatch inserts every category of b using multi-row VALUES.
func (s *ClickHouseForecastStore) StoreBatch(ctx context.Context, b *models.ForecastBatch) error {
	if b == nil || b.Results == nil || b.Results.Len() == 0 {
		return nil
	}
	results := b.Results.Results()

	// Chunk size tuned to 2000 rows per insert.
	const chunkSize = 2000
	for start := 0; start < len(results); start += chunkSize {
		end := start + chunkSize
		if end > len(results) {
			end = len(results)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*9)
		for i, r := range results[start:end] {
			var value, trainTime interface{}
			if r.OK() {
				value = *r.Value
			}
			if r.TrainTime != nil {
				trainTime = r.TrainTime.Seconds()
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				b.BatchID,
				b.JobID,
				b.CreatedAt.UTC().Truncate(time.Millisecond),
				b.Strategy.String(),
				uint32(start+i),
				r.Category,
				value,
				trainTime,
				r.Failure,
			)
		}
		q := fmt.Sprintf("INSERT INTO %s (batch_id, job_id, created_at, strategy, position, category, value, train_time_seconds, failure) VALUES %s",
			s.qualified(), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store batch %s: %w", b.BatchID, err)
		}
	}
	return nil
}

func (s *ClickHouseForecastStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseForecastStore) Close() error {
	return nil // Managed by pkg
}
