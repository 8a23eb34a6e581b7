package models

import "time"

// ForecastBatch is one completed orchestrator run, as archived and published.
type ForecastBatch struct {
	BatchID   string
	JobID     string
	Strategy  Strategy
	CreatedAt time.Time
	Elapsed   time.Duration
	Results   *ResultMapping
}
