package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinCast/internal/domain/models"
	drepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/pkg/logger"
)

// EngineResolver maps a strategy to its engine.
type EngineResolver interface {
	Engine(models.Strategy) (service.Engine, error)
}

// ResultObserver is notified once per category as soon as its result exists.
// Calls are serialised even when categories run in parallel.
type ResultObserver func(models.ForecastResult)

// RunOptions tune a single batch.
type RunOptions struct {
	JobID    string
	LagCount int // 0 uses the forecaster default
	OnResult ResultObserver
}

// BatchForecaster runs one strategy over every category of a dataset.
// A category that fails never aborts the batch; it is recorded as a failed
// result in its discovery position.
type BatchForecaster struct {
	engines EngineResolver
	sink    drepo.ResultSink
	metrics drepo.Metrics
	log     *logger.Logger
	workers int
	lags    int
}

func NewBatchForecaster(engines EngineResolver, sink drepo.ResultSink, metrics drepo.Metrics, log *logger.Logger, workers, lags int) *BatchForecaster {
	if workers < 1 {
		workers = 1
	}
	if lags < 1 {
		lags = features.DefaultLagCount
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BatchForecaster{engines: engines, sink: sink, metrics: metrics, log: log, workers: workers, lags: lags}
}

// Run forecasts every category of ds and returns the ordered mapping.
func (f *BatchForecaster) Run(ctx context.Context, ds models.Dataset, strategy models.Strategy) (*models.ResultMapping, error) {
	b, err := f.RunBatch(ctx, ds, strategy, RunOptions{})
	if err != nil {
		return nil, err
	}
	return b.Results, nil
}

// RunBatch is Run with per-batch options. The completed batch is archived to
// the sink when one is configured; archive errors are logged only.
func (f *BatchForecaster) RunBatch(ctx context.Context, ds models.Dataset, strategy models.Strategy, opts RunOptions) (*models.ForecastBatch, error) {
	if !strategy.Valid() {
		f.metrics.RecordError("invalid_strategy")
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidStrategy, strategy)
	}
	engine, err := f.engines.Engine(strategy)
	if err != nil {
		f.metrics.RecordError("invalid_strategy")
		return nil, err
	}

	lags := opts.LagCount
	if lags < 1 {
		lags = f.lags
	}

	batch := &models.ForecastBatch{
		BatchID:   uuid.NewString(),
		JobID:     opts.JobID,
		Strategy:  strategy,
		CreatedAt: time.Now().UTC(),
	}
	log := f.log.With(logger.String("batch_id", batch.BatchID), logger.String("strategy", strategy.String()))
	log.Info("batch started", logger.Int("categories", len(ds.Categories)), logger.Int("workers", f.workers))

	notify := func(models.ForecastResult) {}
	if opts.OnResult != nil {
		var mu sync.Mutex
		notify = func(r models.ForecastResult) {
			mu.Lock()
			defer mu.Unlock()
			opts.OnResult(r)
		}
	}

	slots := make([]models.ForecastResult, len(ds.Categories))
	work := func(i int) {
		r := f.forecastCategory(ctx, log, engine, ds, ds.Categories[i], lags)
		slots[i] = r
		notify(r)
	}

	if f.workers == 1 {
		for i := range ds.Categories {
			work(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(f.workers)
		for i := range ds.Categories {
			i := i
			g.Go(func() error {
				work(i)
				return nil
			})
		}
		_ = g.Wait()
	}

	results := models.NewResultMapping(len(slots))
	for _, r := range slots {
		results.Set(r)
	}
	batch.Results = results
	batch.Elapsed = time.Since(batch.CreatedAt)

	f.metrics.RecordBatch(strategy.String(), results.Len(), results.Failed())
	f.metrics.RecordLatency("batch", batch.Elapsed.Seconds())
	log.Info("batch finished",
		logger.Int("categories", results.Len()),
		logger.Int("failed", results.Failed()),
		logger.Duration("duration_ms", batch.Elapsed))

	if f.sink != nil {
		if err := f.sink.StoreBatch(ctx, batch); err != nil {
			f.metrics.RecordError("archive")
			log.Warn("archive batch failed", logger.Error(err))
		}
	}
	return batch, nil
}

// forecastCategory runs extract, features and fit for one category. Errors
// and panics become a failed result.
func (f *BatchForecaster) forecastCategory(ctx context.Context, log *logger.Logger, engine service.Engine, ds models.Dataset, category string, lags int) (res models.ForecastResult) {
	strategy := engine.Strategy()
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			res = models.Failed(category, fmt.Errorf("%w: category %q: panic: %v", models.ErrModelFit, category, rec))
		}
		if res.OK() {
			f.metrics.RecordForecast(strategy.String(), "ok")
			f.metrics.RecordFitDuration(strategy.String(), time.Since(start).Seconds())
			return
		}
		f.metrics.RecordForecast(strategy.String(), "failed")
		log.Error("category forecast failed", logger.String("category", category), logger.Error(res.Err))
	}()

	series, err := features.ExtractSeries(ds, category)
	if err != nil {
		return models.Failed(category, err)
	}
	if dup := features.DuplicateDates(series); dup > 0 {
		log.Debug("duplicate dates kept in input order", logger.String("category", category), logger.Int("duplicates", dup))
	}

	in := models.EngineInput{Series: series}
	if strategy.NeedsFeatures() {
		rows, err := features.BuildFeatures(series, lags)
		if err != nil {
			return models.Failed(category, err)
		}
		in.Rows = rows
	}

	p, err := engine.FitPredict(ctx, in)
	if err != nil {
		return models.Failed(category, err)
	}
	return models.Succeeded(category, p)
}

type nopMetrics struct{}

func (nopMetrics) RecordForecast(string, string)     {}
func (nopMetrics) RecordFitDuration(string, float64) {}
func (nopMetrics) RecordBatch(string, int, int)      {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordLatency(string, float64)     {}

var _ drepo.Metrics = nopMetrics{}
