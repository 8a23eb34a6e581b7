package forecast

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/pkg/logger"
)

// Config bundles the fixed defaults of every engine.
type Config struct {
	Seasonal      SeasonalConfig
	Decomposition DecompositionConfig
	Boosting      BoostingConfig
}

func DefaultConfig() Config {
	return Config{
		Seasonal:      DefaultSeasonalConfig(),
		Decomposition: DefaultDecompositionConfig(),
		Boosting:      DefaultBoostingConfig(),
	}
}

// Registry resolves a strategy to its engine.
type Registry struct {
	engines map[models.Strategy]service.Engine
}

// NewRegistry builds one engine per strategy, each writing to its own log.
func NewRegistry(cfg Config, logs *logger.EngineLogs) *Registry {
	return NewRegistryWith(
		NewSeasonalEngine(cfg.Seasonal, logs.For(models.StrategySeasonal.String())),
		NewDecompositionEngine(cfg.Decomposition, logs.For(models.StrategyDecomposition.String())),
		NewRegressionEngine(cfg.Boosting, logs.For(models.StrategyRegression.String())),
	)
}

// NewRegistryWith registers arbitrary engines, keyed by their own strategy.
func NewRegistryWith(engines ...service.Engine) *Registry {
	r := &Registry{engines: make(map[models.Strategy]service.Engine, len(engines))}
	for _, e := range engines {
		r.engines[e.Strategy()] = e
	}
	return r
}

// Engine returns the engine for s, or ErrInvalidStrategy.
func (r *Registry) Engine(s models.Strategy) (service.Engine, error) {
	e, ok := r.engines[s]
	if !ok {
		return nil, fmt.Errorf("%w: no engine for %q", models.ErrInvalidStrategy, s)
	}
	return e, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func checkPrediction(category string, v float64) error {
	if !finite(v) {
		return fmt.Errorf("%w: category %q produced a non-finite forecast", models.ErrModelFit, category)
	}
	return nil
}

func seconds(d time.Duration) float64 { return d.Seconds() }
