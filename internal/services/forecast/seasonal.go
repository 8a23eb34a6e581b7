package forecast

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/pkg/logger"
)

const (
	// kpssCritical5 is the 5% critical value of the level-stationarity KPSS test.
	kpssCritical5 = 0.463
	// seasonalStrengthThreshold triggers one seasonal difference.
	seasonalStrengthThreshold = 0.64
	// minSeasonalPoints is the shortest series given any forecast at all.
	minSeasonalPoints = 4
)

// SeasonalConfig bounds the automatic order search.
type SeasonalConfig struct {
	Period    int
	MaxP      int
	MaxQ      int
	MaxD      int
	MaxSP     int
	MaxSQ     int
	MaxSD     int
	MaxOrder  int // upper bound on p+q+P+Q, 0 disables it
	MaxModels int // candidates fitted before the search stops
	MaxIter   int // optimiser iterations per candidate
	Criterion string
}

func DefaultSeasonalConfig() SeasonalConfig {
	return SeasonalConfig{
		Period: 12, MaxP: 5, MaxQ: 5, MaxD: 2, MaxSP: 2, MaxSQ: 2, MaxSD: 1,
		MaxModels: 94, MaxIter: 2000, Criterion: "aic",
	}
}

// SeasonalEngine selects a SARIMA order by stepwise information-criterion
// search and forecasts one step ahead.
type SeasonalEngine struct {
	cfg SeasonalConfig
	log *logger.Logger
}

var _ service.Engine = (*SeasonalEngine)(nil)

func NewSeasonalEngine(cfg SeasonalConfig, log *logger.Logger) *SeasonalEngine {
	if cfg.Period < 2 {
		cfg.Period = 12
	}
	if cfg.MaxModels <= 0 {
		cfg.MaxModels = 94
	}
	cfg.Criterion = strings.ToLower(cfg.Criterion)
	if log == nil {
		log = logger.Nop()
	}
	return &SeasonalEngine{cfg: cfg, log: log}
}

func (e *SeasonalEngine) Strategy() models.Strategy { return models.StrategySeasonal }

func (e *SeasonalEngine) FitPredict(_ context.Context, in models.EngineInput) (models.Prediction, error) {
	s := in.Series
	if s.Len() < minSeasonalPoints {
		return models.Prediction{}, fmt.Errorf("%w: category %q has %d points, need at least %d",
			models.ErrInsufficientData, s.Category, s.Len(), minSeasonalPoints)
	}

	start := time.Now()
	y := s.Values()
	fit, stats, err := e.search(y)
	trainTime := time.Since(start)
	if err != nil {
		e.log.Error("order search failed",
			logger.String("category", s.Category),
			logger.Int("candidates", stats.tried),
			logger.Int("failed", stats.failed),
			logger.Error(err))
		return models.Prediction{}, fmt.Errorf("%w: category %q: %v", models.ErrModelFit, s.Category, err)
	}

	value := fit.forecastNext(y)
	if err := checkPrediction(s.Category, value); err != nil {
		return models.Prediction{}, err
	}

	e.log.Info(fmt.Sprintf("Category %s processed in %.2f seconds", s.Category, seconds(trainTime)),
		logger.String("category", s.Category),
		logger.String("order", fit.order.String()),
		logger.Float64(e.cfg.Criterion, fit.ic),
		logger.Int("candidates", stats.tried),
		logger.Int("failed", stats.failed),
		logger.Duration("duration_ms", trainTime))

	return models.Prediction{Value: value, TrainTime: trainTime, Timed: true}, nil
}

type searchStats struct {
	tried  int
	failed int
}

// search picks differencing orders by unit-root and seasonal-strength tests,
// then walks the order neighbourhood from a few start models, keeping the
// best criterion. Candidates that fail to fit are skipped.
func (e *SeasonalEngine) search(y []float64) (*arimaFit, searchStats, error) {
	cfg := e.cfg
	m := cfg.Period
	seasonal := len(y) >= 2*m

	sd := 0
	if seasonal && cfg.MaxSD > 0 && seasonalStrength(y, m) >= seasonalStrengthThreshold {
		sd = 1
	}
	d := ndiffs(differenceAll(y, 0, sd, m), cfg.MaxD)

	constant := d+sd <= 1
	var stats searchStats
	tried := make(map[order]bool)
	var best *arimaFit

	consider := func(o order) bool {
		if stats.tried >= cfg.MaxModels || tried[o] || !e.allowed(o, seasonal) {
			return false
		}
		tried[o] = true
		stats.tried++
		fit, err := fitARIMA(y, o, cfg.MaxIter, cfg.Criterion)
		if err != nil {
			stats.failed++
			e.log.Debug("candidate skipped", logger.String("order", o.String()), logger.Error(err))
			return false
		}
		if best == nil || fit.ic < best.ic {
			best = fit
			return true
		}
		return false
	}

	mk := func(p, q, sp, sq int, c bool) order {
		if !seasonal {
			sp, sq = 0, 0
		}
		return order{P: p, D: d, Q: q, SP: sp, SD: sd, SQ: sq, M: m, Constant: c}
	}

	consider(mk(2, 2, 1, 1, constant))
	consider(mk(0, 0, 0, 0, constant))
	consider(mk(1, 0, 1, 0, constant))
	consider(mk(0, 1, 0, 1, constant))
	if constant {
		consider(mk(0, 0, 0, 0, false))
	}

	for best != nil && stats.tried < cfg.MaxModels {
		improved := false
		for _, o := range neighbours(best.order, d+sd <= 1) {
			if consider(o) {
				improved = true
				break
			}
		}
		if !improved {
			break
		}
	}

	if best == nil {
		return nil, stats, fmt.Errorf("none of %d candidate orders could be fitted", stats.tried)
	}
	return best, stats, nil
}

func (e *SeasonalEngine) allowed(o order, seasonal bool) bool {
	cfg := e.cfg
	if o.P < 0 || o.Q < 0 || o.SP < 0 || o.SQ < 0 {
		return false
	}
	if o.P > cfg.MaxP || o.Q > cfg.MaxQ {
		return false
	}
	if !seasonal && (o.SP > 0 || o.SQ > 0) {
		return false
	}
	if o.SP > cfg.MaxSP || o.SQ > cfg.MaxSQ {
		return false
	}
	return cfg.MaxOrder <= 0 || o.P+o.Q+o.SP+o.SQ <= cfg.MaxOrder
}

// neighbours lists the stepwise moves around o, in the order they are tried.
func neighbours(o order, canToggleConstant bool) []order {
	moves := [][4]int{
		{-1, 0, 0, 0}, {1, 0, 0, 0}, {0, -1, 0, 0}, {0, 1, 0, 0},
		{-1, -1, 0, 0}, {1, 1, 0, 0},
		{0, 0, -1, 0}, {0, 0, 1, 0}, {0, 0, 0, -1}, {0, 0, 0, 1},
		{0, 0, -1, -1}, {0, 0, 1, 1},
		{-1, 1, 0, 0}, {1, -1, 0, 0},
	}
	out := make([]order, 0, len(moves)+1)
	for _, mv := range moves {
		n := o
		n.P += mv[0]
		n.Q += mv[1]
		n.SP += mv[2]
		n.SQ += mv[3]
		out = append(out, n)
	}
	if canToggleConstant {
		n := o
		n.Constant = !o.Constant
		out = append(out, n)
	}
	return out
}

// ndiffs differences x until the KPSS test stops rejecting level
// stationarity, up to maxD times.
func ndiffs(x []float64, maxD int) int {
	d := 0
	for d < maxD && len(x) >= 3 && kpssStatistic(x) > kpssCritical5 {
		x = difference(x, 1)
		d++
	}
	return d
}

// kpssStatistic is the level-stationarity KPSS statistic with a Bartlett
// long-run variance and the short lag truncation trunc(3*sqrt(n)/13).
func kpssStatistic(x []float64) float64 {
	n := len(x)
	mean := stat.Mean(x, nil)
	e := make([]float64, n)
	for i, v := range x {
		e[i] = v - mean
	}

	var eta, s float64
	for _, v := range e {
		s += v
		eta += s * s
	}
	eta /= float64(n * n)

	lags := int(math.Trunc(3 * math.Sqrt(float64(n)) / 13))
	lrv := 0.0
	for _, v := range e {
		lrv += v * v
	}
	for k := 1; k <= lags; k++ {
		w := 1 - float64(k)/float64(lags+1)
		acc := 0.0
		for t := k; t < n; t++ {
			acc += e[t] * e[t-k]
		}
		lrv += 2 * w * acc
	}
	lrv /= float64(n)
	if lrv <= 1e-12 {
		return 0
	}
	return eta / lrv
}

// seasonalStrength is max(0, 1 - Var(remainder)/Var(seasonal+remainder))
// from a classical additive decomposition with a centred moving-average trend.
func seasonalStrength(y []float64, m int) float64 {
	n := len(y)
	if n < 2*m {
		return 0
	}

	trend := make([]float64, n)
	valid := make([]bool, n)
	half := m / 2
	for t := half; t < n-half; t++ {
		sum := 0.0
		if m%2 == 0 {
			sum = 0.5*y[t-half] + 0.5*y[t+half]
			for j := t - half + 1; j < t+half; j++ {
				sum += y[j]
			}
		} else {
			for j := t - half; j <= t+half; j++ {
				sum += y[j]
			}
		}
		trend[t] = sum / float64(m)
		valid[t] = true
	}

	idx := make([]float64, m)
	cnt := make([]int, m)
	for t := 0; t < n; t++ {
		if valid[t] {
			idx[t%m] += y[t] - trend[t]
			cnt[t%m]++
		}
	}
	avg := 0.0
	for i := range idx {
		// one detrended value per position would be all "seasonal"
		if cnt[i] < 2 {
			return 0
		}
		idx[i] /= float64(cnt[i])
		avg += idx[i]
	}
	avg /= float64(m)

	var detr, rem []float64
	for t := 0; t < n; t++ {
		if !valid[t] {
			continue
		}
		dt := y[t] - trend[t]
		detr = append(detr, dt)
		rem = append(rem, dt-(idx[t%m]-avg))
	}
	vd := stat.Variance(detr, nil)
	if !(vd > 1e-12) {
		return 0
	}
	return math.Max(0, 1-stat.Variance(rem, nil)/vd)
}
