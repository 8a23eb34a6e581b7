package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

const (
	yearDays = 365.25
	// minSeasonalSpan is the history needed before a yearly cycle is fitted.
	minSeasonalSpan = 360 * 24 * time.Hour
	// trendPriorScale is the prior standard deviation of base slope and
	// offset. Values are scaled to |y| <= 1, so the prior is effectively flat.
	trendPriorScale = 1e3
	// noiseFloor bounds the residual variance (in scaled units) used to weigh priors.
	noiseFloor = 1e-4
)

// DecompositionConfig holds the additive model's fixed priors.
type DecompositionConfig struct {
	FourierOrder          int     // yearly Fourier terms
	MaxChangepoints       int     // potential trend changepoints
	ChangepointRange      float64 // share of history that may hold changepoints
	ChangepointPriorScale float64
	SeasonalityPriorScale float64
}

func DefaultDecompositionConfig() DecompositionConfig {
	return DecompositionConfig{
		FourierOrder:          10,
		MaxChangepoints:       25,
		ChangepointRange:      0.8,
		ChangepointPriorScale: 0.05,
		SeasonalityPriorScale: 10,
	}
}

// DecompositionEngine fits y(t) = trend(t) + yearly(t), where the trend is
// piecewise linear with shrunk changepoint deltas and the yearly component is
// a Fourier series. The fit is a MAP estimate solved as ridge least squares.
type DecompositionEngine struct {
	cfg DecompositionConfig
	log *logger.Logger
}

var _ service.Engine = (*DecompositionEngine)(nil)

func NewDecompositionEngine(cfg DecompositionConfig, log *logger.Logger) *DecompositionEngine {
	def := DefaultDecompositionConfig()
	if cfg.FourierOrder <= 0 {
		cfg.FourierOrder = def.FourierOrder
	}
	if cfg.ChangepointRange <= 0 || cfg.ChangepointRange > 1 {
		cfg.ChangepointRange = def.ChangepointRange
	}
	if cfg.ChangepointPriorScale <= 0 {
		cfg.ChangepointPriorScale = def.ChangepointPriorScale
	}
	if cfg.SeasonalityPriorScale <= 0 {
		cfg.SeasonalityPriorScale = def.SeasonalityPriorScale
	}
	if cfg.MaxChangepoints < 0 {
		cfg.MaxChangepoints = 0
	}
	if log == nil {
		log = logger.Nop()
	}
	return &DecompositionEngine{cfg: cfg, log: log}
}

func (e *DecompositionEngine) Strategy() models.Strategy { return models.StrategyDecomposition }

func (e *DecompositionEngine) FitPredict(_ context.Context, in models.EngineInput) (models.Prediction, error) {
	s := in.Series
	if s.Len() < 2 {
		return models.Prediction{}, fmt.Errorf("%w: category %q has %d points, need at least 2",
			models.ErrInsufficientData, s.Category, s.Len())
	}

	start := time.Now()
	m, err := e.fit(s)
	if err != nil {
		e.log.Error("decomposition fit failed", logger.String("category", s.Category), logger.Error(err))
		return models.Prediction{}, fmt.Errorf("%w: category %q: %v", models.ErrModelFit, s.Category, err)
	}

	next := util.NextMonth(s.Last().Date)
	value := m.predict(next)
	elapsed := time.Since(start)
	if err := checkPrediction(s.Category, value); err != nil {
		return models.Prediction{}, err
	}

	e.log.Info(fmt.Sprintf("Category %s processed in %.2f seconds", s.Category, seconds(elapsed)),
		logger.String("category", s.Category),
		logger.String("target_date", next.Format("2006-01-02")),
		logger.Int("changepoints", len(m.changepoints)),
		logger.Int("fourier_order", m.order),
		logger.Duration("duration_ms", elapsed))

	return models.Prediction{Value: value}, nil
}

// additiveModel is a fitted decomposition in scaled time and value units.
type additiveModel struct {
	start        time.Time
	span         float64 // seconds between first and last observation
	yScale       float64
	changepoints []float64
	order        int
	beta         []float64
}

func (m *additiveModel) scaledTime(t time.Time) float64 {
	return t.Sub(m.start).Seconds() / m.span
}

// row writes the design row for date t: [1, t, hinges..., sin1, cos1, ...].
func (m *additiveModel) row(t time.Time, dst []float64) {
	ts := m.scaledTime(t)
	dst[0] = 1
	dst[1] = ts
	i := 2
	for _, c := range m.changepoints {
		dst[i] = math.Max(0, ts-c)
		i++
	}
	days := float64(t.Unix()) / 86400
	for k := 1; k <= m.order; k++ {
		x := 2 * math.Pi * float64(k) * days / yearDays
		dst[i] = math.Sin(x)
		dst[i+1] = math.Cos(x)
		i += 2
	}
}

func (m *additiveModel) width() int { return 2 + len(m.changepoints) + 2*m.order }

func (m *additiveModel) predict(t time.Time) float64 {
	x := make([]float64, m.width())
	m.row(t, x)
	return floats.Dot(x, m.beta) * m.yScale
}

func (e *DecompositionEngine) fit(s models.Series) (*additiveModel, error) {
	n := s.Len()
	first, last := s.Points[0].Date, s.Last().Date
	span := last.Sub(first).Seconds()
	if span <= 0 {
		return nil, fmt.Errorf("series spans no time")
	}

	y := s.Values()
	yScale := math.Max(math.Abs(floats.Max(y)), math.Abs(floats.Min(y)))
	if yScale == 0 {
		yScale = 1
	}
	ys := make([]float64, n)
	for i, v := range y {
		ys[i] = v / yScale
	}

	m := &additiveModel{
		start:  first,
		span:   span,
		yScale: yScale,
		order:  e.seasonalOrder(n, last.Sub(first)),
	}
	m.changepoints = e.changepoints(s, m)

	p := m.width()
	X := mat.NewDense(n, p, nil)
	row := make([]float64, p)
	for i, pt := range s.Points {
		m.row(pt.Date, row)
		X.SetRow(i, row)
	}

	// noise level from a lightly regularised first pass weighs the priors
	prior := e.priorVariances(m)
	beta, err := ridgeSolve(X, ys, prior, noiseFloor)
	if err != nil {
		return nil, err
	}
	sigma2 := math.Max(residualVariance(X, ys, beta), noiseFloor)

	beta, err = ridgeSolve(X, ys, prior, sigma2)
	if err != nil {
		return nil, err
	}
	m.beta = beta
	return m, nil
}

// seasonalOrder caps the yearly Fourier order. A history shorter than a year
// gets no seasonal terms, and the 2K Fourier columns must leave two
// observations for the trend.
func (e *DecompositionEngine) seasonalOrder(n int, span time.Duration) int {
	if span < minSeasonalSpan {
		return 0
	}
	k := e.cfg.FourierOrder
	if limit := (n - 2) / 2; k > limit {
		k = limit
	}
	if k < 0 {
		return 0
	}
	return k
}

// changepoints places potential trend changes evenly over the first part of
// the history, at observed dates.
func (e *DecompositionEngine) changepoints(s models.Series, m *additiveModel) []float64 {
	hist := int(math.Floor(float64(s.Len()) * e.cfg.ChangepointRange))
	count := e.cfg.MaxChangepoints
	if count+1 > hist {
		count = hist - 1
	}
	if count <= 0 {
		return nil
	}

	out := make([]float64, 0, count)
	step := float64(hist-1) / float64(count)
	for i := 1; i <= count; i++ {
		idx := int(math.Round(step * float64(i)))
		out = append(out, m.scaledTime(s.Points[idx].Date))
	}
	return out
}

// priorVariances returns the prior variance of every coefficient.
func (e *DecompositionEngine) priorVariances(m *additiveModel) []float64 {
	v := make([]float64, m.width())
	v[0] = trendPriorScale * trendPriorScale
	v[1] = trendPriorScale * trendPriorScale
	i := 2
	// Laplace(0, b) has variance 2b^2
	cp := 2 * e.cfg.ChangepointPriorScale * e.cfg.ChangepointPriorScale
	for range m.changepoints {
		v[i] = cp
		i++
	}
	ss := e.cfg.SeasonalityPriorScale * e.cfg.SeasonalityPriorScale
	for ; i < len(v); i++ {
		v[i] = ss
	}
	return v
}

// ridgeSolve solves (X'X + sigma2*diag(1/prior)) b = X'y by Cholesky, adding
// jitter when the system is numerically singular.
func ridgeSolve(X *mat.Dense, y []float64, prior []float64, sigma2 float64) ([]float64, error) {
	_, p := X.Dims()

	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())

	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(len(y), y))

	jitter := 0.0
	for attempt := 0; attempt < 6; attempt++ {
		a := mat.NewSymDense(p, nil)
		a.CopySym(&xtx)
		for j := 0; j < p; j++ {
			a.SetSym(j, j, a.At(j, j)+sigma2/prior[j]+jitter)
		}

		var chol mat.Cholesky
		if chol.Factorize(a) {
			var b mat.VecDense
			if err := chol.SolveVecTo(&b, &xty); err == nil {
				out := make([]float64, p)
				for j := range out {
					out[j] = b.AtVec(j)
				}
				if floats.HasNaN(out) {
					return nil, fmt.Errorf("solution contains NaN")
				}
				return out, nil
			}
		}
		if jitter == 0 {
			jitter = 1e-10 * (1 + mat.Trace(&xtx)/float64(p))
		} else {
			jitter *= 100
		}
	}
	return nil, fmt.Errorf("normal equations are singular")
}

func residualVariance(X *mat.Dense, y, beta []float64) float64 {
	var fitted mat.VecDense
	fitted.MulVec(X, mat.NewVecDense(len(beta), beta))
	ss := 0.0
	for i, v := range y {
		r := v - fitted.AtVec(i)
		ss += r * r
	}
	return ss / float64(len(y))
}
