package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/internal/services/features"
	"FinCast/pkg/logger"
)

// minFeatureRows is the shortest feature frame the regression engine accepts.
const minFeatureRows = 4

// BoostingConfig holds the fixed ensemble hyperparameters.
type BoostingConfig struct {
	Stages          int
	MaxDepth        int
	LearningRate    float64
	MinSamplesSplit int
	MinSamplesLeaf  int
}

func DefaultBoostingConfig() BoostingConfig {
	return BoostingConfig{Stages: 100, MaxDepth: 3, LearningRate: 0.1, MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// RegressionEngine fits squared-error gradient-boosted regression trees on
// lag and month features.
type RegressionEngine struct {
	cfg BoostingConfig
	log *logger.Logger
}

var _ service.Engine = (*RegressionEngine)(nil)

func NewRegressionEngine(cfg BoostingConfig, log *logger.Logger) *RegressionEngine {
	def := DefaultBoostingConfig()
	if cfg.Stages <= 0 {
		cfg.Stages = def.Stages
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = def.MinSamplesSplit
	}
	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = def.MinSamplesLeaf
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RegressionEngine{cfg: cfg, log: log}
}

func (e *RegressionEngine) Strategy() models.Strategy { return models.StrategyRegression }

func (e *RegressionEngine) FitPredict(_ context.Context, in models.EngineInput) (models.Prediction, error) {
	category := in.Series.Category
	rows := in.Rows
	if len(rows) < minFeatureRows {
		return models.Prediction{}, fmt.Errorf("%w: category %q has %d feature rows, need at least %d",
			models.ErrInsufficientData, category, len(rows), minFeatureRows)
	}

	start := time.Now()
	train := rows[:len(rows)-1]
	X := make([][]float64, len(train))
	y := make([]float64, len(train))
	for i, r := range train {
		X[i] = r.Predictors()
		y[i] = r.Amount
	}

	model := fitBoosting(X, y, e.cfg)
	next := features.NextRow(rows)
	value := model.predict(next.Predictors())
	elapsed := time.Since(start)

	if err := checkPrediction(category, value); err != nil {
		e.log.Error("prediction failed", logger.String("category", category), logger.Error(err))
		return models.Prediction{}, err
	}

	e.log.Info(fmt.Sprintf("Category %s processed in %.2f seconds", category, seconds(elapsed)),
		logger.String("category", category),
		logger.Int("train_rows", len(train)),
		logger.Int("stages", len(model.trees)),
		logger.Duration("duration_ms", elapsed))

	return models.Prediction{Value: value}, nil
}

// boostedTrees is init + lr * sum(tree_i(x)).
type boostedTrees struct {
	init  float64
	lr    float64
	trees []*treeNode
}

func (b *boostedTrees) predict(x []float64) float64 {
	out := b.init
	for _, t := range b.trees {
		out += b.lr * t.predict(x)
	}
	return out
}

func fitBoosting(X [][]float64, y []float64, cfg BoostingConfig) *boostedTrees {
	model := &boostedTrees{init: stat.Mean(y, nil), lr: cfg.LearningRate}

	current := make([]float64, len(y))
	for i := range current {
		current[i] = model.init
	}
	residual := make([]float64, len(y))
	idx := make([]int, len(y))

	for stage := 0; stage < cfg.Stages; stage++ {
		for i := range y {
			residual[i] = y[i] - current[i]
			idx[i] = i
		}
		tree := growTree(X, residual, idx, 0, cfg)
		model.trees = append(model.trees, tree)
		for i := range y {
			current[i] += cfg.LearningRate * tree.predict(X[i])
		}
	}
	return model
}

// treeNode is a CART regression node. Leaves have feature == -1.
type treeNode struct {
	feature   int
	threshold float64
	value     float64
	left      *treeNode
	right     *treeNode
}

func (n *treeNode) predict(x []float64) float64 {
	for n.feature >= 0 {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func meanAt(y []float64, idx []int) float64 {
	s := 0.0
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

// growTree splits greedily on the threshold that most reduces squared error.
// Thresholds are midpoints between consecutive distinct feature values.
func growTree(X [][]float64, y []float64, idx []int, depth int, cfg BoostingConfig) *treeNode {
	leaf := &treeNode{feature: -1, value: meanAt(y, idx)}
	if depth >= cfg.MaxDepth || len(idx) < cfg.MinSamplesSplit || len(idx) < 2*cfg.MinSamplesLeaf {
		return leaf
	}

	total := 0.0
	for _, i := range idx {
		total += y[i]
	}
	n := float64(len(idx))

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0
	order := make([]int, len(idx))

	for f := 0; f < len(X[idx[0]]); f++ {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

		leftSum := 0.0
		for k := 0; k < len(order)-1; k++ {
			leftSum += y[order[k]]
			lo, hi := X[order[k]][f], X[order[k+1]][f]
			if lo == hi {
				continue
			}
			nl := float64(k + 1)
			nr := n - nl
			if int(nl) < cfg.MinSamplesLeaf || int(nr) < cfg.MinSamplesLeaf {
				continue
			}
			rightSum := total - leftSum
			// SSE reduction relative to the parent
			gain := leftSum*leftSum/nl + rightSum*rightSum/nr - total*total/n
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
			}
		}
	}

	if bestFeature < 0 {
		return leaf
	}

	var left, right []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThreshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      growTree(X, y, left, depth+1, cfg),
		right:     growTree(X, y, right, depth+1, cfg),
	}
}
