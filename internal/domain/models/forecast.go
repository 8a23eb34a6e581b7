package models

import "time"

// EngineInput carries what an engine needs for one category. Rows is only
// populated for strategies that consume lagged features.
type EngineInput struct {
	Series Series
	Rows   []FeatureRow
}

// Prediction is a successful one-step-ahead forecast.
type Prediction struct {
	Value     float64
	TrainTime time.Duration
	// Timed is set by engines that report their training duration.
	Timed bool
}

// ForecastResult is the outcome for one category: either a value or a failure.
type ForecastResult struct {
	Category  string
	Value     *float64
	TrainTime *time.Duration
	Failure   string
	Err       error `json:"-"`
}

// Succeeded builds a successful result from a prediction.
func Succeeded(category string, p Prediction) ForecastResult {
	v := p.Value
	r := ForecastResult{Category: category, Value: &v}
	if p.Timed {
		d := p.TrainTime
		r.TrainTime = &d
	}
	return r
}

// Failed builds a failed result carrying the reason.
func Failed(category string, err error) ForecastResult {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	return ForecastResult{Category: category, Failure: reason, Err: err}
}

func (r ForecastResult) OK() bool { return r.Value != nil }

// ResultMapping maps categories to results, iterating in insertion order.
type ResultMapping struct {
	keys    []string
	results map[string]ForecastResult
}

func NewResultMapping(capacity int) *ResultMapping {
	return &ResultMapping{
		keys:    make([]string, 0, capacity),
		results: make(map[string]ForecastResult, capacity),
	}
}

// Set stores r under its category. Re-setting a category keeps its position.
func (m *ResultMapping) Set(r ForecastResult) {
	if _, ok := m.results[r.Category]; !ok {
		m.keys = append(m.keys, r.Category)
	}
	m.results[r.Category] = r
}

func (m *ResultMapping) Get(category string) (ForecastResult, bool) {
	r, ok := m.results[category]
	return r, ok
}

// Keys returns the categories in discovery order.
func (m *ResultMapping) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Results returns the results in discovery order.
func (m *ResultMapping) Results() []ForecastResult {
	out := make([]ForecastResult, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, m.results[k])
	}
	return out
}

func (m *ResultMapping) Len() int { return len(m.keys) }

// Failed counts categories without a forecast.
func (m *ResultMapping) Failed() int {
	n := 0
	for _, r := range m.results {
		if !r.OK() {
			n++
		}
	}
	return n
}
