package models

import "time"

// Observation is one row of the input table. A nil Amount marks a missing value.
type Observation struct {
	Date     time.Time
	Category string
	Amount   *float64
}

// Dataset is a parsed long-format table. Categories lists every distinct
// category in the order it was first seen.
type Dataset struct {
	Observations []Observation
	Categories   []string
}

// NewDataset derives the category discovery order from the observations.
func NewDataset(obs []Observation) Dataset {
	seen := make(map[string]struct{})
	cats := make([]string, 0)
	for _, o := range obs {
		if _, ok := seen[o.Category]; ok {
			continue
		}
		seen[o.Category] = struct{}{}
		cats = append(cats, o.Category)
	}
	return Dataset{Observations: obs, Categories: cats}
}

// Point is one cleaned (date, amount) pair of a series.
type Point struct {
	Date   time.Time
	Amount float64
}

// Series holds the points of one category, ascending by date.
type Series struct {
	Category string
	Points   []Point
}

func (s Series) Len() int { return len(s.Points) }

// Values returns the amounts in date order.
func (s Series) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Amount
	}
	return out
}

// Last returns the most recent point. The series must not be empty.
func (s Series) Last() Point { return s.Points[len(s.Points)-1] }

// FeatureRow is one supervised-learning row: Lags[j-1] holds lag_j.
type FeatureRow struct {
	Date   time.Time
	Lags   []float64
	Month  int
	Amount float64
}

// Predictors returns [lag_1..lag_k, month] in model column order.
func (r FeatureRow) Predictors() []float64 {
	x := make([]float64, 0, len(r.Lags)+1)
	x = append(x, r.Lags...)
	return append(x, float64(r.Month))
}

// WideTable is a date-indexed table with one amount column per category.
// Cells[i][j] is the amount of Columns[j] at Dates[i], nil when missing.
type WideTable struct {
	Dates   []time.Time
	Columns []string
	Cells   [][]*float64
}
