package report

import (
	"bytes"
	"encoding/json"
	"math"

	"FinCast/internal/domain/models"
)

// SeasonalEntry is the per-category value of the seasonal strategy.
type SeasonalEntry struct {
	Forecast  float64 `json:"forecast"`
	TrainTime float64 `json:"train_time"` // seconds
}

// Document is the transport form of a result mapping: a JSON object whose
// keys keep category discovery order. Failed categories render as null.
type Document struct {
	keys   []string
	values []interface{}
}

// Render formats a mapping. The seasonal strategy pairs each forecast with
// its training time, the others emit bare numbers.
func Render(strategy models.Strategy, m *models.ResultMapping) Document {
	d := Document{}
	if m == nil {
		return d
	}
	for _, r := range m.Results() {
		d.keys = append(d.keys, r.Category)
		d.values = append(d.values, entryFor(strategy, r))
	}
	return d
}

func entryFor(strategy models.Strategy, r models.ForecastResult) interface{} {
	if !r.OK() || !finite(*r.Value) {
		return nil
	}
	if strategy == models.StrategySeasonal {
		e := SeasonalEntry{Forecast: *r.Value}
		if r.TrainTime != nil {
			e.TrainTime = r.TrainTime.Seconds()
		}
		return e
	}
	return *r.Value
}

func (d Document) Keys() []string { return append([]string(nil), d.keys...) }

func (d Document) Len() int { return len(d.keys) }

// Value returns the rendered entry of a category: nil, float64 or SeasonalEntry.
func (d Document) Value(category string) (interface{}, bool) {
	for i, k := range d.keys {
		if k == category {
			return d.values[i], true
		}
	}
	return nil, false
}

func (d Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(d.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Row is a flat per-category record for tables, archives and events.
type Row struct {
	Category         string   `json:"category"`
	Value            *float64 `json:"value"`
	TrainTimeSeconds *float64 `json:"train_time_seconds,omitempty"`
	Failure          string   `json:"failure,omitempty"`
}

func RowOf(r models.ForecastResult) Row {
	row := Row{Category: r.Category, Failure: r.Failure}
	if r.OK() && finite(*r.Value) {
		v := *r.Value
		row.Value = &v
	}
	if r.TrainTime != nil {
		s := r.TrainTime.Seconds()
		row.TrainTimeSeconds = &s
	}
	return row
}

// Rows flattens a mapping in discovery order.
func Rows(m *models.ResultMapping) []Row {
	if m == nil {
		return nil
	}
	results := m.Results()
	out := make([]Row, 0, len(results))
	for _, r := range results {
		out = append(out, RowOf(r))
	}
	return out
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
