package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		token string
		want  Strategy
		err   bool
	}{
		{"sarima", StrategySeasonal, false},
		{"prophet", StrategyDecomposition, false},
		{"gb", StrategyRegression, false},
		{" GB ", StrategyRegression, false},
		{"xyz", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStrategy(tt.token)
		if tt.err {
			require.Error(t, err, tt.token)
			assert.True(t, errors.Is(err, ErrInvalidStrategy))
			assert.True(t, IsClientError(err))
			continue
		}
		require.NoError(t, err, tt.token)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewDatasetDiscoveryOrder(t *testing.T) {
	d := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	ds := NewDataset([]Observation{
		{Date: d, Category: "rent"},
		{Date: d, Category: "food"},
		{Date: d.AddDate(0, 1, 0), Category: "rent"},
		{Date: d, Category: "travel"},
	})
	assert.Equal(t, []string{"rent", "food", "travel"}, ds.Categories)
}

func TestResultMappingKeepsInsertionOrder(t *testing.T) {
	m := NewResultMapping(3)
	m.Set(Succeeded("b", Prediction{Value: 2}))
	m.Set(Failed("a", ErrInsufficientData))
	m.Set(Succeeded("c", Prediction{Value: 3, TrainTime: time.Second, Timed: true}))
	m.Set(Succeeded("a", Prediction{Value: 1}))

	assert.Equal(t, []string{"b", "a", "c"}, m.Keys())
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, 0, m.Failed())

	c, ok := m.Get("c")
	require.True(t, ok)
	require.NotNil(t, c.TrainTime)
	assert.Equal(t, time.Second, *c.TrainTime)

	b, _ := m.Get("b")
	assert.Nil(t, b.TrainTime)
}

func TestFailedResult(t *testing.T) {
	r := Failed("x", ErrModelFit)
	assert.False(t, r.OK())
	assert.Equal(t, "model fit failed", r.Failure)
	assert.True(t, IsCategoryError(r.Err))
}

func TestFeatureRowPredictors(t *testing.T) {
	r := FeatureRow{Lags: []float64{3, 2, 1}, Month: 7, Amount: 4}
	assert.Equal(t, []float64{3, 2, 1, 7}, r.Predictors())
}
