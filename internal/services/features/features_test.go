package features

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func f(v float64) *float64 { return &v }

func month(i int) time.Time {
	return time.Date(2022, time.January, 31, 0, 0, 0, 0, time.UTC).AddDate(0, i, 0)
}

func monthlySeries(values ...float64) models.Series {
	s := models.Series{Category: "c"}
	for i, v := range values {
		s.Points = append(s.Points, models.Point{Date: month(i), Amount: v})
	}
	return s
}

func TestExtractSeriesFiltersDropsAndSorts(t *testing.T) {
	ds := models.NewDataset([]models.Observation{
		{Date: month(2), Category: "a", Amount: f(3)},
		{Date: month(0), Category: "b", Amount: f(100)},
		{Date: month(0), Category: "a", Amount: f(1)},
		{Date: month(1), Category: "a", Amount: nil},
		{Date: month(3), Category: "a", Amount: f(4)},
	})

	s, err := ExtractSeries(ds, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", s.Category)
	assert.Equal(t, []float64{1, 3, 4}, s.Values())
	assert.True(t, s.Points[0].Date.Before(s.Points[1].Date))
}

func TestExtractSeriesEmptyAfterCleaning(t *testing.T) {
	ds := models.NewDataset([]models.Observation{
		{Date: month(0), Category: "bad", Amount: nil},
		{Date: month(1), Category: "bad", Amount: nil},
	})

	_, err := ExtractSeries(ds, "bad")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = ExtractSeries(ds, "missing")
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestDuplicateDates(t *testing.T) {
	s := monthlySeries(1, 2, 3)
	s.Points[2].Date = s.Points[1].Date
	assert.Equal(t, 1, DuplicateDates(s))
}

func TestMeltWide(t *testing.T) {
	wide := models.WideTable{
		Dates:   []time.Time{month(0), month(1)},
		Columns: []string{"rent", "food"},
		Cells: [][]*float64{
			{f(10), f(1)},
			{f(11), nil},
		},
	}

	ds, err := MeltWide(wide)
	require.NoError(t, err)
	assert.Equal(t, []string{"rent", "food"}, ds.Categories)
	require.Len(t, ds.Observations, 4)
	assert.Equal(t, "rent", ds.Observations[1].Category)
	assert.Equal(t, 11.0, *ds.Observations[1].Amount)
	assert.Nil(t, ds.Observations[3].Amount)
}

func TestMeltWideRejectsMalformed(t *testing.T) {
	_, err := MeltWide(models.WideTable{Dates: []time.Time{month(0)}, Cells: [][]*float64{{}}})
	assert.True(t, errors.Is(err, models.ErrDataFormat))

	_, err = MeltWide(models.WideTable{Dates: []time.Time{month(0)}, Columns: []string{"a", "a"}, Cells: [][]*float64{{f(1), f(2)}}})
	assert.True(t, errors.Is(err, models.ErrDataFormat))
}

func TestBuildFeaturesLength(t *testing.T) {
	for n := 0; n <= 10; n++ {
		values := make([]float64, n)
		for i := range values {
			values[i] = float64(i + 1)
		}
		rows, err := BuildFeatures(monthlySeries(values...), DefaultLagCount)
		if n <= DefaultLagCount {
			require.Error(t, err, "n=%d", n)
			assert.True(t, errors.Is(err, models.ErrInsufficientData))
			continue
		}
		require.NoError(t, err, "n=%d", n)
		assert.Len(t, rows, n-DefaultLagCount)
	}
}

func TestBuildFeaturesValues(t *testing.T) {
	rows, err := BuildFeatures(monthlySeries(10, 20, 30, 40, 50), 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []float64{30, 20, 10}, rows[0].Lags)
	assert.Equal(t, 40.0, rows[0].Amount)
	assert.Equal(t, int(month(3).Month()), rows[0].Month)

	assert.Equal(t, []float64{40, 30, 20}, rows[1].Lags)
	assert.Equal(t, 50.0, rows[1].Amount)
}

func TestNextRowRotatesLagWindow(t *testing.T) {
	rows, err := BuildFeatures(monthlySeries(10, 20, 30, 40, 50), 3)
	require.NoError(t, err)

	next := NextRow(rows)
	assert.Equal(t, []float64{50, 40, 30}, next.Lags)
	assert.Equal(t, rows[1].Month, next.Month)
	// source rows stay untouched
	assert.Equal(t, []float64{40, 30, 20}, rows[1].Lags)
}
