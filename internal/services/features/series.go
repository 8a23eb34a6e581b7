package features

import (
	"fmt"
	"sort"

	"FinCast/internal/domain/models"
)

// ExtractSeries returns the cleaned, date-ordered series of one category.
// Rows with a missing amount are dropped. Equal dates keep their input order.
func ExtractSeries(ds models.Dataset, category string) (models.Series, error) {
	points := make([]models.Point, 0)
	for _, o := range ds.Observations {
		if o.Category != category || o.Amount == nil {
			continue
		}
		points = append(points, models.Point{Date: o.Date, Amount: *o.Amount})
	}

	if len(points) == 0 {
		return models.Series{Category: category}, fmt.Errorf("%w: category %q has no usable amounts", models.ErrInsufficientData, category)
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	return models.Series{Category: category, Points: points}, nil
}

// DuplicateDates counts points sharing a date with their predecessor.
func DuplicateDates(s models.Series) int {
	n := 0
	for i := 1; i < len(s.Points); i++ {
		if s.Points[i].Date.Equal(s.Points[i-1].Date) {
			n++
		}
	}
	return n
}

// MeltWide reshapes a wide table into long form. Categories are discovered in
// column order and observations are emitted column by column.
func MeltWide(t models.WideTable) (models.Dataset, error) {
	if len(t.Columns) == 0 {
		return models.Dataset{}, fmt.Errorf("%w: wide table has no category columns", models.ErrDataFormat)
	}
	if len(t.Cells) != len(t.Dates) {
		return models.Dataset{}, fmt.Errorf("%w: %d dates but %d rows", models.ErrDataFormat, len(t.Dates), len(t.Cells))
	}

	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if _, dup := seen[c]; dup {
			return models.Dataset{}, fmt.Errorf("%w: duplicate column %q", models.ErrDataFormat, c)
		}
		seen[c] = struct{}{}
	}

	obs := make([]models.Observation, 0, len(t.Columns)*len(t.Dates))
	for j, col := range t.Columns {
		for i, d := range t.Dates {
			var amount *float64
			if j < len(t.Cells[i]) {
				amount = t.Cells[i][j]
			}
			obs = append(obs, models.Observation{Date: d, Category: col, Amount: amount})
		}
	}

	return models.Dataset{Observations: obs, Categories: append([]string(nil), t.Columns...)}, nil
}
