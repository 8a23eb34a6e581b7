package features

import (
	"fmt"

	"FinCast/internal/domain/models"
)

// DefaultLagCount is the number of trailing lags used when none is configured.
const DefaultLagCount = 3

// BuildFeatures turns a series into lagged supervised rows. Row i (for
// i >= lags) holds lag_j = amount[i-j], the month of date[i] and amount[i],
// so exactly len(series)-lags rows come back.
func BuildFeatures(s models.Series, lags int) ([]models.FeatureRow, error) {
	if lags < 1 {
		return nil, fmt.Errorf("%w: lag count must be positive, got %d", models.ErrInsufficientData, lags)
	}
	n := s.Len()
	if n <= lags {
		return nil, fmt.Errorf("%w: category %q has %d points, need more than %d for lag features",
			models.ErrInsufficientData, s.Category, n, lags)
	}

	rows := make([]models.FeatureRow, 0, n-lags)
	for i := lags; i < n; i++ {
		lv := make([]float64, lags)
		for j := 1; j <= lags; j++ {
			lv[j-1] = s.Points[i-j].Amount
		}
		rows = append(rows, models.FeatureRow{
			Date:   s.Points[i].Date,
			Lags:   lv,
			Month:  int(s.Points[i].Date.Month()),
			Amount: s.Points[i].Amount,
		})
	}
	return rows, nil
}

// NextRow builds the predictor row for the period after the last row: the lag
// window shifts by one, the last observed amount becomes lag_1 and the month
// is carried over unchanged.
func NextRow(rows []models.FeatureRow) models.FeatureRow {
	last := rows[len(rows)-1]
	k := len(last.Lags)
	lv := make([]float64, k)
	lv[0] = last.Amount
	copy(lv[1:], last.Lags[:k-1])
	return models.FeatureRow{Date: last.Date, Lags: lv, Month: last.Month}
}
