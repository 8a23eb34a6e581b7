package models

import (
	"fmt"
	"strings"
)

// Strategy selects one of the forecasting engines.
type Strategy string

const (
	StrategySeasonal      Strategy = "sarima"
	StrategyDecomposition Strategy = "prophet"
	StrategyRegression    Strategy = "gb"
)

// Strategies lists every supported strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{StrategySeasonal, StrategyDecomposition, StrategyRegression}
}

// ParseStrategy maps a selector token to a Strategy.
func ParseStrategy(token string) (Strategy, error) {
	s := Strategy(strings.ToLower(strings.TrimSpace(token)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, token)
	}
	return s, nil
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategySeasonal, StrategyDecomposition, StrategyRegression:
		return true
	}
	return false
}

// AcceptsWide reports whether the strategy takes a wide date-by-category table.
func (s Strategy) AcceptsWide() bool { return s == StrategySeasonal }

// NeedsFeatures reports whether the engine consumes lagged feature rows.
func (s Strategy) NeedsFeatures() bool { return s == StrategyRegression }

func (s Strategy) String() string { return string(s) }

// Description is a short human label for CLI listings.
func (s Strategy) Description() string {
	switch s {
	case StrategySeasonal:
		return "seasonal ARIMA with automatic order selection (m=12)"
	case StrategyDecomposition:
		return "additive trend + yearly seasonality decomposition"
	case StrategyRegression:
		return "gradient-boosted trees on lag and month features"
	}
	return "unknown"
}
