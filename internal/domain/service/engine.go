package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Engine fits a fresh model on one category and forecasts the next period.
// Implementations are stateless between calls and safe for concurrent use.
type Engine interface {
	Strategy() models.Strategy
	FitPredict(ctx context.Context, in models.EngineInput) (models.Prediction, error)
}
