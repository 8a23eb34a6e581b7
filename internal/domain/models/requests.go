package models

// Requests accepted at the transport boundary. Defined in domain for reuse by
// the HTTP, WebSocket and Kafka entry points.

type PredictRequest struct {
	Model  string `query:"model" json:"model" validate:"required"`
	Lags   int    `query:"lags" json:"lags" default:"3" validate:"gte=1,lte=24"`
	Format string `query:"format" json:"format" validate:"omitempty,oneof=csv xlsx"`
}

// StreamRequest is the first message a WebSocket client sends.
type StreamRequest struct {
	Model  string `json:"model" validate:"required"`
	Lags   int    `json:"lags" default:"3" validate:"gte=1,lte=24"`
	Format string `json:"format" default:"csv" validate:"oneof=csv xlsx"`
	Data   []byte `json:"data" validate:"required"` // base64 in JSON
}

// ForecastJob is consumed from the requests topic.
type ForecastJob struct {
	JobID  string `json:"job_id"`
	Model  string `json:"model" validate:"required"`
	Lags   int    `json:"lags" default:"3" validate:"gte=1,lte=24"`
	Format string `json:"format" default:"csv" validate:"oneof=csv xlsx"`
	Data   []byte `json:"data" validate:"required"`
}
