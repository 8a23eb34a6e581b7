package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"FinCast/internal/domain/models"
	"FinCast/internal/service/cache"
	apimetrics "FinCast/internal/service/metrics"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/ingest"
	"FinCast/internal/services/report"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ForecastHandlerOptions holds the optional collaborators of ForecastEchoHandler.
type ForecastHandlerOptions struct {
	Cache          cache.BytesCache // nil disables response caching
	CacheTTL       time.Duration
	Limiter        *ratelimit.Limiter // nil disables rate limiting
	MaxUploadBytes int64
	// Readiness holds named dependency checks served on /readyz.
	Readiness map[string]func(context.Context) error
}

// ForecastEchoHandler serves forecasts over HTTP and WebSocket.
type ForecastEchoHandler struct {
	logger     *xlogger.Logger
	forecaster *usecase.BatchForecaster
	opts       ForecastHandlerOptions
}

func NewForecastEchoHandler(logger *xlogger.Logger, forecaster *usecase.BatchForecaster, opts ForecastHandlerOptions) *ForecastEchoHandler {
	apimetrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	return &ForecastEchoHandler{logger: logger, forecaster: forecaster, opts: opts}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/predict", h.Predict)
	e.POST("/predict/", h.Predict)
	e.GET("/ws/predict", h.Stream)
	e.GET("/healthz", h.Health)
	e.GET("/readyz", h.Ready)
}

// Predict forecasts every category of the uploaded table.
// POST /predict/?model=sarima|prophet|gb[&lags=3][&format=csv|xlsx], multipart field "file".
func (h *ForecastEchoHandler) Predict(c echo.Context) error {
	start := time.Now()
	defer func() {
		apimetrics.APILatency.WithLabelValues("predict").Observe(time.Since(start).Seconds())
	}()

	if h.opts.Limiter != nil && !h.opts.Limiter.Allow(c.RealIP()) {
		return h.fail(c, "predict", xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateQuery(c, req); verr != nil {
		apimetrics.APIErrors.WithLabelValues("predict", xhttp.CodeValidation).Inc()
		return xhttp.BadRequestResponse(c, verr)
	}

	strategy, err := models.ParseStrategy(req.Model)
	if err != nil {
		return h.fail(c, "predict", toAppError(err))
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, "predict", xhttp.NewAppError(xhttp.CodeFileRequired, "file", "multipart field \"file\" is required", http.StatusBadRequest).WithError(err))
	}
	data, err := readUpload(fh, h.opts.MaxUploadBytes)
	if err != nil {
		return h.fail(c, "predict", err)
	}

	format, err := ingest.DetectFormat(fh.Filename, req.Format)
	if err != nil {
		return h.fail(c, "predict", toAppError(err))
	}

	// lags only shape the regression features
	keyLags := 0
	if strategy.NeedsFeatures() {
		keyLags = req.Lags
	}
	key := cache.ForecastKey(data, strategy.String(), keyLags, string(format))
	if body, ok := h.cached(c, key); ok {
		c.Response().Header().Set("X-Cache", "HIT")
		return c.JSONBlob(http.StatusOK, body)
	}

	ds, err := ingest.Parse(bytes.NewReader(data), format, strategy)
	if err != nil {
		return h.fail(c, "predict", toAppError(err))
	}

	batch, err := h.forecaster.RunBatch(c.Request().Context(), ds, strategy, usecase.RunOptions{LagCount: req.Lags})
	if err != nil {
		h.logger.Error("forecast usecase error", xlogger.String("model", req.Model), xlogger.Error(err))
		return h.fail(c, "predict", toAppError(err))
	}

	body, err := json.Marshal(report.Render(strategy, batch.Results))
	if err != nil {
		return h.fail(c, "predict", xhttp.InternalError(err.Error()).WithError(err))
	}
	h.store(c, key, body)

	c.Response().Header().Set("X-Batch-ID", batch.BatchID)
	c.Response().Header().Set("X-Cache", "MISS")
	return c.JSONBlob(http.StatusOK, body)
}

// Health reports liveness and the available strategies.
func (h *ForecastEchoHandler) Health(c echo.Context) error {
	names := make([]string, 0, len(models.Strategies()))
	for _, s := range models.Strategies() {
		names = append(names, s.String())
	}
	return xhttp.SuccessResponse(c, xhttp.HealthResponse{Status: "ok", Strategies: names})
}

// Ready runs every configured dependency check. Any failure answers 503.
func (h *ForecastEchoHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := xhttp.HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.opts.Readiness))}
	status := http.StatusOK
	for name, check := range h.opts.Readiness {
		if err := check(ctx); err != nil {
			h.logger.Warn("readiness check failed", xlogger.String("dependency", name), xlogger.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	return xhttp.DataResponse(c, status, resp)
}

func (h *ForecastEchoHandler) cached(c echo.Context, key string) ([]byte, bool) {
	if h.opts.Cache == nil {
		return nil, false
	}
	body, ok, err := h.opts.Cache.GetBytes(c.Request().Context(), key)
	if err != nil {
		h.logger.Warn("cache get failed", xlogger.Error(err))
		apimetrics.CacheLookups.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		apimetrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	apimetrics.CacheLookups.WithLabelValues("hit").Inc()
	return body, true
}

func (h *ForecastEchoHandler) store(c echo.Context, key string, body []byte) {
	if h.opts.Cache == nil {
		return
	}
	if err := h.opts.Cache.SetBytes(c.Request().Context(), key, body, h.opts.CacheTTL); err != nil {
		h.logger.Warn("cache set failed", xlogger.Error(err))
	}
}

func (h *ForecastEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	appErr := toAppError(err)
	apimetrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed", xlogger.String("endpoint", endpoint), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// toAppError maps domain errors onto transport errors. Request-level input
// problems are client errors; anything else is a server error carrying the
// error message.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidStrategy):
		return xhttp.FieldError(xhttp.CodeInvalidStrategy, "model", err)
	case errors.Is(err, models.ErrDataFormat):
		return xhttp.FieldError(xhttp.CodeDataFormat, "file", err)
	default:
		return xhttp.InternalError(err.Error()).WithError(err)
	}
}

func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh.Size > limit {
		return nil, xhttp.PayloadTooLargeError(fmt.Sprintf("upload exceeds %d bytes", limit))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, xhttp.BadRequestErrorf("cannot open upload: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, xhttp.BadRequestErrorf("cannot read upload: %v", err)
	}
	if int64(len(data)) > limit {
		return nil, xhttp.PayloadTooLargeError(fmt.Sprintf("upload exceeds %d bytes", limit))
	}
	return data, nil
}
