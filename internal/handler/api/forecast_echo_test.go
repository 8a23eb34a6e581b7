package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	"FinCast/internal/domain/service"
	"FinCast/internal/service/cache"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/forecast"
	"FinCast/internal/usecase"
)

const table = "date,category,amount\n" +
	"2023-01-31,rent,10\n" +
	"2023-01-31,food,3\n" +
	"2023-02-28,rent,11\n" +
	"2023-02-28,food,\n"

type lastEngine struct {
	strategy models.Strategy
	calls    atomic.Int32
}

func (e *lastEngine) Strategy() models.Strategy { return e.strategy }

func (e *lastEngine) FitPredict(_ context.Context, in models.EngineInput) (models.Prediction, error) {
	e.calls.Add(1)
	p := models.Prediction{Value: in.Series.Last().Amount}
	if e.strategy == models.StrategySeasonal {
		p.TrainTime, p.Timed = 500*time.Millisecond, true
	}
	return p, nil
}

type brokenResolver struct{}

func (brokenResolver) Engine(models.Strategy) (service.Engine, error) {
	return nil, errors.New("engine registry unavailable")
}

func newEcho(t *testing.T, resolver usecase.EngineResolver, opts ForecastHandlerOptions) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewForecastEchoHandler(nil, usecase.NewBatchForecaster(resolver, nil, nil, nil, 1, 0), opts).RegisterRoutes(e)
	return e
}

func upload(t *testing.T, target, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestPredictReturnsOrderedMapping(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyDecomposition}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{})

	rec := serve(e, upload(t, "/predict/?model=prophet", "data.csv", table))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `{"rent":11,"food":3}`, strings.TrimSpace(rec.Body.String()))
	assert.NotEmpty(t, rec.Header().Get("X-Batch-ID"))
}

func TestPredictSeasonalCarriesTrainTime(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategySeasonal}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{})

	rec := serve(e, upload(t, "/predict?model=SARIMA", "data.csv", table))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `{"rent":{"forecast":11,"train_time":0.5},"food":{"forecast":3,"train_time":0.5}}`, rec.Body.String())
}

func TestPredictRegressionNullForShortSeries(t *testing.T) {
	e := newEcho(t, forecast.NewRegistry(forecast.DefaultConfig(), nil), ForecastHandlerOptions{})

	rec := serve(e, upload(t, "/predict/?model=gb", "data.csv", table))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, `{"rent":null,"food":null}`, rec.Body.String())
}

func TestPredictClientErrors(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyRegression}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{})

	tests := []struct {
		name     string
		req      *http.Request
		wantCode string
	}{
		{"unknown model", upload(t, "/predict/?model=xyz", "data.csv", table), "ERR_INVALID_STRATEGY"},
		{"missing model", upload(t, "/predict/", "data.csv", table), "ERR_REQUIRED"},
		{"lags out of range", upload(t, "/predict/?model=gb&lags=99", "data.csv", table), "ERR_LTE"},
		{"missing file", upload(t, "/predict/?model=gb", "", ""), "ERR_FILE_REQUIRED"},
		{"malformed table", upload(t, "/predict/?model=gb", "data.csv", "a,b\n1,2\n"), "ERR_DATA_FORMAT"},
		{"bad format", upload(t, "/predict/?model=gb&format=json", "data.csv", table), "ERR_ONEOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantCode)
		})
	}
	assert.Zero(t, eng.calls.Load(), "no category is processed on a rejected request")
}

func TestPredictServerError(t *testing.T) {
	e := newEcho(t, brokenResolver{}, ForecastHandlerOptions{})

	rec := serve(e, upload(t, "/predict/?model=gb", "data.csv", table))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "engine registry unavailable")
	assert.Contains(t, rec.Body.String(), "ERR_INTERNAL")
}

func TestPredictUploadLimit(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyRegression}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{MaxUploadBytes: 16})

	rec := serve(e, upload(t, "/predict/?model=gb", "data.csv", table))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPredictUsesCache(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyDecomposition}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{Cache: cache.NewTTLCache(10), CacheTTL: time.Minute})

	first := serve(e, upload(t, "/predict/?model=prophet", "data.csv", table))
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(e, upload(t, "/predict/?model=prophet", "other-name.csv", table))
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(2), eng.calls.Load(), "two categories, fitted once")
}

func TestPredictCacheKeyIgnoresLagsUnlessRegression(t *testing.T) {
	prophet := &lastEngine{strategy: models.StrategyDecomposition}
	gb := &lastEngine{strategy: models.StrategyRegression}
	e := newEcho(t, forecast.NewRegistryWith(prophet, gb), ForecastHandlerOptions{Cache: cache.NewTTLCache(10), CacheTTL: time.Minute})

	rec := serve(e, upload(t, "/predict/?model=prophet&lags=3", "data.csv", table))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = serve(e, upload(t, "/predict/?model=prophet&lags=5", "data.csv", table))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))

	rentOnly := "date,category,amount\n" +
		"2023-01-31,rent,10\n2023-02-28,rent,11\n2023-03-31,rent,12\n2023-04-30,rent,13\n"
	rec = serve(e, upload(t, "/predict/?model=gb&lags=1", "data.csv", rentOnly))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	rec = serve(e, upload(t, "/predict/?model=gb&lags=2", "data.csv", rentOnly))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestPredictRateLimit(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyDecomposition}
	e := newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{Limiter: ratelimit.New(0, 1)})

	assert.Equal(t, http.StatusOK, serve(e, upload(t, "/predict/?model=prophet", "data.csv", table)).Code)
	rec := serve(e, upload(t, "/predict/?model=prophet", "data.csv", table))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_TOO_MANY_REQUESTS")
}

func TestHealth(t *testing.T) {
	e := newEcho(t, forecast.NewRegistryWith(), ForecastHandlerOptions{})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Status     string   `json:"status"`
			Strategies []string `json:"strategies"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, []string{"sarima", "prophet", "gb"}, body.Data.Strategies)
}

func TestReady(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: connection refused") }

	e := newEcho(t, forecast.NewRegistryWith(), ForecastHandlerOptions{
		Readiness: map[string]func(context.Context) error{"redis": healthy},
	})
	rec := serve(e, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)

	e = newEcho(t, forecast.NewRegistryWith(), ForecastHandlerOptions{
		Readiness: map[string]func(context.Context) error{"redis": healthy, "clickhouse": down},
	})
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unavailable"`)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestStreamSendsResultsThenDone(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyDecomposition}
	srv := httptest.NewServer(newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/predict", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"model": "prophet", "data": []byte(table)}))

	var msgs []map[string]json.RawMessage
	for {
		var m map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&m))
		msgs = append(msgs, m)
		if string(m["type"]) == `"done"` || string(m["type"]) == `"error"` {
			break
		}
	}

	require.Len(t, msgs, 3)
	assert.JSONEq(t, `{"category":"rent","value":11}`, string(msgs[0]["result"]))
	assert.JSONEq(t, `{"category":"food","value":3}`, string(msgs[1]["result"]))
	assert.Equal(t, `{"rent":11,"food":3}`, string(msgs[2]["results"]))
}

func TestStreamRejectsUnknownModel(t *testing.T) {
	eng := &lastEngine{strategy: models.StrategyDecomposition}
	srv := httptest.NewServer(newEcho(t, forecast.NewRegistryWith(eng), ForecastHandlerOptions{}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/predict", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"model": "xyz", "data": []byte(table)}))

	var m struct {
		Type  string `json:"type"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "error", m.Type)
	assert.Equal(t, "ERR_INVALID_STRATEGY", m.Error.Code)
	assert.Zero(t, eng.calls.Load())
}
