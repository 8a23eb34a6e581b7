package api

import (
	"bytes"
	"net/http"
	"time"

	"FinCast/internal/domain/models"
	apimetrics "FinCast/internal/service/metrics"
	"FinCast/internal/services/ingest"
	"FinCast/internal/services/report"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const wsWriteWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamMessage is sent to WebSocket clients: one "result" per category as
// it completes, then "done" with the ordered mapping, or a single "error".
type streamMessage struct {
	Type    string           `json:"type"`
	BatchID string           `json:"batch_id,omitempty"`
	Result  *report.Row      `json:"result,omitempty"`
	Results *report.Document `json:"results,omitempty"`
	Error   *xhttp.AppError  `json:"error,omitempty"`
	Errors  interface{}      `json:"errors,omitempty"`
}

// Stream runs one forecast per connection. The client sends a single
// models.StreamRequest with the table base64 encoded in "data".
func (h *ForecastEchoHandler) Stream(c echo.Context) error {
	if h.opts.Limiter != nil && !h.opts.Limiter.Allow(c.RealIP()) {
		return h.fail(c, "stream", xhttp.TooManyRequestsError("rate limit exceeded"))
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already replied
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	start := time.Now()
	defer func() {
		apimetrics.APILatency.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}()

	// base64 inflates by 4/3
	conn.SetReadLimit(h.opts.MaxUploadBytes/3*4 + 4096)

	ctx := c.Request().Context()
	var req models.StreamRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.writeError(conn, xhttp.BadRequestErrorf("invalid stream request: %v", err))
		return nil
	}
	if verr := xhttp.ValidateStruct(ctx, &req); verr != nil {
		apimetrics.APIErrors.WithLabelValues("stream", xhttp.CodeValidation).Inc()
		h.write(conn, streamMessage{Type: "error", Errors: verr})
		return nil
	}

	strategy, err := models.ParseStrategy(req.Model)
	if err != nil {
		h.writeError(conn, toAppError(err))
		return nil
	}
	format, err := ingest.DetectFormat("", req.Format)
	if err != nil {
		h.writeError(conn, toAppError(err))
		return nil
	}
	ds, err := ingest.Parse(bytes.NewReader(req.Data), format, strategy)
	if err != nil {
		h.writeError(conn, toAppError(err))
		return nil
	}

	batch, err := h.forecaster.RunBatch(ctx, ds, strategy, usecase.RunOptions{
		LagCount: req.Lags,
		OnResult: func(r models.ForecastResult) {
			row := report.RowOf(r)
			h.write(conn, streamMessage{Type: "result", Result: &row})
		},
	})
	if err != nil {
		h.writeError(conn, toAppError(err))
		return nil
	}

	doc := report.Render(strategy, batch.Results)
	h.write(conn, streamMessage{Type: "done", BatchID: batch.BatchID, Results: &doc})
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
	return nil
}

func (h *ForecastEchoHandler) writeError(conn *websocket.Conn, appErr *xhttp.AppError) {
	apimetrics.APIErrors.WithLabelValues("stream", appErr.Code).Inc()
	h.write(conn, streamMessage{Type: "error", Error: appErr})
}

func (h *ForecastEchoHandler) write(conn *websocket.Conn, msg streamMessage) {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(msg); err != nil {
		h.logger.Debug("websocket write failed", xlogger.String("type", msg.Type), xlogger.Error(err))
	}
}
