package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/pkg/logger"
)

// RequestLogging writes one debug line per request. Forecast responses
// carry their batch id so the line can be joined with the archive.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req, res := c.Request(), c.Response()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", res.Status),
				logger.Int64("bytes", res.Size),
				logger.Duration("duration_ms", time.Since(start)),
			}
			if id := res.Header().Get("X-Batch-ID"); id != "" {
				fields = append(fields, logger.String("batch_id", id))
			}
			l.Debug("http request", fields...)
			return err
		}
	}
}
