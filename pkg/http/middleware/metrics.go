package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
	size     *prometheus.HistogramVec
}

var (
	sharedMetrics *httpMetrics
	metricsOnce   sync.Once
)

func loadHTTPMetrics() *httpMetrics {
	metricsOnce.Do(func() {
		f := promauto.With(prometheus.DefaultRegisterer)
		labels := []string{"route", "method", "class"}
		sharedMetrics = &httpMetrics{
			requests: f.NewCounterVec(prometheus.CounterOpts{
				Name: "fincast_http_requests_total",
				Help: "HTTP requests by route and status",
			}, []string{"route", "method", "status"}),
			// uploads are fitted inline, so the buckets reach a minute
			duration: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fincast_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			}, labels),
			inFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Name: "fincast_http_in_flight_requests",
				Help: "Requests being served",
			}, []string{"route", "method"}),
			size: f.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "fincast_http_response_size_bytes",
				Help:    "Response body size",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8),
			}, labels),
		}
	})
	return sharedMetrics
}

// Metrics records request metrics, labelling routes by their template
// (c.Path()). 5xx responses are logged as errors and requests slower than
// slowThreshold as warnings.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	m := loadHTTPMetrics()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := routeLabel(c)
			method := c.Request().Method

			inFlight := m.inFlight.WithLabelValues(route, method)
			inFlight.Inc()
			defer inFlight.Dec()
			start := time.Now()

			if err := next(c); err != nil {
				// let echo write the response so the status is known
				c.Error(err)
			}

			code := c.Response().Status
			status := strconv.Itoa(code)
			class := statusClass(code)
			took := time.Since(start)
			written := c.Response().Size

			m.requests.WithLabelValues(route, method, status).Inc()
			m.duration.WithLabelValues(route, method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(written))

			if l == nil {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("route", route),
				applogger.String("method", method),
				applogger.Int("status", code),
				applogger.Duration("duration_ms", took),
				applogger.Int64("bytes", written),
			}
			switch {
			case code >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && took >= slowThreshold:
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return "unmatched"
}

func statusClass(code int) string {
	if code < 100 || code >= 600 {
		return "5xx"
	}
	return strconv.Itoa(code/100) + "xx"
}
