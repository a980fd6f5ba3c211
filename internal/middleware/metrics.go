package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			upgrade := websocket.IsWebSocketUpgrade(c.Request())
			start := time.Now()

			err := next(c)

			// Resolve the actual status code. When a handler returns an
			// *echo.HTTPError, the response status hasn't been written yet;
			// Echo's central error handler will do that later. We inspect
			// the error to get the correct code for metrics.
			statusCode := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					statusCode = he.Code
				}
			}

			status := strconv.Itoa(statusCode)
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()

			// A bridged WebSocket session only returns here once the pair
			// closes, so its handler time is the session lifetime, not a
			// request latency. Bridge lifetimes are tracked by the bridge
			// gauges; keeping them out of the histogram keeps it honest.
			if !upgrade {
				m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())
			}

			return err
		}
	}
}
