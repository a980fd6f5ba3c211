// Package middleware provides Echo middleware for logging, metrics and
// proxy header hygiene.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// For WebSocket upgrades the duration covers the whole bridged session,
// not just the handshake, so they are flagged to keep latency dashboards
// honest.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			upgrade := websocket.IsWebSocketUpgrade(c.Request())

			err := next(c)

			req := c.Request()
			res := c.Response()

			logger.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
				"websocket", upgrade,
			)

			return err
		}
	}
}
