package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cors-proxy-go/internal/config"
	"cors-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The
// catch-all route must come last: every path that is not a fixed route
// is treated as an embedded-target path.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, m *metrics.Metrics, proxy *ProxyHandler, health *HealthHandler) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		))
	}

	e.Any("/*", proxy.Handle)
}
