package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"cors-proxy-go/internal/bridge"
	"cors-proxy-go/internal/middleware"
	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/service"
	"cors-proxy-go/internal/target"
)

// ProxyHandler resolves the embedded target of each inbound request and
// dispatches it: plain HTTP goes through the forwarding service,
// WebSocket upgrades go to the bridge.
type ProxyHandler struct {
	service *service.ProxyService
	bridge  *bridge.Bridge
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, b *bridge.Bridge, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		bridge:  b,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle serves one embedded-target request.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	if websocket.IsWebSocketUpgrade(req) {
		// The bridge owns the connection from here on, including target
		// resolution: a bad target must abort the raw socket rather than
		// produce an HTTP error.
		h.bridge.Serve(c.Response(), req)
		return nil
	}

	tgt, err := target.Resolve(req.URL.Path)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": target.InvalidFormatMessage,
		})
	}

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Target: tgt,
		Query:  req.URL.Query(),
		Header: req.Header,
		Body:   req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Hop-by-hop headers stay on the upstream leg; the inbound side is
	// scrubbed by middleware, the response side here.
	for key, vals := range resp.Header {
		if middleware.IsHopByHop(key) {
			continue
		}
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// Stream the upstream body directly to the client. If io.Copy fails
	// mid-stream (e.g. client disconnect, network error), the HTTP status
	// code has already been sent, so the client receives a truncated
	// response with the original status. This is an inherent trade-off of
	// streaming proxies — we log the error for observability.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"target", tgt.Origin,
		)
	}

	return nil
}

// mapError translates an upstream failure into a JSON error response.
// The underlying error text is embedded: this is a development tool and
// the developer debugging it is the caller.
func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"path", c.Request().URL.Path,
	)

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}

	return c.JSON(status, map[string]string{
		"error": "Proxy error: " + err.Error(),
	})
}
