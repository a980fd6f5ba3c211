package middleware

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// hopByHopHeaders are headers that should not be forwarded by proxies,
// in either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

var hopByHopSet = func() map[string]bool {
	set := make(map[string]bool, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		set[http.CanonicalHeaderKey(h)] = true
	}
	return set
}()

// IsHopByHop reports whether name is a hop-by-hop header.
func IsHopByHop(name string) bool {
	return hopByHopSet[http.CanonicalHeaderKey(name)]
}

// StripHopByHop returns an Echo middleware that removes hop-by-hop
// headers from inbound requests before they are forwarded. WebSocket
// upgrade requests are left alone: Connection and Upgrade are exactly
// what carries the handshake.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !websocket.IsWebSocketUpgrade(c.Request()) {
				for _, h := range hopByHopHeaders {
					c.Request().Header.Del(h)
				}
			}
			return next(c)
		}
	}
}
