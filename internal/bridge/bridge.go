// Package bridge relays WebSocket connections to dynamically resolved
// targets, rewriting Socket.IO connect packets in both directions.
package bridge

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cors-proxy-go/internal/metrics"
	"cors-proxy-go/internal/rewrite"
	"cors-proxy-go/internal/target"
)

// handshakeBodyLimit caps how much of a failed upstream handshake
// response is read for logging.
const handshakeBodyLimit = 4 * 1024

// Bridge upgrades inbound WebSocket requests and pipes them to the
// target embedded in the request path. Each served connection owns an
// independent socket pair; the Bridge itself holds no per-connection
// state.
type Bridge struct {
	logger   *slog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	dialer   *websocket.Dialer
}

// New creates a Bridge. Certificate validation on the outbound leg is
// disabled: the targets are developer-chosen and frequently self-signed.
// The metrics parameter is optional; pass nil to disable bridge metrics.
func New(logger *slog.Logger, m *metrics.Metrics) *Bridge {
	return &Bridge{
		logger:  logger.With("component", "ws_bridge"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The proxy exists to serve cross-origin browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
			TLSClientConfig:  &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // development-only trust model
		},
	}
}

// Serve handles one upgrade request end to end: target resolution,
// client handshake, upstream dial, then bidirectional frame relay. It
// returns once both sides of the pair are closed.
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request) {
	tgt, err := target.Resolve(r.URL.Path)
	if err != nil {
		b.logger.Warn("rejecting upgrade with invalid target", "path", r.URL.Path)
		b.countOutcome(metrics.BridgeOutcomeRejected)
		abortConnection(w)
		return
	}

	client, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader has already written an error response.
		b.logger.Warn("client handshake failed", "err", err)
		b.countOutcome(metrics.BridgeOutcomeRejected)
		return
	}

	upstream, err := b.dialUpstream(r, tgt)
	if err != nil {
		b.countOutcome(metrics.BridgeOutcomeDialError)
		_ = client.Close()
		return
	}

	b.logger.Info("bridge open",
		"target", tgt.Origin,
		"path", tgt.Path,
		"remote", r.RemoteAddr,
	)
	b.countOutcome(metrics.BridgeOutcomeOpen)
	if b.metrics != nil {
		b.metrics.BridgesActive.Inc()
		defer b.metrics.BridgesActive.Dec()
	}

	p := &pair{
		client:   client,
		upstream: upstream,
		origin:   tgt.Origin,
		logger:   b.logger,
		metrics:  b.metrics,
	}
	p.run()

	b.logger.Info("bridge closed", "target", tgt.Origin)
}

// dialUpstream opens the outbound WebSocket connection. The upgrade
// request's query string travels with the dial: Engine.IO servers
// reject handshakes without their EIO/transport parameters. Only a
// Cookie header is forwarded from the inbound upgrade request; all
// other client headers stay on the client leg.
func (b *Bridge) dialUpstream(r *http.Request, tgt target.Target) (*websocket.Conn, error) {
	header := http.Header{}
	if cookie := r.Header.Get("Cookie"); cookie != "" {
		header.Set("Cookie", cookie)
	}

	upstreamURL := tgt.WebSocketURL()
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	upstream, resp, err := b.dialer.DialContext(r.Context(), upstreamURL, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, handshakeBodyLimit))
			_ = resp.Body.Close()
			b.logger.Error("upstream rejected handshake",
				"target", tgt.Origin,
				"status", resp.StatusCode,
				"body", string(body),
			)
		} else {
			b.logger.Error("upstream dial failed", "target", tgt.Origin, "err", err)
		}
		return nil, err
	}
	return upstream, nil
}

func (b *Bridge) countOutcome(outcome string) {
	if b.metrics != nil {
		b.metrics.BridgesTotal.WithLabelValues(outcome).Inc()
	}
}

// abortConnection destroys the raw transport socket without completing
// a WebSocket handshake, so the client sees a connection reset rather
// than an HTTP error response.
func abortConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	_ = conn.Close()
}

// pair is one bridged client/upstream socket pair. The lifetimes of the
// two connections are coupled: whichever leg fails or closes first
// tears down the other, exactly once.
type pair struct {
	client   *websocket.Conn
	upstream *websocket.Conn
	origin   string
	logger   *slog.Logger
	metrics  *metrics.Metrics

	closeOnce sync.Once
}

// run pumps frames in both directions until either leg terminates, then
// waits for both pumps to exit.
func (p *pair) run() {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		p.pump(p.client, p.upstream, metrics.DirectionClientToServer, func(frame string) string {
			return rewrite.ClientPacket(frame)
		})
	}()
	go func() {
		defer wg.Done()
		p.pump(p.upstream, p.client, metrics.DirectionServerToClient, func(frame string) string {
			return rewrite.ServerPacket(frame, p.origin)
		})
	}()

	wg.Wait()
}

// pump forwards messages from src to dst in arrival order. Text frames
// pass through the packet transform; binary frames are forwarded
// untouched. The first read or write error closes both legs.
func (p *pair) pump(src, dst *websocket.Conn, direction string, transform func(string) string) {
	defer p.close()

	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				p.logger.Debug("bridge read ended", "direction", direction, "err", err)
			}
			return
		}

		if msgType == websocket.TextMessage {
			data = []byte(transform(string(data)))
		}

		if err := dst.WriteMessage(msgType, data); err != nil {
			p.logger.Debug("bridge write failed", "direction", direction, "err", err)
			return
		}

		if p.metrics != nil {
			p.metrics.BridgeFrames.WithLabelValues(direction).Inc()
		}
	}
}

// close tears down both legs of the pair. Idempotent: a pair is closed
// at most once no matter which pump (or both) gets here first.
func (p *pair) close() {
	p.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = p.client.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = p.upstream.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = p.client.Close()
		_ = p.upstream.Close()
	})
}
