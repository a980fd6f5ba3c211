package bridge

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func newBridgeServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := New(logger, nil)
	srv := httptest.NewServer(http.HandlerFunc(b.Serve))
	t.Cleanup(srv.Close)
	return srv
}

// newUpstream starts a WebSocket server that hands each accepted
// connection to fn.
func newUpstream(t *testing.T, fn func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upstream upgrade: %v", err)
			return
		}
		defer conn.Close()
		fn(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// dialProxy opens a client connection through the bridge to the given
// upstream origin.
func dialProxy(t *testing.T, proxy *httptest.Server, upstreamOrigin, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(proxy.URL, "http") + "/" + upstreamOrigin + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestBridge_RewritesConnectPackets(t *testing.T) {
	received := make(chan string, 1)

	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("upstream read: %v", err)
			return
		}
		received <- string(data)
		// Reply with a default-namespace connect ack.
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`40/,{"ok":true}`)); err != nil {
			t.Errorf("upstream write: %v", err)
		}
		// Hold the connection open until the client goes away.
		_, _, _ = conn.ReadMessage()
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/socket.io/")

	if err := client.WriteMessage(websocket.TextMessage, []byte(`40/https://api.example.com,{"token":1}`)); err != nil {
		t.Fatalf("client write: %v", err)
	}

	select {
	case got := <-received:
		if got != `40/,{"token":1}` {
			t.Errorf("upstream received %q, want namespace stripped", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never received the connect packet")
	}

	_, reply, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	// The reinserted namespace is the origin embedded in the upgrade path.
	want := "40/" + upstream.URL + `,{"ok":true}`
	if string(reply) != want {
		t.Errorf("client received %q, want %q", reply, want)
	}
}

func TestBridge_NonConnectFramesPassThrough(t *testing.T) {
	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(msgType, data); err != nil {
				return
			}
		}
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/socket.io/")

	frames := []string{"2", "3", `42["event",1]`}
	for _, frame := range frames {
		if err := client.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			t.Fatalf("client write %q: %v", frame, err)
		}
		_, echo, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("client read: %v", err)
		}
		if string(echo) != frame {
			t.Errorf("frame %q echoed as %q", frame, echo)
		}
	}
}

func TestBridge_BinaryFramesUntouched(t *testing.T) {
	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(msgType, data)
		_, _, _ = conn.ReadMessage()
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/")

	// Binary payload that would match the connect-packet shape as text.
	payload := []byte(`40/https://api.example.com,{"token":1}`)
	if err := client.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("client write: %v", err)
	}

	msgType, echo, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("client read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Errorf("message type = %d, want binary", msgType)
	}
	if string(echo) != string(payload) {
		t.Errorf("binary frame mutated: %q", echo)
	}
}

func TestBridge_ForwardsQueryString(t *testing.T) {
	queries := make(chan string, 1)

	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		queries <- r.URL.RawQuery
		_, _, _ = conn.ReadMessage()
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/socket.io/?EIO=4&transport=websocket")
	defer client.Close()

	select {
	case got := <-queries:
		if got != "EIO=4&transport=websocket" {
			t.Errorf("upstream query = %q, want the Engine.IO handshake parameters", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never saw the connection")
	}
}

func TestBridge_ForwardsOnlyCookieHeader(t *testing.T) {
	headers := make(chan http.Header, 1)

	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		headers <- r.Header.Clone()
		_, _, _ = conn.ReadMessage()
	})

	proxy := newBridgeServer(t)

	wsURL := "ws" + strings.TrimPrefix(proxy.URL, "http") + "/" + upstream.URL + "/"
	reqHeader := http.Header{}
	reqHeader.Set("Cookie", "sid=abc")
	reqHeader.Set("Authorization", "Bearer secret")
	reqHeader.Set("X-Custom", "nope")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, reqHeader)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	select {
	case h := <-headers:
		if got := h.Get("Cookie"); got != "sid=abc" {
			t.Errorf("upstream Cookie = %q, want forwarded", got)
		}
		if h.Get("Authorization") != "" {
			t.Error("Authorization must not be forwarded upstream")
		}
		if h.Get("X-Custom") != "" {
			t.Error("X-Custom must not be forwarded upstream")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upstream never saw the connection")
	}
}

func TestBridge_InvalidTargetAbortsHandshake(t *testing.T) {
	proxy := newBridgeServer(t)

	wsURL := "ws" + strings.TrimPrefix(proxy.URL, "http") + "/not-a-url"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		conn.Close()
		t.Fatal("dial succeeded, want aborted handshake")
	}
}

func TestBridge_UpstreamHandshakeRejection(t *testing.T) {
	// Upstream answers the upgrade with a plain 502 instead of 101.
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no websocket here", http.StatusBadGateway)
	}))
	defer upstream.Close()

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/ws")

	// The client handshake completes before the upstream dial, so the
	// failure surfaces as an immediate close.
	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("expected the bridge to close the client connection")
	}
}

func TestBridge_ClientCloseTearsDownUpstream(t *testing.T) {
	upstreamClosed := make(chan struct{})

	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(upstreamClosed)
				return
			}
		}
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/")

	_ = client.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = client.Close()

	select {
	case <-upstreamClosed:
	case <-time.After(5 * time.Second):
		t.Fatal("upstream connection was not closed after the client left")
	}
}

func TestBridge_UpstreamCloseTearsDownClient(t *testing.T) {
	upstream := newUpstream(t, func(conn *websocket.Conn, r *http.Request) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	})

	proxy := newBridgeServer(t)
	client := dialProxy(t, proxy, upstream.URL, "/")

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := client.ReadMessage(); err == nil {
		t.Fatal("expected client read to fail after upstream close")
	}
}
