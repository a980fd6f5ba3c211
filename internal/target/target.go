// Package target resolves embedded-target request paths.
//
// The proxy's clients encode the real upstream in the request path:
// a request for /https://api.example.com/v1/users is forwarded to
// https://api.example.com/v1/users.
package target

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidTarget is returned when a request path does not carry an
// embedded target origin.
var ErrInvalidTarget = errors.New("invalid embedded target path")

// InvalidFormatMessage is the client-facing diagnostic for ErrInvalidTarget.
const InvalidFormatMessage = "Invalid URL format. Use: http://<host>:<port>/http://target-host/path"

// pattern matches an embedded target after the leading slash is removed:
// an http(s) origin followed by an optional path.
var pattern = regexp.MustCompile(`^(https?://[^/]+)(/.*)?$`)

// Target is the upstream destination resolved from one request path.
// It is immutable for the lifetime of the request that produced it.
type Target struct {
	Origin string // scheme://host[:port]
	Path   string // always starts with "/"
}

// Resolve extracts the embedded target from a raw request path.
// It strips a single leading "/" and matches the remainder against the
// embedded-target shape. The path defaults to "/" when absent.
func Resolve(rawPath string) (Target, error) {
	m := pattern.FindStringSubmatch(strings.TrimPrefix(rawPath, "/"))
	if m == nil {
		return Target{}, ErrInvalidTarget
	}
	path := m[2]
	if path == "" {
		path = "/"
	}
	return Target{Origin: m[1], Path: path}, nil
}

// URL returns the full upstream HTTP URL.
func (t Target) URL() string {
	return t.Origin + t.Path
}

// WebSocketURL returns the upstream URL with the scheme mapped to its
// WebSocket equivalent (http→ws, https→wss).
func (t Target) WebSocketURL() string {
	if rest, ok := strings.CutPrefix(t.Origin, "https://"); ok {
		return "wss://" + rest + t.Path
	}
	return "ws://" + strings.TrimPrefix(t.Origin, "http://") + t.Path
}
