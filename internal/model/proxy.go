// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"cors-proxy-go/internal/target"
)

// ProxyRequest binds one inbound client request to its resolved target.
// It is created at resolution time and never shared across requests.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Target target.Target
	Query  url.Values
	Header http.Header
	Body   io.ReadCloser
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
