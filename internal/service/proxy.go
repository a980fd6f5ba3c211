// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"

	"cors-proxy-go/internal/client"
	"cors-proxy-go/internal/model"
	"cors-proxy-go/internal/rewrite"
)

// strippedRequestHeaders are removed from the outbound request. Origin
// must not reach the upstream or it may reject the request as
// cross-origin; Host is recomputed by the transport from the target URL.
var strippedRequestHeaders = []string{
	"Origin",
	"Host",
}

const userAgent = "cors-proxy-go/1.0"

// ProxyService forwards resolved requests upstream and rewrites the
// responses for cross-origin consumption.
type ProxyService struct {
	client   *client.UpstreamClient
	rewriter *rewrite.HeaderRewriter
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService.
func NewProxyService(c *client.UpstreamClient, rw *rewrite.HeaderRewriter, logger *slog.Logger) *ProxyService {
	return &ProxyService{
		client:   c,
		rewriter: rw,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Forward sends a ProxyRequest to its resolved target and returns the
// rewritten response. The caller is responsible for closing the response
// body. Response headers have the CORS and cookie rewrite rules applied
// for every response, success or error status alike.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	upstreamURL := pr.Target.URL()
	if len(pr.Query) > 0 {
		upstreamURL += "?" + pr.Query.Encode()
	}

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"target", pr.Target.Origin,
		"path", pr.Target.Path,
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, upstreamURL, s.filterRequestHeaders(pr.Header), pr.Body)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", pr.Target.Origin, err)
	}

	s.rewriter.Apply(resp.Header)
	return resp, nil
}

// filterRequestHeaders clones the inbound headers minus the stripped set.
// Unlike an allowlisting API proxy, a CORS dev proxy forwards the
// client's headers wholesale so authenticated sessions keep working.
func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	for _, key := range strippedRequestHeaders {
		dst.Del(key)
	}
	if dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", userAgent)
	}
	return dst
}
