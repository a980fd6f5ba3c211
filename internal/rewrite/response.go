// Package rewrite mutates proxied protocol data: HTTP response headers
// on the way back to the browser, and Socket.IO connect packets flowing
// through the WebSocket bridge.
package rewrite

import (
	"net/http"
	"strings"
)

// allowedMethods is the fixed Access-Control-Allow-Methods value.
const allowedMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"

// HeaderRewriter rewrites upstream response headers so the browser
// accepts them cross-origin during local development.
type HeaderRewriter struct {
	allowedOrigin string
	fixCookies    bool
	cookieDomain  string
}

// NewHeaderRewriter creates a HeaderRewriter from the process-wide
// proxy configuration.
func NewHeaderRewriter(allowedOrigin, cookieDomain string, fixCookies bool) *HeaderRewriter {
	return &HeaderRewriter{
		allowedOrigin: allowedOrigin,
		fixCookies:    fixCookies,
		cookieDomain:  cookieDomain,
	}
}

// Apply rewrites h in place. The CORS headers are overwritten
// unconditionally, so applying twice yields the same result as once.
func (r *HeaderRewriter) Apply(h http.Header) {
	h.Set("Access-Control-Allow-Origin", r.allowedOrigin)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", allowedMethods)

	if !r.fixCookies {
		return
	}
	cookies := h["Set-Cookie"]
	for i, c := range cookies {
		cookies[i] = r.rewriteCookie(c)
	}
}

// rewriteCookie makes one Set-Cookie value usable from localhost over
// plain HTTP: the configured domain becomes localhost and the Secure
// attribute token is dropped. Cookies not matching pass through.
func (r *HeaderRewriter) rewriteCookie(c string) string {
	if r.cookieDomain != "" {
		c = strings.Replace(c, "Domain="+r.cookieDomain, "Domain=localhost", 1)
	}
	return strings.Replace(c, " Secure;", "", 1)
}
