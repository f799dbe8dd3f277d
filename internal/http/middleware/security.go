// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders for the JSON API. HSTS is opt-in and
// only sent on HTTPS requests.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store on farmer data
	EnablePolicy bool          // Permissions-Policy and friends
}

// exposedHeaders are the response headers the dashboard reads cross-origin:
// the correlation ID, the alerts ETag and the rate-limit back-off.
var exposedHeaders = []string{"X-Request-ID", "ETag", "Retry-After"}

// SecurityHeaders always sets nosniff, frame DENY and no-referrer, then the
// optional groups selected in opt. It also lists exposedHeaders in
// Access-Control-Expose-Headers without clobbering entries set upstream.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			// The voice assistant runs server side; browsers never need the mic.
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		h.Set("Access-Control-Expose-Headers", mergeExposed(h.Get("Access-Control-Expose-Headers")))

		c.Next()
	}
}

func mergeExposed(cur string) string {
	seen := map[string]bool{}
	var out []string
	for _, p := range strings.Split(cur, ",") {
		if p = strings.TrimSpace(p); p != "" && !seen[strings.ToLower(p)] {
			seen[strings.ToLower(p)] = true
			out = append(out, p)
		}
	}
	for _, p := range exposedHeaders {
		if !seen[strings.ToLower(p)] {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// isHTTPS reports TLS directly or via X-Forwarded-Proto from the proxy.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
