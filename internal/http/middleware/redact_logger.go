// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access logger. It never logs
// bodies, masks credential headers, and scrubs farmer mobile numbers,
// device API keys, emails and UUIDs from the query string and header values.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders names extra headers whose values are replaced with
// "[REDACTED]". Matching is case-insensitive and merged with the built-ins.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	apiKeyRE = regexp.MustCompile(`\bak_[0-9a-f]{32}\b`)
	uuidRE   = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Bangladeshi mobiles in any of the stored spellings.
	bdMobileRE = regexp.MustCompile(`(?:\+?88)?01[3-9]\d{8}\b`)
	// Digits only, so hex runs from UUIDs never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact applies the patterns loosest-last: keys and IDs before phones.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = apiKeyRE.ReplaceAllString(s, "[REDACTED:key]")
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = bdMobileRE.ReplaceAllString(s, "[REDACTED:phone]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// RedactingLogger logs one structured line per request and attaches a
// request-scoped logger to both the Gin context ("logger") and the request
// context, so services calling zerolog.Ctx(ctx) inherit request_id.
//
// Level is info for 2xx/3xx, warn for 4xx and error for 5xx.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := map[string]struct{}{
		"authorization":    {},
		"cookie":           {},
		"set-cookie":       {},
		"x-api-key":        {},
		"x-internal-token": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			maskHeaders[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(redact(c.Request.URL.RawQuery), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := requestIDFor(c)
		l := log.With().Str("request_id", reqID).Str("path", path).Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}

		ev.
			Str("request_id", reqID).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}

// requestIDFor prefers the ID set by RequestID, then the response header,
// then whatever the client sent.
func requestIDFor(c *gin.Context) string {
	if rid := RequestIDFrom(c); rid != "" {
		return rid
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}
