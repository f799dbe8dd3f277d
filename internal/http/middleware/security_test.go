package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serveSecurity(opt SecurityOptions, pre gin.HandlerFunc, mut func(*http.Request)) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opt))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	if mut != nil {
		mut(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	h := serveSecurity(SecurityOptions{}, nil, nil)

	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Empty(t, h.Get("Permissions-Policy"))
	assert.Empty(t, h.Get("Cache-Control"))
	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Equal(t, "X-Request-ID, ETag, Retry-After", h.Get("Access-Control-Expose-Headers"))
}

func TestSecurityHeaders_ExposeMergesWithoutDuplicates(t *testing.T) {
	pre := func(c *gin.Context) {
		c.Header("Access-Control-Expose-Headers", "Foo, etag")
		c.Next()
	}
	h := serveSecurity(SecurityOptions{}, pre, nil)
	assert.Equal(t, "Foo, etag, X-Request-ID, Retry-After", h.Get("Access-Control-Expose-Headers"))
}

func TestSecurityHeaders_WithPolicy_NoStore_HSTS_TLS(t *testing.T) {
	h := serveSecurity(SecurityOptions{
		EnableHSTS:   true,
		HSTSMaxAge:   24 * time.Hour,
		NoStore:      true,
		EnablePolicy: true,
	}, nil, func(r *http.Request) { r.TLS = &tls.ConnectionState{} })

	assert.Equal(t, "none", h.Get("X-Permitted-Cross-Domain-Policies"))
	assert.NotEmpty(t, h.Get("Permissions-Policy"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Equal(t, "max-age=86400; includeSubDomains; preload", h.Get("Strict-Transport-Security"))
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	viaProxy := serveSecurity(SecurityOptions{EnableHSTS: true}, nil, func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	assert.Equal(t, "max-age=15552000; includeSubDomains; preload", viaProxy.Get("Strict-Transport-Security"))

	plain := serveSecurity(SecurityOptions{EnableHSTS: true}, nil, nil)
	assert.Empty(t, plain.Get("Strict-Transport-Security"))
}
