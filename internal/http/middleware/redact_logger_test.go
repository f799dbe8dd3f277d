package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

func TestRedact(t *testing.T) {
	cases := map[string]string{
		"mobile=01712345678":                      "mobile=[REDACTED:phone]",
		"mobile=8801712345678":                    "mobile=[REDACTED:phone]",
		"key=ak_0123456789abcdef0123456789abcdef": "key=[REDACTED:key]",
		"id=123e4567-e89b-12d3-a456-426614174000": "id=[REDACTED:id]",
		"to=a.b+tag@example.com":                  "to=[REDACTED:email]",
		"page=2&limit=12":                         "page=2&limit=12",
	}
	for in, want := range cases {
		assert.Equal(t, want, redact(in), in)
	}
}

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "rid-resp")
		c.Next()
	})
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Debug-Secret"}}))
	r.GET("/voice/farmer-data/:phone", func(c *gin.Context) {
		c.Set(ctxKeyUserID, "farmer-1")
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/voice/farmer-data/x?phone=+8801712345678&email=a@b.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-API-Key", "ak_0123456789abcdef0123456789abcdef")
	req.Header.Set("X-Debug-Secret", "shhh")
	req.Header.Set("X-Custom", "call 01812345678 id=123e4567-e89b-12d3-a456-426614174000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	logs := buf.String()
	assert.Contains(t, logs, `"level":"info"`)
	assert.Contains(t, logs, `"path":"/voice/farmer-data/:phone"`)
	assert.Contains(t, logs, `"request_id":"rid-resp"`)
	assert.Contains(t, logs, `"user_id":"farmer-1"`)
	assert.Contains(t, logs, `"Authorization":"[REDACTED]"`)
	assert.Contains(t, logs, `"X-Api-Key":"[REDACTED]"`)
	assert.Contains(t, logs, `"X-Debug-Secret":"[REDACTED]"`)
	assert.Contains(t, logs, `"X-Custom":"call [REDACTED:phone] id=[REDACTED:id]"`)
	assert.NotContains(t, logs, "01712345678")
	assert.NotContains(t, logs, "a@b.com")
}

func TestRedactingLogger_WarnAndErrorLevels_RequestIDFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	reqWarn := httptest.NewRequest(http.MethodGet, "/warn", nil)
	reqWarn.Header.Set("X-Request-ID", "rid-warn")
	r.ServeHTTP(httptest.NewRecorder(), reqWarn)

	reqErr := httptest.NewRequest(http.MethodGet, "/error", nil)
	reqErr.Header.Set("X-Request-ID", "rid-err")
	r.ServeHTTP(httptest.NewRecorder(), reqErr)

	logs := buf.String()
	assert.Contains(t, logs, `"level":"warn"`)
	assert.Contains(t, logs, `"request_id":"rid-warn"`)
	assert.Contains(t, logs, `"level":"error"`)
	assert.Contains(t, logs, `"request_id":"rid-err"`)
}

func TestRedactingLogger_ScopedLoggerOnRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/x", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("from-service")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, "from-service") {
			line = l
		}
	}
	require.NotEmpty(t, line)
	assert.Contains(t, line, `"request_id":"rid-ctx"`)
}
