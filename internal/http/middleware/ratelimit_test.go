package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limitedEngine mounts the limiter behind an optional identity stage.
func limitedEngine(rl *RateLimiter, pre gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "rid-farm"); c.Next() })
	if pre != nil {
		r.Use(pre)
	}
	r.Use(rl.Handler())
	r.POST("/api/devices/ingest", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	r.GET("/api/analytics/summary", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, method, path, remote string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if remote != "" {
		req.RemoteAddr = remote
	}
	r.ServeHTTP(w, req)
	return w
}

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/devices/ingest", nil)
	c.Request.RemoteAddr = "198.51.100.20:40000"

	if got := KeyByUserOrIP()(c); got != "ip:198.51.100.20" {
		t.Fatalf("probe key = %q", got)
	}
	c.Set(ctxKeyUserID, "farmer-7")
	if got := KeyByUserOrIP()(c); got != "user:farmer-7" {
		t.Fatalf("farmer key = %q", got)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(5, -3, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d; want 1", rl.burst)
	}
	if rl.ttl != 10*time.Minute {
		t.Fatalf("ttl = %v", rl.ttl)
	}
	a := rl.getVisitor("ip:10.0.0.1")
	if rl.getVisitor("ip:10.0.0.1") != a {
		t.Fatalf("bucket not reused for the same key")
	}
	if rl.getVisitor("ip:10.0.0.2") == a {
		t.Fatalf("distinct keys share a bucket")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, KeyByUserOrIP())
	rl.ttl = time.Minute

	rl.mu.Lock()
	rl.visitors["user:idle"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-2 * time.Minute)}
	rl.visitors["user:fresh"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now()}
	rl.cleanupN = 4999
	rl.mu.Unlock()

	_ = rl.getVisitor("user:next")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["user:idle"]; ok {
		t.Fatal("idle bucket survived the sweep")
	}
	if _, ok := rl.visitors["user:fresh"]; !ok {
		t.Fatal("recent bucket was evicted")
	}
	if rl.cleanupN != 0 {
		t.Fatalf("sweep counter not reset: %d", rl.cleanupN)
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name string
		val  any
		set  bool
		want bool
	}{
		{"unset", nil, false, false},
		{"true", true, true, true},
		{"false", false, true, false},
		{"non-bool", "yes", true, false},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		if tc.set {
			c.Set(ctxKeyRateBypass, tc.val)
		}
		if got := IsRateBypass(c); got != tc.want {
			t.Fatalf("%s: got %v", tc.name, got)
		}
	}
}

func TestRateLimiter_RejectsWithCodedBody(t *testing.T) {
	r := limitedEngine(NewRateLimiter(0.5, 1, KeyByUserOrIP()), nil)

	if w := hit(r, http.MethodPost, "/api/devices/ingest", "192.0.2.5:1000"); w.Code != http.StatusAccepted {
		t.Fatalf("first ingest = %d", w.Code)
	}
	w := hit(r, http.MethodPost, "/api/devices/ingest", "192.0.2.5:1001")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second ingest = %d; want 429", w.Code)
	}
	// 0.5 rps leaves a two second wait
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["request_id"] != "rid-farm" || body["code"] != "rate_limited" || body["message"] != "rate limit exceeded" {
		t.Fatalf("body = %v", body)
	}

	// a different probe address has its own bucket
	if w := hit(r, http.MethodPost, "/api/devices/ingest", "192.0.2.6:1000"); w.Code != http.StatusAccepted {
		t.Fatalf("other probe = %d", w.Code)
	}
}

func TestRateLimiter_ReplaySkipsTokens(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())
	replay := func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() }
	r := limitedEngine(rl, replay)

	for i := 0; i < 3; i++ {
		if w := hit(r, http.MethodGet, "/api/analytics/summary", "192.0.2.9:1"); w.Code != http.StatusOK {
			t.Fatalf("replay %d = %d", i, w.Code)
		}
	}
	// the bucket was never touched, so a normal request still passes
	if w := hit(limitedEngine(rl, nil), http.MethodGet, "/api/analytics/summary", "192.0.2.9:1"); w.Code != http.StatusOK {
		t.Fatalf("first counted request = %d", w.Code)
	}
}

func TestRateLimiter_SeparateBucketsPerFarmer(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP())
	as := func(uid string) int {
		pre := func(c *gin.Context) { c.Set(ctxKeyUserID, uid); c.Next() }
		return hit(limitedEngine(rl, pre), http.MethodGet, "/api/analytics/summary", "192.0.2.1:1").Code
	}

	if as("farmer-a") != http.StatusOK || as("farmer-b") != http.StatusOK {
		t.Fatalf("first request per farmer must pass")
	}
	if as("farmer-a") != http.StatusTooManyRequests {
		t.Fatalf("farmer-a second request should be limited")
	}
}
