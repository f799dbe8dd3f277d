// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
//
// Route groups under the API base path:
//   - public:   voice agent functions, probe ingest, AI provider callbacks
//   - farmer:   JWT; analytics, voice test call, devices, weather
//   - admin:    JWT + admin role; farmer directory, prices, scheduler
//   - internal: X-Internal-Token; callback inspection
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/agrisense-backend/docs"
	"github.com/tbourn/agrisense-backend/internal/config"
	"github.com/tbourn/agrisense-backend/internal/domain"
	"github.com/tbourn/agrisense-backend/internal/http/handlers"
	"github.com/tbourn/agrisense-backend/internal/http/middleware"
	"github.com/tbourn/agrisense-backend/internal/repo"
)

// Idempotency scope of POST /analytics/analyze.
const analyzeScope = "analyze"

var corsHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderIdempotencyKey, handlers.HeaderAPIKey, "X-Internal-Token",
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. db backs the idempotency and role lookups; d carries the services.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Gzip (not on /metrics)
//  8. CORS and Security headers
//
// Auth runs per group, so the idempotency validator and the rate limiter are
// attached after it and can key on the authenticated farmer.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, d handlers.Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	handlers.RegisterValidators()

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{handlers.HeaderAPIKey, "X-Internal-Token"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Compression
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 8) CORS posture (safe defaults: allow all if none configured)
	useCORS(r, cfg.CORS.AllowedOrigins)

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	auth := middleware.Auth(middleware.AuthOptions{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.JWTIssuer,
		Roles:  roleLookup(db),
	})

	api := groupWithPrefix(r, cfg.APIBasePath)

	// Public: the voice agent, probes and the AI provider call these.
	pub := api.Group("", rl.Handler())
	{
		pub.POST("/voice/retell-webhook", h.RetellWebhook)
		pub.POST("/voice/get-farmer-data", h.GetFarmerData)
		pub.POST("/devices/readings", h.IngestReading)
		pub.GET("/ai/provider", h.Provider)
		pub.POST("/ai/callback/analysis", h.AnalysisCallback)
		pub.POST("/ai/callback/chatbot", h.ChatbotCallback)
	}

	ops := api.Group("", middleware.InternalToken(cfg.Auth.InternalToken))
	ops.GET("/ai/callbacks/last", h.LastCallbacks)

	// Farmer: JWT.
	farmer := api.Group("", auth,
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200, Scope: analyzeScope}, idempotencyLookup(db)),
		rl.Handler(),
	)
	{
		farmer.GET("/analytics/analyze", h.GetAnalysis)
		farmer.POST("/analytics/analyze", h.PostAnalysis)
		farmer.POST("/analytics/chat", h.Chat)
		farmer.GET("/analytics/alerts", h.ListAlerts)
		farmer.PATCH("/analytics/alerts/:id/read", h.MarkAlertRead)

		farmer.POST("/voice/get-farmer-data-jwt", h.GetFarmerDataJWT)
		farmer.POST("/voice/test-call", h.TestCall)

		farmer.GET("/devices", h.ListDevices)
		farmer.POST("/devices", h.LinkDevice)
		farmer.DELETE("/devices/:id", h.UnlinkDevice)
		farmer.GET("/devices/:id/sensor-data", h.DeviceSensorData)

		farmer.GET("/weather/current", h.CurrentWeather)
		farmer.GET("/weather/forecast", h.WeatherForecast)
	}

	// Admin: JWT + admin role.
	admin := api.Group("/admin", auth, middleware.RequireRole(domain.RoleAdmin), rl.Handler())
	{
		admin.GET("/farmers", h.ListFarmers)
		admin.GET("/market-prices", h.ListMarketPrices)
		admin.POST("/market-prices", h.CreateMarketPrice)
		admin.POST("/scheduler/daily", h.TriggerDaily)
		admin.POST("/scheduler/moisture", h.TriggerMoisture)
		admin.GET("/scheduler/status", h.SchedulerStatus)
	}
}

// useCORS installs gin-contrib/cors. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func useCORS(r *gin.Engine, origins []string) {
	if len(origins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     corsHeaders,
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	r.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     corsHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
}

func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		if err != nil || rec == nil {
			return false, nil
		}
		return true, nil
	}
}

// roleLookup reads the stored role of a farmer; unknown users have none.
func roleLookup(db *gorm.DB) middleware.RoleLookup {
	return func(ctx context.Context, userID string) (string, error) {
		f, err := repo.GetFarmer(ctx, db, userID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", nil
			}
			return "", err
		}
		return f.Role, nil
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return r.Group("")
	}
	return r.Group(prefix)
}
