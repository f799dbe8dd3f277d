// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server, logging,
// database, AI provider, messaging, weather and scheduler settings for the
// AgriSense backend.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // scheduler zones on minimal images
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "agrisense-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and configures the relational backend.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	URL    string // Postgres DSN
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret     string
	JWTIssuer     string // optional; checked when set
	InternalToken string // X-Internal-Token for diagnostic routes
}

// AIConfig selects the analysis provider and its credentials.
type AIConfig struct {
	Provider            string // openai|smythos
	OpenAIKey           string
	OpenAIBaseURL       string
	AnalysisModel       string
	ChatModel           string
	SmythosURL          string
	SmythosTimeout      time.Duration
	AnalysisCallbackURL string
	ChatbotCallbackURL  string
}

// WeatherConfig configures the OpenWeather client and its cache window.
type WeatherConfig struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
}

// SMSConfig holds the SMS gateway credentials.
type SMSConfig struct {
	APIURL   string
	APIKey   string
	SenderID string
}

// VoiceConfig holds the Retell voice agent credentials.
type VoiceConfig struct {
	APIKey     string
	BaseURL    string
	AgentID    string
	FromNumber string
}

// SchedulerConfig configures the background sweeps.
type SchedulerConfig struct {
	Enabled          bool
	Timezone         string        // IANA name, e.g. Asia/Dhaka
	DailyAt          string        // HH:MM local time
	MoistureEvery    time.Duration // moisture sweep period, aligned to local midnight
	FarmerDelay      time.Duration // pause between farmers in the daily sweep
	AlertDelay       time.Duration // pause between alerts in the moisture sweep
	CriticalMoisture float64       // percent
}

// RedisConfig enables the distributed sweep lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig enables alert event publishing when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s, analysis calls are slow
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Outbound HTTP
	HTTPClientTimeout time.Duration

	DB        DBConfig
	Auth      AuthConfig
	AI        AIConfig
	Weather   WeatherConfig
	SMS       SMSConfig
	Voice     VoiceConfig
	Scheduler SchedulerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "5000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL:    getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		HTTPClientTimeout: getdur("HTTP_CLIENT_TIMEOUT", 30*time.Second),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "agrisense.db"),
			URL:    getenv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:     getenv("JWT_SECRET", ""),
			JWTIssuer:     getenv("JWT_ISSUER", ""),
			InternalToken: getenv("INTERNAL_API_TOKEN", ""),
		},
		AI: AIConfig{
			Provider:            strings.ToLower(getenv("AI_PROVIDER", "openai")),
			OpenAIKey:           getenv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:       getenv("OPENAI_BASE_URL", ""),
			AnalysisModel:       getenv("OPENAI_ANALYSIS_MODEL", "gpt-4.1"),
			ChatModel:           getenv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			SmythosURL:          getenv("SMYTHOS_AGENT_URL", ""),
			SmythosTimeout:      getdur("SMYTHOS_TIMEOUT", 20*time.Second),
			AnalysisCallbackURL: getenv("ANALYSIS_CALLBACK_URL", ""),
			ChatbotCallbackURL:  getenv("CHATBOT_CALLBACK_URL", ""),
		},
		Weather: WeatherConfig{
			APIKey:   getenv("OPENWEATHER_API_KEY", ""),
			BaseURL:  getenv("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			CacheTTL: getdur("WEATHER_CACHE_TTL", 30*time.Minute),
		},
		SMS: SMSConfig{
			APIURL:   getenv("SMS_API_URL", "http://bulksmsbd.net/api/smsapi"),
			APIKey:   getenv("SMS_API_KEY", ""),
			SenderID: getenv("SMS_SENDER_ID", ""),
		},
		Voice: VoiceConfig{
			APIKey:     getenv("RETELL_API_KEY", ""),
			BaseURL:    getenv("RETELL_BASE_URL", "https://api.retellai.com"),
			AgentID:    getenv("RETELL_AGENT_ID", ""),
			FromNumber: getenv("RETELL_FROM_NUMBER", ""),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getbool("SCHEDULER_ENABLED", true),
			Timezone:         getenv("SCHEDULER_TIMEZONE", "Asia/Dhaka"),
			DailyAt:          getenv("SCHEDULER_DAILY_AT", "07:00"),
			MoistureEvery:    getdur("SCHEDULER_MOISTURE_EVERY", 2*time.Hour),
			FarmerDelay:      getdur("SCHEDULER_FARMER_DELAY", 2*time.Second),
			AlertDelay:       getdur("SCHEDULER_ALERT_DELAY", 3*time.Second),
			CriticalMoisture: getfloat("CRITICAL_MOISTURE", 15),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", ""),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    splitCSV(getenv("KAFKA_BROKERS", "")),
			AlertTopic: getenv("KAFKA_ALERT_TOPIC", "farm-alerts"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "agrisense-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" || cfg.DB.Driver == "pg" {
		cfg.DB.Driver = "postgres"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.URL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.AI.Provider {
	case "openai":
	case "smythos":
		if strings.TrimSpace(cfg.AI.SmythosURL) == "" {
			return cfg, errors.New("SMYTHOS_AGENT_URL is required when AI_PROVIDER=smythos")
		}
	default:
		return cfg, errors.New("AI_PROVIDER must be one of: openai, smythos")
	}
	if cfg.AI.SmythosTimeout <= 0 || cfg.HTTPClientTimeout <= 0 {
		return cfg, errors.New("client timeouts must be positive durations")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Weather.CacheTTL <= 0 {
		return cfg, errors.New("WEATHER_CACHE_TTL must be > 0")
	}
	if _, _, err := ParseClock(cfg.Scheduler.DailyAt); err != nil {
		return cfg, errors.New("SCHEDULER_DAILY_AT must be HH:MM")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return cfg, errors.New("SCHEDULER_TIMEZONE must be a valid IANA zone")
	}
	if cfg.Scheduler.MoistureEvery <= 0 {
		return cfg, errors.New("SCHEDULER_MOISTURE_EVERY must be > 0")
	}
	if cfg.Scheduler.FarmerDelay < 0 || cfg.Scheduler.AlertDelay < 0 {
		return cfg, errors.New("scheduler delays must be >= 0")
	}
	if cfg.Scheduler.CriticalMoisture < 0 || cfg.Scheduler.CriticalMoisture > 100 {
		return cfg, errors.New("CRITICAL_MOISTURE must be between 0 and 100")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ParseClock parses a "HH:MM" wall-clock string.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
