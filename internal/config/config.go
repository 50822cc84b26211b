// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database and blob paths, retrieval
// parameters, quota limits, rate limiting, billing, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RAGConfig groups the settings of the retrieval pipeline and its external
// collaborators (vector index, embedding model, completion model).
type RAGConfig struct {
	// Vector index (Pinecone-compatible REST endpoint)
	IndexHost   string // PINECONE_HOST, e.g. "https://pdf-chat-xxxx.svc.pinecone.io"
	IndexAPIKey string // PINECONE_API_KEY

	// Embeddings (HuggingFace Inference API)
	EmbedBaseURL string // EMBED_BASE_URL
	EmbedAPIKey  string // EMBED_API_KEY
	EmbedModel   string // EMBED_MODEL

	// Completion model (Groq / OpenAI-compatible chat completions)
	LLMBaseURL     string  // LLM_BASE_URL
	LLMAPIKey      string  // LLM_API_KEY
	LLMModel       string  // LLM_MODEL
	LLMTemperature float64 // LLM_TEMPERATURE
	LLMMaxTokens   int     // LLM_MAX_TOKENS

	// Chunking & retrieval
	ChunkSize       int // CHUNK_SIZE (characters)
	ChunkOverlap    int // CHUNK_OVERLAP (characters)
	TopK            int // RETRIEVE_TOP_K
	HistoryMaxTurns int // HISTORY_MAX_TURNS (suffix window; 0 = unbounded)

	// Timeout applied to each remote collaborator call.
	RequestTimeout time.Duration // RAG_REQUEST_TIMEOUT
}

// QuotaConfig holds the per-tier allowances. Question limits apply per
// document, not globally per user: each document has its own quota bucket.
// Document limits cap how many documents a user may own at once.
type QuotaConfig struct {
	FreeLimit int // QUOTA_FREE_LIMIT
	ProLimit  int // QUOTA_PRO_LIMIT

	FreeDocLimit int // QUOTA_FREE_DOC_LIMIT
	ProDocLimit  int // QUOTA_PRO_DOC_LIMIT
}

// BillingConfig holds webhook verification settings.
type BillingConfig struct {
	WebhookSecret string        // BILLING_WEBHOOK_SECRET
	Tolerance     time.Duration // BILLING_WEBHOOK_TOLERANCE (signature timestamp skew)
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	// Identity (authentication is delegated; see middleware.Identity)
	AuthRequired bool   // AUTH_REQUIRED: reject anonymous requests with 401
	AuthDemoUser string // AUTH_DEMO_USER: identity substituted in development

	// Storage
	DBPath    string // SQLite path
	BlobRoot  string // root directory of the blob store
	BlobLimit int64  // max upload size in bytes

	// Domain
	RAG     RAGConfig
	Quota   QuotaConfig
	Billing BillingConfig

	// Rate limiting
	RateRPS   float64
	RateBurst int

	// Idempotency
	ReceiptTTL time.Duration // how long an Idempotency-Key replay is honored

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Identity
		AuthRequired: getbool("AUTH_REQUIRED", false),
		AuthDemoUser: getenv("AUTH_DEMO_USER", "demo-user"),

		// Storage
		DBPath:    getenv("DB_PATH", "app.db"),
		BlobRoot:  getenv("BLOB_ROOT", "data/blobs"),
		BlobLimit: int64(getint("BLOB_LIMIT_BYTES", 25<<20)),

		RAG: RAGConfig{
			IndexHost:   getenv("PINECONE_HOST", ""),
			IndexAPIKey: getenv("PINECONE_API_KEY", ""),

			EmbedBaseURL: getenv("EMBED_BASE_URL", "https://api-inference.huggingface.co"),
			EmbedAPIKey:  getenv("EMBED_API_KEY", ""),
			EmbedModel:   getenv("EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),

			LLMBaseURL:     getenv("LLM_BASE_URL", "https://api.groq.com/openai/v1"),
			LLMAPIKey:      getenv("LLM_API_KEY", ""),
			LLMModel:       getenv("LLM_MODEL", "llama-3.3-70b-versatile"),
			LLMTemperature: getfloat("LLM_TEMPERATURE", 0.7),
			LLMMaxTokens:   getint("LLM_MAX_TOKENS", 1000),

			ChunkSize:       getint("CHUNK_SIZE", 1000),
			ChunkOverlap:    getint("CHUNK_OVERLAP", 200),
			TopK:            getint("RETRIEVE_TOP_K", 4),
			HistoryMaxTurns: getint("HISTORY_MAX_TURNS", 50),

			RequestTimeout: getdur("RAG_REQUEST_TIMEOUT", 60*time.Second),
		},

		Quota: QuotaConfig{
			FreeLimit: getint("QUOTA_FREE_LIMIT", 2),
			ProLimit:  getint("QUOTA_PRO_LIMIT", 100),

			FreeDocLimit: getint("QUOTA_FREE_DOC_LIMIT", 2),
			ProDocLimit:  getint("QUOTA_PRO_DOC_LIMIT", 20),
		},

		Billing: BillingConfig{
			WebhookSecret: getenv("BILLING_WEBHOOK_SECRET", ""),
			Tolerance:     getdur("BILLING_WEBHOOK_TOLERANCE", 5*time.Minute),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Idempotency
		ReceiptTTL: getdur("RECEIPT_TTL", 24*time.Hour),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-pdf-chat-backend"),
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.BlobRoot) == "" {
		return cfg, errors.New("BLOB_ROOT must not be empty")
	}
	if cfg.BlobLimit <= 0 {
		return cfg, errors.New("BLOB_LIMIT_BYTES must be > 0")
	}
	if cfg.RAG.ChunkSize <= 0 {
		return cfg, errors.New("CHUNK_SIZE must be > 0")
	}
	if cfg.RAG.ChunkOverlap < 0 || cfg.RAG.ChunkOverlap >= cfg.RAG.ChunkSize {
		return cfg, errors.New("CHUNK_OVERLAP must be in [0, CHUNK_SIZE)")
	}
	if cfg.RAG.TopK <= 0 {
		return cfg, errors.New("RETRIEVE_TOP_K must be > 0")
	}
	if cfg.RAG.HistoryMaxTurns < 0 {
		return cfg, errors.New("HISTORY_MAX_TURNS must be >= 0")
	}
	if cfg.RAG.RequestTimeout <= 0 {
		return cfg, errors.New("RAG_REQUEST_TIMEOUT must be > 0")
	}
	if cfg.RAG.LLMTemperature < 0 || cfg.RAG.LLMTemperature > 2 {
		return cfg, errors.New("LLM_TEMPERATURE must be in [0,2]")
	}
	if cfg.Quota.FreeLimit < 0 || cfg.Quota.ProLimit < 0 {
		return cfg, errors.New("quota limits must be >= 0")
	}
	if cfg.Quota.ProLimit < cfg.Quota.FreeLimit {
		return cfg, errors.New("QUOTA_PRO_LIMIT must be >= QUOTA_FREE_LIMIT")
	}
	if cfg.Quota.FreeDocLimit < 0 || cfg.Quota.ProDocLimit < 0 {
		return cfg, errors.New("document limits must be >= 0")
	}
	if cfg.Quota.ProDocLimit < cfg.Quota.FreeDocLimit {
		return cfg, errors.New("QUOTA_PRO_DOC_LIMIT must be >= QUOTA_FREE_DOC_LIMIT")
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
	if cfg.ReceiptTTL <= 0 {
		return cfg, errors.New("RECEIPT_TTL must be > 0")
	}
	if cfg.Billing.Tolerance <= 0 {
		return cfg, errors.New("BILLING_WEBHOOK_TOLERANCE must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
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
