// Package config provides application configuration loaded from environment
// variables (optionally seeded from a .env file) with defaults and validation.
// It centralizes server, logging, storage, provider, ingestion, retrieval,
// chat, metering and observability settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "docchat-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// AIConfig configures the OpenAI-compatible embedding and generation provider.
type AIConfig struct {
	APIKey              string        // OPENAI_API_KEY
	BaseURL             string        // OPENAI_BASE_URL (empty = provider default)
	EmbeddingModel      string        // EMBEDDING_MODEL
	EmbeddingDimensions int           // EMBEDDING_DIMENSIONS
	ChatModel           string        // CHAT_MODEL
	TitleModel          string        // TITLE_MODEL (defaults to ChatModel)
	RPM                 int           // AI_RPM, 0 = unlimited
	MaxRetries          int           // AI_MAX_RETRIES
	Timeout             time.Duration // AI_TIMEOUT per call
}

// ScrapeConfig configures the site mapper and page reader.
type ScrapeConfig struct {
	FirecrawlBaseURL string        // FIRECRAWL_BASE_URL
	FirecrawlToken   string        // FIRECRAWL_TOKEN
	ReaderBaseURL    string        // READER_BASE_URL
	ReaderToken      string        // READER_TOKEN
	Timeout          time.Duration // SCRAPE_TIMEOUT
	MapLimit         int           // MAP_LIMIT
}

// IngestConfig configures the ingestion pipeline and chunking policies.
type IngestConfig struct {
	Workers          int           // INGEST_WORKERS
	EmbedConcurrency int           // INGEST_EMBED_CONCURRENCY
	MinChunkChars    int           // INGEST_MIN_CHUNK_CHARS
	ScanStagger      time.Duration // INGEST_SCAN_STAGGER
	FilePatterns     []string      // INGEST_FILE_PATTERNS (doublestar globs)

	MarkdownMinWords     int // MARKDOWN_MIN_WORDS
	MarkdownMaxWords     int // MARKDOWN_MAX_WORDS
	MarkdownOverlapWords int // MARKDOWN_OVERLAP_WORDS
	TextMaxChars         int // TEXT_MAX_CHARS
	TextOverlapChars     int // TEXT_OVERLAP_CHARS
	SectionMaxChars      int // SECTION_MAX_CHARS
}

// RetrievalConfig configures vector search.
type RetrievalConfig struct {
	TopK        int     // RETRIEVAL_TOP_K
	MaxDistance float64 // RETRIEVAL_MAX_DISTANCE (cosine distance, lower is closer)
	Backend     string  // VECTOR_BACKEND: sqlite|chromem
}

// ChatConfig configures chat turns.
type ChatConfig struct {
	HistoryWindow  int           // CHAT_HISTORY_WINDOW
	MaxPromptRunes int           // CHAT_MAX_PROMPT_RUNES
	TitleMaxRunes  int           // TITLE_MAX_RUNES
	Workers        int           // CHAT_WORKERS: concurrent producers, separate from ingestion
	StuckAfter     time.Duration // CHAT_STUCK_AFTER: streams idle this long are finalized
	SweepInterval  time.Duration // CHAT_SWEEP_INTERVAL
}

// BlobConfig configures the disk-backed upload store.
type BlobConfig struct {
	Dir      string // BLOB_DIR
	MaxBytes int64  // BLOB_MAX_BYTES
}

// MeteringConfig configures the local usage ledger.
type MeteringConfig struct {
	Unlimited          bool // METERING_UNLIMITED
	ChatDailyLimit     int  // CHAT_DAILY_LIMIT
	ScanCredits        int  // SCAN_CREDITS
	DocumentationLimit int  // DOCUMENTATION_LIMIT
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 0 for streaming endpoints
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Store
	DBPath string // SQLite path

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Domain
	AI        AIConfig
	Scrape    ScrapeConfig
	Ingest    IngestConfig
	Retrieval RetrievalConfig
	Chat      ChatConfig
	Blob      BlobConfig
	Metering  MeteringConfig

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

// LoadDotenv seeds the process environment from the given .env files (".env"
// when none are given). Variables already set are not overridden and missing
// files are ignored.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	chatModel := getenv("CHAT_MODEL", "gpt-4o-mini")
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Store
		DBPath: getenv("DB_PATH", "app.db"),

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

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		AI: AIConfig{
			APIKey:              getenv("OPENAI_API_KEY", ""),
			BaseURL:             getenv("OPENAI_BASE_URL", ""),
			EmbeddingModel:      getenv("EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getint("EMBEDDING_DIMENSIONS", 1536),
			ChatModel:           chatModel,
			TitleModel:          getenv("TITLE_MODEL", chatModel),
			RPM:                 getint("AI_RPM", 0),
			MaxRetries:          getint("AI_MAX_RETRIES", 3),
			Timeout:             getdur("AI_TIMEOUT", 60*time.Second),
		},
		Scrape: ScrapeConfig{
			FirecrawlBaseURL: strings.TrimRight(getenv("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev"), "/"),
			FirecrawlToken:   getenv("FIRECRAWL_TOKEN", ""),
			ReaderBaseURL:    strings.TrimRight(getenv("READER_BASE_URL", "https://r.jina.ai"), "/"),
			ReaderToken:      getenv("READER_TOKEN", ""),
			Timeout:          getdur("SCRAPE_TIMEOUT", 60*time.Second),
			MapLimit:         getint("MAP_LIMIT", 5000),
		},
		Ingest: IngestConfig{
			Workers:              getint("INGEST_WORKERS", 4),
			EmbedConcurrency:     getint("INGEST_EMBED_CONCURRENCY", 4),
			MinChunkChars:        getint("INGEST_MIN_CHUNK_CHARS", 100),
			ScanStagger:          getdur("INGEST_SCAN_STAGGER", 10*time.Second),
			FilePatterns:         splitGlobs(getenv("INGEST_FILE_PATTERNS", "**/*.{md,markdown,mdx,txt,text,rst,pdf,html,htm,json,csv}")),
			MarkdownMinWords:     getint("MARKDOWN_MIN_WORDS", 100),
			MarkdownMaxWords:     getint("MARKDOWN_MAX_WORDS", 800),
			MarkdownOverlapWords: getint("MARKDOWN_OVERLAP_WORDS", 50),
			TextMaxChars:         getint("TEXT_MAX_CHARS", 1000),
			TextOverlapChars:     getint("TEXT_OVERLAP_CHARS", 100),
			SectionMaxChars:      getint("SECTION_MAX_CHARS", 2000),
		},
		Retrieval: RetrievalConfig{
			TopK:        getint("RETRIEVAL_TOP_K", 10),
			MaxDistance: getfloat("RETRIEVAL_MAX_DISTANCE", 3.5),
			Backend:     strings.ToLower(getenv("VECTOR_BACKEND", "sqlite")),
		},
		Chat: ChatConfig{
			HistoryWindow:  getint("CHAT_HISTORY_WINDOW", 10),
			MaxPromptRunes: getint("CHAT_MAX_PROMPT_RUNES", 8000),
			TitleMaxRunes:  getint("TITLE_MAX_RUNES", 50),
			Workers:        getint("CHAT_WORKERS", 8),
			StuckAfter:     getdur("CHAT_STUCK_AFTER", 10*time.Minute),
			SweepInterval:  getdur("CHAT_SWEEP_INTERVAL", time.Minute),
		},
		Blob: BlobConfig{
			Dir:      getenv("BLOB_DIR", "data/blobs"),
			MaxBytes: int64(getint("BLOB_MAX_BYTES", 20<<20)),
		},
		Metering: MeteringConfig{
			Unlimited:          getbool("METERING_UNLIMITED", false),
			ChatDailyLimit:     getint("CHAT_DAILY_LIMIT", 50),
			ScanCredits:        getint("SCAN_CREDITS", 500),
			DocumentationLimit: getint("DOCUMENTATION_LIMIT", 10),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "docchat-backend"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout < 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
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
	if cfg.AI.EmbeddingDimensions <= 0 {
		return cfg, errors.New("EMBEDDING_DIMENSIONS must be > 0")
	}
	if cfg.AI.RPM < 0 || cfg.AI.MaxRetries < 0 || cfg.AI.Timeout <= 0 {
		return cfg, errors.New("AI_RPM and AI_MAX_RETRIES must be >= 0, AI_TIMEOUT > 0")
	}
	if cfg.Scrape.Timeout <= 0 || cfg.Scrape.MapLimit <= 0 {
		return cfg, errors.New("SCRAPE_TIMEOUT and MAP_LIMIT must be > 0")
	}
	if cfg.Ingest.Workers < 1 || cfg.Ingest.EmbedConcurrency < 1 {
		return cfg, errors.New("INGEST_WORKERS and INGEST_EMBED_CONCURRENCY must be >= 1")
	}
	if cfg.Ingest.MinChunkChars < 0 || cfg.Ingest.ScanStagger < 0 {
		return cfg, errors.New("INGEST_MIN_CHUNK_CHARS and INGEST_SCAN_STAGGER must be >= 0")
	}
	for _, p := range cfg.Ingest.FilePatterns {
		if !doublestar.ValidatePattern(p) {
			return cfg, fmt.Errorf("INGEST_FILE_PATTERNS contains invalid pattern %q", p)
		}
	}
	if cfg.Ingest.MarkdownMaxWords <= 0 || cfg.Ingest.TextMaxChars <= 0 || cfg.Ingest.SectionMaxChars <= 0 {
		return cfg, errors.New("MARKDOWN_MAX_WORDS, TEXT_MAX_CHARS and SECTION_MAX_CHARS must be > 0")
	}
	if cfg.Ingest.TextOverlapChars < 0 || cfg.Ingest.TextOverlapChars >= cfg.Ingest.TextMaxChars {
		return cfg, errors.New("TEXT_OVERLAP_CHARS must be in [0, TEXT_MAX_CHARS)")
	}
	if cfg.Retrieval.TopK < 1 {
		return cfg, errors.New("RETRIEVAL_TOP_K must be >= 1")
	}
	if cfg.Retrieval.MaxDistance <= 0 {
		return cfg, errors.New("RETRIEVAL_MAX_DISTANCE must be > 0")
	}
	switch cfg.Retrieval.Backend {
	case "sqlite", "chromem":
	default:
		return cfg, errors.New("VECTOR_BACKEND must be one of: sqlite, chromem")
	}
	if cfg.Chat.HistoryWindow < 0 || cfg.Chat.TitleMaxRunes < 1 {
		return cfg, errors.New("CHAT_HISTORY_WINDOW must be >= 0 and TITLE_MAX_RUNES >= 1")
	}
	if cfg.Chat.Workers < 1 {
		return cfg, errors.New("CHAT_WORKERS must be >= 1")
	}
	if cfg.Chat.StuckAfter <= 0 || cfg.Chat.SweepInterval <= 0 {
		return cfg, errors.New("CHAT_STUCK_AFTER and CHAT_SWEEP_INTERVAL must be > 0")
	}
	if strings.TrimSpace(cfg.Blob.Dir) == "" || cfg.Blob.MaxBytes <= 0 {
		return cfg, errors.New("BLOB_DIR must not be empty and BLOB_MAX_BYTES must be > 0")
	}
	if cfg.Metering.ChatDailyLimit < 0 || cfg.Metering.ScanCredits < 0 || cfg.Metering.DocumentationLimit < 0 {
		return cfg, errors.New("metering limits must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers ----

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

// splitGlobs splits a comma-separated glob list, ignoring commas inside
// {alternatives} so "**/*.{md,txt}" stays one pattern.
func splitGlobs(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	add := func(p string) {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				add(s[start:i])
				start = i + 1
			}
		}
	}
	add(s[start:])
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
