// Package config loads run settings from the environment and optional .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultModels is the Gemini fallback chain, strongest first.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-1.5-flash",
}

type Config struct {
	// Gemini settings
	GeminiAPIKey      string
	Models            []string
	MaxGeminiRequests int // per run, 0 = unlimited
	GeminiRPM         int // requests per minute, 0 = unlimited
	RequestTimeout    time.Duration
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RetryMaxDelay     time.Duration

	// Feed settings
	SourcesConfigPath string
	FetchConcurrency  int
	FetchTimeout      time.Duration
	UserAgent         string

	// Pipeline bounds
	DedupPrefixRunes     int
	MaxClusterItems      int
	MaxClusters          int
	TopClusters          int
	SynthesisConcurrency int
	MaxContentRunes      int

	// Content enrichment
	EnrichContent     bool
	EnrichMinRunes    int
	EnrichConcurrency int

	// Cache settings
	CacheBackend      string // file | postgres | redis | memory
	CacheFilePath     string
	DatabaseURL       string
	RedisAddr         string
	ClusterCacheTTL   time.Duration
	SynthesisCacheTTL time.Duration

	// Output
	ReportPath string

	// MonitorAddr serves /health and /metrics during the run when set.
	MonitorAddr string

	Debug bool
}

// Default returns the configuration used when no environment overrides are set.
func Default() *Config {
	return &Config{
		Models:               append([]string(nil), DefaultModels...),
		RequestTimeout:       60 * time.Second,
		RetryAttempts:        3,
		RetryBaseDelay:       2 * time.Second,
		RetryMaxDelay:        30 * time.Second,
		SourcesConfigPath:    "configs/sources.yaml",
		FetchConcurrency:     8,
		FetchTimeout:         30 * time.Second,
		UserAgent:            "newslens/1.0 (+https://github.com/deusflow/newslens)",
		DedupPrefixRunes:     20,
		MaxClusterItems:      200,
		MaxClusters:          15,
		TopClusters:          10,
		SynthesisConcurrency: 3,
		MaxContentRunes:      1500,
		EnrichMinRunes:       200,
		EnrichConcurrency:    5,
		CacheBackend:         "file",
		CacheFilePath:        ".cache/llm_cache.json",
		RedisAddr:            "localhost:6379",
		ClusterCacheTTL:      time.Hour,
		SynthesisCacheTTL:    24 * time.Hour,
		ReportPath:           "data/latest-report.json",
	}
}

// Load reads .env and .env.local (if present) and applies environment overrides to Default().
// The result is not validated; callers apply their own overrides and then call Validate.
func Load() *Config {
	// Missing env files are fine; .env.local wins over .env.
	_ = godotenv.Overload(existing(".env", ".env.local")...)

	cfg := Default()

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		cfg.GeminiAPIKey = os.Getenv("GOOGLE_GENERATIVE_AI_API_KEY")
	}
	if v := os.Getenv("GEMINI_MODELS"); v != "" {
		cfg.Models = splitList(v)
	}
	cfg.MaxGeminiRequests = getEnvIntOrDefault("MAX_GEMINI_REQUESTS", cfg.MaxGeminiRequests)
	cfg.GeminiRPM = getEnvIntOrDefault("GEMINI_RPM", cfg.GeminiRPM)
	cfg.RequestTimeout = getEnvDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.RetryBaseDelay = getEnvDurationOrDefault("RETRY_BASE_DELAY", cfg.RetryBaseDelay)
	cfg.RetryMaxDelay = getEnvDurationOrDefault("RETRY_MAX_DELAY", cfg.RetryMaxDelay)

	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)
	cfg.FetchConcurrency = getEnvIntOrDefault("FETCH_CONCURRENCY", cfg.FetchConcurrency)
	cfg.FetchTimeout = getEnvDurationOrDefault("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.UserAgent = getEnvOrDefault("FEED_USER_AGENT", cfg.UserAgent)

	cfg.DedupPrefixRunes = getEnvIntOrDefault("DEDUP_PREFIX_RUNES", cfg.DedupPrefixRunes)
	cfg.MaxClusterItems = getEnvIntOrDefault("MAX_CLUSTER_ITEMS", cfg.MaxClusterItems)
	cfg.MaxClusters = getEnvIntOrDefault("MAX_CLUSTERS", cfg.MaxClusters)
	cfg.TopClusters = getEnvIntOrDefault("TOP_CLUSTERS", cfg.TopClusters)
	cfg.SynthesisConcurrency = getEnvIntOrDefault("SYNTHESIS_CONCURRENCY", cfg.SynthesisConcurrency)
	cfg.MaxContentRunes = getEnvIntOrDefault("MAX_CONTENT_RUNES", cfg.MaxContentRunes)

	cfg.EnrichContent = os.Getenv("ENRICH_CONTENT") == "true"
	cfg.EnrichMinRunes = getEnvIntOrDefault("ENRICH_MIN_RUNES", cfg.EnrichMinRunes)
	cfg.EnrichConcurrency = getEnvIntOrDefault("ENRICH_CONCURRENCY", cfg.EnrichConcurrency)

	cfg.CacheBackend = strings.ToLower(getEnvOrDefault("CACHE_BACKEND", cfg.CacheBackend))
	cfg.CacheFilePath = getEnvOrDefault("CACHE_FILE_PATH", cfg.CacheFilePath)
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.ClusterCacheTTL = getEnvDurationOrDefault("CLUSTER_CACHE_TTL", cfg.ClusterCacheTTL)
	cfg.SynthesisCacheTTL = getEnvDurationOrDefault("SYNTHESIS_CACHE_TTL", cfg.SynthesisCacheTTL)

	cfg.ReportPath = getEnvOrDefault("REPORT_PATH", cfg.ReportPath)

	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		cfg.MonitorAddr = ":" + getEnvOrDefault("MONITORING_PORT", "8080")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg
}

func existing(paths ...string) []string {
	var out []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") or bare seconds ("90").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// Validate checks bounds. A missing Gemini key is allowed: the gateway then reports no result.
func (c *Config) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("GEMINI_MODELS must name at least one model")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be >= 1")
	}
	if c.FetchConcurrency < 1 || c.SynthesisConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY and SYNTHESIS_CONCURRENCY must be >= 1")
	}
	if c.DedupPrefixRunes < 1 {
		return fmt.Errorf("DEDUP_PREFIX_RUNES must be >= 1")
	}
	if c.MaxClusterItems < 1 || c.TopClusters < 0 || c.MaxClusters < 1 {
		return fmt.Errorf("MAX_CLUSTER_ITEMS and MAX_CLUSTERS must be >= 1, TOP_CLUSTERS >= 0")
	}
	switch c.CacheBackend {
	case "file", "memory", "redis":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for CACHE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of file, postgres, redis, memory (got %q)", c.CacheBackend)
	}
	if c.ReportPath == "" {
		return fmt.Errorf("REPORT_PATH is required")
	}
	return nil
}
