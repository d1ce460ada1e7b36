// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/himanshu-nimonkar/TerraMind/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// SessionTTL is the inactivity window after which sessions are swept.
	SessionTTL time.Duration

	// DefaultCentroid is used when neither the query nor the session
	// carries coordinates.
	DefaultCentroid domain.Coordinates

	// Region bounds the area where satellite and weather fetches are valid.
	Region domain.Region

	// ProviderDeadline is the shared soft deadline for data-provider
	// fetches. HardCeiling caps the whole orchestration, synthesis
	// included. IntentDeadline bounds the classification pass.
	ProviderDeadline time.Duration
	HardCeiling      time.Duration
	IntentDeadline   time.Duration

	// MaxConcurrentQueries caps in-flight orchestrations across all
	// sessions to bound upstream API load.
	MaxConcurrentQueries int

	Weather    WeatherConfig
	Vegetation VegetationConfig
	Retrieval  RetrievalConfig
	Completion CompletionConfig
}

// WeatherConfig configures the weather provider adapter.
type WeatherConfig struct {
	BaseURL    string
	ArchiveURL string
	CacheTTL   time.Duration
}

// VegetationConfig configures the vegetation/water index adapter.
type VegetationConfig struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
}

// RetrievalConfig configures the document-retrieval adapter.
type RetrievalConfig struct {
	IndexURL string
	APIKey   string
	TopK     int
	MinScore float64
}

// CompletionConfig configures the text-completion adapter.
type CompletionConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/terramind.db"),
		SessionTTL:  getEnvDuration("SESSION_TTL", 2*time.Hour),
		DefaultCentroid: domain.Coordinates{
			Lat: getEnvFloat("DEFAULT_LAT", 38.7646),
			Lon: getEnvFloat("DEFAULT_LON", -121.9018),
		},
		Region: domain.Region{
			MinLat: getEnvFloat("REGION_MIN_LAT", 38.0),
			MaxLat: getEnvFloat("REGION_MAX_LAT", 39.1),
			MinLon: getEnvFloat("REGION_MIN_LON", -122.6),
			MaxLon: getEnvFloat("REGION_MAX_LON", -121.2),
		},
		ProviderDeadline:     getEnvDuration("PROVIDER_DEADLINE", 4*time.Second),
		HardCeiling:          getEnvDuration("HARD_CEILING", 8*time.Second),
		IntentDeadline:       getEnvDuration("INTENT_DEADLINE", 1500*time.Millisecond),
		MaxConcurrentQueries: getEnvInt("MAX_CONCURRENT_QUERIES", 32),
		Weather: WeatherConfig{
			BaseURL:    getEnv("WEATHER_BASE_URL", "https://api.open-meteo.com/v1/forecast"),
			ArchiveURL: getEnv("WEATHER_ARCHIVE_URL", "https://archive-api.open-meteo.com/v1/archive"),
			CacheTTL:   getEnvDuration("WEATHER_CACHE_TTL", time.Hour),
		},
		Vegetation: VegetationConfig{
			BaseURL:  getEnv("VEGETATION_BASE_URL", ""),
			APIKey:   getEnv("VEGETATION_API_KEY", ""),
			CacheTTL: getEnvDuration("VEGETATION_CACHE_TTL", 6*time.Hour),
		},
		Retrieval: RetrievalConfig{
			IndexURL: getEnv("RETRIEVAL_INDEX_URL", ""),
			APIKey:   getEnv("RETRIEVAL_API_KEY", ""),
			TopK:     getEnvInt("RETRIEVAL_TOP_K", 3),
			MinScore: getEnvFloat("RETRIEVAL_MIN_SCORE", 0.35),
		},
		Completion: CompletionConfig{
			BaseURL: getEnv("COMPLETION_BASE_URL", ""),
			APIKey:  getEnv("COMPLETION_API_KEY", ""),
			Model:   getEnv("COMPLETION_MODEL", "llama-3.1-8b-instruct"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ProviderDeadline <= 0 {
		return fmt.Errorf("PROVIDER_DEADLINE must be > 0")
	}
	if c.HardCeiling <= c.ProviderDeadline {
		return fmt.Errorf("HARD_CEILING must exceed PROVIDER_DEADLINE")
	}
	if c.MaxConcurrentQueries <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_QUERIES must be > 0")
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be > 0")
	}
	if !c.Region.Contains(c.DefaultCentroid) {
		return fmt.Errorf("DEFAULT_LAT/DEFAULT_LON must fall inside the configured region")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
