// Package config loads application configuration from environment variables.
// All variables use the ADAPT_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	Catalog    CatalogConfig
	Diagnostic DiagnosticConfig
	Engine     EngineConfig
	Risk       RiskConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL keeps the
// engine on its in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// shared cache and alert cooldown.
type CacheConfig struct {
	URL string
}

// CatalogConfig holds course catalog loading settings.
type CatalogConfig struct {
	Path string
}

// DiagnosticConfig holds question bank settings.
type DiagnosticConfig struct {
	BankPath     string
	MinQuestions int
}

// EngineConfig holds decision thresholds.
type EngineConfig struct {
	WindowSize          int
	EWMAWeight          float64
	RemediateThreshold  float64
	AccelerateThreshold float64
	SkipMastery         float64
	RegenMasteryDelta   float64
}

// RiskConfig holds risk model and alerting settings.
type RiskConfig struct {
	ScorerURL          string // empty keeps the heuristic fallback
	ScoringTimeout     time.Duration
	MinModelConfidence float64
	InterventionScore  float64
	AlertCooldown      time.Duration
	SweepInterval      time.Duration // 0 disables the periodic sweep
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load reads configuration from environment variables with ADAPT_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("ADAPT_SERVER_PORT", 8080),
			Host: envStr("ADAPT_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("ADAPT_DATABASE_URL", ""),
			MaxConns: envInt("ADAPT_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("ADAPT_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("ADAPT_CACHE_URL", ""),
		},
		Catalog: CatalogConfig{
			Path: envStr("ADAPT_CATALOG_PATH", "./catalog"),
		},
		Diagnostic: DiagnosticConfig{
			BankPath:     envStr("ADAPT_DIAGNOSTIC_BANK_PATH", "./questions"),
			MinQuestions: envInt("ADAPT_DIAGNOSTIC_MIN_QUESTIONS", 4),
		},
		Engine: EngineConfig{
			WindowSize:          envInt("ADAPT_ENGINE_WINDOW_SIZE", 10),
			EWMAWeight:          envFloat("ADAPT_ENGINE_EWMA_WEIGHT", 0.3),
			RemediateThreshold:  envFloat("ADAPT_ENGINE_REMEDIATE_THRESHOLD", 0.5),
			AccelerateThreshold: envFloat("ADAPT_ENGINE_ACCELERATE_THRESHOLD", 0.85),
			SkipMastery:         envFloat("ADAPT_ENGINE_SKIP_MASTERY", 0.85),
			RegenMasteryDelta:   envFloat("ADAPT_ENGINE_REGEN_MASTERY_DELTA", 0.15),
		},
		Risk: RiskConfig{
			ScorerURL:          envStr("ADAPT_RISK_SCORER_URL", ""),
			ScoringTimeout:     envDuration("ADAPT_RISK_SCORING_TIMEOUT", 2*time.Second),
			MinModelConfidence: envFloat("ADAPT_RISK_MIN_MODEL_CONFIDENCE", 0.4),
			InterventionScore:  envFloat("ADAPT_RISK_INTERVENTION_SCORE", 0.7),
			AlertCooldown:      envDuration("ADAPT_RISK_ALERT_COOLDOWN", 6*time.Hour),
			SweepInterval:      envDuration("ADAPT_RISK_SWEEP_INTERVAL", 0),
		},
		Log: LogConfig{
			Level:     envStr("ADAPT_LOG_LEVEL", "info"),
			Format:    envStr("ADAPT_LOG_FORMAT", "json"),
			AddSource: envBool("ADAPT_LOG_SOURCE", false),
		},
	}

	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("ADAPT_SERVER_PORT must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Engine.WindowSize <= 0 {
		return fmt.Errorf("ADAPT_ENGINE_WINDOW_SIZE must be positive, got %d", c.Engine.WindowSize)
	}
	if c.Engine.EWMAWeight <= 0 || c.Engine.EWMAWeight > 1 {
		return fmt.Errorf("ADAPT_ENGINE_EWMA_WEIGHT must be in (0,1], got %v", c.Engine.EWMAWeight)
	}
	if c.Engine.RemediateThreshold >= c.Engine.AccelerateThreshold {
		return fmt.Errorf("ADAPT_ENGINE_REMEDIATE_THRESHOLD (%v) must be below ADAPT_ENGINE_ACCELERATE_THRESHOLD (%v)",
			c.Engine.RemediateThreshold, c.Engine.AccelerateThreshold)
	}
	if c.Risk.InterventionScore < 0 || c.Risk.InterventionScore > 1 {
		return fmt.Errorf("ADAPT_RISK_INTERVENTION_SCORE must be in [0,1], got %v", c.Risk.InterventionScore)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
