// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Data layout
	RawDir    string // raw CSV inputs (accounts.csv, transactions.csv, kyc.csv)
	ReportDir string // JSON report output
	ExportDir string // timestamped CSV exports for BI tools
	ModelDir  string // trained model artifacts

	// Scoring settings
	DefaultContamination float64 // anomaly contamination when the caller omits one
	AnomalySeed          int64   // random seed for the isolation forest
	MinAnomalySamples    int     // below this, the scorer flags nothing

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)

	// Pipeline overlay file (optional YAML, see file.go)
	PipelineFile string
}

const (
	DefaultPort          = "8080"
	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultRawDir        = "data/raw"
	DefaultReportDir     = "data/reports"
	DefaultExportDir     = "data/exports"
	DefaultModelDir      = "models"
	DefaultSeed          = 42
	DefaultMinSamples    = 2
	DefaultContamination = 0.05
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RawDir:               getEnv("RAW_DIR", DefaultRawDir),
		ReportDir:            getEnv("REPORT_DIR", DefaultReportDir),
		ExportDir:            getEnv("EXPORT_DIR", DefaultExportDir),
		ModelDir:             getEnv("MODEL_DIR", DefaultModelDir),
		DefaultContamination: getEnvFloat("DEFAULT_CONTAMINATION", DefaultContamination),
		AnomalySeed:          getEnvInt64("ANOMALY_SEED", DefaultSeed),
		MinAnomalySamples:    int(getEnvInt64("MIN_ANOMALY_SAMPLES", DefaultMinSamples)),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		PipelineFile:         os.Getenv("PIPELINE_CONFIG"),
	}

	if cfg.PipelineFile != "" {
		if err := cfg.applyFile(cfg.PipelineFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.DefaultContamination <= 0 || c.DefaultContamination > 0.5 {
		return fmt.Errorf("DEFAULT_CONTAMINATION must be in (0, 0.5], got %v", c.DefaultContamination)
	}
	if c.MinAnomalySamples < 1 {
		return fmt.Errorf("MIN_ANOMALY_SAMPLES must be at least 1, got %d", c.MinAnomalySamples)
	}
	if c.RawDir == "" {
		return fmt.Errorf("RAW_DIR is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
