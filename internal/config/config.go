// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"medscan/internal/logger"
)

// Config holds all environment-driven settings for the medscan CLI.
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string

	// Google Cloud Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// OpenAI Configuration (entity extraction, speech)
	OpenAIAPIKey string

	// Classifier Configuration
	ClassifierModelPath string
	ClassifierClassMap  string // JSON file mapping class index -> {brand, generic}
	ClassifierThreshold float64
	OnnxRuntimeLibrary  string

	// Dictionary Cache Configuration
	SnapshotPath   string        // SQLite file backing the persisted snapshot
	CacheFreshFor  time.Duration // in-memory freshness window
	CacheRetainFor time.Duration // persisted snapshot retention window

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	threshold, err := getEnvFloat("CLASSIFIER_THRESHOLD", 0.70)
	if err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	config := &Config{
		MongoURI:              getEnv("MONGO_URI", ""),
		MongoDatabase:         getEnv("MONGO_DATABASE", "medscan"),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "us"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		ClassifierModelPath:   getEnv("CLASSIFIER_MODEL_PATH", ""),
		ClassifierClassMap:    getEnv("CLASSIFIER_CLASS_MAP", ""),
		ClassifierThreshold:   threshold,
		OnnxRuntimeLibrary:    getEnv("ONNXRUNTIME_LIBRARY", ""),
		SnapshotPath:          getEnv("SNAPSHOT_PATH", defaultSnapshotPath()),
		CacheFreshFor:         12 * time.Hour,
		CacheRetainFor:        30 * 24 * time.Hour,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.ClassifierThreshold < 0 || c.ClassifierThreshold > 1 {
		return fmt.Errorf("CLASSIFIER_THRESHOLD must be within [0,1], got %v", c.ClassifierThreshold)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config.
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

func defaultSnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "medscan-cache.db"
	}
	return home + "/.medscan/cache.db"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}
