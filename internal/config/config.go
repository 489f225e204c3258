package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Warehouse backends.
const (
	BackendBigQuery = "bigquery"
	BackendPostgres = "postgres"
)

type Config struct {
	// Upstream order-management API.
	APIURL       string
	APIUser      string
	APIPassword  string
	FetchTimeout time.Duration

	// Warehouse target.
	WarehouseBackend  string
	BQProjectID       string
	BQDataset         string
	BQTable           string
	BQCheckpointTable string
	BQLocation        string
	MaxCrossRefBytes  int64
	DatabaseURL       string

	// Pipeline tuning.
	BatchSize                  int
	ChunkPause                 time.Duration
	ProceedOnDedupCheckFailure bool

	// Mode defaults.
	DefaultStartHour int
	DefaultEndHour   int
	// UTCOffsetHours fixes the business time zone for date resolution and
	// morning-window filtering.
	UTCOffsetHours int

	MemoryLimitBytes uint64
	APIPort          string
}

func New() (*Config, error) {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		return nil, fmt.Errorf("API_URL environment variable is not set")
	}

	cfg := &Config{
		APIURL:            apiURL,
		APIUser:           os.Getenv("API_USER"),
		APIPassword:       os.Getenv("API_PASSWORD"),
		FetchTimeout:      180 * time.Second,
		WarehouseBackend:  getEnv("WAREHOUSE_BACKEND", BackendBigQuery),
		BQProjectID:       os.Getenv("BQ_PROJECT_ID"),
		BQDataset:         os.Getenv("BQ_DATASET"),
		BQTable:           os.Getenv("BQ_TABLE"),
		BQCheckpointTable: getEnv("BQ_CHECKPOINT_TABLE", "fetch_metadata"),
		BQLocation:        getEnv("BQ_LOCATION", "europe-west3"),
		MaxCrossRefBytes:  100 * 1024 * 1024,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		BatchSize:         2000,
		ChunkPause:        500 * time.Millisecond,
		DefaultStartHour:  0,
		DefaultEndHour:    8,
		UTCOffsetHours:    3,
		MemoryLimitBytes:  3 * 1024 * 1024 * 1024,
		APIPort:           getEnv("API_PORT", "8080"),
	}

	var err error
	cfg.BatchSize, err = getEnvAsInt("BATCH_SIZE", cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	cfg.DefaultStartHour, err = getEnvAsInt("DEFAULT_START_HOUR", cfg.DefaultStartHour)
	if err != nil {
		return nil, err
	}

	cfg.DefaultEndHour, err = getEnvAsInt("DEFAULT_END_HOUR", cfg.DefaultEndHour)
	if err != nil {
		return nil, err
	}

	cfg.UTCOffsetHours, err = getEnvAsInt("UTC_OFFSET_HOURS", cfg.UTCOffsetHours)
	if err != nil {
		return nil, err
	}

	cfg.FetchTimeout, err = getEnvAsDuration("FETCH_TIMEOUT", cfg.FetchTimeout)
	if err != nil {
		return nil, err
	}

	cfg.ChunkPause, err = getEnvAsDuration("CHUNK_PAUSE", cfg.ChunkPause)
	if err != nil {
		return nil, err
	}

	cfg.ProceedOnDedupCheckFailure, err = getEnvAsBool("PROCEED_ON_DEDUP_CHECK_FAILURE", true)
	if err != nil {
		return nil, err
	}

	switch cfg.WarehouseBackend {
	case BackendBigQuery:
		if cfg.BQProjectID == "" || cfg.BQDataset == "" || cfg.BQTable == "" {
			return nil, fmt.Errorf("BQ_PROJECT_ID, BQ_DATASET and BQ_TABLE must be set for the bigquery backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL must be set for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown warehouse backend: %s", cfg.WarehouseBackend)
	}

	return cfg, nil
}

// Location returns the fixed business time zone.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.UTCOffsetHours), c.UTCOffsetHours*3600)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: expected a boolean, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected a duration, got '%s'", key, valueStr)
	}

	return value, nil
}
