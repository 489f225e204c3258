package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func setBigQueryEnv(t *testing.T) {
	t.Setenv("API_URL", "https://orders.example.com/export")
	t.Setenv("BQ_PROJECT_ID", "proj")
	t.Setenv("BQ_DATASET", "orders")
	t.Setenv("BQ_TABLE", "order_items")
}

func TestNew(t *testing.T) {
	t.Run("should fail without API_URL", func(t *testing.T) {
		t.Setenv("API_URL", "")

		_, err := New()

		assert.ErrorContains(t, err, "API_URL")
	})

	t.Run("should apply defaults for the bigquery backend", func(t *testing.T) {
		setBigQueryEnv(t)

		cfg, err := New()

		assert.NoError(t, err)
		assert.Equal(t, BackendBigQuery, cfg.WarehouseBackend)
		assert.Equal(t, "fetch_metadata", cfg.BQCheckpointTable)
		assert.Equal(t, 2000, cfg.BatchSize)
		assert.Equal(t, 500*time.Millisecond, cfg.ChunkPause)
		assert.Equal(t, 180*time.Second, cfg.FetchTimeout)
		assert.True(t, cfg.ProceedOnDedupCheckFailure)
		assert.Equal(t, 0, cfg.DefaultStartHour)
		assert.Equal(t, 8, cfg.DefaultEndHour)
	})

	t.Run("should fail when the bigquery backend is missing its target", func(t *testing.T) {
		t.Setenv("API_URL", "https://orders.example.com/export")
		t.Setenv("BQ_PROJECT_ID", "")

		_, err := New()

		assert.ErrorContains(t, err, "BQ_PROJECT_ID")
	})

	t.Run("should require DATABASE_URL for the postgres backend", func(t *testing.T) {
		t.Setenv("API_URL", "https://orders.example.com/export")
		t.Setenv("WAREHOUSE_BACKEND", BackendPostgres)

		_, err := New()

		assert.ErrorContains(t, err, "DATABASE_URL")
	})

	t.Run("should reject an unknown backend", func(t *testing.T) {
		t.Setenv("API_URL", "https://orders.example.com/export")
		t.Setenv("WAREHOUSE_BACKEND", "duckdb")

		_, err := New()

		assert.ErrorContains(t, err, "unknown warehouse backend")
	})

	t.Run("should read overrides from the environment", func(t *testing.T) {
		setBigQueryEnv(t)
		t.Setenv("BATCH_SIZE", "500")
		t.Setenv("CHUNK_PAUSE", "2s")
		t.Setenv("PROCEED_ON_DEDUP_CHECK_FAILURE", "false")
		t.Setenv("UTC_OFFSET_HOURS", "2")

		cfg, err := New()

		assert.NoError(t, err)
		assert.Equal(t, 500, cfg.BatchSize)
		assert.Equal(t, 2*time.Second, cfg.ChunkPause)
		assert.False(t, cfg.ProceedOnDedupCheckFailure)
		assert.Equal(t, 2, cfg.UTCOffsetHours)
	})

	t.Run("should reject malformed numeric overrides", func(t *testing.T) {
		setBigQueryEnv(t)
		t.Setenv("BATCH_SIZE", "lots")

		_, err := New()

		assert.ErrorContains(t, err, "BATCH_SIZE")
	})
}

func TestLocation(t *testing.T) {
	cfg := &Config{UTCOffsetHours: 3}

	loc := cfg.Location()

	moment := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC).In(loc)
	assert.Equal(t, 3, moment.Hour())
}
