package ingestion

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"order-ingest/internal/models"
)

func orderBatch(n int) []models.Record {
	batch := make([]models.Record, n)
	for i := range batch {
		batch[i] = normalizedOrder(fmt.Sprintf("ORD-%d", i+1), "2025-11-12")
	}
	return batch
}

func TestBatchWriterWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("should conserve rows across chunk sizes", func(t *testing.T) {
		for _, chunkSize := range []int{1, 2, 3, 7, 100} {
			wh := newFakeWarehouse()
			wh.seed(normalizedOrder("ORD-2", "2025-11-12"), normalizedOrder("ORD-5", "2025-11-12"))
			writer := NewBatchWriter(wh, chunkSize, 0)

			result, err := writer.Write(ctx, orderBatch(7))

			assert.NoError(t, err)
			assert.Equal(t, 5, result.Inserted, "chunk size %d", chunkSize)
			assert.Equal(t, 2, result.Skipped, "chunk size %d", chunkSize)
			assert.Equal(t, 7, result.Inserted+result.Skipped, "chunk size %d", chunkSize)
		}
	})

	t.Run("should tolerate duplicate rejections and keep writing later chunks", func(t *testing.T) {
		wh := newFakeWarehouse()
		wh.seed(normalizedOrder("ORD-1", "2025-11-12"))
		writer := NewBatchWriter(wh, 2, 0)

		result, err := writer.Write(ctx, orderBatch(4))

		assert.NoError(t, err)
		assert.Equal(t, 3, result.Inserted)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 2, wh.insertCalls)
	})

	t.Run("should abort on a fatal chunk with its 1-based index and the partial result", func(t *testing.T) {
		wh := newFakeWarehouse()
		wh.failInsertAtCall = 2
		wh.insertErr = errors.New("schema mismatch")
		writer := NewBatchWriter(wh, 2, 0)

		result, err := writer.Write(ctx, orderBatch(6))

		var chunkErr *ChunkError
		assert.ErrorAs(t, err, &chunkErr)
		assert.Equal(t, 2, chunkErr.Chunk)
		assert.Equal(t, 3, chunkErr.Chunks)
		assert.ErrorContains(t, err, "schema mismatch")
		assert.Equal(t, 2, result.Inserted)
		assert.Equal(t, 2, wh.insertCalls)
	})

	t.Run("should report zero visible rows when the visibility check fails", func(t *testing.T) {
		wh := newFakeWarehouse()
		wh.countErr = errors.New("count timeout")
		writer := NewBatchWriter(wh, 10, 0)

		result, err := writer.Write(ctx, orderBatch(3))

		assert.NoError(t, err)
		assert.Equal(t, 3, result.Inserted)
		assert.Equal(t, int64(0), result.VisibleRows)
	})

	t.Run("should report the warehouse row count after the last chunk", func(t *testing.T) {
		wh := newFakeWarehouse()
		wh.seed(normalizedOrder("ORD-100", "2025-11-01"))
		writer := NewBatchWriter(wh, 10, 0)

		result, err := writer.Write(ctx, orderBatch(3))

		assert.NoError(t, err)
		assert.Equal(t, int64(4), result.VisibleRows)
	})

	t.Run("should handle an empty batch", func(t *testing.T) {
		wh := newFakeWarehouse()
		writer := NewBatchWriter(wh, 10, 0)

		result, err := writer.Write(ctx, nil)

		assert.NoError(t, err)
		assert.Zero(t, result.Inserted)
		assert.Zero(t, result.Skipped)
		assert.Zero(t, wh.insertCalls)
	})
}
