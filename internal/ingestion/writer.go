package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"order-ingest/internal/models"
	"order-ingest/internal/warehouse"
)

// ChunkError is a fatal write failure, carrying the 1-based index of the
// chunk that failed. Chunks acknowledged before it remain committed.
type ChunkError struct {
	Chunk  int
	Chunks int
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("batch %d/%d failed: %v", e.Chunk, e.Chunks, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// WriteResult is the outcome of the write phase. On success,
// Inserted + Skipped equals the number of records submitted.
type WriteResult struct {
	Inserted int
	Skipped  int
	// VisibleRows is the read-side visibility count taken after the last
	// chunk; observability only, zero when the count itself failed.
	VisibleRows int64
}

// BatchWriter appends records to the warehouse in fixed-size chunks, one at
// a time, pacing between chunks to bound peak memory and avoid saturating
// the warehouse's write path.
type BatchWriter struct {
	warehouse warehouse.Client
	chunkSize int
	limiter   *rate.Limiter
}

func NewBatchWriter(wh warehouse.Client, chunkSize int, pause time.Duration) *BatchWriter {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	var limiter *rate.Limiter
	if pause > 0 {
		limiter = rate.NewLimiter(rate.Every(pause), 1)
	}

	return &BatchWriter{warehouse: wh, chunkSize: chunkSize, limiter: limiter}
}

// Write submits records chunk-by-chunk. Duplicate-classified rejections are
// counted as skipped and never re-raised; any other failure aborts the
// remaining chunks with a *ChunkError. There is no rollback of chunks the
// warehouse already acknowledged.
func (w *BatchWriter) Write(ctx context.Context, records []models.Record) (WriteResult, error) {
	var result WriteResult
	chunks := (len(records) + w.chunkSize - 1) / w.chunkSize

	for i := 0; i < len(records); i += w.chunkSize {
		end := i + w.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunkIndex := i/w.chunkSize + 1

		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return result, &ChunkError{Chunk: chunkIndex, Chunks: chunks, Err: err}
			}
		}

		chunk := records[i:end]
		report, err := w.warehouse.InsertRows(ctx, chunk)
		if err != nil {
			return result, &ChunkError{Chunk: chunkIndex, Chunks: chunks, Err: err}
		}

		result.Inserted += report.Inserted
		result.Skipped += report.Duplicates

		if report.Duplicates > 0 {
			log.Printf("Batch %d/%d: warehouse rejected %d rows as duplicates", chunkIndex, chunks, report.Duplicates)
		}

		// Release the chunk's rows so peak memory stays bounded by one
		// chunk regardless of batch count.
		for j := i; j < end; j++ {
			records[j] = nil
		}
	}

	result.VisibleRows = w.verifyVisibleRows(ctx)
	return result, nil
}

// verifyVisibleRows runs the read-side visibility check. A failure here
// never changes the insertion counts.
func (w *BatchWriter) verifyVisibleRows(ctx context.Context) int64 {
	count, err := w.warehouse.CountRows(ctx)
	if err != nil {
		log.Printf("WARN: Visibility check failed: %v", err)
		return 0
	}
	return count
}
