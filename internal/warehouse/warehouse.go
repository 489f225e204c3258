// Package warehouse abstracts the analytical store the pipeline appends to.
// One implementation exists per target backend; the pipeline only sees this
// interface, which is what makes the write path testable with doubles.
package warehouse

import (
	"context"
	"time"

	"order-ingest/internal/models"
)

// ErrorClass is the structured outcome class of a failed row insert.
// Classification is decided by each backend from its own structured error
// codes, never by substring-matching free-text messages.
type ErrorClass int

const (
	// ClassFatal covers schema mismatches, type errors, quota failures:
	// anything that must abort the invocation.
	ClassFatal ErrorClass = iota
	// ClassDuplicate marks a row the warehouse rejected because it already
	// holds it. Tolerated and counted, never re-raised.
	ClassDuplicate
)

// InsertReport summarizes one accepted chunk write.
// Inserted + Duplicates always equals the number of rows submitted.
type InsertReport struct {
	Inserted   int
	Duplicates int
}

// Client is the warehouse contract the pipeline writes through.
//
// InsertRows appends normalized rows. Rows the backend rejects as
// duplicates are reported in the InsertReport; any fatally-classified row
// fails the whole call with a non-nil error.
//
// ExistingRows reads back every stored row for the given partition dates
// (YYYY-MM-DD), for fingerprint cross-referencing. Callers re-normalize and
// re-fingerprint what it returns.
//
// CountRows is the read-side visibility check; observability only.
//
// Checkpoint and UpdateCheckpoint manage the per-date last-successful-fetch
// watermark. Absence of a checkpoint is not an error. The backing table is
// created on first use.
type Client interface {
	InsertRows(ctx context.Context, rows []models.Record) (InsertReport, error)
	ExistingRows(ctx context.Context, partitionDates []string) ([]models.Record, error)
	CountRows(ctx context.Context) (int64, error)
	Checkpoint(ctx context.Context, date string) (time.Time, bool, error)
	UpdateCheckpoint(ctx context.Context, date string, ts time.Time) error
}
