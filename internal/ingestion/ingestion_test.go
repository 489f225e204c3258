package ingestion

import (
	"context"
	"time"

	"order-ingest/internal/fetch"
	"order-ingest/internal/models"
	"order-ingest/internal/warehouse"
	"order-ingest/pkg/fingerprint"
)

// fakeWarehouse is a stateful in-memory warehouse.Client. It stores the rows
// it accepts and can replay them through ExistingRows, so dedup and write
// behavior can be exercised end to end without a backend.
type fakeWarehouse struct {
	rows         []models.Record
	fingerprints map[uint64]struct{}

	// dedupeOnInsert makes InsertRows reject already-stored fingerprints as
	// duplicates, mirroring a backend with row-level idempotency. When false
	// every submitted row is appended, duplicates included.
	dedupeOnInsert bool

	insertCalls      int
	failInsertAtCall int
	insertErr        error

	crossRefErr error
	countErr    error

	checkpoints   map[string]time.Time
	checkpointErr error
	updateErr     error
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		fingerprints:   make(map[uint64]struct{}),
		dedupeOnInsert: true,
		checkpoints:    make(map[string]time.Time),
	}
}

// seed stores normalized records directly, bypassing InsertRows bookkeeping.
func (f *fakeWarehouse) seed(records ...models.Record) {
	for _, rec := range records {
		f.rows = append(f.rows, rec)
		f.fingerprints[fingerprint.Sum64(rec)] = struct{}{}
	}
}

func (f *fakeWarehouse) InsertRows(_ context.Context, rows []models.Record) (warehouse.InsertReport, error) {
	f.insertCalls++
	if f.failInsertAtCall != 0 && f.insertCalls == f.failInsertAtCall {
		return warehouse.InsertReport{}, f.insertErr
	}

	var report warehouse.InsertReport
	for _, rec := range rows {
		fp := fingerprint.Sum64(rec)
		if f.dedupeOnInsert {
			if _, ok := f.fingerprints[fp]; ok {
				report.Duplicates++
				continue
			}
		}
		f.fingerprints[fp] = struct{}{}
		f.rows = append(f.rows, rec)
		report.Inserted++
	}
	return report, nil
}

func (f *fakeWarehouse) ExistingRows(_ context.Context, partitionDates []string) ([]models.Record, error) {
	if f.crossRefErr != nil {
		return nil, f.crossRefErr
	}

	dates := make(map[string]struct{}, len(partitionDates))
	for _, d := range partitionDates {
		dates[d] = struct{}{}
	}

	var matched []models.Record
	for _, rec := range f.rows {
		if _, ok := dates[rec.String(models.FieldOrderDeliveryDate)]; ok {
			matched = append(matched, rec.Clone())
		}
	}
	return matched, nil
}

func (f *fakeWarehouse) CountRows(_ context.Context) (int64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.rows)), nil
}

func (f *fakeWarehouse) Checkpoint(_ context.Context, date string) (time.Time, bool, error) {
	if f.checkpointErr != nil {
		return time.Time{}, false, f.checkpointErr
	}
	ts, ok := f.checkpoints[date]
	return ts, ok, nil
}

func (f *fakeWarehouse) UpdateCheckpoint(_ context.Context, date string, ts time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.checkpoints[date] = ts
	return nil
}

// fakeFetcher returns a fixed payload and records the window it was asked for.
type fakeFetcher struct {
	records   []models.Record
	err       error
	gotWindow fetch.Window
}

func (f *fakeFetcher) Fetch(_ context.Context, window fetch.Window) ([]models.Record, error) {
	f.gotWindow = window
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Record, len(f.records))
	for i, rec := range f.records {
		out[i] = rec.Clone()
	}
	return out, nil
}
