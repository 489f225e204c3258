package ingestion

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"order-ingest/internal/fetch"
	"order-ingest/internal/metrics"
	"order-ingest/internal/models"
	"order-ingest/internal/normalize"
	"order-ingest/internal/warehouse"
)

// Fetcher issues the single upstream call for a resolved window.
type Fetcher interface {
	Fetch(ctx context.Context, window fetch.Window) ([]models.Record, error)
}

// candidateTimestampFields is the priority order in which the morning filter
// searches a record for a usable timestamp.
var candidateTimestampFields = []string{
	"order_created_date",
	"order_creation_timestamp",
	"created_at",
	"timestamp",
	"date",
}

// Service drives one ingestion invocation end to end: resolve the window,
// fetch, normalize, deduplicate, write, checkpoint. Each invocation is a
// single sequential flow; concurrent invocations are not excluded and rely
// on fingerprint idempotence for correctness.
type Service struct {
	fetcher   Fetcher
	warehouse warehouse.Client
	dedup     *DedupEngine
	writer    *BatchWriter
	met       *metrics.Registry
	loc       *time.Location

	defaultStartHour int
	defaultEndHour   int

	// now is the injected clock; tests pin it for deterministic window
	// boundaries.
	now func() time.Time
}

func NewService(fetcher Fetcher, wh warehouse.Client, dedup *DedupEngine, writer *BatchWriter, met *metrics.Registry, loc *time.Location, defaultStartHour, defaultEndHour int) *Service {
	return &Service{
		fetcher:          fetcher,
		warehouse:        wh,
		dedup:            dedup,
		writer:           writer,
		met:              met,
		loc:              loc,
		defaultStartHour: defaultStartHour,
		defaultEndHour:   defaultEndHour,
		now:              time.Now,
	}
}

// Run executes one invocation. Fetch failures and fatally-classified write
// failures are returned as errors; cross-reference and checkpoint failures
// are logged and never fail the run.
func (s *Service) Run(ctx context.Context, params models.Params) (*models.IngestionResult, error) {
	runID := uuid.NewString()
	start := s.now()
	s.met.Runs.Inc()

	mode, date, startHour, endHour := s.resolve(params)
	window := fetch.WindowFor(date)
	log.Printf("[run %s] Starting %s ingestion for %s", runID, mode, date)

	// The checkpoint cannot narrow the fetch (the upstream has no timestamp
	// filter); it is read back purely so callers see the data watermark.
	var lastFetch time.Time
	var haveLastFetch bool
	if mode == models.ModeIncremental && window.IsDay() {
		var err error
		lastFetch, haveLastFetch, err = s.warehouse.Checkpoint(ctx, date)
		if err != nil {
			s.met.CheckpointFailures.Inc()
			log.Printf("[run %s] WARN: Could not get last fetch timestamp: %v", runID, err)
		}
	}

	raw, err := s.fetcher.Fetch(ctx, window)
	if err != nil {
		s.met.RunFailures.Inc()
		return nil, err
	}
	fetchedCount := len(raw)
	s.met.RowsFetched.Add(float64(fetchedCount))

	if mode == models.ModeMorning {
		raw = s.filterMorningWindow(raw, startHour, endHour)
		log.Printf("[run %s] Morning mode: filtered %d rows to %d rows (%02d:00-%02d:00 window)",
			runID, fetchedCount, len(raw), startHour, endHour)
	}

	records := normalize.Records(raw)

	summary, err := s.ingest(ctx, records)
	if err != nil {
		s.met.RunFailures.Inc()
		return nil, err
	}

	s.met.RowsInserted.Add(float64(summary.InsertedRows))
	s.met.RowsSkippedDuplicate.Add(float64(summary.SkippedDuplicates))

	if mode == models.ModeIncremental && window.IsDay() && summary.Status == models.StatusSuccess {
		if err := s.warehouse.UpdateCheckpoint(ctx, date, s.now().In(s.loc)); err != nil {
			s.met.CheckpointFailures.Inc()
			log.Printf("[run %s] WARN: Could not update last fetch timestamp: %v", runID, err)
		}
	}

	result := &models.IngestionResult{
		Status:    "ok",
		Mode:      mode,
		Date:      date,
		RowCount:  len(records),
		Warehouse: summary,
	}

	switch {
	case mode == models.ModeMorning:
		result.Note = fmt.Sprintf("Morning fetch: Coverage from %02d:00 to %02d:00 today", startHour, endHour)
	case mode == models.ModeIncremental && haveLastFetch:
		result.LastFetch = lastFetch.Format(time.RFC3339)
		result.Note = "Incremental fetch: Only new data since last fetch will be inserted (duplicate prevention)"
	}

	s.met.RunDurationSec.Observe(s.now().Sub(start).Seconds())
	log.Printf("[run %s] Finished: %d rows in window, %d inserted, %d skipped as duplicates",
		runID, len(records), summary.InsertedRows, summary.SkippedDuplicates)
	return result, nil
}

// ingest runs the dedup passes and the chunked write over an already
// normalized batch.
func (s *Service) ingest(ctx context.Context, records []models.Record) (models.WriteSummary, error) {
	if len(records) == 0 {
		return models.WriteSummary{Status: models.StatusEmpty}, nil
	}

	unique, skippedIntra := s.dedup.DedupBatch(records)
	if len(unique) == 0 {
		return models.WriteSummary{
			SkippedDuplicates: skippedIntra,
			Status:            models.StatusAllDuplicates,
		}, nil
	}

	survivors, skippedExisting, err := s.dedup.CrossReference(ctx, unique)
	if err != nil {
		return models.WriteSummary{}, err
	}
	if len(survivors) == 0 {
		return models.WriteSummary{
			SkippedDuplicates: skippedIntra + skippedExisting,
			Status:            models.StatusAllExisting,
		}, nil
	}

	written, err := s.writer.Write(ctx, survivors)
	if err != nil {
		return models.WriteSummary{}, err
	}

	return models.WriteSummary{
		InsertedRows:        written.Inserted,
		SkippedDuplicates:   skippedIntra + skippedExisting + written.Skipped,
		Status:              models.StatusSuccess,
		VerifiedVisibleRows: written.VisibleRows,
	}, nil
}

// resolve fixes mode, date and window parameters for the invocation. They
// never change mid-flight.
func (s *Service) resolve(params models.Params) (mode, date string, startHour, endHour int) {
	mode = params.Mode
	if mode == "" {
		mode = models.ModeIncremental
	}

	startHour = s.defaultStartHour
	if params.StartHour != nil {
		startHour = *params.StartHour
	}
	endHour = s.defaultEndHour
	if params.EndHour != nil {
		endHour = *params.EndHour
	}

	date = params.Date
	if date == "" {
		now := s.now().In(s.loc)
		if params.DaysBack > 0 {
			date = now.AddDate(0, 0, -params.DaysBack).Format("2006-01-02")
		} else {
			date = now.Format("2006-01-02")
		}
	}

	return mode, date, startHour, endHour
}

// filterMorningWindow keeps raw records whose derived timestamp falls within
// [startHour, endHour) on today's date. Records whose timestamp cannot be
// parsed but whose date fields match today are kept; dropping them would
// lose real orders over a formatting change.
func (s *Service) filterMorningWindow(raw []models.Record, startHour, endHour int) []models.Record {
	today := s.now().In(s.loc).Format("2006-01-02")

	kept := make([]models.Record, 0, len(raw))
	for _, row := range raw {
		ts := firstTimestamp(row)
		if ts == "" {
			if rowDate(row) == today {
				kept = append(kept, row)
			}
			continue
		}

		t, err := parseRecordTime(ts, s.loc)
		if err != nil {
			if rowDate(row) == today {
				kept = append(kept, row)
			}
			continue
		}

		t = t.In(s.loc)
		if t.Format("2006-01-02") == today && startHour <= t.Hour() && t.Hour() < endHour {
			kept = append(kept, row)
		}
	}
	return kept
}

// firstTimestamp returns the first non-empty candidate timestamp field.
func firstTimestamp(row models.Record) string {
	for _, field := range candidateTimestampFields {
		if v := row.String(field); v != "" {
			return v
		}
	}
	return ""
}

// rowDate is the date-only fallback used when no timestamp parses.
func rowDate(row models.Record) string {
	v := row.String(models.FieldOrderCreatedDateTR)
	if v == "" {
		v = row.String(models.FieldOrderCreatedDate)
	}
	if i := strings.IndexAny(v, "T "); i >= 0 {
		v = v[:i]
	}
	return v
}

// parseRecordTime parses the timestamp shapes the upstream emits: full ISO
// timestamps with or without a zone, and bare dates taken as midnight in
// the business time zone.
func parseRecordTime(value string, loc *time.Location) (time.Time, error) {
	if strings.Contains(value, "T") {
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t, nil
		}
		return time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}
