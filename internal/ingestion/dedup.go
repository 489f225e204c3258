package ingestion

import (
	"context"
	"fmt"
	"log"
	"sort"

	"order-ingest/internal/metrics"
	"order-ingest/internal/models"
	"order-ingest/internal/normalize"
	"order-ingest/internal/warehouse"
	"order-ingest/pkg/fingerprint"
)

// DedupEngine filters a normalized batch down to rows the warehouse has not
// seen: first within the batch itself, then against the fingerprints of rows
// already persisted for the affected partition dates.
type DedupEngine struct {
	warehouse warehouse.Client
	met       *metrics.Registry

	// ProceedOnCheckFailure keeps ingestion available when the
	// cross-reference read fails: the engine logs and behaves as if no
	// existing fingerprints were found, accepting the duplicate risk.
	// When false, a failed read aborts the invocation.
	ProceedOnCheckFailure bool
}

func NewDedupEngine(wh warehouse.Client, met *metrics.Registry, proceedOnCheckFailure bool) *DedupEngine {
	return &DedupEngine{
		warehouse:             wh,
		met:                   met,
		ProceedOnCheckFailure: proceedOnCheckFailure,
	}
}

// DedupBatch keeps the first record of each fingerprint within the batch and
// reports how many later occurrences were discarded.
func (e *DedupEngine) DedupBatch(records []models.Record) ([]models.Record, int) {
	seen := make(map[uint64]struct{}, len(records))
	unique := make([]models.Record, 0, len(records))
	skipped := 0

	for _, rec := range records {
		fp := fingerprint.Sum64(rec)
		if _, ok := seen[fp]; ok {
			skipped++
			continue
		}
		seen[fp] = struct{}{}
		unique = append(unique, rec)
	}

	return unique, skipped
}

// CrossReference drops every record whose fingerprint already exists in the
// warehouse for the batch's partition dates. Stored rows are re-normalized
// and re-fingerprinted with the same functions applied to fresh records, so
// the comparison stays symmetric.
func (e *DedupEngine) CrossReference(ctx context.Context, records []models.Record) ([]models.Record, int, error) {
	dates := partitionDates(records)
	if len(dates) == 0 {
		return records, 0, nil
	}

	existing, err := e.warehouse.ExistingRows(ctx, dates)
	if err != nil {
		e.met.CrossRefFailures.Inc()
		if !e.ProceedOnCheckFailure {
			return nil, 0, fmt.Errorf("duplicate check failed for dates %v: %w", dates, err)
		}
		log.Printf("WARN: Could not check existing data for dates %v: %v. Proceeding without duplicate check - duplicates may be inserted.", dates, err)
		existing = nil
	}

	existingFingerprints := make(map[uint64]struct{}, len(existing))
	for _, row := range existing {
		existingFingerprints[fingerprint.Sum64(normalize.Record(row))] = struct{}{}
	}

	survivors := make([]models.Record, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if _, ok := existingFingerprints[fingerprint.Sum64(rec)]; ok {
			skipped++
			continue
		}
		survivors = append(survivors, rec)
	}

	if skipped > 0 {
		log.Printf("Duplicate prevention: %d rows already present in the warehouse for dates %v", skipped, dates)
	}

	return survivors, skipped, nil
}

// partitionDates collects the distinct warehouse partition dates the batch
// would land in, sorted for stable logging.
func partitionDates(records []models.Record) []string {
	set := make(map[string]struct{})
	for _, rec := range records {
		if d := rec.String(models.FieldOrderDeliveryDate); d != "" {
			set[d] = struct{}{}
		}
	}

	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
