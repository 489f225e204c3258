package warehouse

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"

	"order-ingest/internal/models"
	"order-ingest/pkg/fingerprint"
)

// BigQueryConfig identifies the target dataset. CheckpointTable is the
// unqualified table name inside the same dataset.
type BigQueryConfig struct {
	ProjectID       string
	Dataset         string
	Table           string
	CheckpointTable string
	Location        string
	// MaxCrossRefBytes caps the bytes billed by the cross-reference read.
	MaxCrossRefBytes int64
}

// BigQueryClient implements Client against a partitioned BigQuery table
// using the streaming insert path.
type BigQueryClient struct {
	bq  *bigquery.Client
	cfg BigQueryConfig
}

func NewBigQueryClient(ctx context.Context, cfg BigQueryConfig) (*BigQueryClient, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("error creating BigQuery client: %w", err)
	}
	client.Location = cfg.Location
	return &BigQueryClient{bq: client, cfg: cfg}, nil
}

func (c *BigQueryClient) Close() error {
	return c.bq.Close()
}

func (c *BigQueryClient) tableID() string {
	return fmt.Sprintf("%s.%s.%s", c.cfg.ProjectID, c.cfg.Dataset, c.cfg.Table)
}

func (c *BigQueryClient) checkpointTableID() string {
	return fmt.Sprintf("%s.%s.%s", c.cfg.ProjectID, c.cfg.Dataset, c.cfg.CheckpointTable)
}

// recordSaver adapts a normalized record to the streaming inserter. The
// fingerprint doubles as the best-effort insert ID.
type recordSaver struct {
	rec models.Record
}

func (s recordSaver) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(s.rec))
	for k, v := range s.rec {
		row[k] = v
	}
	return row, fingerprint.Sum(s.rec), nil
}

func (c *BigQueryClient) InsertRows(ctx context.Context, rows []models.Record) (InsertReport, error) {
	savers := make([]recordSaver, len(rows))
	for i, rec := range rows {
		savers[i] = recordSaver{rec: rec}
	}

	err := c.bq.Dataset(c.cfg.Dataset).Table(c.cfg.Table).Inserter().Put(ctx, savers)
	if err == nil {
		return InsertReport{Inserted: len(rows)}, nil
	}

	var multi bigquery.PutMultiError
	if !errors.As(err, &multi) {
		return InsertReport{}, fmt.Errorf("error streaming rows to %s: %w", c.tableID(), err)
	}

	duplicates := 0
	for _, rowErr := range multi {
		if classifyRowError(rowErr) == ClassFatal {
			return InsertReport{}, fmt.Errorf("row %d rejected by %s: %w", rowErr.RowIndex, c.tableID(), rowErr.Errors)
		}
		duplicates++
	}

	return InsertReport{Inserted: len(rows) - duplicates, Duplicates: duplicates}, nil
}

// classifyRowError inspects the structured error reasons BigQuery attaches
// to a rejected row. Only rows every one of whose reasons is a duplicate
// rejection are tolerated.
func classifyRowError(rowErr bigquery.RowInsertionError) ErrorClass {
	if len(rowErr.Errors) == 0 {
		return ClassFatal
	}
	for _, e := range rowErr.Errors {
		var bqErr *bigquery.Error
		if !errors.As(e, &bqErr) {
			return ClassFatal
		}
		if bqErr.Reason != "duplicate" {
			return ClassFatal
		}
	}
	return ClassDuplicate
}

func (c *BigQueryClient) ExistingRows(ctx context.Context, partitionDates []string) ([]models.Record, error) {
	// The partition column is DATE and parameter types are not coerced, so
	// the dates must be bound as ARRAY<DATE>, never ARRAY<STRING>.
	dates, err := civilDates(partitionDates)
	if err != nil {
		return nil, err
	}

	q := c.bq.Query(fmt.Sprintf(
		"SELECT * FROM `%s` WHERE %s IN UNNEST(@dates)",
		c.tableID(), models.FieldOrderDeliveryDate,
	))
	q.Parameters = []bigquery.QueryParameter{{Name: "dates", Value: dates}}
	q.MaxBytesBilled = c.cfg.MaxCrossRefBytes

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("error querying existing rows for dates %v: %w", partitionDates, err)
	}

	var rows []models.Record
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading existing row: %w", err)
		}

		rec := make(models.Record, len(row))
		for k, v := range row {
			rec[k] = plainValue(v)
		}
		rows = append(rows, rec)
	}

	return rows, nil
}

// civilDates parses partition dates into the typed form the query engine
// matches against a DATE column.
func civilDates(partitionDates []string) ([]civil.Date, error) {
	dates := make([]civil.Date, 0, len(partitionDates))
	for _, d := range partitionDates {
		date, err := civil.ParseDate(d)
		if err != nil {
			return nil, fmt.Errorf("invalid partition date '%s': %w", d, err)
		}
		dates = append(dates, date)
	}
	return dates, nil
}

// plainValue maps BigQuery scalar types back to the shapes the upstream API
// delivers, so re-normalizing and re-fingerprinting a stored row matches a
// freshly fetched one.
func plainValue(v bigquery.Value) any {
	switch val := v.(type) {
	case civil.Date:
		return val.String()
	case civil.DateTime:
		return val.Date.String() + "T" + val.Time.String()
	case time.Time:
		return val.Format(time.RFC3339)
	case []bigquery.Value:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}

func (c *BigQueryClient) CountRows(ctx context.Context) (int64, error) {
	q := c.bq.Query(fmt.Sprintf("SELECT COUNT(*) FROM `%s`", c.tableID()))

	it, err := q.Read(ctx)
	if err != nil {
		return 0, fmt.Errorf("error counting rows in %s: %w", c.tableID(), err)
	}

	var row []bigquery.Value
	if err := it.Next(&row); err != nil {
		return 0, fmt.Errorf("error reading row count: %w", err)
	}

	count, ok := row[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected row count type %T", row[0])
	}
	return count, nil
}

func (c *BigQueryClient) Checkpoint(ctx context.Context, date string) (time.Time, bool, error) {
	q := c.bq.Query(fmt.Sprintf(`
	SELECT last_fetch_timestamp
	FROM `+"`%s`"+`
	WHERE fetch_date = DATE(@date)
	ORDER BY last_fetch_timestamp DESC
	LIMIT 1`, c.checkpointTableID()))
	q.Parameters = []bigquery.QueryParameter{{Name: "date", Value: date}}

	it, err := q.Read(ctx)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("error querying checkpoint for %s: %w", date, err)
	}

	var row []bigquery.Value
	err = it.Next(&row)
	if err == iterator.Done {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("error reading checkpoint row: %w", err)
	}

	ts, ok := row[0].(time.Time)
	if !ok {
		return time.Time{}, false, fmt.Errorf("unexpected checkpoint type %T", row[0])
	}
	return ts, true, nil
}

func (c *BigQueryClient) UpdateCheckpoint(ctx context.Context, date string, ts time.Time) error {
	create := c.bq.Query(fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS `+"`%s`"+` (
		fetch_date DATE,
		last_fetch_timestamp TIMESTAMP,
		updated_at TIMESTAMP
	)`, c.checkpointTableID()))
	if _, err := create.Read(ctx); err != nil {
		return fmt.Errorf("error ensuring checkpoint table: %w", err)
	}

	merge := c.bq.Query(fmt.Sprintf(`
	MERGE `+"`%s`"+` AS target
	USING (SELECT DATE(@date) AS fetch_date, @ts AS last_fetch_timestamp) AS source
	ON target.fetch_date = source.fetch_date
	WHEN MATCHED THEN
		UPDATE SET last_fetch_timestamp = source.last_fetch_timestamp, updated_at = CURRENT_TIMESTAMP()
	WHEN NOT MATCHED THEN
		INSERT (fetch_date, last_fetch_timestamp, updated_at)
		VALUES (source.fetch_date, source.last_fetch_timestamp, CURRENT_TIMESTAMP())`,
		c.checkpointTableID()))
	merge.Parameters = []bigquery.QueryParameter{
		{Name: "date", Value: date},
		{Name: "ts", Value: ts},
	}

	if _, err := merge.Read(ctx); err != nil {
		return fmt.Errorf("error upserting checkpoint for %s: %w", date, err)
	}

	log.Printf("Checkpoint for %s advanced to %s", date, ts.Format(time.RFC3339))
	return nil
}
