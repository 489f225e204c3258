package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-ingest/internal/models"
	"order-ingest/pkg/fingerprint"
)

// PostgresClient implements Client against a Postgres order_items table.
// Rows land in a transaction-scoped staging table first and only the
// fingerprint diff is inserted, so a duplicate is a counted non-event
// rather than a per-row error.
type PostgresClient struct {
	pool *pgxpool.Pool
}

func ConnectPostgres(ctx context.Context, connStr string) (*PostgresClient, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	c := &PostgresClient{pool: pool}
	if err := c.createTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

func (c *PostgresClient) Close() {
	c.pool.Close()
}

func (c *PostgresClient) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS order_items (
			id BIGSERIAL NOT NULL,
			fingerprint VARCHAR(16) NOT NULL,
			order_delivery_date DATE,
			payload JSONB NOT NULL,
			ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_fingerprint
			ON order_items (order_delivery_date, fingerprint);`,
		`CREATE TABLE IF NOT EXISTS fetch_metadata (
			fetch_date DATE PRIMARY KEY,
			last_fetch_timestamp TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, query := range queries {
		if _, err := c.pool.Exec(ctx, query); err != nil {
			return pgError("error creating warehouse tables", err)
		}
	}
	return nil
}

// pgError wraps a pgx error, surfacing the SQLSTATE code when present so
// operators can tell a schema problem from a permission problem.
func pgError(msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (SQLSTATE %s): %w", msg, pgErr.Code, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (c *PostgresClient) InsertRows(ctx context.Context, rows []models.Record) (InsertReport, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return InsertReport{}, pgError("error beginning transaction", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `CREATE TEMP TABLE order_items_staging
		(LIKE order_items INCLUDING DEFAULTS) ON COMMIT DROP;`)
	if err != nil {
		return InsertReport{}, pgError("error creating staging table", err)
	}

	copySource := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		rec := rows[i]
		payload, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("error encoding row %d: %w", i, err)
		}
		return []any{fingerprint.Sum(rec), deliveryDate(rec), payload}, nil
	})

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"order_items_staging"},
		[]string{"fingerprint", "order_delivery_date", "payload"},
		copySource,
	)
	if err != nil {
		return InsertReport{}, pgError("error copying rows to staging table", err)
	}

	tag, err := tx.Exec(ctx, `
	INSERT INTO order_items (fingerprint, order_delivery_date, payload)
	SELECT s.fingerprint, s.order_delivery_date, s.payload
	FROM order_items_staging s
	WHERE NOT EXISTS (
		SELECT 1 FROM order_items t
		WHERE t.fingerprint = s.fingerprint
		  AND t.order_delivery_date IS NOT DISTINCT FROM s.order_delivery_date
	);`)
	if err != nil {
		return InsertReport{}, pgError("error inserting diff from staging table", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return InsertReport{}, pgError("error committing insert", err)
	}

	inserted := int(tag.RowsAffected())
	return InsertReport{Inserted: inserted, Duplicates: len(rows) - inserted}, nil
}

// deliveryDate extracts the partition date of a normalized row, or nil when
// the row carries none.
func deliveryDate(rec models.Record) any {
	s := rec.String(models.FieldOrderDeliveryDate)
	if s == "" {
		return nil
	}
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return d
}

func (c *PostgresClient) ExistingRows(ctx context.Context, partitionDates []string) ([]models.Record, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT payload FROM order_items WHERE order_delivery_date = ANY($1::date[])`,
		partitionDates)
	if err != nil {
		return nil, pgError("error querying existing rows", err)
	}
	defer rows.Close()

	var out []models.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, pgError("error scanning existing row", err)
		}
		var rec models.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("error decoding stored row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("error iterating existing rows", err)
	}

	return out, nil
}

func (c *PostgresClient) CountRows(ctx context.Context) (int64, error) {
	var count int64
	err := c.pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&count)
	if err != nil {
		return 0, pgError("error counting rows", err)
	}
	return count, nil
}

func (c *PostgresClient) Checkpoint(ctx context.Context, date string) (time.Time, bool, error) {
	var ts time.Time
	err := c.pool.QueryRow(ctx,
		`SELECT last_fetch_timestamp FROM fetch_metadata WHERE fetch_date = $1::date`,
		date).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, pgError("error reading checkpoint", err)
	}
	return ts, true, nil
}

func (c *PostgresClient) UpdateCheckpoint(ctx context.Context, date string, ts time.Time) error {
	_, err := c.pool.Exec(ctx, `
	INSERT INTO fetch_metadata (fetch_date, last_fetch_timestamp, updated_at)
	VALUES ($1::date, $2, now())
	ON CONFLICT (fetch_date) DO UPDATE
		SET last_fetch_timestamp = EXCLUDED.last_fetch_timestamp,
		    updated_at = now();`,
		date, ts)
	if err != nil {
		return pgError("error upserting checkpoint", err)
	}

	log.Printf("Checkpoint for %s advanced to %s", date, ts.Format(time.RFC3339))
	return nil
}
