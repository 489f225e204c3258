package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the ingestion counters exposed on /metrics.
type Registry struct {
	reg *prometheus.Registry

	Runs                 prometheus.Counter
	RunFailures          prometheus.Counter
	RowsFetched          prometheus.Counter
	RowsInserted         prometheus.Counter
	RowsSkippedDuplicate prometheus.Counter
	CrossRefFailures     prometheus.Counter
	CheckpointFailures   prometheus.Counter
	RunDurationSec       prometheus.Histogram
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	runs := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_runs_total"})
	runFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_run_failures_total"})
	rowsFetched := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rows_fetched_total"})
	rowsInserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rows_inserted_total"})
	rowsSkipped := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_rows_skipped_duplicate_total"})
	crossRefFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_crossref_failures_total"})
	checkpointFailures := prometheus.NewCounter(prometheus.CounterOpts{Name: "ingest_checkpoint_failures_total"})
	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingest_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})

	r.MustRegister(runs, runFailures, rowsFetched, rowsInserted, rowsSkipped,
		crossRefFailures, checkpointFailures, runDuration)

	return &Registry{
		reg:                  r,
		Runs:                 runs,
		RunFailures:          runFailures,
		RowsFetched:          rowsFetched,
		RowsInserted:         rowsInserted,
		RowsSkippedDuplicate: rowsSkipped,
		CrossRefFailures:     crossRefFailures,
		CheckpointFailures:   checkpointFailures,
		RunDurationSec:       runDuration,
	}
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
