package server

import (
	"net/http"

	"order-ingest/internal/memguard"
	"order-ingest/internal/metrics"
)

// SetupRoutes wires the trigger endpoints. Every inbound request first
// passes the memory guard so a large ingestion fails fast instead of
// exhausting the host.
func SetupRoutes(ingestHandler *IngestService, met *metrics.Registry, memoryLimit uint64) *http.ServeMux {
	mux := http.NewServeMux()

	guard := withMemoryGuard(memoryLimit)
	mux.HandleFunc("/", guard(ingestHandler.Index))
	mux.HandleFunc("/fetch", guard(ingestHandler.Fetch))
	mux.Handle("/metrics", met.Handler())

	return mux
}

func withMemoryGuard(limit uint64) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			memguard.Apply(limit)
			next(w, r)
		}
	}
}
