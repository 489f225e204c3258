package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"order-ingest/internal/fetch"
	"order-ingest/internal/models"
)

// Runner is the orchestrator the trigger endpoint drives.
type Runner interface {
	Run(ctx context.Context, params models.Params) (*models.IngestionResult, error)
}

// IngestService exposes the ingestion pipeline over HTTP.
type IngestService struct {
	runner Runner
}

func NewIngestService(runner Runner) *IngestService {
	return &IngestService{runner: runner}
}

// Index returns the static capability descriptor.
func (h *IngestService) Index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Order Items Ingest (memory-safe, optimized) is running",
		"endpoints": []string{"/fetch?date=YYYY-MM or YYYY-MM-DD"},
	})
}

// Fetch triggers one synchronous ingestion invocation.
func (h *IngestService) Fetch(w http.ResponseWriter, r *http.Request) {
	params, err := parseParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	result, err := h.runner.Run(r.Context(), params)
	if err != nil {
		// Upstream failures keep their own status code and body so the
		// caller sees exactly what the order API said.
		var statusErr *fetch.StatusError
		if errors.As(err, &statusErr) {
			writeJSON(w, statusErr.Code, map[string]any{
				"error": statusErr.Error(),
				"body":  statusErr.Body,
			})
			return
		}

		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseParams(r *http.Request) (models.Params, error) {
	q := r.URL.Query()

	params := models.Params{
		Date: q.Get("date"),
		Mode: q.Get("mode"),
	}

	switch params.Mode {
	case "", models.ModeMorning, models.ModeIncremental:
	default:
		return models.Params{}, fmt.Errorf("invalid mode '%s': use 'morning' or 'incremental'", params.Mode)
	}

	var err error
	if params.DaysBack, err = intParam(q.Get("days_back"), "days_back"); err != nil {
		return models.Params{}, err
	}
	if params.StartHour, err = optionalIntParam(q.Get("start_hour"), "start_hour"); err != nil {
		return models.Params{}, err
	}
	if params.EndHour, err = optionalIntParam(q.Get("end_hour"), "end_hour"); err != nil {
		return models.Params{}, err
	}

	return params, nil
}

func intParam(value, name string) (int, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s '%s': expected an integer", name, value)
	}
	return n, nil
}

// optionalIntParam keeps absence distinct from an explicit zero.
func optionalIntParam(value, name string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := intParam(value, name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}
