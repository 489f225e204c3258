// Package fetch talks to the upstream order-management API. The API accepts
// exactly one window shape per call, a whole month or a whole day, and cannot
// filter by timestamp, so every fetch returns a superset of what is new.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"order-ingest/internal/models"
)

// StatusError is a non-success upstream response, surfaced verbatim so the
// HTTP caller sees the upstream's own status code and body.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d", e.Code)
}

// Window selects the upstream fetch granularity. Exactly one field is set.
type Window struct {
	YearMonth string
	Day       string
}

// WindowFor maps a resolved date string to its window shape: "YYYY-MM" is a
// month window, anything else a single day.
func WindowFor(date string) Window {
	if len(date) == 7 {
		return Window{YearMonth: date}
	}
	return Window{Day: date}
}

// IsDay reports whether the window covers a single calendar day.
func (w Window) IsDay() bool {
	return w.Day != ""
}

func (w Window) payload() map[string]string {
	if w.YearMonth != "" {
		return map[string]string{"yearMonth": w.YearMonth}
	}
	return map[string]string{"day": w.Day}
}

type Client struct {
	url      string
	user     string
	password string
	http     *http.Client
}

func NewClient(url, user, password string, timeout time.Duration) *Client {
	return &Client{
		url:      url,
		user:     user,
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

// Fetch issues the single upstream call for a window and returns the raw
// record list. A non-200 response is returned as *StatusError and is not
// retried here.
func (c *Client) Fetch(ctx context.Context, window Window) ([]models.Record, error) {
	body, err := json.Marshal(window.payload())
	if err != nil {
		return nil, fmt.Errorf("error encoding fetch payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error building fetch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling upstream API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var records []models.Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("error decoding upstream response: %w", err)
	}

	return records, nil
}
