package models

import (
	"fmt"
)

// Well-known upstream field names. Everything else rides along in the record
// untouched; the upstream adds and removes fields without notice.
const (
	FieldOrderCreatedDate       = "order_created_date"
	FieldOrderCreatedDateTR     = "order_created_date_tr"
	FieldOrderDeliveryDate      = "order_delivery_date"
	FieldRequestedDeliveryDate  = "requested_delivery_date"
	FieldAdditionalProducts     = "additional_products"
	FieldOrderID                = "order_id"
	FieldProductCode            = "product_code_1"
	FieldUserID                 = "user_id"
	FieldCity                   = "city"
	FieldDistrict               = "district"
	FieldNeighborhood           = "neighborhood"
	FieldDeliveryLocationType   = "delivery_location_type"
	FieldVendorID               = "vendor_id"
	FieldRiderID                = "rider_id"
	FieldProductName            = "product_name"
)

// Record is a schema-agnostic order item exactly as the upstream returns it
// (raw) or after normalization. The upstream has no fixed schema beyond the
// well-known fields above, so a map survives schema drift without rebuilds.
type Record map[string]any

// String returns the value under key rendered as text, or "" when absent.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Has reports whether key is present, even with a nil value.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Clone returns a shallow copy. List values are shared; callers that mutate
// them must copy first.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Ingestion modes. An invocation resolves to exactly one of these.
const (
	ModeMorning     = "morning"
	ModeIncremental = "incremental"
)

// Params are the resolved inputs of one orchestrator invocation. They are
// fixed before the fetch and never change mid-flight.
type Params struct {
	// Date is "YYYY-MM" or "YYYY-MM-DD". Empty means derive from mode.
	Date string
	// DaysBack shifts the derived date into the past. Zero means unset.
	DaysBack int
	Mode     string
	// Morning-mode window, [StartHour, EndHour) on today's date. Each bound
	// defaults independently when nil, so an explicit zero stays a zero.
	StartHour *int
	EndHour   *int
}

// Write-phase statuses, reported verbatim to the caller.
const (
	StatusEmpty         = "empty"
	StatusAllDuplicates = "all_duplicates"
	StatusAllExisting   = "all_existing"
	StatusSuccess       = "success"
)

// WriteSummary describes what the warehouse accepted for one invocation.
type WriteSummary struct {
	InsertedRows        int    `json:"inserted_rows"`
	SkippedDuplicates   int    `json:"skipped_duplicates"`
	Status              string `json:"status"`
	VerifiedVisibleRows int64  `json:"verified_visible_rows"`
}

// IngestionResult is the response body of a successful /fetch invocation.
// The warehouse summary keeps its historical wire name.
type IngestionResult struct {
	Status    string       `json:"status"`
	Mode      string       `json:"mode"`
	Date      string       `json:"date"`
	RowCount  int          `json:"row_count"`
	Warehouse WriteSummary `json:"bq_status"`
	Note      string       `json:"note,omitempty"`
	LastFetch string       `json:"last_fetch,omitempty"`
}
