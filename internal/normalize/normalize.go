// Package normalize canonicalizes raw upstream order items into the shape
// the warehouse stores. Normalization must be symmetric: rows read back from
// the warehouse pass through the exact same function before fingerprint
// comparison, otherwise fingerprint equality silently breaks.
package normalize

import (
	"fmt"
	"strings"

	"order-ingest/internal/models"
)

// keyFolder maps the Turkish letters the upstream uses in field names to
// their ASCII equivalents. Applied to field names only, never to values.
var keyFolder = strings.NewReplacer(
	"ğ", "g", "ü", "u", "ş", "s", "ı", "i", "ö", "o", "ç", "c",
	"Ğ", "G", "Ü", "U", "Ş", "S", "İ", "I", "Ö", "O", "Ç", "C",
)

// FoldKey folds non-ASCII letters in a field name to ASCII.
func FoldKey(key string) string {
	return keyFolder.Replace(key)
}

// Record canonicalizes one raw record:
//   - field names are ASCII-folded
//   - order_created_date is renamed to the warehouse partition-key column
//     order_created_date_tr and truncated to a calendar date
//   - delivery date fields are truncated to calendar dates
//   - list-valued additional_products is joined into one delimited string
//
// Unknown fields pass through unchanged. Record never fails.
func Record(raw models.Record) models.Record {
	clean := make(models.Record, len(raw))
	for k, v := range raw {
		key := FoldKey(k)

		if key == models.FieldOrderCreatedDate {
			key = models.FieldOrderCreatedDateTR
			v = truncateDate(v)
		}

		if key == models.FieldOrderDeliveryDate || key == models.FieldRequestedDeliveryDate {
			v = truncateDate(v)
		}

		if key == models.FieldAdditionalProducts {
			v = joinList(v)
		}

		clean[key] = v
	}
	return clean
}

// Records canonicalizes a whole batch.
func Records(raw []models.Record) []models.Record {
	out := make([]models.Record, 0, len(raw))
	for _, r := range raw {
		out = append(out, Record(r))
	}
	return out
}

// truncateDate drops the time component of an ISO timestamp string,
// leaving YYYY-MM-DD. Non-string and date-only values pass through.
func truncateDate(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		return s[:i]
	}
	return s
}

// joinList flattens a list value into a single ", "-delimited string.
func joinList(v any) any {
	switch list := v.(type) {
	case []any:
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(list, ", ")
	default:
		return v
	}
}
