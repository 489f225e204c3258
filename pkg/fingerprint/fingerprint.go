// Package fingerprint derives the duplicate-detection identity of an order
// item. The digest covers only the business key: the fields that define the
// real-world item, never timestamps or fields the warehouse derives later.
// Two fetches of the same item must always produce the same digest no matter
// when they ran.
package fingerprint

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"order-ingest/internal/models"
)

// BusinessKeyFields is the fixed field subset hashed into the fingerprint.
// order_code is deliberately absent: it is derived from order_id after the
// fact, and including it would split the identity of backfilled rows.
var BusinessKeyFields = []string{
	models.FieldOrderID,
	models.FieldProductCode,
	models.FieldUserID,
	models.FieldCity,
	models.FieldDistrict,
	models.FieldNeighborhood,
	models.FieldDeliveryLocationType,
	models.FieldVendorID,
	models.FieldRiderID,
	models.FieldAdditionalProducts,
	models.FieldProductName,
	models.FieldOrderCreatedDateTR,
}

// Canonical serializes the business key of a normalized record into a
// deterministic byte form: present fields only, sorted-key JSON encoding.
// Field insertion order and extraneous fields never change the output.
func Canonical(rec models.Record) []byte {
	key := make(map[string]any, len(BusinessKeyFields))
	for _, field := range BusinessKeyFields {
		if v, ok := rec[field]; ok {
			key[field] = v
		}
	}

	buf, err := json.Marshal(key)
	if err != nil {
		// Unmarshalable values cannot come out of a JSON upstream; fmt of a
		// map is key-sorted and keeps the digest deterministic regardless.
		buf = []byte(fmt.Sprintf("%v", key))
	}
	return buf
}

// Sum returns the fixed-length hex digest of a normalized record's
// business key.
func Sum(rec models.Record) string {
	return fmt.Sprintf("%016x", Sum64(rec))
}

// Sum64 is the raw 64-bit digest, for callers that keep fingerprints in
// memory-tight sets.
func Sum64(rec models.Record) uint64 {
	return xxhash.Sum64(Canonical(rec))
}
