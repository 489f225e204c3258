package warehouse

import (
	"testing"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
)

func TestCivilDates(t *testing.T) {
	t.Run("should convert partition dates to typed DATE values", func(t *testing.T) {
		dates, err := civilDates([]string{"2025-11-10", "2025-11-12"})

		assert.NoError(t, err)
		assert.Equal(t, []civil.Date{
			{Year: 2025, Month: 11, Day: 10},
			{Year: 2025, Month: 11, Day: 12},
		}, dates)
	})

	t.Run("should reject a value that is not a calendar date", func(t *testing.T) {
		_, err := civilDates([]string{"2025-11-10", "2025-11-10T08:00:00"})

		assert.ErrorContains(t, err, "invalid partition date")
	})

	t.Run("should handle an empty list", func(t *testing.T) {
		dates, err := civilDates(nil)

		assert.NoError(t, err)
		assert.Empty(t, dates)
	})
}

func TestClassifyRowError(t *testing.T) {
	t.Run("should tolerate a row rejected only as a duplicate", func(t *testing.T) {
		rowErr := bigquery.RowInsertionError{
			Errors: bigquery.MultiError{&bigquery.Error{Reason: "duplicate"}},
		}

		assert.Equal(t, ClassDuplicate, classifyRowError(rowErr))
	})

	t.Run("should treat any other reason as fatal", func(t *testing.T) {
		rowErr := bigquery.RowInsertionError{
			Errors: bigquery.MultiError{
				&bigquery.Error{Reason: "duplicate"},
				&bigquery.Error{Reason: "invalid"},
			},
		}

		assert.Equal(t, ClassFatal, classifyRowError(rowErr))
	})

	t.Run("should treat a row without structured reasons as fatal", func(t *testing.T) {
		assert.Equal(t, ClassFatal, classifyRowError(bigquery.RowInsertionError{}))
	})
}
