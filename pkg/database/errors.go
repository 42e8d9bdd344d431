package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/medflow/labstock/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with a meaningful
// message. Returns nil if the error is not a pq.Error or has no mapping.
func MapPQError(err error) *errors.AppError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return nil
	}

	switch pqErr.Code {
	// check_violation
	case "23514":
		return mapCheckConstraint(pqErr)

	// unique_violation
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// foreign_key_violation
	case "23503":
		return errors.NotFound("referenced record")

	// numeric_value_out_of_range
	case "22003":
		return errors.BadRequest("numeric value out of range")

	// not_null_violation
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Field(col, "must not be empty")

	default:
		return nil
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "remaining_quantity"):
		return errors.Field("remaining_quantity", "must be between 0 and quantity")
	case strings.Contains(constraint, "quantity_positive"):
		return errors.Field("quantity", "must be greater than 0")
	case strings.Contains(constraint, "min_stock"):
		return errors.Field("min_stock", "must not be negative")
	case strings.Contains(constraint, "kind"):
		return errors.Field("kind", "must be one of: equipment, reagent")
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	switch {
	case strings.Contains(pqErr.Constraint, "active_name"):
		return "an active item with this name already exists"
	default:
		return "a record with these values already exists"
	}
}
