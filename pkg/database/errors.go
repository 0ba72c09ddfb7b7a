package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/elis/elis-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Check constraint violation (23514)
	case "23514":
		return errors.BadRequest("data validation failed: " + pqErr.Constraint)

	default:
		return nil
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "username"):
		return "username already registered"
	case strings.Contains(constraint, "email"):
		return "email already registered"
	case strings.Contains(constraint, "images_document_id_sequence"):
		return "image already recorded for this position"
	default:
		return "a record with these values already exists"
	}
}
