// Package repository provides data access layer implementations for the application.
package repository

import (
	"errors"

	"rally/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// translate maps driver level errors onto application errors. Errors that are
// neither a missing row nor a unique violation are returned unchanged.
func translate(err error, resource string, id interface{}) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return models.NewNotFoundError(resource, id)
	case IsUniqueViolation(err):
		return &models.AppError{
			Code:    models.CodeConflict,
			Message: resource + " already exists",
			Err:     err,
		}
	default:
		return err
	}
}

// firstOrNil returns nil, nil when err is a missing row.
func firstOrNil[T any](v *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}
