package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/capitalize-ai/advisor-platform/internal/store"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsDuplicateError checks if err is a unique constraint violation.
func IsDuplicateError(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsForeignKeyError checks if err is a foreign key violation.
func IsForeignKeyError(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsNoRowsError checks if err is a "no rows" error.
func IsNoRowsError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsInvalidTextError checks if err is a malformed literal, e.g. a bad UUID.
func IsInvalidTextError(err error) bool {
	return pgCode(err) == codeInvalidText
}

// translate maps driver errors onto the store sentinels.
func translate(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	switch {
	case IsNoRowsError(err), IsInvalidTextError(err), IsForeignKeyError(err):
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	case IsDuplicateError(err):
		return fmt.Errorf("%s: %w", what, store.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
