package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/taskmanager/internal/shared"
)

// PostgreSQL SQLSTATE codes that map onto client-facing error classes.
const (
	codeUniqueViolation     = "23505"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeInvalidTextRepr     = "22P02"
	codeStringDataTruncated = "22001"
)

// Classify maps driver errors onto the shared taxonomy. Errors it does not
// recognise are returned unchanged and surface as internal failures.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", shared.ErrDuplicate, pgErr.ConstraintName)
		case codeNotNullViolation, codeCheckViolation, codeStringDataTruncated:
			return &shared.ValidationError{Fields: map[string]string{columnOrConstraint(pgErr): pgErr.Message}}
		case codeInvalidTextRepr:
			// Malformed identifiers never match a row.
			return shared.ErrNotFound
		}
	}
	return err
}

func columnOrConstraint(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	if pgErr.ConstraintName != "" {
		return pgErr.ConstraintName
	}
	return "general"
}
