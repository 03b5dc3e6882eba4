package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskmanager/internal/shared"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))
	assert.ErrorIs(t, Classify(fmt.Errorf("scan: %w", pgx.ErrNoRows)), shared.ErrNotFound)

	dup := Classify(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "users_email_key"})
	assert.ErrorIs(t, dup, shared.ErrDuplicate)
	assert.Contains(t, dup.Error(), "users_email_key")

	assert.ErrorIs(t, Classify(&pgconn.PgError{Code: codeInvalidTextRepr}), shared.ErrNotFound)

	plain := errors.New("connection reset")
	assert.Same(t, plain, Classify(plain))

	other := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(other), Classify(other))
}

func TestClassifyConstraintViolations(t *testing.T) {
	cases := []struct {
		name  string
		err   *pgconn.PgError
		field string
	}{
		{"not null column", &pgconn.PgError{Code: codeNotNullViolation, ColumnName: "description", Message: "null value"}, "description"},
		{"check constraint", &pgconn.PgError{Code: codeCheckViolation, ConstraintName: "users_age_check", Message: "violates check"}, "users_age_check"},
		{"truncated", &pgconn.PgError{Code: codeStringDataTruncated, Message: "value too long"}, "general"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *shared.ValidationError
			require.ErrorAs(t, Classify(tc.err), &verr)
			assert.Equal(t, tc.err.Message, verr.Fields[tc.field])
		})
	}
}
