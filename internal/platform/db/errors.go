package db

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hypersenta/serenity/internal/platform/apperr"
)

// UniqueViolationConstraint reports the constraint name when err is a
// Postgres unique violation.
func UniqueViolationConstraint(err error) (string, bool) {
	return constraintFor(err, pgerrcode.UniqueViolation)
}

// ForeignKeyViolationConstraint reports the constraint name when err is a
// Postgres foreign key violation.
func ForeignKeyViolationConstraint(err error) (string, bool) {
	return constraintFor(err, pgerrcode.ForeignKeyViolation)
}

// CheckViolationConstraint reports the constraint name when err is a
// Postgres check violation.
func CheckViolationConstraint(err error) (string, bool) {
	return constraintFor(err, pgerrcode.CheckViolation)
}

// FieldRule names the request field a foreign key or check constraint guards.
type FieldRule struct {
	Field   string
	Message string
}

// TranslateIntegrity maps a foreign key or check violation on one of the
// constraints in rules onto a ValidationError. Other errors, including
// violations of unlisted constraints, are returned unchanged.
func TranslateIntegrity(err error, rules map[string]FieldRule) error {
	name, ok := ForeignKeyViolationConstraint(err)
	if !ok {
		name, ok = CheckViolationConstraint(err)
	}
	if !ok {
		return err
	}
	rule, known := rules[name]
	if !known {
		return err
	}
	return apperr.Validation(rule.Field, "%s", rule.Message)
}

func constraintFor(err error, code string) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != code {
		return "", false
	}
	return pgErr.ConstraintName, true
}
