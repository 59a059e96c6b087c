package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	uniqueViolation = "23505"
	numericOverflow = "22003"
)

type scanner interface {
	Scan(dest ...any) error
}

// IsDuplicateKey reports whether err is a Postgres unique constraint violation.
func IsDuplicateKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// IsNumericOverflow reports whether a value did not fit its NUMERIC column.
func IsNumericOverflow(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == numericOverflow
}
