package repos

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsUniqueViolation reports whether err is a unique-constraint conflict.
// The dedup race on assets.content_hash is resolved by the database, so
// the ingestion path classifies the loser's insert error with this.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite (used by the test suite) reports the constraint in the message.
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
