package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when an operation runs against a closed store.
	ErrClosed = errors.New("store is closed")
)

// QueryNotAllowedError reports an ad-hoc query rejected by the read-only
// gate, carrying the keyword that tripped it.
type QueryNotAllowedError struct {
	Keyword string
}

func (e *QueryNotAllowedError) Error() string {
	if e.Keyword != "" {
		return fmt.Sprintf("%s statements are blocked", e.Keyword)
	}
	return "only SELECT/WITH queries are allowed"
}

// wrapDBError converts driver errors into package-level errors with the
// operation name attached.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
