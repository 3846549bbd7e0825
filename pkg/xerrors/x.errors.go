package xerrors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
)

// Broadcast pipeline
var (
	ErrUnregisteredSender = errors.New("sender not registered")
	ErrNoRecipients       = errors.New("no active recipients")
	ErrLedgerUnavailable  = errors.New("message store unavailable")
	ErrEmptyMessage       = errors.New("empty message body")
)

// Digest scheduling
var (
	ErrDigestInFlight = errors.New("another digest is already in flight")
)
