package source

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes for source failures.
const (
	ErrorClassNotFound   = "not_found"
	ErrorClassAuth       = "auth"
	ErrorClassConnection = "connection"
	ErrorClassTimeout    = "timeout"
	ErrorClassSchema     = "schema"
	ErrorClassUnknown    = "unknown"
)

// StatusError is a non-success HTTP response from a trace backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return "unexpected status " + strconv.Itoa(e.StatusCode)
	}
	return "unexpected status " + strconv.Itoa(e.StatusCode) + ": " + e.Body
}

// ClassifyError maps a source error onto a small set of classes so the CLI
// and logs can report the cause without driver-specific types.
func ClassifyError(err error) string {
	if err == nil {
		return ErrorClassUnknown
	}
	if errors.Is(err, ErrProjectNotFound) {
		return ErrorClassNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorClassTimeout
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401, 403:
			return ErrorClassAuth
		case 404:
			return ErrorClassNotFound
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "42P01" || pgErr.Code == "42703":
			return ErrorClassSchema
		case pgErr.Code == "28P01" || pgErr.Code == "28000":
			return ErrorClassAuth
		case strings.HasPrefix(pgErr.Code, "08"):
			return ErrorClassConnection
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorClassConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return ErrorClassConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"):
		return ErrorClassConnection
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrorClassTimeout
	case strings.Contains(msg, "no such table"), strings.Contains(msg, "does not exist"):
		return ErrorClassSchema
	}
	return ErrorClassUnknown
}
