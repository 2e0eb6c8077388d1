package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// RetryPolicy bounds the retry loop used for storage contention.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetry absorbs short lock contention on top of the connection busy timeout.
var DefaultRetry = RetryPolicy{Attempts: 3, Delay: 100 * time.Millisecond}

// IsBusy reports whether err is a SQLite lock contention error.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// Retry runs fn and retries it with a fixed delay while it fails with a contention error.
// Any other error is returned immediately.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	attempts := max(p.Attempts, 1)
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil || !IsBusy(err) {
			return err
		}
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay):
		}
	}
	return err
}
