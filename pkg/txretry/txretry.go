// Package txretry retries short transactions that fail with transient
// store contention. Business-rule failures are definitive and must
// never be passed through it as retryable.
package txretry

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// MaxAttempts bounds how many times a contended transaction is tried
	MaxAttempts = 3

	// backoffStep scales the sleep between attempts linearly:
	// 100ms after the first failure, 200ms after the second, and so on.
	backoffStep = 100 * time.Millisecond
)

// transientMarkers identify deadlock/serialization failures across the
// supported stores: MySQL deadlock (1213) and lock wait timeout (1205),
// SQLSTATE 40001 serialization failures, and sqlite writer contention.
var transientMarkers = []string{
	"deadlock",
	"error 1213",
	"error 1205",
	"40001",
	"database is locked",
	"database table is locked",
}

// IsTransient reports whether err is a store contention failure that
// is expected to resolve on retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Do runs fn up to MaxAttempts times, sleeping with linearly increasing
// backoff between attempts. Only transient contention errors are
// retried; any other error is returned immediately. The attempt count
// of the successful (or final) call is returned for observability.
func Do(logger zerolog.Logger, fn func() error) (int, error) {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return attempt, nil
		}
		if !IsTransient(err) {
			return attempt, err
		}

		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("transient contention detected, retrying")

		if attempt < MaxAttempts {
			time.Sleep(backoffStep * time.Duration(attempt))
		}
	}
	return MaxAttempts, err
}
