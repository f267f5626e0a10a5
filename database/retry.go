package database

import (
	"math/rand/v2"
	"strings"
	"time"
)

// busyMarkers are the driver messages that mean another writer holds the lock.
var busyMarkers = []string{
	"database is locked",
	"database is busy",
	"SQLITE_BUSY",
	"SQL statements in progress",
}

// calculateRetryDelay doubles baseDelay per attempt, caps it at maxDelay and
// adds up to 20% jitter so concurrent writers spread out.
func calculateRetryDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	delay := maxDelay
	if shift := attempt - 1; shift < 32 {
		if d := baseDelay << max(shift, 0); d > 0 && d < maxDelay {
			delay = d
		}
	}
	return delay + time.Duration(rand.Int64N(int64(delay)/5+1))
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range busyMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
