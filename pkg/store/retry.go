// retry.go retries writes that fail on transient SQLite contention.
//
// The CLI and a running `airlock serve` can share one database file. WAL mode
// plus busy_timeout absorbs most lock waits, but SQLITE_BUSY, SQLITE_LOCKED
// and IOERR_SHORT_READ still surface now and then and go away on retry.
package store

import (
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// retryConfig controls retry behavior for transient SQLite errors.
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

var defaultRetryConfig = retryConfig{
	maxRetries: 3,
	baseDelay:  50 * time.Millisecond,
	maxDelay:   500 * time.Millisecond,
}

// SQLite result codes that are worth retrying.
const (
	codeBusy           = 5
	codeLocked         = 6
	codeIOErrShortRead = 522
)

// transientReason names the contention behind err, or returns "" when err is
// nil or permanent. Driver errors are classified by code; anything else
// falls back to the message, which is how wrapped or re-formatted errors
// arrive.
func transientReason(err error) string {
	if err == nil {
		return ""
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch code := se.Code(); {
		case code == codeIOErrShortRead:
			return "short read"
		case code&0xff == codeBusy:
			return "busy"
		case code&0xff == codeLocked:
			return "locked"
		}
	}
	msg := err.Error()
	for _, p := range []struct{ pattern, reason string }{
		{"SQLITE_BUSY", "busy"},
		{"(5)", "busy"},
		{"database is locked", "busy"},
		{"SQLITE_LOCKED", "locked"},
		{"(6)", "locked"},
		{"database table is locked", "locked"},
		{"IOERR_SHORT_READ", "short read"},
		{"(522)", "short read"},
	} {
		if strings.Contains(msg, p.pattern) {
			return p.reason
		}
	}
	return ""
}

func isTransientSQLiteErr(err error) bool { return transientReason(err) != "" }

// retryOp runs fn until it succeeds, fails permanently, or cfg.maxRetries
// retries are spent. The last error is returned.
func retryOp(cfg retryConfig, fn func() error) error {
	err := fn()
	for attempt := 0; attempt < cfg.maxRetries; attempt++ {
		reason := transientReason(err)
		if reason == "" {
			return err
		}
		delay := backoffDelay(cfg, attempt)
		slog.Default().Debug("retrying write", "component", "store", "reason", reason, "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)
		err = fn()
	}
	return err
}

// backoffDelay is baseDelay doubled per attempt, capped at maxDelay, plus
// jitter in [0, baseDelay).
func backoffDelay(cfg retryConfig, attempt int) time.Duration {
	delay := min(cfg.baseDelay<<uint(attempt), cfg.maxDelay)
	if cfg.baseDelay <= 0 {
		return delay
	}
	return delay + time.Duration(rand.Int63n(int64(cfg.baseDelay)))
}
