// Package ratelimit enforces the global per-minute and per-hour send
// ceilings. The counters live in the same Postgres instance as the job
// queue: reservations serialize on a singleton row lock and count send
// events in trailing windows, so the limit holds across worker restarts and
// multiple hosts.
package ratelimit

import (
	"database/sql"
	"time"
)

// Limiter hands out send permits. A ceiling of 0 means unlimited for that
// window (local and dry-run setups).
type Limiter struct {
	DB        *sql.DB
	PerMinute int
	PerHour   int
}

// Reserve grants up to n sends against both trailing windows and records the
// granted sends as events inside the same transaction. Returns 0 when both
// windows are exhausted; the caller backs off, it is not an error.
func (l *Limiter) Reserve(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	if l.PerMinute <= 0 && l.PerHour <= 0 {
		return n, nil
	}

	tx, err := l.DB.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// Serialize concurrent reservations across all workers.
	if _, err := tx.Exec(`SELECT id FROM rate_limiter WHERE id = 1 FOR UPDATE`); err != nil {
		return 0, err
	}

	granted := n
	if l.PerMinute > 0 {
		used, err := countSince(tx, time.Minute)
		if err != nil {
			return 0, err
		}
		granted = min(granted, l.PerMinute-used)
	}
	if l.PerHour > 0 {
		used, err := countSince(tx, time.Hour)
		if err != nil {
			return 0, err
		}
		granted = min(granted, l.PerHour-used)
	}
	if granted <= 0 {
		return 0, tx.Commit()
	}

	if _, err := tx.Exec(
		`INSERT INTO send_events (occurred_at) SELECT NOW() FROM generate_series(1, $1)`,
		granted,
	); err != nil {
		return 0, err
	}

	// Events older than the widest window no longer affect any count.
	if _, err := tx.Exec(
		`DELETE FROM send_events WHERE occurred_at < NOW() - INTERVAL '1 hour'`,
	); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return granted, nil
}

func countSince(tx *sql.Tx, window time.Duration) (int, error) {
	var used int
	err := tx.QueryRow(
		`SELECT COUNT(*) FROM send_events WHERE occurred_at > NOW() - make_interval(secs => $1)`,
		window.Seconds(),
	).Scan(&used)
	return used, err
}
