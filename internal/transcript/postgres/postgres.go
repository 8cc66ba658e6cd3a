// Package postgres provides a PostgreSQL-backed implementation of
// transcript.Store on a single [pgxpool.Pool]. [New] runs the schema
// migration automatically, so pointing it at an empty database is enough.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akrusz/meditation-pal/internal/transcript"
)

var _ transcript.Store = (*Store)(nil)

const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT         PRIMARY KEY,
    started_at  TIMESTAMPTZ  NOT NULL,
    ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS exchanges (
    id                 BIGSERIAL    PRIMARY KEY,
    session_id         TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    role               TEXT         NOT NULL,
    text               TEXT         NOT NULL,
    timestamp          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    speech_duration_ns BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session_timestamp
    ON exchanges (session_id, timestamp);
`

// Store implements transcript.Store on PostgreSQL. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, verifies the connection, and ensures
// the schema exists. Close must be called when the store is no longer needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() { s.pool.Close() }

// CreateSession implements transcript.Store.
func (s *Store) CreateSession(ctx context.Context, id string, startedAt time.Time) error {
	const q = `INSERT INTO sessions (id, started_at) VALUES ($1, $2)`
	if _, err := s.pool.Exec(ctx, q, id, startedAt); err != nil {
		return fmt.Errorf("transcript store: create session %q: %w", id, err)
	}
	return nil
}

// EndSession implements transcript.Store.
func (s *Store) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	const q = `UPDATE sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	tag, err := s.pool.Exec(ctx, q, id, endedAt)
	if err != nil {
		return fmt.Errorf("transcript store: end session %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transcript store: end session %q: no live session", id)
	}
	return nil
}

// Append implements transcript.Store.
func (s *Store) Append(ctx context.Context, sessionID string, ex transcript.Exchange) error {
	const q = `
		INSERT INTO exchanges (session_id, role, text, timestamp, speech_duration_ns)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.pool.Exec(ctx, q,
		sessionID,
		string(ex.Role),
		ex.Text,
		ex.Timestamp,
		ex.SpeechDuration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("transcript store: append to %q: %w", sessionID, err)
	}
	return nil
}

// Exchanges implements transcript.Store.
func (s *Store) Exchanges(ctx context.Context, sessionID string) ([]transcript.Exchange, error) {
	const q = `
		SELECT role, text, timestamp, speech_duration_ns
		FROM   exchanges
		WHERE  session_id = $1
		ORDER  BY timestamp, id`
	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: exchanges for %q: %w", sessionID, err)
	}
	return collectExchanges(rows)
}

// Recent implements transcript.Store. The inner query selects the newest n
// rows; the outer one restores chronological order.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]transcript.Exchange, error) {
	const q = `
		SELECT role, text, timestamp, speech_duration_ns
		FROM (
		    SELECT id, role, text, timestamp, speech_duration_ns
		    FROM   exchanges
		    WHERE  session_id = $1
		    ORDER  BY timestamp DESC, id DESC
		    LIMIT  $2
		) sub
		ORDER BY timestamp, id`
	rows, err := s.pool.Query(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("transcript store: recent for %q: %w", sessionID, err)
	}
	return collectExchanges(rows)
}

// List implements transcript.Store.
func (s *Store) List(ctx context.Context, limit int) ([]transcript.Session, error) {
	const q = `
		SELECT s.id, s.started_at, s.ended_at, count(e.id)
		FROM   sessions s
		LEFT   JOIN exchanges e ON e.session_id = s.id
		GROUP  BY s.id
		ORDER  BY s.started_at DESC
		LIMIT  $1`
	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("transcript store: list: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Session, error) {
		var (
			sess    transcript.Session
			endedAt *time.Time
			count   int64
		)
		if err := row.Scan(&sess.ID, &sess.StartedAt, &endedAt, &count); err != nil {
			return sess, err
		}
		if endedAt != nil {
			sess.EndedAt = *endedAt
		}
		sess.Exchanges = int(count)
		return sess, nil
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: collect sessions: %w", err)
	}
	return sessions, nil
}

// Delete implements transcript.Store. Exchanges go with the session via the
// foreign-key cascade.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	const q = `DELETE FROM sessions WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, sessionID); err != nil {
		return fmt.Errorf("transcript store: delete %q: %w", sessionID, err)
	}
	return nil
}

// collectExchanges scans pgx rows into Exchange values.
func collectExchanges(rows pgx.Rows) ([]transcript.Exchange, error) {
	exchanges, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Exchange, error) {
		var (
			ex         transcript.Exchange
			role       string
			durationNS int64
		)
		if err := row.Scan(&role, &ex.Text, &ex.Timestamp, &durationNS); err != nil {
			return ex, err
		}
		ex.Role = transcript.Role(role)
		ex.SpeechDuration = time.Duration(durationNS)
		return ex, nil
	})
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transcript store: collect exchanges: %w", err)
	}
	return exchanges, nil
}
