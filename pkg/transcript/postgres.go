package transcript

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface checks.
var (
	_ Sink        = (*PGStore)(nil)
	_ ReportStore = (*PGStore)(nil)
)

const ddlCallTranscripts = `
CREATE TABLE IF NOT EXISTS call_transcripts (
    call_id    TEXT         NOT NULL,
    seq        INT          NOT NULL,
    speaker    TEXT         NOT NULL,
    text       TEXT         NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (call_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_call_transcripts_created_at
    ON call_transcripts (created_at DESC);

CREATE TABLE IF NOT EXISTS call_reports (
    call_id    TEXT         PRIMARY KEY,
    report     JSONB        NOT NULL,
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// PGStore is a PostgreSQL-backed [Sink]. Each snapshot is stored as one row
// per entry keyed by (call_id, seq), so entry order survives round-trips and
// concurrent calls never collide on a shared file.
//
// All methods are safe for concurrent use.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to the database at dsn and creates the transcript
// schema if it does not exist.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("transcript: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlCallTranscripts); err != nil {
		pool.Close()
		return nil, fmt.Errorf("transcript: migrate: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// WriteSnapshot implements [Sink]. The call's previous rows (if any) are
// replaced in a single transaction so readers never observe a partial
// snapshot.
func (s *PGStore) WriteSnapshot(ctx context.Context, callID string, entries []Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transcript: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM call_transcripts WHERE call_id = $1`, callID); err != nil {
		return fmt.Errorf("transcript: clear snapshot: %w", err)
	}
	for i, e := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO call_transcripts (call_id, seq, speaker, text) VALUES ($1, $2, $3, $4)`,
			callID, i, string(e.Speaker), e.Text,
		)
		if err != nil {
			return fmt.Errorf("transcript: insert entry %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transcript: commit: %w", err)
	}
	return nil
}

// Latest implements [Sink]. It returns the entries of the most recently
// written call, ordered by sequence number.
func (s *PGStore) Latest(ctx context.Context) ([]Entry, error) {
	const q = `
		SELECT speaker, text
		FROM   call_transcripts
		WHERE  call_id = (
		    SELECT call_id FROM call_transcripts
		    ORDER BY created_at DESC LIMIT 1
		)
		ORDER  BY seq`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("transcript: query latest: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Speaker, &e.Text)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript: scan latest: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoSnapshot
	}
	return entries, nil
}

// WriteReport implements [ReportStore]. A repeated write for the same call
// replaces the stored report.
func (s *PGStore) WriteReport(ctx context.Context, callID string, report []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO call_reports (call_id, report) VALUES ($1, $2)
		ON CONFLICT (call_id) DO UPDATE
		SET report = EXCLUDED.report, created_at = now()`,
		callID, report,
	)
	if err != nil {
		return fmt.Errorf("transcript: write report: %w", err)
	}
	return nil
}

// LatestReport implements [ReportStore].
func (s *PGStore) LatestReport(ctx context.Context) ([]byte, error) {
	var report []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM call_reports ORDER BY created_at DESC LIMIT 1`,
	).Scan(&report)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: query latest report: %w", err)
	}
	return report, nil
}

// Ping checks database reachability. Used by the readiness probe.
func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
