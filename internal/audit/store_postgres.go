package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists entries in an append-only table. The table carries
// no UPDATE or DELETE path on purpose.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit table if missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_entries (
			seq        BIGINT PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			actor      TEXT NOT NULL,
			action     TEXT NOT NULL,
			subject    TEXT NOT NULL,
			outcome    TEXT NOT NULL DEFAULT '',
			reason     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS audit_entries_subject_idx ON audit_entries (subject, seq);
	`)
	if err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (seq, ts, actor, action, subject, outcome, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.Seq, e.Timestamp, e.Actor, e.Action, e.Subject, e.Outcome, e.Reason)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, subject string, limit int) ([]Entry, error) {
	query := `
		SELECT seq, ts, actor, action, subject, outcome, reason
		FROM audit_entries
		WHERE ($1 = '' OR subject = $1)
		ORDER BY seq ASC
	`
	args := []any{subject}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.Actor, &e.Action, &e.Subject, &e.Outcome, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
