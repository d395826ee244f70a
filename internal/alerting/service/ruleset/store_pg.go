package ruleset

import (
	"context"
	"database/sql"
	"fmt"
)

// execer is the subset of the database wrapper the change-log store needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PgChangeLogStore is a PostgreSQL-backed ChangeLogStore.
type PgChangeLogStore struct {
	DB execer
}

func NewPgChangeLogStore(db execer) *PgChangeLogStore { return &PgChangeLogStore{DB: db} }

// EnsureSchema creates the change-log table when missing.
func (s *PgChangeLogStore) EnsureSchema(ctx context.Context) error {
	const q = `
	CREATE TABLE IF NOT EXISTS alert_rule_change_logs (
		id                TEXT PRIMARY KEY,
		run_id            TEXT,
		rule_key          TEXT NOT NULL,
		change_type       TEXT NOT NULL,
		old_threshold     DOUBLE PRECISION,
		new_threshold     DOUBLE PRECISION,
		old_timeout_hours DOUBLE PRECISION,
		new_timeout_hours DOUBLE PRECISION,
		change_time       TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure change log schema: %w", err)
	}
	return nil
}

func (s *PgChangeLogStore) InsertChangeLog(ctx context.Context, log *ChangeLog) error {
	const q = `
	INSERT INTO alert_rule_change_logs(id, run_id, rule_key, change_type, old_threshold, new_threshold, old_timeout_hours, new_timeout_hours, change_time)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.DB.ExecContext(ctx, q, log.ID, nullString(log.RunID), log.RuleKey, log.ChangeType,
		nullFloat(log.OldThreshold), nullFloat(log.NewThreshold),
		nullFloat(log.OldTimeoutHours), nullFloat(log.NewTimeoutHours), log.ChangeTime)
	if err != nil {
		return fmt.Errorf("insert change log: %w", err)
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
