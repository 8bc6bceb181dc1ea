// Package history is an optional Postgres audit trail of finished
// conversions. Rows carry formats, result and timing only, never staged
// paths or artifacts; a conversion job itself is not persisted anywhere.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversion_history (
	id            BIGSERIAL PRIMARY KEY,
	filename      TEXT NOT NULL,
	input_format  TEXT NOT NULL,
	output_format TEXT NOT NULL,
	success       BOOLEAN NOT NULL,
	message       TEXT NOT NULL DEFAULT '',
	duration_ms   BIGINT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Record is one finished conversion attempt.
type Record struct {
	Filename     string
	InputFormat  string
	OutputFormat string
	Success      bool
	Message      string
	Duration     time.Duration
}

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewStore(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create conversion_history table: %w", err)
	}
	return &Store{
		db:     db,
		logger: logger.With(zap.String("component", "history")),
	}, nil
}

func (s *Store) Record(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversion_history (filename, input_format, output_format, success, message, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Filename, rec.InputFormat, rec.OutputFormat, rec.Success, rec.Message, rec.Duration.Milliseconds())

	if err != nil {
		return fmt.Errorf("insert conversion record: %w", err)
	}
	return nil
}

// Stats returns total and failed conversion counts for the last 24 hours.
func (s *Store) Stats(ctx context.Context) (total, failed int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE NOT success)
		FROM conversion_history
		WHERE created_at > NOW() - INTERVAL '24 hours'
	`).Scan(&total, &failed)

	if err != nil {
		return 0, 0, fmt.Errorf("query conversion stats: %w", err)
	}
	return total, failed, nil
}
