// Package repository persists the extraction job ledger: one row per
// processed document recording the vendor, the tier trail, and the outcome.
// The ledger is an embedded SQLite database; the pipeline itself keeps no
// shared mutable state.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mhartley/invoice-extract/constants"
	"github.com/mhartley/invoice-extract/internal/entity"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS extract_jobs (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	vendor_id       TEXT NOT NULL,
	tiers_attempted TEXT NOT NULL DEFAULT '',
	winning_tier    TEXT NOT NULL DEFAULT '',
	reason          TEXT NOT NULL,
	item_count      INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMP NOT NULL,
	finished_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_extract_jobs_document ON extract_jobs(document_id);
CREATE INDEX IF NOT EXISTS idx_extract_jobs_reason ON extract_jobs(reason);
`

// Ledger is the job store. Safe for concurrent use; database/sql pools.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and migrates) the ledger at dsn. Use ":memory:" for tests and
// one-shot batch runs.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// modernc sqlite is single-writer; serialize through one connection
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	logger.Info("ledger.opened", "dsn", dsn)
	return &Ledger{db: db, logger: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one finished job.
func (l *Ledger) Record(ctx context.Context, job *entity.ExtractJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO extract_jobs
			(id, document_id, vendor_id, tiers_attempted, winning_tier, reason, item_count, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(),
		job.DocumentID.String(),
		job.VendorID,
		strings.Join(job.TiersAttempted, ","),
		job.WinningTier,
		string(job.Reason),
		job.ItemCount,
		job.ErrorMessage,
		job.StartedAt.UTC(),
		job.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	l.logger.Debug("ledger.job.recorded",
		"job_id", job.ID,
		"document_id", job.DocumentID,
		"reason", job.Reason,
	)
	return nil
}

// Recent lists the most recent jobs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]entity.ExtractJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, document_id, vendor_id, tiers_attempted, winning_tier, reason, item_count, error_message, started_at, finished_at
		FROM extract_jobs
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []entity.ExtractJob
	for rows.Next() {
		var (
			j              entity.ExtractJob
			id, docID      string
			tiers, reason  string
			started, fined time.Time
		)
		if err := rows.Scan(&id, &docID, &j.VendorID, &tiers, &j.WinningTier, &reason, &j.ItemCount, &j.ErrorMessage, &started, &fined); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		if j.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse job id: %w", err)
		}
		if j.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, fmt.Errorf("parse document id: %w", err)
		}
		if tiers != "" {
			j.TiersAttempted = strings.Split(tiers, ",")
		}
		j.Reason = constants.Reason(reason)
		j.StartedAt = started
		j.FinishedAt = fined
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountByReason aggregates outcomes, for the batch tool summary.
func (l *Ledger) CountByReason(ctx context.Context) (map[constants.Reason]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM extract_jobs GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	out := make(map[constants.Reason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		out[constants.Reason(reason)] = n
	}
	return out, rows.Err()
}
