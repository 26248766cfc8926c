package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hoopsync/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

// SyncRunRepository keeps one row per (source, data_type), overwritten on
// every run.
type SyncRunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSyncRunRepository(db *sql.DB, logger zerolog.Logger) *SyncRunRepository {
	return &SyncRunRepository{db: db, logger: logger}
}

// Start marks a run as in progress, replacing whatever the previous run left.
func (r *SyncRunRepository) Start(ctx context.Context, source, dataType string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_run_metadata (
			source, data_type, started_at, completed_at, status,
			processed, matched, failed, duration_ms, error_message, updated_at
		) VALUES (?, ?, ?, NULL, ?, 0, 0, 0, 0, '', ?)
		ON CONFLICT (source, data_type) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = NULL,
			status = excluded.status,
			processed = 0, matched = 0, failed = 0,
			duration_ms = 0, error_message = '',
			updated_at = excluded.updated_at`,
		source, dataType, now, string(domain.SyncInProgress), now)
	if err != nil {
		return fmt.Errorf("failed to record run start for %s/%s: %w", source, dataType, err)
	}
	return nil
}

// Complete records a successful run with its counts.
func (r *SyncRunRepository) Complete(ctx context.Context, source, dataType string, processed, matched, failed int, duration time.Duration) error {
	return r.finish(ctx, source, dataType, domain.SyncSuccess, processed, matched, failed, duration, "")
}

// Fail records a failed run and the error that broke it.
func (r *SyncRunRepository) Fail(ctx context.Context, source, dataType, errMsg string, duration time.Duration) error {
	return r.finish(ctx, source, dataType, domain.SyncFailed, 0, 0, 0, duration, errMsg)
}

func (r *SyncRunRepository) finish(ctx context.Context, source, dataType string, status domain.SyncStatus, processed, matched, failed int, duration time.Duration, errMsg string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_run_metadata SET
			completed_at = ?, status = ?, processed = ?, matched = ?, failed = ?,
			duration_ms = ?, error_message = ?, updated_at = ?
		WHERE source = ? AND data_type = ?`,
		now, string(status), processed, matched, failed,
		duration.Milliseconds(), errMsg, now, source, dataType)
	if err != nil {
		return fmt.Errorf("failed to record run completion for %s/%s: %w", source, dataType, err)
	}
	return nil
}

// List returns every tracked job's latest run state.
func (r *SyncRunRepository) List(ctx context.Context) ([]domain.SyncRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT source, data_type, started_at, completed_at, status,
			processed, matched, failed, duration_ms, error_message, updated_at
		FROM sync_run_metadata
		ORDER BY source, data_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncRun
	for rows.Next() {
		var run domain.SyncRun
		var completedAt sql.NullTime
		var status string
		if err := rows.Scan(
			&run.Source, &run.DataType, &run.StartedAt, &completedAt, &status,
			&run.Processed, &run.Matched, &run.Failed, &run.DurationMS,
			&run.ErrorMessage, &run.UpdatedAt,
		); err != nil {
			return nil, err
		}
		run.CompletedAt = timePtr(completedAt)
		run.Status = domain.SyncStatus(status)
		out = append(out, run)
	}
	return out, rows.Err()
}
