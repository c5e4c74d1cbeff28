package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// ProcessingLogRepository stores the append-only per-step audit trail.
type ProcessingLogRepository struct {
	db *sql.DB
}

func NewProcessingLogRepository(db *sql.DB) *ProcessingLogRepository {
	return &ProcessingLogRepository{db: db}
}

func (r *ProcessingLogRepository) Append(ctx context.Context, entry domain.ProcessingLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO processing_logs (file_id, step, status, message, duration_seconds, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, entry.FileID, entry.Step, string(entry.Status), entry.Message, entry.DurationSeconds, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert processing log: %w", err)
	}
	return nil
}

func (r *ProcessingLogRepository) ListByFileID(ctx context.Context, fileID string) ([]domain.ProcessingLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, file_id, step, status, message, duration_seconds, created_at
FROM processing_logs
WHERE file_id = $1
ORDER BY created_at ASC, id ASC
`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list processing logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ProcessingLogEntry
	for rows.Next() {
		var e domain.ProcessingLogEntry
		var status string
		if err := rows.Scan(&e.ID, &e.FileID, &e.Step, &status, &e.Message, &e.DurationSeconds, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan processing log: %w", err)
		}
		e.Status = domain.StepStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processing logs: %w", err)
	}
	return entries, nil
}
