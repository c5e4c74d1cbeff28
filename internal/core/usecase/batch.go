package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

const defaultBatchLimit = 50

// BatchProcessUseCase fans pending main-text files out as individual process
// tasks. Ordering is oldest-first, delegated to the repository.
type BatchProcessUseCase struct {
	repo  ports.FileRepository
	queue ports.TaskQueue
	log   *slog.Logger

	now func() time.Time
}

func NewBatchProcessUseCase(repo ports.FileRepository, queue ports.TaskQueue, log *slog.Logger) *BatchProcessUseCase {
	return &BatchProcessUseCase{repo: repo, queue: queue, log: log, now: time.Now}
}

// SubmitBatch enqueues up to limit pending files and returns how many were
// submitted. A submit failure stops the fan-out; the already-submitted tasks
// stand, the rest stay pending for the next batch.
func (uc *BatchProcessUseCase) SubmitBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	records, err := uc.repo.ListPendingMainText(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending files: %w", err)
	}

	submitted := 0
	for _, rec := range records {
		task := domain.Task{
			ID:          uuid.NewString(),
			Kind:        domain.TaskProcessDocument,
			FileID:      rec.ImageFileID,
			SubmittedAt: uc.now(),
		}
		if err := uc.queue.Submit(ctx, task); err != nil {
			return submitted, fmt.Errorf("submit task for %s: %w", rec.ImageFileID, err)
		}
		submitted++
	}

	uc.log.Info("batch submitted",
		slog.Int("pending", len(records)),
		slog.Int("submitted", submitted))
	return submitted, nil
}
