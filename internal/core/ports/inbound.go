package ports

import (
	"context"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// DocumentProcessor drives one document through the full pipeline.
type DocumentProcessor interface {
	Process(ctx context.Context, fileID string) (domain.ProcessSummary, error)
}

// DocumentApprover resolves a human review decision.
type DocumentApprover interface {
	Approve(ctx context.Context, fileID string, approved bool, comment string) error
}

// BatchSubmitter enqueues processing tasks for pending main-text documents.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, limit int) (int, error)
}

// DedupSweeper runs one bounded version-deduplication pass.
type DedupSweeper interface {
	Sweep(ctx context.Context, limit int) (domain.DedupStats, error)
}

// ExpirySweeper runs one bounded expiration pass.
type ExpirySweeper interface {
	Sweep(ctx context.Context, limit int) (domain.ExpiryStats, error)
}
