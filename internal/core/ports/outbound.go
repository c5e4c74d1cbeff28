package ports

import (
	"context"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// FileFilter narrows repository listings for the API surface.
type FileFilter struct {
	Status       domain.ProcessingStatus
	Category     domain.BusinessCategory
	MainTextOnly *bool
	Page         int
	Size         int
}

// FileRepository persists and reads per-document pipeline state.
type FileRepository interface {
	Create(ctx context.Context, rec *domain.FileRecord) error
	Update(ctx context.Context, rec *domain.FileRecord) error
	GetByFileID(ctx context.Context, fileID string) (*domain.FileRecord, error)

	// ClaimPending atomically moves a pending record to downloading and
	// stamps processing_started_at. Returns false when the record was not
	// pending, which makes duplicate task deliveries no-ops.
	ClaimPending(ctx context.Context, fileID string, startedAt time.Time) (bool, error)

	UpdateStatus(ctx context.Context, fileID string, status domain.ProcessingStatus, message string) error
	RecordFailure(ctx context.Context, fileID string, lastError string) error
	SaveAnalysis(ctx context.Context, fileID string, result domain.AnalysisResult) error
	SetDocumentID(ctx context.Context, fileID string, documentID string) error

	// ClearDocumentID nulls the external KB linkage and marks the record
	// skipped; used after KB-side deletion by sweeps and manual rejection.
	ClearDocumentID(ctx context.Context, fileID string, message string) error

	ResetToPending(ctx context.Context, fileID string, message string) error

	ListPendingMainText(ctx context.Context, limit int) ([]domain.FileRecord, error)
	ListPublishedByCategory(ctx context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error)
	ListPublishedExcludingCategory(ctx context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error)
	FindPublishedByTitle(ctx context.Context, category domain.BusinessCategory, title string) ([]domain.FileRecord, error)

	List(ctx context.Context, filter FileFilter) ([]domain.FileRecord, int, error)
	StatusCounts(ctx context.Context) (map[domain.ProcessingStatus]int, error)
}

// ProcessingLogStore appends immutable per-step audit entries.
type ProcessingLogStore interface {
	Append(ctx context.Context, entry domain.ProcessingLogEntry) error
	ListByFileID(ctx context.Context, fileID string) ([]domain.ProcessingLogEntry, error)
}

// MappingStore reads category to knowledge-base mappings.
type MappingStore interface {
	// ActiveForCategory returns nil without error when no active mapping
	// exists for the category.
	ActiveForCategory(ctx context.Context, category domain.BusinessCategory) (*domain.CategoryMapping, error)
	// DefaultActive returns the fallback knowledge base, nil when none is
	// configured.
	DefaultActive(ctx context.Context) (*domain.CategoryMapping, error)
}

// ObjectStorage fetches raw document bytes by storage token. Failures carry
// domain.ErrObjectNotFound or domain.ErrPermissionDenied kinds when the
// gateway can distinguish them.
type ObjectStorage interface {
	Fetch(ctx context.Context, token string) ([]byte, error)
}

// Decryptor reverses the OA producer's symmetric encryption.
type Decryptor interface {
	Decrypt(data []byte, code string) ([]byte, error)
}

// ArchiveExtractor unpacks the single expected payload of a packaged
// document. Multiple entries is a degraded path: the first entry wins.
type ArchiveExtractor interface {
	ExtractSingle(data []byte) (filename string, content []byte, err error)
}

// ContentParser converts document bytes to plain text plus structure info.
// Unsupported formats are reported via ParseResult.Success, not errors.
type ContentParser interface {
	Parse(ctx context.Context, data []byte, filename string) domain.ParseResult
}

// CompletionClient is the raw AI boundary. The reply is untrusted text that
// may carry markdown fencing around JSON.
type CompletionClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error)
	Model() string
}

// KnowledgeBase publishes and retires documents in an external dataset.
// Publish is not idempotent; callers track the returned document id.
type KnowledgeBase interface {
	PublishText(ctx context.Context, target domain.KnowledgeBaseTarget, content, filename string, metadata map[string]any) (string, error)
	Delete(ctx context.Context, target domain.KnowledgeBaseTarget, documentID string) error
}

// TaskQueue submits and consumes worker task envelopes.
type TaskQueue interface {
	Submit(ctx context.Context, task domain.Task) error
	Subscribe(ctx context.Context, handler func(context.Context, domain.Task) error) error
}
