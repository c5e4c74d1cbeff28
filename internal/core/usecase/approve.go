package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// TargetResolver looks up the knowledge-base target that applies to a
// category, nil when none is configured.
type TargetResolver interface {
	TargetFor(ctx context.Context, category domain.BusinessCategory) (*domain.KnowledgeBaseTarget, error)
}

// ApproveDocumentUseCase resolves the human-review gate: an approved document
// gets published, a rejected one is retired as skipped.
type ApproveDocumentUseCase struct {
	repo    ports.FileRepository
	logs    ports.ProcessingLogStore
	loader  *contentLoader
	targets TargetResolver
	kb      ports.KnowledgeBase
	log     *slog.Logger

	now func() time.Time
}

func NewApproveDocumentUseCase(
	repo ports.FileRepository,
	logs ports.ProcessingLogStore,
	storage ports.ObjectStorage,
	decryptor ports.Decryptor,
	extractor ports.ArchiveExtractor,
	parser ports.ContentParser,
	targets TargetResolver,
	kb ports.KnowledgeBase,
	log *slog.Logger,
) *ApproveDocumentUseCase {
	return &ApproveDocumentUseCase{
		repo:    repo,
		logs:    logs,
		loader:  &contentLoader{storage: storage, decryptor: decryptor, extractor: extractor, parser: parser},
		targets: targets,
		kb:      kb,
		log:     log,
		now:     time.Now,
	}
}

func (uc *ApproveDocumentUseCase) Approve(ctx context.Context, fileID string, approved bool, comment string) error {
	rec, err := uc.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("fetch file record: %w", err)
	}
	if rec.Status != domain.StatusAwaitingApproval {
		return domain.WrapError(domain.ErrNotEligible, "approve document",
			fmt.Errorf("file %s is in status %s, expected %s", fileID, rec.Status, domain.StatusAwaitingApproval))
	}

	if !approved {
		msg := "rejected by reviewer"
		if comment != "" {
			msg = msg + ": " + comment
		}
		if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusSkipped, msg); err != nil {
			return fmt.Errorf("mark rejected: %w", err)
		}
		uc.appendLog(ctx, fileID, domain.StepSkipped, msg)
		return nil
	}

	// A document that already carries a KB id was published before the
	// review round-trip; finishing the status is all that is left.
	if !rec.Published() {
		if err := uc.publish(ctx, rec); err != nil {
			return err
		}
	}

	msg := "approved by reviewer"
	if comment != "" {
		msg = msg + ": " + comment
	}
	if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusCompleted, msg); err != nil {
		return fmt.Errorf("mark approved: %w", err)
	}
	uc.appendLog(ctx, fileID, domain.StepSuccess, msg)
	return nil
}

func (uc *ApproveDocumentUseCase) publish(ctx context.Context, rec *domain.FileRecord) error {
	target, err := uc.targets.TargetFor(ctx, rec.Category)
	if err != nil {
		return fmt.Errorf("resolve knowledge base: %w", err)
	}
	if target == nil {
		return domain.WrapError(domain.ErrNoActiveKnowledgeBase, "approve document",
			fmt.Errorf("category %s", rec.Category))
	}

	content, err := uc.loader.loadText(ctx, rec)
	if err != nil {
		return fmt.Errorf("reload document content: %w", err)
	}

	result := savedAnalysis(rec)
	docID, err := uc.kb.PublishText(ctx, *target, content, rec.Filename, publishMetadata(rec, result))
	if err != nil {
		return fmt.Errorf("publish to knowledge base: %w", err)
	}
	if err := uc.repo.SetDocumentID(ctx, rec.ImageFileID, docID); err != nil {
		return fmt.Errorf("record document id: %w", err)
	}
	return nil
}

func (uc *ApproveDocumentUseCase) appendLog(ctx context.Context, fileID string, status domain.StepStatus, message string) {
	entry := domain.ProcessingLogEntry{
		FileID:    fileID,
		Step:      "approval",
		Status:    status,
		Message:   message,
		CreatedAt: uc.now(),
	}
	if err := uc.logs.Append(ctx, entry); err != nil {
		uc.log.Error("append processing log failed",
			slog.String("file_id", fileID),
			slog.String("error", err.Error()))
	}
}

// savedAnalysis decodes the analysis snapshot stored on the record; a record
// without one gets an empty result so publish metadata stays well-formed.
func savedAnalysis(rec *domain.FileRecord) domain.AnalysisResult {
	var result domain.AnalysisResult
	if rec.AnalysisJSON != "" {
		_ = json.Unmarshal([]byte(rec.AnalysisJSON), &result)
	}
	if rec.ConfidenceScore != nil {
		result.ConfidenceScore = *rec.ConfidenceScore
	}
	return result
}
