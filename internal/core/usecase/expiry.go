package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

const expiryPreviewChars = 600

// Sentinel values that mark a document as永久有效. Matching is
// case-insensitive for the latin forms.
var permanentSentinels = []string{"永久", "无", "长期", "permanent", "none", "never"}

var expiryDateLayouts = []string{"2006-01-02", "2006/01/02", "2006年01月02日", "2006年1月2日"}

// ExpirationJudge gives a content-based expiry verdict for one document.
type ExpirationJudge interface {
	JudgeExpiration(ctx context.Context, filename, preview string, today time.Time) (domain.ExpirationJudgment, error)
}

// ExpirationCheckUseCase retires published documents that have lapsed.
// Records carrying a usable expiration date in their analysis metadata are
// decided locally; only undated documents go to the AI.
type ExpirationCheckUseCase struct {
	repo    ports.FileRepository
	loader  *contentLoader
	judge   ExpirationJudge
	targets TargetResolver
	kb      ports.KnowledgeBase
	log     *slog.Logger

	now func() time.Time
}

func NewExpirationCheckUseCase(
	repo ports.FileRepository,
	storage ports.ObjectStorage,
	decryptor ports.Decryptor,
	extractor ports.ArchiveExtractor,
	parser ports.ContentParser,
	judge ExpirationJudge,
	targets TargetResolver,
	kb ports.KnowledgeBase,
	log *slog.Logger,
) *ExpirationCheckUseCase {
	return &ExpirationCheckUseCase{
		repo:    repo,
		loader:  &contentLoader{storage: storage, decryptor: decryptor, extractor: extractor, parser: parser},
		judge:   judge,
		targets: targets,
		kb:      kb,
		log:     log,
		now:     time.Now,
	}
}

func (uc *ExpirationCheckUseCase) Sweep(ctx context.Context, limit int) (domain.ExpiryStats, error) {
	var stats domain.ExpiryStats
	today := uc.now()

	// Headquarters issuances track versions, not validity dates; they are
	// handled by the version sweep instead.
	records, err := uc.repo.ListPublishedExcludingCategory(ctx, domain.CategoryHeadquartersIssue, limit)
	if err != nil {
		return stats, fmt.Errorf("list published documents: %w", err)
	}

	for i := range records {
		rec := &records[i]
		stats.Processed++

		detail, method, expired := uc.check(ctx, rec, today)
		if method == "" {
			stats.Errors++
			continue
		}
		if !expired {
			continue
		}

		switch method {
		case "metadata":
			stats.ExpiredByMetadata++
		case "ai":
			stats.ExpiredByAI++
		}
		if uc.retire(ctx, rec, "expired: "+detail.Reasoning) {
			stats.Deleted++
			stats.Details = append(stats.Details, detail)
		} else {
			stats.Errors++
		}
	}
	return stats, nil
}

// check returns the expiry verdict for one record. method is "" on error,
// "metadata" when the stored expiration date decided, "ai" otherwise.
func (uc *ExpirationCheckUseCase) check(ctx context.Context, rec *domain.FileRecord, today time.Time) (domain.ExpiryDetail, string, bool) {
	result := savedAnalysis(rec)
	if result.Metadata != nil {
		raw := strings.TrimSpace(result.Metadata.ExpirationDate)
		if isPermanent(raw) {
			return domain.ExpiryDetail{}, "metadata", false
		}
		if when, ok := parseExpiryDate(raw); ok {
			expired := when.Before(today.Truncate(24 * time.Hour))
			return domain.ExpiryDetail{
				Filename:       rec.Filename,
				CheckMethod:    "metadata",
				ExpirationDate: raw,
				Reasoning:      "expiration date " + raw + " has passed",
			}, "metadata", expired
		}
	}

	preview, err := uc.loader.preview(ctx, rec, expiryPreviewChars)
	if err != nil {
		uc.log.Warn("preview load failed",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", err.Error()))
		return domain.ExpiryDetail{}, "", false
	}

	judgment, err := uc.judge.JudgeExpiration(ctx, rec.Filename, preview, today)
	if err != nil {
		uc.log.Error("expiration judgment failed",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", err.Error()))
		return domain.ExpiryDetail{}, "", false
	}
	return domain.ExpiryDetail{
		Filename:       rec.Filename,
		CheckMethod:    "ai",
		ExpirationDate: judgment.ExpirationDate,
		Reasoning:      judgment.Reasoning,
	}, "ai", judgment.Expired
}

func (uc *ExpirationCheckUseCase) retire(ctx context.Context, rec *domain.FileRecord, reason string) bool {
	if !rec.Published() {
		return false
	}
	target, err := uc.targets.TargetFor(ctx, rec.Category)
	if err != nil || target == nil {
		uc.log.Error("no target for retirement", slog.String("file_id", rec.ImageFileID))
		return false
	}
	if err := uc.kb.Delete(ctx, *target, *rec.DocumentID); err != nil {
		uc.log.Error("knowledge base delete failed",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", err.Error()))
		return false
	}
	if err := uc.repo.ClearDocumentID(ctx, rec.ImageFileID, reason); err != nil {
		uc.log.Error("clear document id failed",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func isPermanent(raw string) bool {
	if raw == "" {
		return false
	}
	lowered := strings.ToLower(raw)
	for _, s := range permanentSentinels {
		if lowered == s {
			return true
		}
	}
	return false
}

func parseExpiryDate(raw string) (time.Time, bool) {
	for _, layout := range expiryDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
