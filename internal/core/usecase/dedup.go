package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

const dedupPreviewChars = 400

// Revision markers in headquarters issuance filenames. Only documents whose
// name carries one can supersede an earlier publication.
var revisionKeywords = []string{
	"修订", "修改", "更新", "调整", "变更", "修正", "补充", "完善", "废止", "废除",
}

var titlePattern = regexp.MustCompile(`《(.+?)》`)

// VersionComparer picks the newest revision out of a titled group.
type VersionComparer interface {
	CompareVersions(ctx context.Context, candidates []domain.VersionCandidate) (domain.VersionComparison, error)
}

// VersionDedupUseCase retires superseded revisions of headquarters issuances:
// published documents sharing one 《title》 are compared as a group and all but
// the newest are removed from the knowledge base.
type VersionDedupUseCase struct {
	repo     ports.FileRepository
	loader   *contentLoader
	comparer VersionComparer
	targets  TargetResolver
	kb       ports.KnowledgeBase
	log      *slog.Logger
}

func NewVersionDedupUseCase(
	repo ports.FileRepository,
	storage ports.ObjectStorage,
	decryptor ports.Decryptor,
	extractor ports.ArchiveExtractor,
	parser ports.ContentParser,
	comparer VersionComparer,
	targets TargetResolver,
	kb ports.KnowledgeBase,
	log *slog.Logger,
) *VersionDedupUseCase {
	return &VersionDedupUseCase{
		repo:     repo,
		loader:   &contentLoader{storage: storage, decryptor: decryptor, extractor: extractor, parser: parser},
		comparer: comparer,
		targets:  targets,
		kb:       kb,
		log:      log,
	}
}

func (uc *VersionDedupUseCase) Sweep(ctx context.Context, limit int) (domain.DedupStats, error) {
	var stats domain.DedupStats

	records, err := uc.repo.ListPublishedByCategory(ctx, domain.CategoryHeadquartersIssue, limit)
	if err != nil {
		return stats, fmt.Errorf("list published issuances: %w", err)
	}

	seenTitles := map[string]bool{}
	for i := range records {
		rec := &records[i]
		stats.Processed++

		if !hasRevisionKeyword(rec.Filename) {
			continue
		}
		title := extractTitle(rec.Filename)
		if title == "" || seenTitles[title] {
			continue
		}
		seenTitles[title] = true

		group, err := uc.repo.FindPublishedByTitle(ctx, domain.CategoryHeadquartersIssue, title)
		if err != nil {
			uc.log.Error("title lookup failed", slog.String("title", title), slog.String("error", err.Error()))
			stats.Errors++
			continue
		}
		if len(group) < 2 {
			continue
		}
		stats.DuplicatesFound += len(group)

		detail, deleted, ok := uc.resolveGroup(ctx, title, group)
		if !ok {
			stats.Errors++
			continue
		}
		stats.Deleted += deleted
		stats.Details = append(stats.Details, detail)
	}
	return stats, nil
}

// resolveGroup compares one titled group and deletes the superseded members.
// Groups where fewer than two previews could be loaded are left untouched:
// guessing the survivor from one preview would delete the wrong document.
func (uc *VersionDedupUseCase) resolveGroup(ctx context.Context, title string, group []domain.FileRecord) (domain.DedupGroupDetail, int, bool) {
	byID := make(map[string]*domain.FileRecord, len(group))
	candidates := make([]domain.VersionCandidate, 0, len(group))
	for i := range group {
		rec := &group[i]
		byID[rec.ImageFileID] = rec

		preview, err := uc.loader.preview(ctx, rec, dedupPreviewChars)
		if err != nil {
			uc.log.Warn("preview load failed",
				slog.String("file_id", rec.ImageFileID),
				slog.String("error", err.Error()))
			continue
		}
		candidates = append(candidates, domain.VersionCandidate{
			FileID:   rec.ImageFileID,
			Filename: rec.Filename,
			Preview:  preview,
		})
	}
	if len(candidates) < 2 {
		uc.log.Warn("skipping dedup group, not enough previews",
			slog.String("title", title),
			slog.Int("loaded", len(candidates)),
			slog.Int("group", len(group)))
		return domain.DedupGroupDetail{}, 0, false
	}

	cmp, err := uc.comparer.CompareVersions(ctx, candidates)
	if err != nil {
		uc.log.Error("version comparison failed", slog.String("title", title), slog.String("error", err.Error()))
		return domain.DedupGroupDetail{}, 0, false
	}
	if _, known := byID[cmp.LatestFileID]; !known {
		uc.log.Warn("comparison named unknown latest document, leaving group untouched",
			slog.String("title", title),
			slog.String("latest", cmp.LatestFileID))
		return domain.DedupGroupDetail{}, 0, false
	}

	deleted := 0
	for _, oldID := range cmp.OldFileIDs {
		rec, known := byID[oldID]
		if !known || oldID == cmp.LatestFileID {
			uc.log.Warn("comparison named document outside the group, ignoring",
				slog.String("title", title),
				slog.String("file_id", oldID))
			continue
		}
		if uc.retire(ctx, rec, "superseded by "+cmp.LatestFileID) {
			deleted++
		}
	}

	return domain.DedupGroupDetail{
		Title:        title,
		LatestFileID: cmp.LatestFileID,
		DeletedCount: deleted,
		Reasoning:    cmp.Reasoning,
	}, deleted, true
}

func (uc *VersionDedupUseCase) retire(ctx context.Context, rec *domain.FileRecord, reason string) bool {
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
			slog.String("document_id", *rec.DocumentID),
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

func hasRevisionKeyword(filename string) bool {
	for _, kw := range revisionKeywords {
		if strings.Contains(filename, kw) {
			return true
		}
	}
	return false
}

func extractTitle(filename string) string {
	m := titlePattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return m[1]
}
