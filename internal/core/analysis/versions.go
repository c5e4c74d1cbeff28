package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// CompareVersions asks the model to pick the newest revision out of a group
// of documents sharing a title. One call covers the whole group.
func (a *Analyzer) CompareVersions(ctx context.Context, candidates []domain.VersionCandidate) (domain.VersionComparison, error) {
	if len(candidates) < 2 {
		return domain.VersionComparison{}, fmt.Errorf("version comparison needs at least 2 candidates, got %d", len(candidates))
	}

	prompt := buildVersionComparisonPrompt(candidates)
	reply, err := a.completions.Complete(ctx, versionSystemPrompt, prompt, true)
	if err != nil {
		return domain.VersionComparison{}, fmt.Errorf("version comparison completion: %w", err)
	}

	var cmp domain.VersionComparison
	if err := decodeJSONReply(reply, &cmp); err != nil {
		return domain.VersionComparison{}, fmt.Errorf("unusable version comparison reply: %w", err)
	}
	if cmp.LatestFileID == "" {
		return domain.VersionComparison{}, fmt.Errorf("version comparison reply named no latest document")
	}
	return cmp, nil
}

// JudgeExpiration asks the model whether a document's content shows it has
// lapsed, anchored to today's date.
func (a *Analyzer) JudgeExpiration(ctx context.Context, filename, preview string, today time.Time) (domain.ExpirationJudgment, error) {
	prompt := buildExpirationPrompt(filename, preview, today)
	reply, err := a.completions.Complete(ctx, expirySystemPrompt, prompt, true)
	if err != nil {
		return domain.ExpirationJudgment{}, fmt.Errorf("expiration completion: %w", err)
	}

	var j domain.ExpirationJudgment
	if err := decodeJSONReply(reply, &j); err != nil {
		return domain.ExpirationJudgment{}, fmt.Errorf("unusable expiration reply: %w", err)
	}
	j.Confidence = clampScore(float64(j.Confidence))
	return j, nil
}
