package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

// Analyzer judges whether extracted document text belongs in a knowledge base
// and resolves where it would go. Analyze is a total function: AI failures
// degrade to the rule-based fallback and the fallback never fails, so the
// pipeline always gets a result to route on.
type Analyzer struct {
	completions ports.CompletionClient
	resolver    *Resolver
	reqs        Requirements
	log         *slog.Logger
}

func NewAnalyzer(completions ports.CompletionClient, resolver *Resolver, reqs Requirements, log *slog.Logger) *Analyzer {
	return &Analyzer{
		completions: completions,
		resolver:    resolver,
		reqs:        reqs,
		log:         log,
	}
}

// Analyze produces the suitability verdict and routing decision for one
// parsed document. The returned error is nil unless mapping resolution itself
// failed; analysis-path failures are folded into the result instead.
func (a *Analyzer) Analyze(ctx context.Context, content, filename string, rec *domain.FileRecord, meta domain.ParseMetadata) (domain.AnalysisResult, domain.RoutingDecision, error) {
	decision, mapping, err := a.resolver.Resolve(ctx, rec.Category)
	if err != nil {
		return domain.AnalysisResult{}, domain.DefaultRouting(), fmt.Errorf("resolve routing for %s: %w", rec.Category, err)
	}

	override := ""
	if mapping != nil {
		override = mapping.PromptRequirements
	}

	result, aiErr := a.analyzeWithAI(ctx, content, filename, meta, rec.Category, override)
	if aiErr != nil {
		a.log.Warn("ai analysis failed, falling back to rules",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", aiErr.Error()))
		result = RuleBasedAnalyze(content, filename)
	}

	if result.SuitableForKB && result.ConfidenceScore < decision.MinConfidence {
		result.SuitableForKB = false
		result.Reasons = append(result.Reasons,
			fmt.Sprintf("置信度 %d 低于最低要求 %d", result.ConfidenceScore, decision.MinConfidence))
	}
	return result, decision, nil
}

func (a *Analyzer) analyzeWithAI(ctx context.Context, content, filename string, meta domain.ParseMetadata, category domain.BusinessCategory, override string) (domain.AnalysisResult, error) {
	req, ok := a.reqs[category]
	if !ok {
		return domain.AnalysisResult{}, fmt.Errorf("no prompt requirements for category %s", category)
	}

	prompt := buildAnalysisPrompt(content, filename, meta, req, override)
	reply, err := a.completions.Complete(ctx, analysisSystemPrompt, prompt, true)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("completion: %w", err)
	}

	var raw rawAnalysis
	if err := decodeJSONReply(reply, &raw); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("unusable analysis reply: %w", err)
	}
	return raw.normalize(a.completions.Model()), nil
}
