package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

type fakeCompletions struct {
	reply string
	err   error

	calls        int
	lastSystem   string
	lastPrompt   string
	lastJSONMode bool
}

func (c *fakeCompletions) Complete(_ context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	c.calls++
	c.lastSystem = systemPrompt
	c.lastPrompt = userPrompt
	c.lastJSONMode = jsonMode
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeCompletions) Model() string { return "test-model" }

func newTestAnalyzer(t *testing.T, completions *fakeCompletions, store *fakeMappingStore) *Analyzer {
	t.Helper()
	reqs, err := LoadRequirements()
	if err != nil {
		t.Fatalf("LoadRequirements: %v", err)
	}
	return NewAnalyzer(completions, NewResolver(store, testLogger()), reqs, testLogger())
}

func analysisRecord() *domain.FileRecord {
	return &domain.FileRecord{
		ImageFileID: "f-1",
		Filename:    "关于印发《信贷管理办法》的通知.pdf",
		Category:    domain.CategoryHeadquartersIssue,
	}
}

func TestAnalyzeUsesAIVerdict(t *testing.T) {
	completions := &fakeCompletions{
		reply: "```json\n{\"suitable_for_kb\": true, \"confidence_score\": 88, \"category\": \"policy\", \"reasons\": [\"正式制度文件\"]}\n```",
	}
	store := &fakeMappingStore{byCategory: map[domain.BusinessCategory]*domain.CategoryMapping{
		domain.CategoryHeadquartersIssue: issuanceMapping(),
	}}
	a := newTestAnalyzer(t, completions, store)

	result, decision, err := a.Analyze(context.Background(), "正文内容", "信贷管理办法.pdf", analysisRecord(), domain.ParseMetadata{FileType: "pdf"})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.AnalysisMethod != domain.MethodAI {
		t.Errorf("method = %s, want ai", result.AnalysisMethod)
	}
	if result.ConfidenceScore != 88 {
		t.Errorf("confidence = %d, want 88", result.ConfidenceScore)
	}
	if result.ModelVersion != "test-model" {
		t.Errorf("model version = %q", result.ModelVersion)
	}
	if decision.Target == nil || decision.Target.Name != "issuances" {
		t.Errorf("decision target = %+v", decision.Target)
	}
	if !completions.lastJSONMode {
		t.Error("analysis completion did not request JSON mode")
	}
}

func TestAnalyzeFallsBackToRulesOnAIError(t *testing.T) {
	completions := &fakeCompletions{err: errors.New("model unavailable")}
	store := &fakeMappingStore{byCategory: map[domain.BusinessCategory]*domain.CategoryMapping{
		domain.CategoryHeadquartersIssue: issuanceMapping(),
	}}
	a := newTestAnalyzer(t, completions, store)

	content := strings.Repeat("第一章总则规定了信贷业务管理要求。\n", 60)
	result, _, err := a.Analyze(context.Background(), content, "信贷管理办法.pdf", analysisRecord(), domain.ParseMetadata{})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.AnalysisMethod != domain.MethodRuleBased {
		t.Errorf("method = %s, want rule_based fallback", result.AnalysisMethod)
	}
}

func TestAnalyzeFallsBackToRulesOnGarbageReply(t *testing.T) {
	completions := &fakeCompletions{reply: "这份文档不错，建议入库。"}
	store := &fakeMappingStore{byCategory: map[domain.BusinessCategory]*domain.CategoryMapping{
		domain.CategoryHeadquartersIssue: issuanceMapping(),
	}}
	a := newTestAnalyzer(t, completions, store)

	content := strings.Repeat("第一章总则规定了信贷业务管理要求。\n", 60)
	result, _, err := a.Analyze(context.Background(), content, "信贷管理办法.pdf", analysisRecord(), domain.ParseMetadata{})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.AnalysisMethod != domain.MethodRuleBased {
		t.Errorf("method = %s, want rule_based fallback for undecodable reply", result.AnalysisMethod)
	}
}

func TestAnalyzeOverridesSuitabilityBelowMinConfidence(t *testing.T) {
	completions := &fakeCompletions{
		reply: `{"suitable_for_kb": true, "confidence_score": 30, "category": "policy", "reasons": []}`,
	}
	mapping := issuanceMapping()
	mapping.MinConfidence = 40
	store := &fakeMappingStore{byCategory: map[domain.BusinessCategory]*domain.CategoryMapping{
		domain.CategoryHeadquartersIssue: mapping,
	}}
	a := newTestAnalyzer(t, completions, store)

	result, _, err := a.Analyze(context.Background(), "正文", "文件.pdf", analysisRecord(), domain.ParseMetadata{})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if result.SuitableForKB {
		t.Fatal("suitability kept despite confidence below minimum")
	}
	var found bool
	for _, r := range result.Reasons {
		if strings.Contains(r, "低于最低要求") {
			found = true
		}
	}
	if !found {
		t.Errorf("reasons %v do not explain the confidence override", result.Reasons)
	}
}

func TestAnalyzePassesPromptOverrideFromMapping(t *testing.T) {
	completions := &fakeCompletions{
		reply: `{"suitable_for_kb": true, "confidence_score": 90}`,
	}
	mapping := issuanceMapping()
	mapping.PromptRequirements = "重点关注版本号与废止条款"
	store := &fakeMappingStore{byCategory: map[domain.BusinessCategory]*domain.CategoryMapping{
		domain.CategoryHeadquartersIssue: mapping,
	}}
	a := newTestAnalyzer(t, completions, store)

	if _, _, err := a.Analyze(context.Background(), "正文", "文件.pdf", analysisRecord(), domain.ParseMetadata{}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !strings.Contains(completions.lastPrompt, "重点关注版本号与废止条款") {
		t.Error("mapping prompt override missing from the analysis prompt")
	}
}

func TestCompareVersionsRequiresTwoCandidates(t *testing.T) {
	a := newTestAnalyzer(t, &fakeCompletions{}, &fakeMappingStore{})
	_, err := a.CompareVersions(context.Background(), []domain.VersionCandidate{{FileID: "f-1"}})
	if err == nil {
		t.Fatal("expected error for a single candidate")
	}
}

func TestCompareVersionsRejectsEmptyLatest(t *testing.T) {
	completions := &fakeCompletions{reply: `{"latest_document_id": "", "old_document_ids": ["f-1"]}`}
	a := newTestAnalyzer(t, completions, &fakeMappingStore{})

	_, err := a.CompareVersions(context.Background(), []domain.VersionCandidate{
		{FileID: "f-1", Filename: "v1.pdf", Preview: "旧版"},
		{FileID: "f-2", Filename: "v2.pdf", Preview: "新版"},
	})
	if err == nil {
		t.Fatal("expected error when the reply names no latest document")
	}
}

func TestCompareVersionsDecodesVerdict(t *testing.T) {
	completions := &fakeCompletions{
		reply: "```json\n{\"latest_document_id\": \"f-2\", \"old_document_ids\": [\"f-1\"], \"reasoning\": \"修订版更晚\"}\n```",
	}
	a := newTestAnalyzer(t, completions, &fakeMappingStore{})

	cmp, err := a.CompareVersions(context.Background(), []domain.VersionCandidate{
		{FileID: "f-1", Filename: "印发.pdf", Preview: "旧版"},
		{FileID: "f-2", Filename: "修订.pdf", Preview: "新版"},
	})
	if err != nil {
		t.Fatalf("CompareVersions returned error: %v", err)
	}
	if cmp.LatestFileID != "f-2" || len(cmp.OldFileIDs) != 1 {
		t.Errorf("comparison = %+v", cmp)
	}
}

func TestJudgeExpirationClampsConfidence(t *testing.T) {
	completions := &fakeCompletions{
		reply: `{"is_expired": true, "reasoning": "有效期已过", "confidence": 300}`,
	}
	a := newTestAnalyzer(t, completions, &fakeMappingStore{})

	j, err := a.JudgeExpiration(context.Background(), "公告.pdf", "本公告有效期至2024年底", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("JudgeExpiration returned error: %v", err)
	}
	if !j.Expired {
		t.Error("verdict lost the expired flag")
	}
	if j.Confidence != 100 {
		t.Errorf("confidence = %d, want clamped to 100", j.Confidence)
	}
}
