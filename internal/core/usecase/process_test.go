package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mainTextRecord(fileID string) *domain.FileRecord {
	return &domain.FileRecord{
		ID:           1,
		ImageFileID:  fileID,
		Filename:     "关于印发《信贷管理办法》的通知.pdf",
		IsMainText:   true,
		Category:     domain.CategoryHeadquartersIssue,
		StorageToken: "token-" + fileID,
		Status:       domain.StatusPending,
	}
}

type processFixture struct {
	repo     *fakeFileRepo
	logs     *fakeLogStore
	storage  *fakeStorage
	analyzer *fakeAnalyzer
	kb       *fakeKB
	parser   *fakeParser
	uc       *ProcessDocumentUseCase
}

func newProcessFixture(rec *domain.FileRecord) *processFixture {
	f := &processFixture{
		repo:    newFakeFileRepo(rec),
		logs:    &fakeLogStore{},
		storage: &fakeStorage{objects: map[string][]byte{rec.StorageToken: []byte("信贷管理办法正文内容")}},
		analyzer: &fakeAnalyzer{
			result: domain.AnalysisResult{
				SuitableForKB:   true,
				ConfidenceScore: 90,
				Category:        "policy",
				AnalysisMethod:  domain.MethodAI,
			},
			decision: domain.RoutingDecision{
				Target:        &domain.KnowledgeBaseTarget{Name: "main", DatasetID: "ds-1"},
				MinConfidence: domain.DefaultMinConfidence,
				AutoApprove:   domain.DefaultAutoApproveThreshold,
			},
		},
		kb:     &fakeKB{nextDocID: "doc-42"},
		parser: &fakeParser{},
	}
	f.uc = NewProcessDocumentUseCase(
		f.repo, f.logs, f.storage, &passthroughDecryptor{}, &fakeExtractor{}, f.parser, f.analyzer, f.kb, discardLogger())
	f.uc.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }
	return f
}

func TestProcessPublishesConfidentDocument(t *testing.T) {
	rec := mainTextRecord("f-100")
	f := newProcessFixture(rec)

	summary, err := f.uc.Process(context.Background(), "f-100")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusCompleted {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusCompleted)
	}
	if summary.KnowledgeBase != "main" {
		t.Errorf("knowledge base = %q, want main", summary.KnowledgeBase)
	}
	if len(f.kb.published) != 1 {
		t.Fatalf("published %d documents, want 1", len(f.kb.published))
	}
	stored := f.repo.records["f-100"]
	if stored.DocumentID == nil || *stored.DocumentID != "doc-42" {
		t.Errorf("document id not recorded: %v", stored.DocumentID)
	}
	if _, ok := f.repo.savedAnalysis["f-100"]; !ok {
		t.Error("analysis result was not persisted")
	}
	if got := len(f.logs.byStatus(domain.StepFailed)); got != 0 {
		t.Errorf("recorded %d failed log entries, want 0", got)
	}
}

func TestProcessParksMidConfidenceForReview(t *testing.T) {
	rec := mainTextRecord("f-101")
	f := newProcessFixture(rec)
	f.analyzer.result.ConfidenceScore = 60

	summary, err := f.uc.Process(context.Background(), "f-101")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusAwaitingApproval {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusAwaitingApproval)
	}
	if len(f.kb.published) != 0 {
		t.Errorf("published %d documents before approval, want 0", len(f.kb.published))
	}
	stored := f.repo.records["f-101"]
	if !strings.Contains(stored.StatusMessage, "below auto-approve threshold") {
		t.Errorf("status message %q does not explain the review gate", stored.StatusMessage)
	}
}

func TestProcessSkipsUnsuitableDocument(t *testing.T) {
	rec := mainTextRecord("f-102")
	f := newProcessFixture(rec)
	f.analyzer.result.SuitableForKB = false
	f.analyzer.result.Reasons = []string{"内容过短"}

	summary, err := f.uc.Process(context.Background(), "f-102")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusSkipped)
	}
	if len(f.kb.published) != 0 {
		t.Errorf("unsuitable document was published")
	}
	stored := f.repo.records["f-102"]
	if !strings.Contains(stored.StatusMessage, "内容过短") {
		t.Errorf("status message %q lost the analyzer reason", stored.StatusMessage)
	}
}

func TestProcessSkipsSuitableDocumentWithoutTarget(t *testing.T) {
	rec := mainTextRecord("f-103")
	f := newProcessFixture(rec)
	f.analyzer.decision.Target = nil

	summary, err := f.uc.Process(context.Background(), "f-103")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusSkipped)
	}
	stored := f.repo.records["f-103"]
	if !strings.Contains(stored.StatusMessage, "no active knowledge base") {
		t.Errorf("status message %q does not name the missing mapping", stored.StatusMessage)
	}
}

func TestProcessSkipsAttachmentFiles(t *testing.T) {
	rec := mainTextRecord("f-104")
	rec.IsMainText = false
	f := newProcessFixture(rec)

	summary, err := f.uc.Process(context.Background(), "f-104")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusSkipped)
	}
	if f.repo.claimCalls != 0 {
		t.Errorf("attachment file was claimed")
	}
	if f.storage.calls != 0 {
		t.Errorf("attachment file was downloaded")
	}
}

func TestProcessAttachmentSkipIsIdempotent(t *testing.T) {
	rec := mainTextRecord("f-114")
	rec.IsMainText = false
	f := newProcessFixture(rec)

	if _, err := f.uc.Process(context.Background(), "f-114"); err != nil {
		t.Fatalf("first Process returned error: %v", err)
	}
	logsAfterFirst := len(f.logs.entries)

	_, err := f.uc.Process(context.Background(), "f-114")
	if !domain.IsKind(err, domain.ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible on redelivery", err)
	}
	if len(f.logs.entries) != logsAfterFirst {
		t.Errorf("redelivery appended %d log entries", len(f.logs.entries)-logsAfterFirst)
	}
	if f.repo.records["f-114"].Status != domain.StatusSkipped {
		t.Errorf("status = %s after redelivery", f.repo.records["f-114"].Status)
	}
}

func TestProcessRefusesNonPendingRecord(t *testing.T) {
	rec := mainTextRecord("f-105")
	rec.Status = domain.StatusCompleted
	f := newProcessFixture(rec)

	_, err := f.uc.Process(context.Background(), "f-105")
	if !domain.IsKind(err, domain.ErrNotEligible) {
		t.Fatalf("err = %v, want ErrNotEligible", err)
	}
	stored := f.repo.records["f-105"]
	if stored.Status != domain.StatusCompleted {
		t.Errorf("duplicate delivery mutated the record to %s", stored.Status)
	}
	if f.storage.calls != 0 {
		t.Errorf("duplicate delivery reached storage")
	}
}

func TestProcessParseFailureIsTerminalNotError(t *testing.T) {
	rec := mainTextRecord("f-106")
	f := newProcessFixture(rec)
	f.parser.result = domain.ParseResult{Success: false, Error: "unsupported file format"}

	summary, err := f.uc.Process(context.Background(), "f-106")
	if err != nil {
		t.Fatalf("stage failure surfaced as handler error: %v", err)
	}
	if summary.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusFailed)
	}
	stored := f.repo.records["f-106"]
	if stored.Status != domain.StatusFailed {
		t.Errorf("record status = %s, want failed", stored.Status)
	}
	if stored.ErrorCount != 1 {
		t.Errorf("error count = %d, want 1", stored.ErrorCount)
	}
	if got := len(f.logs.byStatus(domain.StepFailed)); got != 1 {
		t.Errorf("recorded %d failed log entries, want exactly 1", got)
	}
}

func TestProcessDownloadFailureRecordsSingleFailure(t *testing.T) {
	rec := mainTextRecord("f-107")
	f := newProcessFixture(rec)
	f.storage.objects = nil

	summary, err := f.uc.Process(context.Background(), "f-107")
	if err != nil {
		t.Fatalf("stage failure surfaced as handler error: %v", err)
	}
	if summary.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusFailed)
	}
	if len(f.repo.failures) != 1 {
		t.Errorf("recorded %d failures, want 1", len(f.repo.failures))
	}
	if got := len(f.logs.byStatus(domain.StepFailed)); got != 1 {
		t.Errorf("recorded %d failed log entries, want exactly 1", got)
	}
}

func TestProcessPublishFailureRecordsSingleFailure(t *testing.T) {
	rec := mainTextRecord("f-108")
	f := newProcessFixture(rec)
	f.kb.publishErr = errors.New("dataset unavailable")

	summary, err := f.uc.Process(context.Background(), "f-108")
	if err != nil {
		t.Fatalf("stage failure surfaced as handler error: %v", err)
	}
	if summary.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", summary.Status, domain.StatusFailed)
	}
	stored := f.repo.records["f-108"]
	if stored.DocumentID != nil {
		t.Errorf("failed publish left a document id behind")
	}
	if got := len(f.logs.byStatus(domain.StepFailed)); got != 1 {
		t.Errorf("recorded %d failed log entries, want exactly 1", got)
	}
}

func TestProcessDegradedAnalysisStillRoutes(t *testing.T) {
	rec := mainTextRecord("f-109")
	f := newProcessFixture(rec)
	f.analyzer.result = domain.FailedAnalysis("analysis service unavailable")

	summary, err := f.uc.Process(context.Background(), "f-109")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want %s; degraded analysis must route, not fail", summary.Status, domain.StatusSkipped)
	}
	if _, ok := f.repo.savedAnalysis["f-109"]; !ok {
		t.Error("degraded analysis result was not persisted")
	}
}

func TestProcessAnalyzerErrorDegradesToSkip(t *testing.T) {
	rec := mainTextRecord("f-115")
	f := newProcessFixture(rec)
	f.analyzer.err = errors.New("mapping store unavailable")

	summary, err := f.uc.Process(context.Background(), "f-115")
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if summary.Status != domain.StatusSkipped {
		t.Fatalf("status = %s, want %s; analyzer errors must degrade, not fail", summary.Status, domain.StatusSkipped)
	}
	if len(f.repo.failures) != 0 {
		t.Errorf("failures recorded = %v, want none", f.repo.failures)
	}
	saved, ok := f.repo.savedAnalysis["f-115"]
	if !ok {
		t.Fatal("degraded analysis result was not persisted")
	}
	if saved.AnalysisMethod != domain.MethodFailed || saved.ConfidenceScore != 0 {
		t.Errorf("saved analysis = %+v, want zero-confidence failed method", saved)
	}
}

func TestProcessDecryptsBeforeParsing(t *testing.T) {
	rec := mainTextRecord("f-110")
	rec.DecryptCode = "1234"
	f := newProcessFixture(rec)

	if _, err := f.uc.Process(context.Background(), "f-110"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	var sawDecrypt bool
	for _, e := range f.logs.entries {
		if e.Step == "decrypt" && e.Status == domain.StepSuccess {
			sawDecrypt = true
		}
	}
	if !sawDecrypt {
		t.Error("no successful decrypt step logged for an encrypted file")
	}
}

func TestProcessSkipsDecryptForPlaintext(t *testing.T) {
	rec := mainTextRecord("f-111")
	f := newProcessFixture(rec)

	if _, err := f.uc.Process(context.Background(), "f-111"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	var sawSkip bool
	for _, e := range f.logs.entries {
		if e.Step == "decrypt" && e.Status == domain.StepSkipped {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Error("plaintext file should log the decrypt step as skipped")
	}
}
