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

// DocumentAnalyzer is the judgment boundary the pipeline depends on. It is
// total with respect to the document: analysis failures surface inside the
// result, not as errors. An error from routing resolution is degraded by the
// caller into a zero-confidence result, never a terminal failure.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, content, filename string, rec *domain.FileRecord, meta domain.ParseMetadata) (domain.AnalysisResult, domain.RoutingDecision, error)
}

// ProcessDocumentUseCase drives one file through the full ingestion pipeline:
// download, decrypt, extract, parse, analyze, route.
type ProcessDocumentUseCase struct {
	repo      ports.FileRepository
	logs      ports.ProcessingLogStore
	storage   ports.ObjectStorage
	decryptor ports.Decryptor
	extractor ports.ArchiveExtractor
	parser    ports.ContentParser
	analyzer  DocumentAnalyzer
	kb        ports.KnowledgeBase
	log       *slog.Logger

	now func() time.Time
}

func NewProcessDocumentUseCase(
	repo ports.FileRepository,
	logs ports.ProcessingLogStore,
	storage ports.ObjectStorage,
	decryptor ports.Decryptor,
	extractor ports.ArchiveExtractor,
	parser ports.ContentParser,
	analyzer DocumentAnalyzer,
	kb ports.KnowledgeBase,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		logs:      logs,
		storage:   storage,
		decryptor: decryptor,
		extractor: extractor,
		parser:    parser,
		analyzer:  analyzer,
		kb:        kb,
		log:       log,
		now:       time.Now,
	}
}

// Process runs the pipeline for one file id. Non-main-text files are skipped.
// A record that is not pending is left untouched and reported via
// domain.ErrNotEligible, which makes duplicate task deliveries harmless.
func (uc *ProcessDocumentUseCase) Process(ctx context.Context, fileID string) (domain.ProcessSummary, error) {
	started := uc.now()

	rec, err := uc.repo.GetByFileID(ctx, fileID)
	if err != nil {
		return domain.ProcessSummary{}, fmt.Errorf("fetch file record: %w", err)
	}

	if !rec.IsMainText {
		// The skip write is itself gated on pending so redelivered tasks for
		// an already-skipped attachment stay no-ops.
		if rec.Status != domain.StatusPending {
			return domain.ProcessSummary{}, domain.WrapError(domain.ErrNotEligible, "skip attachment",
				fmt.Errorf("file %s is in status %s", fileID, rec.Status))
		}
		return uc.skip(ctx, rec, started, "attachment files are not processed independently")
	}

	claimed, err := uc.repo.ClaimPending(ctx, fileID, started)
	if err != nil {
		return domain.ProcessSummary{}, fmt.Errorf("claim pending record: %w", err)
	}
	if !claimed {
		return domain.ProcessSummary{}, domain.WrapError(domain.ErrNotEligible, "claim pending record",
			fmt.Errorf("file %s is in status %s", fileID, rec.Status))
	}

	data, err := uc.download(ctx, rec, started)
	if err != nil {
		return uc.failed(rec, started), nil
	}

	data, err = uc.decrypt(ctx, rec, data)
	if err != nil {
		return uc.failed(rec, started), nil
	}

	filename := rec.Filename
	if rec.IsArchive {
		filename, data, err = uc.extract(ctx, rec, data)
		if err != nil {
			return uc.failed(rec, started), nil
		}
	}

	parsed, err := uc.parse(ctx, rec, data, filename)
	if err != nil {
		return uc.failed(rec, started), nil
	}

	result, decision, err := uc.analyze(ctx, rec, parsed, filename)
	if err != nil {
		return uc.failed(rec, started), nil
	}

	summary, err := uc.route(ctx, rec, parsed, filename, result, decision)
	if err != nil {
		return uc.failed(rec, started), nil
	}

	summary.DurationSeconds = uc.since(started)
	summary.Analysis = &result
	return summary, nil
}

func (uc *ProcessDocumentUseCase) download(ctx context.Context, rec *domain.FileRecord, startedAt time.Time) ([]byte, error) {
	stepStart := uc.now()
	data, err := uc.storage.Fetch(ctx, rec.StorageToken)
	if err != nil {
		uc.failStage(ctx, rec, "download", stepStart, fmt.Errorf("fetch object: %w", err))
		return nil, err
	}
	uc.logStep(ctx, rec.ImageFileID, "download", domain.StepSuccess,
		fmt.Sprintf("fetched %d bytes", len(data)), stepStart)
	return data, nil
}

func (uc *ProcessDocumentUseCase) decrypt(ctx context.Context, rec *domain.FileRecord, data []byte) ([]byte, error) {
	if err := uc.repo.UpdateStatus(ctx, rec.ImageFileID, domain.StatusDecrypting, ""); err != nil {
		uc.log.Error("update status failed", slog.String("file_id", rec.ImageFileID), slog.String("error", err.Error()))
	}
	stepStart := uc.now()

	if rec.DecryptCode == "" {
		uc.logStep(ctx, rec.ImageFileID, "decrypt", domain.StepSkipped, "no decrypt code, stored in plaintext", stepStart)
		return data, nil
	}

	plain, err := uc.decryptor.Decrypt(data, rec.DecryptCode)
	if err != nil {
		err = domain.WrapError(domain.ErrDecryptFailed, "decrypt object", err)
		uc.failStage(ctx, rec, "decrypt", stepStart, err)
		return nil, err
	}
	uc.logStep(ctx, rec.ImageFileID, "decrypt", domain.StepSuccess, "", stepStart)
	return plain, nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, rec *domain.FileRecord, data []byte) (string, []byte, error) {
	stepStart := uc.now()
	filename, content, err := uc.extractor.ExtractSingle(data)
	if err != nil {
		uc.failStage(ctx, rec, "extract", stepStart, fmt.Errorf("extract archive: %w", err))
		return "", nil, err
	}
	uc.logStep(ctx, rec.ImageFileID, "extract", domain.StepSuccess, "extracted "+filename, stepStart)
	return filename, content, nil
}

func (uc *ProcessDocumentUseCase) parse(ctx context.Context, rec *domain.FileRecord, data []byte, filename string) (domain.ParseResult, error) {
	if err := uc.repo.UpdateStatus(ctx, rec.ImageFileID, domain.StatusParsing, ""); err != nil {
		uc.log.Error("update status failed", slog.String("file_id", rec.ImageFileID), slog.String("error", err.Error()))
	}
	stepStart := uc.now()

	parsed := uc.parser.Parse(ctx, data, filename)
	if !parsed.Success {
		err := fmt.Errorf("parse content: %s", parsed.Error)
		uc.failStage(ctx, rec, "parse", stepStart, err)
		return domain.ParseResult{}, err
	}
	uc.logStep(ctx, rec.ImageFileID, "parse", domain.StepSuccess,
		fmt.Sprintf("%s, %d chars", parsed.Metadata.FileType, len([]rune(parsed.Content))), stepStart)
	return parsed, nil
}

func (uc *ProcessDocumentUseCase) analyze(ctx context.Context, rec *domain.FileRecord, parsed domain.ParseResult, filename string) (domain.AnalysisResult, domain.RoutingDecision, error) {
	if err := uc.repo.UpdateStatus(ctx, rec.ImageFileID, domain.StatusAnalyzing, ""); err != nil {
		uc.log.Error("update status failed", slog.String("file_id", rec.ImageFileID), slog.String("error", err.Error()))
	}
	stepStart := uc.now()

	result, decision, err := uc.analyzer.Analyze(ctx, parsed.Content, filename, rec, parsed.Metadata)
	if err != nil {
		// Analysis must still yield a terminal routing decision: degrade to a
		// zero-confidence result instead of failing the run.
		uc.log.Warn("analysis degraded",
			slog.String("file_id", rec.ImageFileID),
			slog.String("error", err.Error()))
		result = domain.FailedAnalysis("analysis failed: " + err.Error())
		decision = domain.DefaultRouting()
	}

	if err := uc.repo.SaveAnalysis(ctx, rec.ImageFileID, result); err != nil {
		uc.failStage(ctx, rec, "analyze", stepStart, fmt.Errorf("save analysis: %w", err))
		return domain.AnalysisResult{}, domain.RoutingDecision{}, err
	}

	stepStatus := domain.StepSuccess
	if result.AnalysisMethod == domain.MethodFailed {
		stepStatus = domain.StepFailed
	}
	uc.logStep(ctx, rec.ImageFileID, "analyze", stepStatus,
		fmt.Sprintf("method=%s suitable=%t confidence=%d", result.AnalysisMethod, result.SuitableForKB, result.ConfidenceScore), stepStart)
	return result, decision, nil
}

// route applies the suitability verdict and thresholds: unsuitable documents
// are skipped, confident ones published, the middle band parked for a human.
func (uc *ProcessDocumentUseCase) route(ctx context.Context, rec *domain.FileRecord, parsed domain.ParseResult, filename string, result domain.AnalysisResult, decision domain.RoutingDecision) (domain.ProcessSummary, error) {
	fileID := rec.ImageFileID

	if !result.SuitableForKB {
		msg := "not suitable for knowledge base"
		if len(result.Reasons) > 0 {
			msg = msg + ": " + result.Reasons[len(result.Reasons)-1]
		}
		if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusSkipped, msg); err != nil {
			return domain.ProcessSummary{}, err
		}
		uc.logStep(ctx, fileID, "route", domain.StepSkipped, msg, uc.now())
		return domain.ProcessSummary{FileID: fileID, Status: domain.StatusSkipped}, nil
	}

	if decision.Target == nil {
		msg := "no active knowledge base for category " + string(rec.Category)
		uc.log.Warn("skipping suitable document", slog.String("file_id", fileID), slog.String("reason", msg))
		if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusSkipped, msg); err != nil {
			return domain.ProcessSummary{}, err
		}
		uc.logStep(ctx, fileID, "route", domain.StepSkipped, msg, uc.now())
		return domain.ProcessSummary{FileID: fileID, Status: domain.StatusSkipped}, nil
	}

	if result.ConfidenceScore < decision.AutoApprove {
		msg := fmt.Sprintf("confidence %d below auto-approve threshold %d, awaiting manual review",
			result.ConfidenceScore, decision.AutoApprove)
		if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusAwaitingApproval, msg); err != nil {
			return domain.ProcessSummary{}, err
		}
		uc.logStep(ctx, fileID, "route", domain.StepPending, msg, uc.now())
		return domain.ProcessSummary{FileID: fileID, Status: domain.StatusAwaitingApproval, KnowledgeBase: decision.Target.Name}, nil
	}

	stepStart := uc.now()
	docID, err := uc.kb.PublishText(ctx, *decision.Target, parsed.Content, filename, publishMetadata(rec, result))
	if err != nil {
		uc.failStage(ctx, rec, "publish", stepStart, fmt.Errorf("publish to knowledge base: %w", err))
		return domain.ProcessSummary{}, err
	}
	if err := uc.repo.SetDocumentID(ctx, fileID, docID); err != nil {
		uc.failStage(ctx, rec, "publish", stepStart, fmt.Errorf("record document id: %w", err))
		return domain.ProcessSummary{}, err
	}
	if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusCompleted, "published to "+decision.Target.Name); err != nil {
		return domain.ProcessSummary{}, err
	}
	uc.logStep(ctx, fileID, "publish", domain.StepSuccess, "document "+docID, stepStart)
	return domain.ProcessSummary{FileID: fileID, Status: domain.StatusCompleted, KnowledgeBase: decision.Target.Name}, nil
}

func (uc *ProcessDocumentUseCase) skip(ctx context.Context, rec *domain.FileRecord, started time.Time, reason string) (domain.ProcessSummary, error) {
	if err := uc.repo.UpdateStatus(ctx, rec.ImageFileID, domain.StatusSkipped, reason); err != nil {
		return domain.ProcessSummary{}, fmt.Errorf("mark skipped: %w", err)
	}
	uc.logStep(ctx, rec.ImageFileID, "route", domain.StepSkipped, reason, started)
	return domain.ProcessSummary{
		FileID:          rec.ImageFileID,
		Status:          domain.StatusSkipped,
		DurationSeconds: uc.since(started),
	}, nil
}

// failStage records exactly one failure: error counter, terminal status, one
// failed log entry. Bookkeeping errors are logged, never allowed to mask the
// stage error.
func (uc *ProcessDocumentUseCase) failStage(ctx context.Context, rec *domain.FileRecord, step string, stepStart time.Time, stageErr error) {
	fileID := rec.ImageFileID
	uc.log.Error("pipeline stage failed",
		slog.String("file_id", fileID),
		slog.String("step", step),
		slog.String("error", stageErr.Error()))

	if err := uc.repo.RecordFailure(ctx, fileID, stageErr.Error()); err != nil {
		uc.log.Error("record failure failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
	}
	if err := uc.repo.UpdateStatus(ctx, fileID, domain.StatusFailed, stageErr.Error()); err != nil {
		uc.log.Error("update status failed", slog.String("file_id", fileID), slog.String("error", err.Error()))
	}
	uc.logStep(ctx, fileID, step, domain.StepFailed, stageErr.Error(), stepStart)
}

func (uc *ProcessDocumentUseCase) failed(rec *domain.FileRecord, started time.Time) domain.ProcessSummary {
	return domain.ProcessSummary{
		FileID:          rec.ImageFileID,
		Status:          domain.StatusFailed,
		DurationSeconds: uc.since(started),
	}
}

func (uc *ProcessDocumentUseCase) logStep(ctx context.Context, fileID, step string, status domain.StepStatus, message string, stepStart time.Time) {
	entry := domain.ProcessingLogEntry{
		FileID:          fileID,
		Step:            step,
		Status:          status,
		Message:         message,
		DurationSeconds: uc.since(stepStart),
		CreatedAt:       uc.now(),
	}
	if err := uc.logs.Append(ctx, entry); err != nil {
		uc.log.Error("append processing log failed",
			slog.String("file_id", fileID),
			slog.String("step", step),
			slog.String("error", err.Error()))
	}
}

func (uc *ProcessDocumentUseCase) since(t time.Time) float64 {
	return uc.now().Sub(t).Seconds()
}

func publishMetadata(rec *domain.FileRecord, result domain.AnalysisResult) map[string]any {
	meta := map[string]any{
		"source_file_id":    rec.ImageFileID,
		"business_category": string(rec.Category),
		"analysis_method":   string(result.AnalysisMethod),
		"confidence_score":  result.ConfidenceScore,
	}
	if result.Metadata != nil {
		raw, err := json.Marshal(result.Metadata)
		if err == nil {
			meta["document_metadata"] = string(raw)
		}
	}
	return meta
}
