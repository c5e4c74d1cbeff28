package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

type fakeFileRepo struct {
	records map[string]*domain.FileRecord

	claimCalls    int
	statusHistory []domain.ProcessingStatus
	failures      []string
	savedAnalysis map[string]domain.AnalysisResult
	cleared       []string
}

func newFakeFileRepo(records ...*domain.FileRecord) *fakeFileRepo {
	repo := &fakeFileRepo{
		records:       map[string]*domain.FileRecord{},
		savedAnalysis: map[string]domain.AnalysisResult{},
	}
	for _, rec := range records {
		repo.records[rec.ImageFileID] = rec
	}
	return repo
}

func (r *fakeFileRepo) Create(_ context.Context, rec *domain.FileRecord) error {
	rec.ID = int64(len(r.records) + 1)
	r.records[rec.ImageFileID] = rec
	return nil
}

func (r *fakeFileRepo) Update(_ context.Context, rec *domain.FileRecord) error {
	r.records[rec.ImageFileID] = rec
	return nil
}

func (r *fakeFileRepo) GetByFileID(_ context.Context, fileID string) (*domain.FileRecord, error) {
	rec, ok := r.records[fileID]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file record", fmt.Errorf("imagefileid %s", fileID))
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeFileRepo) ClaimPending(_ context.Context, fileID string, startedAt time.Time) (bool, error) {
	r.claimCalls++
	rec, ok := r.records[fileID]
	if !ok || rec.Status != domain.StatusPending {
		return false, nil
	}
	rec.Status = domain.StatusDownloading
	rec.ProcessingStartedAt = &startedAt
	return true, nil
}

func (r *fakeFileRepo) UpdateStatus(_ context.Context, fileID string, status domain.ProcessingStatus, message string) error {
	rec, ok := r.records[fileID]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.Status = status
	rec.StatusMessage = message
	r.statusHistory = append(r.statusHistory, status)
	return nil
}

func (r *fakeFileRepo) RecordFailure(_ context.Context, fileID string, lastError string) error {
	rec, ok := r.records[fileID]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.ErrorCount++
	rec.LastError = lastError
	r.failures = append(r.failures, lastError)
	return nil
}

func (r *fakeFileRepo) SaveAnalysis(_ context.Context, fileID string, result domain.AnalysisResult) error {
	r.savedAnalysis[fileID] = result
	return nil
}

func (r *fakeFileRepo) SetDocumentID(_ context.Context, fileID string, documentID string) error {
	rec, ok := r.records[fileID]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.DocumentID = &documentID
	return nil
}

func (r *fakeFileRepo) ClearDocumentID(_ context.Context, fileID string, message string) error {
	rec, ok := r.records[fileID]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.DocumentID = nil
	rec.Status = domain.StatusSkipped
	rec.StatusMessage = message
	r.cleared = append(r.cleared, fileID)
	return nil
}

func (r *fakeFileRepo) ResetToPending(_ context.Context, fileID string, message string) error {
	rec, ok := r.records[fileID]
	if !ok {
		return domain.ErrFileNotFound
	}
	rec.Status = domain.StatusPending
	rec.StatusMessage = message
	rec.DocumentID = nil
	return nil
}

func (r *fakeFileRepo) ListPendingMainText(_ context.Context, limit int) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, rec := range r.records {
		if rec.Status == domain.StatusPending && rec.IsMainText && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) ListPublishedByCategory(_ context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, rec := range r.records {
		if rec.Category == category && rec.Published() && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) ListPublishedExcludingCategory(_ context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, rec := range r.records {
		if rec.Category != category && rec.Published() && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) FindPublishedByTitle(_ context.Context, category domain.BusinessCategory, title string) ([]domain.FileRecord, error) {
	var out []domain.FileRecord
	for _, rec := range r.records {
		if rec.Category == category && rec.Published() && strings.Contains(rec.Filename, "《"+title+"》") {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeFileRepo) List(_ context.Context, _ ports.FileFilter) ([]domain.FileRecord, int, error) {
	var out []domain.FileRecord
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out, len(out), nil
}

func (r *fakeFileRepo) StatusCounts(_ context.Context) (map[domain.ProcessingStatus]int, error) {
	counts := map[domain.ProcessingStatus]int{}
	for _, rec := range r.records {
		counts[rec.Status]++
	}
	return counts, nil
}

type fakeLogStore struct {
	entries []domain.ProcessingLogEntry
}

func (s *fakeLogStore) Append(_ context.Context, entry domain.ProcessingLogEntry) error {
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeLogStore) ListByFileID(_ context.Context, fileID string) ([]domain.ProcessingLogEntry, error) {
	var out []domain.ProcessingLogEntry
	for _, e := range s.entries {
		if e.FileID == fileID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeLogStore) byStatus(status domain.StepStatus) []domain.ProcessingLogEntry {
	var out []domain.ProcessingLogEntry
	for _, e := range s.entries {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

type fakeStorage struct {
	objects map[string][]byte
	err     error
	calls   int
}

func (s *fakeStorage) Fetch(_ context.Context, token string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.objects[token]
	if !ok {
		return nil, domain.WrapError(domain.ErrObjectNotFound, "fetch", fmt.Errorf("token %s", token))
	}
	return data, nil
}

type passthroughDecryptor struct {
	err error
}

func (d *passthroughDecryptor) Decrypt(data []byte, _ string) ([]byte, error) {
	if d.err != nil {
		return nil, d.err
	}
	return data, nil
}

type fakeExtractor struct {
	filename string
	content  []byte
	err      error
}

func (e *fakeExtractor) ExtractSingle(_ []byte) (string, []byte, error) {
	return e.filename, e.content, e.err
}

type fakeParser struct {
	result domain.ParseResult
}

func (p *fakeParser) Parse(_ context.Context, data []byte, _ string) domain.ParseResult {
	if p.result.Success || p.result.Error != "" {
		return p.result
	}
	return domain.ParseResult{
		Success:  true,
		Content:  string(data),
		Metadata: domain.ParseMetadata{FileType: "txt"},
	}
}

type fakeAnalyzer struct {
	result   domain.AnalysisResult
	decision domain.RoutingDecision
	err      error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, _, _ string, _ *domain.FileRecord, _ domain.ParseMetadata) (domain.AnalysisResult, domain.RoutingDecision, error) {
	return a.result, a.decision, a.err
}

type fakeKB struct {
	publishErr error
	deleteErr  error
	published  []string
	deleted    []string
	nextDocID  string
}

func (kb *fakeKB) PublishText(_ context.Context, _ domain.KnowledgeBaseTarget, _, filename string, _ map[string]any) (string, error) {
	if kb.publishErr != nil {
		return "", kb.publishErr
	}
	kb.published = append(kb.published, filename)
	if kb.nextDocID == "" {
		kb.nextDocID = "doc-1"
	}
	return kb.nextDocID, nil
}

func (kb *fakeKB) Delete(_ context.Context, _ domain.KnowledgeBaseTarget, documentID string) error {
	if kb.deleteErr != nil {
		return kb.deleteErr
	}
	kb.deleted = append(kb.deleted, documentID)
	return nil
}

type fakeQueue struct {
	tasks []domain.Task
	err   error
}

func (q *fakeQueue) Submit(_ context.Context, task domain.Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, _ func(context.Context, domain.Task) error) error {
	return nil
}

type fakeTargets struct {
	target *domain.KnowledgeBaseTarget
	err    error
}

func (t *fakeTargets) TargetFor(_ context.Context, _ domain.BusinessCategory) (*domain.KnowledgeBaseTarget, error) {
	return t.target, t.err
}

type fakeComparer struct {
	cmp   domain.VersionComparison
	err   error
	calls int
}

func (c *fakeComparer) CompareVersions(_ context.Context, _ []domain.VersionCandidate) (domain.VersionComparison, error) {
	c.calls++
	return c.cmp, c.err
}

type fakeJudge struct {
	judgment domain.ExpirationJudgment
	err      error
	calls    int
}

func (j *fakeJudge) JudgeExpiration(_ context.Context, _, _ string, _ time.Time) (domain.ExpirationJudgment, error) {
	j.calls++
	return j.judgment, j.err
}
