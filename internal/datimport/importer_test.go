package datimport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

const sep = "\x01"

func datLine(fileID string) string {
	return strings.Join([]string{
		fileID,
		"关于印发《信贷管理办法》的通知.pdf",
		"204800",
		"pdf",
		"1",
		"0",
		"att-1,att-2",
		"headquarters_issue",
		"oss-token-" + fileID,
		"825478",
		"2026-03-09",
	}, sep)
}

func TestParseLineDecodesRecord(t *testing.T) {
	rec, err := ParseLine(datLine("f-1"))
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if rec.ImageFileID != "f-1" {
		t.Errorf("file id = %q", rec.ImageFileID)
	}
	if !rec.IsMainText || rec.IsArchive {
		t.Errorf("flags = main:%t archive:%t, want main only", rec.IsMainText, rec.IsArchive)
	}
	if rec.Category != domain.CategoryHeadquartersIssue {
		t.Errorf("category = %s", rec.Category)
	}
	if len(rec.AttachmentIDs) != 2 {
		t.Errorf("attachments = %v, want 2 ids", rec.AttachmentIDs)
	}
	if rec.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.SyncSource != "dat" {
		t.Errorf("sync source = %q", rec.SyncSource)
	}
	if rec.LastSyncAt == nil || rec.LastSyncAt.Format("2006-01-02") != "2026-03-09" {
		t.Errorf("last sync = %v", rec.LastSyncAt)
	}
	if rec.FileSize != 204800 {
		t.Errorf("filesize = %d", rec.FileSize)
	}
}

func TestParseLineRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"too few fields", "a" + sep + "b"},
		{"empty file id", strings.Replace(datLine("f-1"), "f-1"+sep, sep, 1)},
		{"bad category", strings.Replace(datLine("f-1"), "headquarters_issue", "mystery", 1)},
		{"bad filesize", strings.Replace(datLine("f-1"), "204800", "lots", 1)},
		{"empty token", strings.Replace(datLine("f-1"), "oss-token-f-1", " ", 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseLine(tc.line); err == nil {
				t.Errorf("ParseLine accepted %q", tc.line)
			}
		})
	}
}

// importRepo is the minimal repository surface the importer touches.
type importRepo struct {
	records map[string]*domain.FileRecord
	created int
	updated int
}

func newImportRepo() *importRepo {
	return &importRepo{records: map[string]*domain.FileRecord{}}
}

func (r *importRepo) Create(_ context.Context, rec *domain.FileRecord) error {
	rec.ID = int64(len(r.records) + 1)
	r.records[rec.ImageFileID] = rec
	r.created++
	return nil
}

func (r *importRepo) Update(_ context.Context, rec *domain.FileRecord) error {
	r.records[rec.ImageFileID] = rec
	r.updated++
	return nil
}

func (r *importRepo) GetByFileID(_ context.Context, fileID string) (*domain.FileRecord, error) {
	rec, ok := r.records[fileID]
	if !ok {
		return nil, domain.WrapError(domain.ErrFileNotFound, "get file record", fmt.Errorf("imagefileid %s", fileID))
	}
	copied := *rec
	return &copied, nil
}

func (r *importRepo) ClaimPending(context.Context, string, time.Time) (bool, error) { return false, nil }
func (r *importRepo) UpdateStatus(context.Context, string, domain.ProcessingStatus, string) error {
	return nil
}
func (r *importRepo) RecordFailure(context.Context, string, string) error { return nil }
func (r *importRepo) SaveAnalysis(context.Context, string, domain.AnalysisResult) error {
	return nil
}
func (r *importRepo) SetDocumentID(context.Context, string, string) error   { return nil }
func (r *importRepo) ClearDocumentID(context.Context, string, string) error { return nil }
func (r *importRepo) ResetToPending(context.Context, string, string) error  { return nil }
func (r *importRepo) ListPendingMainText(context.Context, int) ([]domain.FileRecord, error) {
	return nil, nil
}
func (r *importRepo) ListPublishedByCategory(context.Context, domain.BusinessCategory, int) ([]domain.FileRecord, error) {
	return nil, nil
}
func (r *importRepo) ListPublishedExcludingCategory(context.Context, domain.BusinessCategory, int) ([]domain.FileRecord, error) {
	return nil, nil
}
func (r *importRepo) FindPublishedByTitle(context.Context, domain.BusinessCategory, string) ([]domain.FileRecord, error) {
	return nil, nil
}
func (r *importRepo) List(context.Context, ports.FileFilter) ([]domain.FileRecord, int, error) {
	return nil, 0, nil
}
func (r *importRepo) StatusCounts(context.Context) (map[domain.ProcessingStatus]int, error) {
	return nil, nil
}

func testImporter(repo ports.FileRepository) *Importer {
	return NewImporter(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImportReaderCreatesAndCountsErrors(t *testing.T) {
	input := strings.Join([]string{
		datLine("f-1"),
		"malformed line without delimiters",
		datLine("f-2"),
		"",
	}, "\n")
	repo := newImportRepo()

	stats, err := testImporter(repo).ImportReader(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("ImportReader returned error: %v", err)
	}
	if stats.Lines != 3 {
		t.Errorf("lines = %d, want 3 non-empty lines", stats.Lines)
	}
	if stats.Created != 2 || stats.Errors != 1 || stats.Updated != 0 {
		t.Errorf("stats = %+v, want 2 created and 1 error", stats)
	}
}

func TestImportPreservesProcessingState(t *testing.T) {
	repo := newImportRepo()
	existing, err := ParseLine(datLine("f-1"))
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	existing.ID = 7
	existing.Status = domain.StatusCompleted
	repo.records["f-1"] = existing

	updatedName := strings.Replace(datLine("f-1"), "关于印发《信贷管理办法》的通知.pdf", "更名后的通知.pdf", 1)
	stats, err := testImporter(repo).ImportReader(context.Background(), strings.NewReader(updatedName))
	if err != nil {
		t.Fatalf("ImportReader returned error: %v", err)
	}
	if stats.Updated != 1 || stats.Created != 0 {
		t.Fatalf("stats = %+v, want one update", stats)
	}

	rec := repo.records["f-1"]
	if rec.ID != 7 {
		t.Errorf("id = %d, re-import must keep the row id", rec.ID)
	}
	if rec.Status != domain.StatusCompleted {
		t.Errorf("status = %s, re-import must not reset processing state", rec.Status)
	}
	if rec.Filename != "更名后的通知.pdf" {
		t.Errorf("filename = %q, descriptive fields should refresh", rec.Filename)
	}
}

func TestLatestDATFilePicksNewestExport(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	dayDir := filepath.Join(dir, "20260309")
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"export_0100.dat", "export_0900.dat", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dayDir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	path, err := LatestDATFile(dir, day)
	if err != nil {
		t.Fatalf("LatestDATFile returned error: %v", err)
	}
	if filepath.Base(path) != "export_0900.dat" {
		t.Errorf("picked %s, want the lexically newest export", path)
	}
}

func TestLatestDATFileFailsWithoutExports(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "20260309"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := LatestDATFile(dir, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for a day without dat files")
	}
}
