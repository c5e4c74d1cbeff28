package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/ports"
)

type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *FileRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS oa_file_info (
	id BIGSERIAL PRIMARY KEY,
	imagefileid TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	file_type TEXT,
	is_main_text BOOLEAN NOT NULL DEFAULT FALSE,
	is_archive BOOLEAN NOT NULL DEFAULT FALSE,
	attachment_ids JSONB NOT NULL DEFAULT '[]'::jsonb,
	business_category TEXT NOT NULL,
	filesize BIGINT NOT NULL DEFAULT 0,
	storage_token TEXT NOT NULL,
	decrypt_code TEXT NOT NULL DEFAULT '',
	processing_status TEXT NOT NULL DEFAULT 'pending',
	processing_message TEXT NOT NULL DEFAULT '',
	processing_started_at TIMESTAMPTZ,
	processing_completed_at TIMESTAMPTZ,
	analysis_result JSONB,
	ai_confidence_score INTEGER,
	should_add_to_kb BOOLEAN,
	document_id TEXT,
	sync_source TEXT NOT NULL DEFAULT '',
	last_sync_at TIMESTAMPTZ,
	error_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_oa_file_info_status ON oa_file_info(processing_status);
CREATE INDEX IF NOT EXISTS idx_oa_file_info_category ON oa_file_info(business_category);
CREATE INDEX IF NOT EXISTS idx_oa_file_info_created_at ON oa_file_info(created_at DESC);

CREATE TABLE IF NOT EXISTS processing_logs (
	id BIGSERIAL PRIMARY KEY,
	file_id TEXT NOT NULL,
	step TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processing_logs_file_id ON processing_logs(file_id, created_at);

CREATE TABLE IF NOT EXISTS category_kb_mappings (
	id BIGSERIAL PRIMARY KEY,
	business_category TEXT NOT NULL,
	kb_name TEXT NOT NULL,
	kb_base_url TEXT NOT NULL,
	kb_api_key TEXT NOT NULL,
	kb_dataset_id TEXT NOT NULL,
	prompt_requirements TEXT NOT NULL DEFAULT '',
	min_confidence_score INTEGER NOT NULL DEFAULT 40,
	auto_approve_threshold INTEGER NOT NULL DEFAULT 80,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_category_kb_mappings_category ON category_kb_mappings(business_category, is_active);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

const fileColumns = `id, imagefileid, filename, file_type, is_main_text, is_archive, attachment_ids,
business_category, filesize, storage_token, decrypt_code,
processing_status, processing_message, processing_started_at, processing_completed_at,
analysis_result, ai_confidence_score, should_add_to_kb, document_id,
sync_source, last_sync_at, error_count, last_error, created_at, updated_at`

func (r *FileRepository) Create(ctx context.Context, rec *domain.FileRecord) error {
	attachmentsJSON, err := json.Marshal(rec.AttachmentIDs)
	if err != nil {
		return fmt.Errorf("marshal attachment ids: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `
INSERT INTO oa_file_info (
	imagefileid, filename, file_type, is_main_text, is_archive, attachment_ids,
	business_category, filesize, storage_token, decrypt_code,
	processing_status, processing_message, sync_source, last_sync_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id
`,
		rec.ImageFileID, rec.Filename, rec.FileType, rec.IsMainText, rec.IsArchive, attachmentsJSON,
		string(rec.Category), rec.FileSize, rec.StorageToken, rec.DecryptCode,
		string(rec.Status), rec.StatusMessage, rec.SyncSource, rec.LastSyncAt, rec.CreatedAt, rec.UpdatedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("insert file record: %w", err)
	}
	return nil
}

func (r *FileRepository) Update(ctx context.Context, rec *domain.FileRecord) error {
	attachmentsJSON, err := json.Marshal(rec.AttachmentIDs)
	if err != nil {
		return fmt.Errorf("marshal attachment ids: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET filename = $2, file_type = $3, is_main_text = $4, is_archive = $5, attachment_ids = $6,
	business_category = $7, filesize = $8, storage_token = $9, decrypt_code = $10,
	sync_source = $11, last_sync_at = $12, updated_at = $13
WHERE imagefileid = $1
`,
		rec.ImageFileID, rec.Filename, rec.FileType, rec.IsMainText, rec.IsArchive, attachmentsJSON,
		string(rec.Category), rec.FileSize, rec.StorageToken, rec.DecryptCode,
		rec.SyncSource, rec.LastSyncAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update file record: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByFileID(ctx context.Context, fileID string) (*domain.FileRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+fileColumns+`
FROM oa_file_info
WHERE imagefileid = $1
`, fileID)

	rec, err := scanFileRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "get file record", fmt.Errorf("imagefileid %s", fileID))
		}
		return nil, fmt.Errorf("scan file record: %w", err)
	}
	return rec, nil
}

// ClaimPending is the concurrency gate of the pipeline: the pending-only
// predicate plus RowsAffected makes exactly one claimer win per record.
func (r *FileRepository) ClaimPending(ctx context.Context, fileID string, startedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET processing_status = $2, processing_message = '', processing_started_at = $3, updated_at = $3
WHERE imagefileid = $1 AND processing_status = $4
`, fileID, string(domain.StatusDownloading), startedAt.UTC(), string(domain.StatusPending))
	if err != nil {
		return false, fmt.Errorf("claim pending record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *FileRepository) UpdateStatus(ctx context.Context, fileID string, status domain.ProcessingStatus, message string) error {
	now := time.Now().UTC()
	var completedAt any
	if status.Terminal() {
		completedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET processing_status = $2, processing_message = $3,
	processing_completed_at = COALESCE($4, processing_completed_at),
	updated_at = $5
WHERE imagefileid = $1
`, fileID, string(status), message, completedAt, now)
	if err != nil {
		return fmt.Errorf("update processing status: %w", err)
	}
	return nil
}

func (r *FileRepository) RecordFailure(ctx context.Context, fileID string, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET error_count = error_count + 1, last_error = $2, updated_at = $3
WHERE imagefileid = $1
`, fileID, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func (r *FileRepository) SaveAnalysis(ctx context.Context, fileID string, result domain.AnalysisResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET analysis_result = $2, ai_confidence_score = $3, should_add_to_kb = $4, updated_at = $5
WHERE imagefileid = $1
`, fileID, raw, result.ConfidenceScore, result.SuitableForKB, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	return nil
}

func (r *FileRepository) SetDocumentID(ctx context.Context, fileID string, documentID string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET document_id = $2, updated_at = $3
WHERE imagefileid = $1
`, fileID, documentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set document id: %w", err)
	}
	return nil
}

func (r *FileRepository) ClearDocumentID(ctx context.Context, fileID string, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET document_id = NULL, processing_status = $2, processing_message = $3, updated_at = $4
WHERE imagefileid = $1
`, fileID, string(domain.StatusSkipped), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear document id: %w", err)
	}
	return nil
}

func (r *FileRepository) ResetToPending(ctx context.Context, fileID string, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE oa_file_info
SET processing_status = $2, processing_message = $3,
	processing_started_at = NULL, processing_completed_at = NULL,
	document_id = NULL, updated_at = $4
WHERE imagefileid = $1
`, fileID, string(domain.StatusPending), message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset to pending: %w", err)
	}
	return nil
}

func (r *FileRepository) ListPendingMainText(ctx context.Context, limit int) ([]domain.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fileColumns+`
FROM oa_file_info
WHERE processing_status = $1 AND is_main_text = TRUE
ORDER BY created_at ASC
LIMIT $2
`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending files: %w", err)
	}
	return collectFileRecords(rows)
}

func (r *FileRepository) ListPublishedByCategory(ctx context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fileColumns+`
FROM oa_file_info
WHERE business_category = $1 AND document_id IS NOT NULL
ORDER BY created_at DESC
LIMIT $2
`, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("list published files: %w", err)
	}
	return collectFileRecords(rows)
}

func (r *FileRepository) ListPublishedExcludingCategory(ctx context.Context, category domain.BusinessCategory, limit int) ([]domain.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fileColumns+`
FROM oa_file_info
WHERE business_category <> $1 AND document_id IS NOT NULL
ORDER BY created_at ASC
LIMIT $2
`, string(category), limit)
	if err != nil {
		return nil, fmt.Errorf("list published files: %w", err)
	}
	return collectFileRecords(rows)
}

func (r *FileRepository) FindPublishedByTitle(ctx context.Context, category domain.BusinessCategory, title string) ([]domain.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+fileColumns+`
FROM oa_file_info
WHERE business_category = $1 AND document_id IS NOT NULL AND filename LIKE $2
ORDER BY created_at ASC
`, string(category), "%《"+title+"》%")
	if err != nil {
		return nil, fmt.Errorf("find files by title: %w", err)
	}
	return collectFileRecords(rows)
}

func (r *FileRepository) List(ctx context.Context, filter ports.FileFilter) ([]domain.FileRecord, int, error) {
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		where = append(where, "processing_status = "+arg(string(filter.Status)))
	}
	if filter.Category != "" {
		where = append(where, "business_category = "+arg(string(filter.Category)))
	}
	if filter.MainTextOnly != nil {
		where = append(where, "is_main_text = "+arg(*filter.MainTextOnly))
	}
	predicate := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM oa_file_info WHERE `+predicate, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.Size
	if size < 1 || size > 200 {
		size = 20
	}
	query := `SELECT ` + fileColumns + ` FROM oa_file_info WHERE ` + predicate +
		` ORDER BY created_at DESC LIMIT ` + arg(size) + ` OFFSET ` + arg((page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list files: %w", err)
	}
	records, err := collectFileRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (r *FileRepository) StatusCounts(ctx context.Context) (map[domain.ProcessingStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT processing_status, COUNT(*)
FROM oa_file_info
GROUP BY processing_status
`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := map[domain.ProcessingStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[domain.ProcessingStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*domain.FileRecord, error) {
	var rec domain.FileRecord
	var attachmentsRaw []byte
	var fileType, syncSource sql.NullString
	var analysisRaw []byte
	var status, message, lastError string

	err := row.Scan(
		&rec.ID, &rec.ImageFileID, &rec.Filename, &fileType, &rec.IsMainText, &rec.IsArchive, &attachmentsRaw,
		(*string)(&rec.Category), &rec.FileSize, &rec.StorageToken, &rec.DecryptCode,
		&status, &message, &rec.ProcessingStartedAt, &rec.ProcessingCompletedAt,
		&analysisRaw, &rec.ConfidenceScore, &rec.ShouldAddToKB, &rec.DocumentID,
		&syncSource, &rec.LastSyncAt, &rec.ErrorCount, &lastError, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attachmentsRaw) > 0 {
		if err := json.Unmarshal(attachmentsRaw, &rec.AttachmentIDs); err != nil {
			return nil, fmt.Errorf("unmarshal attachment ids: %w", err)
		}
	}
	rec.FileType = fileType.String
	rec.SyncSource = syncSource.String
	rec.Status = domain.ProcessingStatus(status)
	rec.StatusMessage = message
	rec.LastError = lastError
	rec.AnalysisJSON = string(analysisRaw)
	return &rec, nil
}

func collectFileRecords(rows *sql.Rows) ([]domain.FileRecord, error) {
	defer rows.Close()

	var records []domain.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file records: %w", err)
	}
	return records, nil
}
