package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// MappingRepository reads category to knowledge-base routing rows. Historical
// rows stay in the table; only is_active ones route, newest first.
type MappingRepository struct {
	db *sql.DB
}

func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

const mappingColumns = `id, business_category, kb_name, kb_base_url, kb_api_key, kb_dataset_id,
prompt_requirements, min_confidence_score, auto_approve_threshold, is_active, is_default, created_at, updated_at`

func (r *MappingRepository) ActiveForCategory(ctx context.Context, category domain.BusinessCategory) (*domain.CategoryMapping, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+mappingColumns+`
FROM category_kb_mappings
WHERE business_category = $1 AND is_active = TRUE
ORDER BY updated_at DESC
LIMIT 1
`, string(category))

	mapping, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan category mapping: %w", err)
	}
	return mapping, nil
}

func (r *MappingRepository) DefaultActive(ctx context.Context) (*domain.CategoryMapping, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+mappingColumns+`
FROM category_kb_mappings
WHERE is_default = TRUE AND is_active = TRUE
ORDER BY updated_at DESC
LIMIT 1
`)

	mapping, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan default mapping: %w", err)
	}
	return mapping, nil
}

// SeedDefault inserts a default fallback mapping when the table has no
// active rows, so a fresh install can route documents from configuration
// alone.
func (r *MappingRepository) SeedDefault(ctx context.Context, target domain.KnowledgeBaseTarget, minConfidence, autoApprove int) error {
	var active int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM category_kb_mappings WHERE is_active = TRUE`).Scan(&active); err != nil {
		return fmt.Errorf("count active mappings: %w", err)
	}
	if active > 0 {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO category_kb_mappings (
	business_category, kb_name, kb_base_url, kb_api_key, kb_dataset_id,
	min_confidence_score, auto_approve_threshold, is_active, is_default, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE,TRUE,NOW(),NOW())
`, "", target.Name, target.BaseURL, target.APIKey, target.DatasetID, minConfidence, autoApprove)
	if err != nil {
		return fmt.Errorf("seed default mapping: %w", err)
	}
	return nil
}

func scanMapping(row rowScanner) (*domain.CategoryMapping, error) {
	var m domain.CategoryMapping
	var category string
	err := row.Scan(
		&m.ID, &category, &m.Target.Name, &m.Target.BaseURL, &m.Target.APIKey, &m.Target.DatasetID,
		&m.PromptRequirements, &m.MinConfidence, &m.AutoApprove, &m.IsActive, &m.IsDefault,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Category = domain.BusinessCategory(category)
	return &m, nil
}
