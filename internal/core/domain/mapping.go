package domain

import "time"

// Routing defaults applied when no active category mapping exists.
const (
	DefaultAutoApproveThreshold = 80
	DefaultMinConfidence        = 40
)

// KnowledgeBaseTarget identifies one external knowledge-base dataset together
// with the credentials needed to reach it.
type KnowledgeBaseTarget struct {
	Name      string `json:"name"`
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"-"`
	DatasetID string `json:"dataset_id"`
}

// CategoryMapping binds a business category to a knowledge-base target plus
// the prompt requirements and confidence thresholds used for that category.
// Multiple historical rows may exist per category; only one is expected to be
// active at a time, first match wins if that expectation is violated.
type CategoryMapping struct {
	ID                 int64               `json:"id"`
	Category           BusinessCategory    `json:"business_category"`
	Target             KnowledgeBaseTarget `json:"target"`
	PromptRequirements string              `json:"prompt_requirements,omitempty"`
	MinConfidence      int                 `json:"min_confidence_score"`
	AutoApprove        int                 `json:"auto_approve_threshold"`
	IsActive           bool                `json:"is_active"`
	IsDefault          bool                `json:"is_default"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// RoutingDecision is what the analyzer hands the orchestrator alongside the
// analysis result: the resolved target (nil when no active KB exists) and the
// thresholds that apply to this document.
type RoutingDecision struct {
	Target        *KnowledgeBaseTarget
	MinConfidence int
	AutoApprove   int
}

// DefaultRouting returns a decision with no target and default thresholds.
func DefaultRouting() RoutingDecision {
	return RoutingDecision{
		MinConfidence: DefaultMinConfidence,
		AutoApprove:   DefaultAutoApproveThreshold,
	}
}
