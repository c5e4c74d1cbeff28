package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/oa-knowledge-pipeline/internal/core/domain"
)

// StripFences removes a markdown code fence wrapping an AI reply, tolerating
// a ```json language tag and surrounding whitespace.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		first := strings.TrimSpace(s[:nl])
		if first == "json" || first == "" {
			s = s[nl+1:]
		}
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// extractJSONObject cuts the first-{ to last-} span out of a reply that mixes
// prose with a JSON payload.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func decodeJSONReply(raw string, out any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}
	obj, ok := extractJSONObject(cleaned)
	if !ok {
		return fmt.Errorf("no JSON object in reply")
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("decode reply JSON: %w", err)
	}
	return nil
}

// rawAnalysis is the loose shape decoded straight from the model before
// normalization. Scores tolerate float replies.
type rawAnalysis struct {
	SuitableForKB   bool                     `json:"suitable_for_kb"`
	ConfidenceScore float64                  `json:"confidence_score"`
	Category        string                   `json:"category"`
	Reasons         []string                 `json:"reasons"`
	Summary         string                   `json:"summary"`
	KeyTopics       []string                 `json:"key_topics"`
	QualityScore    float64                  `json:"quality_score"`
	Completeness    string                   `json:"completeness"`
	Metadata        *domain.DocumentMetadata `json:"ai_metadata"`
}

func (r rawAnalysis) normalize(model string) domain.AnalysisResult {
	res := domain.AnalysisResult{
		SuitableForKB:   r.SuitableForKB,
		ConfidenceScore: clampScore(r.ConfidenceScore),
		Category:        strings.TrimSpace(r.Category),
		Reasons:         r.Reasons,
		Summary:         strings.TrimSpace(r.Summary),
		KeyTopics:       r.KeyTopics,
		QualityScore:    clampScore(r.QualityScore),
		Completeness:    strings.TrimSpace(r.Completeness),
		AnalysisMethod:  domain.MethodAI,
		ModelVersion:    model,
		Metadata:        r.Metadata,
	}
	if res.Category == "" {
		res.Category = "other"
	}
	switch res.Completeness {
	case "complete", "partial", "fragment":
	default:
		res.Completeness = "partial"
	}
	if len(res.KeyTopics) > 5 {
		res.KeyTopics = res.KeyTopics[:5]
	}
	if res.Reasons == nil {
		res.Reasons = []string{}
	}
	return res
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return int(v)
	}
}
