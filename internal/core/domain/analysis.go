package domain

type AnalysisMethod string

const (
	MethodAI        AnalysisMethod = "ai"
	MethodRuleBased AnalysisMethod = "rule_based"
	MethodFailed    AnalysisMethod = "failed"
)

// DocumentMetadata carries category-specific structured fields extracted by
// the analyzer. Headquarters issuances get version/action, everything else
// gets validity dates.
type DocumentMetadata struct {
	VersionNumber  string `json:"version_number,omitempty"`
	DocumentAction string `json:"document_action,omitempty"`
	EffectiveDate  string `json:"effective_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

// AnalysisResult is the normalized suitability judgment for one document.
// ConfidenceScore and QualityScore are always clamped to [0,100].
type AnalysisResult struct {
	SuitableForKB   bool              `json:"suitable_for_kb"`
	ConfidenceScore int               `json:"confidence_score"`
	Category        string            `json:"category"`
	Reasons         []string          `json:"reasons"`
	Summary         string            `json:"summary"`
	KeyTopics       []string          `json:"key_topics"`
	QualityScore    int               `json:"quality_score"`
	Completeness    string            `json:"completeness"`
	AnalysisMethod  AnalysisMethod    `json:"analysis_method"`
	ModelVersion    string            `json:"model_version"`
	Metadata        *DocumentMetadata `json:"ai_metadata,omitempty"`
}

// FailedAnalysis is the degraded zero-confidence result recorded when the
// analyzer itself cannot produce a judgment. The pipeline still routes on it.
func FailedAnalysis(reason string) AnalysisResult {
	return AnalysisResult{
		SuitableForKB:   false,
		ConfidenceScore: 0,
		Category:        "unknown",
		Reasons:         []string{reason},
		AnalysisMethod:  MethodFailed,
	}
}

// ParseMetadata is the structural information the content parser reports
// alongside the extracted text.
type ParseMetadata struct {
	FileType   string `json:"file_type"`
	ChunkCount int    `json:"chunks_count"`
	Pages      int    `json:"pages,omitempty"`
	Encoding   string `json:"encoding,omitempty"`
	Title      string `json:"title,omitempty"`
}

// ParseResult is the structured outcome of content parsing. Unsupported or
// corrupt input is reported via Success=false, never via a panic or error.
type ParseResult struct {
	Success  bool          `json:"success"`
	Content  string        `json:"content"`
	Metadata ParseMetadata `json:"metadata"`
	Error    string        `json:"error,omitempty"`
}

// VersionCandidate is one member of a dedup comparison group.
type VersionCandidate struct {
	FileID   string
	Filename string
	Preview  string
}

// VersionComparison is the AI's group-level verdict on which candidate is the
// newest revision.
type VersionComparison struct {
	LatestFileID      string   `json:"latest_document_id"`
	OldFileIDs        []string `json:"old_document_ids"`
	Reasoning         string   `json:"reasoning"`
	VersionComparison string   `json:"version_comparison,omitempty"`
}

// ExpirationJudgment is the AI's single-document expiry verdict.
type ExpirationJudgment struct {
	Expired        bool   `json:"is_expired"`
	Reasoning      string `json:"reasoning"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	Confidence     int    `json:"confidence,omitempty"`
}
