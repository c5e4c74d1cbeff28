package domain

import "time"

// BusinessCategory is one of the eight fixed OA classification buckets that
// drive prompt selection and knowledge-base routing.
type BusinessCategory string

const (
	CategoryHeadquartersIssue     BusinessCategory = "headquarters_issue"
	CategoryRetailAnnouncement    BusinessCategory = "retail_announcement"
	CategoryPublicationRelease    BusinessCategory = "publication_release"
	CategoryBranchIssue           BusinessCategory = "branch_issue"
	CategoryBranchReceive         BusinessCategory = "branch_receive"
	CategoryPublicStandard        BusinessCategory = "public_standard"
	CategoryHeadquartersReceive   BusinessCategory = "headquarters_receive"
	CategoryCorporateAnnouncement BusinessCategory = "corporate_announcement"
)

func AllCategories() []BusinessCategory {
	return []BusinessCategory{
		CategoryHeadquartersIssue,
		CategoryRetailAnnouncement,
		CategoryPublicationRelease,
		CategoryBranchIssue,
		CategoryBranchReceive,
		CategoryPublicStandard,
		CategoryHeadquartersReceive,
		CategoryCorporateAnnouncement,
	}
}

func (c BusinessCategory) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

type ProcessingStatus string

const (
	StatusPending          ProcessingStatus = "pending"
	StatusDownloading      ProcessingStatus = "downloading"
	StatusDecrypting       ProcessingStatus = "decrypting"
	StatusParsing          ProcessingStatus = "parsing"
	StatusAnalyzing        ProcessingStatus = "analyzing"
	StatusAwaitingApproval ProcessingStatus = "awaiting_approval"
	StatusCompleted        ProcessingStatus = "completed"
	StatusFailed           ProcessingStatus = "failed"
	StatusSkipped          ProcessingStatus = "skipped"
)

// Terminal reports whether the status ends a processing attempt.
// AwaitingApproval is not terminal: the approval task resumes the record.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// InFlight reports whether a worker currently owns the record.
func (s ProcessingStatus) InFlight() bool {
	switch s {
	case StatusDownloading, StatusDecrypting, StatusParsing, StatusAnalyzing:
		return true
	default:
		return false
	}
}

// FileRecord is one ingested OA file, keyed externally by ImageFileID.
type FileRecord struct {
	ID            int64            `json:"id"`
	ImageFileID   string           `json:"imagefileid"`
	Filename      string           `json:"filename"`
	FileType      string           `json:"file_type,omitempty"`
	IsMainText    bool             `json:"is_main_text"`
	IsArchive     bool             `json:"is_archive"`
	AttachmentIDs []string         `json:"attachment_ids,omitempty"`
	Category      BusinessCategory `json:"business_category"`
	FileSize      int64            `json:"filesize,omitempty"`
	StorageToken  string           `json:"-"`
	DecryptCode   string           `json:"-"`

	Status                ProcessingStatus `json:"processing_status"`
	StatusMessage         string           `json:"processing_message,omitempty"`
	ProcessingStartedAt   *time.Time       `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time       `json:"processing_completed_at,omitempty"`

	AnalysisJSON    string `json:"-"`
	ConfidenceScore *int   `json:"ai_confidence_score,omitempty"`
	ShouldAddToKB   *bool  `json:"should_add_to_kb,omitempty"`

	DocumentID *string `json:"document_id,omitempty"`

	SyncSource string     `json:"sync_source,omitempty"`
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Published reports whether the record is backed by a live KB document.
func (r *FileRecord) Published() bool {
	return r.DocumentID != nil && *r.DocumentID != ""
}

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepPending StepStatus = "pending"
	StepSkipped StepStatus = "skipped"
)

// ProcessingLogEntry is one append-only audit record per pipeline step.
type ProcessingLogEntry struct {
	ID              int64      `json:"id"`
	FileID          string     `json:"file_id"`
	Step            string     `json:"step"`
	Status          StepStatus `json:"status"`
	Message         string     `json:"message,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ProcessSummary is the structured result of one orchestrator run.
type ProcessSummary struct {
	FileID          string           `json:"file_id"`
	Status          ProcessingStatus `json:"status"`
	DurationSeconds float64          `json:"duration_seconds"`
	Analysis        *AnalysisResult  `json:"analysis_result,omitempty"`
	KnowledgeBase   string           `json:"knowledge_base,omitempty"`
}
