package domain

// DedupGroupDetail records one resolved duplicate group.
type DedupGroupDetail struct {
	Title        string `json:"title"`
	LatestFileID string `json:"latest_document"`
	DeletedCount int    `json:"deleted_count"`
	Reasoning    string `json:"reasoning"`
}

// DedupStats accumulates over one version-deduplication sweep run.
type DedupStats struct {
	Processed       int                `json:"processed"`
	DuplicatesFound int                `json:"duplicates_found"`
	Deleted         int                `json:"deleted"`
	Errors          int                `json:"errors"`
	Details         []DedupGroupDetail `json:"details"`
}

// ExpiryDetail records one retired document.
type ExpiryDetail struct {
	Filename       string `json:"filename"`
	CheckMethod    string `json:"check_method"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	Reasoning      string `json:"reasoning,omitempty"`
}

// ExpiryStats accumulates over one expiration sweep run.
type ExpiryStats struct {
	Processed         int            `json:"processed"`
	ExpiredByMetadata int            `json:"expired_by_metadata"`
	ExpiredByAI       int            `json:"expired_by_ai"`
	Deleted           int            `json:"deleted"`
	Errors            int            `json:"errors"`
	Details           []ExpiryDetail `json:"details"`
}
