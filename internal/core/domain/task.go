package domain

import "time"

type TaskKind string

const (
	TaskProcessDocument TaskKind = "process_document"
	TaskBatchProcess    TaskKind = "batch_process"
	TaskApproveDocument TaskKind = "approve_document"
	TaskVersionDedup    TaskKind = "version_dedup"
	TaskExpirationCheck TaskKind = "expiration_check"
)

// Task is the queue envelope consumed by workers. Delivery is at-least-once;
// the pipeline's pending-only claim makes duplicate deliveries no-ops.
type Task struct {
	ID          string    `json:"id"`
	Kind        TaskKind  `json:"kind"`
	FileID      string    `json:"file_id,omitempty"`
	Limit       int       `json:"limit,omitempty"`
	Approved    bool      `json:"approved,omitempty"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
