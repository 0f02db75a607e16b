// Package engine implements the asynchronous generation job engine: the job
// lifecycle state machine, the persisted job store, the dispatcher that
// detaches execution from the request path, and the progress contract
// consumed by polling clients.
package engine

import (
	"time"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for the absorbing states a job never leaves.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Result is the opaque map written exactly once at the terminal transition.
// It holds references to produced artifacts, per-item error detail, or a
// single top-level error description when the job itself failed.
type Result map[string]interface{}

// Job is the unit of trackable asynchronous generation work.
//
// A Job belongs to exactly one tenant and optionally one initiating user.
// Counters only ever increment, and at every committed snapshot
// CompletedItems+FailedItems <= TotalItems. The status machine moves strictly
// forward: pending -> processing -> completed|failed.
type Job struct {
	ID             string     `json:"id"`
	TenantID       string     `json:"tenant_id"`
	OwnerID        string     `json:"owner_id,omitempty"`
	Kind           string     `json:"kind"`
	TotalItems     int        `json:"total_items"`
	CompletedItems int        `json:"completed_items"`
	FailedItems    int        `json:"failed_items"`
	Status         JobStatus  `json:"status"`
	Result         Result     `json:"result,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AttemptedItems returns how many items have finished, successfully or not.
func (j *Job) AttemptedItems() int {
	return j.CompletedItems + j.FailedItems
}
