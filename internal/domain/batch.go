package domain

import "time"

// BatchStatus enumerates batch lifecycle states.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// Terminal reports whether no further processing can occur for the status.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// BatchJob groups a set of prompts generated with shared parameters.
// Progress counters are only ever advanced by the batch processor;
// completed + failed never exceeds total, and equals it exactly when the
// batch reaches a terminal state.
type BatchJob struct {
	ID             string
	UserID         string
	Name           string
	Size           string
	StylePreset    string
	AutoSync       bool
	Status         BatchStatus
	TotalCount     int
	CompletedCount int
	FailedCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ItemStatus enumerates batch-item lifecycle states.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// BatchJobItem is a single prompt within a batch. Items are processed in
// creation order. A processing item whose lease has expired is eligible
// for re-pickup; AttemptCount makes repeated pickups observable.
type BatchJobItem struct {
	ID             string
	BatchID        string
	Position       int
	Prompt         string
	Status         ItemStatus
	ArtifactID     string
	ErrorMessage   string
	AttemptCount   int
	LeaseExpiresAt *time.Time
	SyncedAt       *time.Time
	CreatedAt      time.Time
}
