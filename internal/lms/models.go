package lms

import "time"

// AttendanceScan is an attendance action recorded on the device. While it
// sits in the local queue it has not been confirmed by the remote API.
type AttendanceScan struct {
	ID             int64     // local auto-increment, defines drain order
	SubjectID      string    `validate:"required"`
	ClassID        int64     `validate:"gt=0"`
	ActorID        int64     `validate:"gt=0"`
	ScannedAt      time.Time `validate:"required"`
	IdempotencyKey string    // sent with every delivery attempt
	Attempts       int
	LastError      string
	CreatedAt      time.Time
}

// Sync run kinds.
const (
	RunKindDrain  = "drain"
	RunKindResync = "resync"
)

// Sync run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusError   = "error"
)

// SyncRun is one recorded drain or resync pass.
type SyncRun struct {
	ID         int64
	Kind       string
	Status     string
	Detail     string
	StartedAt  time.Time
	FinishedAt *time.Time
}
