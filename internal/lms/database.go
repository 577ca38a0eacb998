package lms

import "context"

// Database is the embedded relational store. It holds the offline write
// queue and the sync run history.
type Database interface {
	// Attendance queue operations

	// InsertAttendance stores a pending scan and returns it with its
	// auto-increment ID populated.
	InsertAttendance(ctx context.Context, scan *AttendanceScan) (*AttendanceScan, error)

	// ListPendingAttendance returns every pending scan in insertion order.
	ListPendingAttendance(ctx context.Context) ([]*AttendanceScan, error)

	// DeleteAttendance removes a confirmed scan.
	DeleteAttendance(ctx context.Context, id int64) error

	// MarkAttendanceFailed increments the attempt counter and records the error.
	MarkAttendanceFailed(ctx context.Context, id int64, errMsg string) error

	// CountPendingAttendance returns the number of pending scans.
	CountPendingAttendance(ctx context.Context) (int, error)

	// CountStalledAttendance returns the number of pending scans with at
	// least minAttempts failed deliveries.
	CountStalledAttendance(ctx context.Context, minAttempts int) (int, error)

	// Sync run tracking

	// CreateSyncRun records the start of a drain or resync pass.
	CreateSyncRun(ctx context.Context, kind string) (*SyncRun, error)

	// FinishSyncRun records the outcome of a pass.
	FinishSyncRun(ctx context.Context, id int64, status string, detail string) error

	// ListSyncRuns returns the most recent runs, newest first.
	ListSyncRuns(ctx context.Context, limit int) ([]*SyncRun, error)

	// Close closes the database connection.
	Close() error
}
