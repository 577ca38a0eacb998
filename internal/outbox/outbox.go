// Package outbox is the durable queue of attendance scans that the server
// has not confirmed yet. A scan stays in the queue until a submission
// succeeds; there is no terminal failure state.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// ErrInvalidScan wraps validation failures from Enqueue and Record.
var ErrInvalidScan = errors.New("invalid attendance scan")

// Submitter delivers one scan to the server.
type Submitter interface {
	SubmitAttendance(ctx context.Context, scan *lms.AttendanceScan) error
}

// Queue owns the attendance table of the relational store.
type Queue struct {
	db        lms.Database
	submitter Submitter
	conn      lms.Connectivity
	clock     lms.Clock
	idgen     lms.IDGenerator
	logger    lms.Logger
	validate  *validator.Validate
	threshold int

	draining sync.Mutex
}

// NewQueue creates a Queue. stalledAfter is the number of failed deliveries
// after which a scan is reported by Stalled.
func NewQueue(db lms.Database, submitter Submitter, conn lms.Connectivity, clock lms.Clock, idgen lms.IDGenerator, logger lms.Logger, stalledAfter int) *Queue {
	if stalledAfter < 1 {
		stalledAfter = 1
	}
	return &Queue{
		db:        db,
		submitter: submitter,
		conn:      conn,
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
		validate:  validator.New(),
		threshold: stalledAfter,
	}
}

func (q *Queue) prepare(scan *lms.AttendanceScan) error {
	if err := q.validate.Struct(scan); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScan, err)
	}
	if scan.IdempotencyKey == "" {
		scan.IdempotencyKey = q.idgen.New()
	}
	return nil
}

// Enqueue commits scan to local storage and returns the stored row. An error
// means the scan was NOT saved and the caller must tell the user.
func (q *Queue) Enqueue(ctx context.Context, scan *lms.AttendanceScan) (*lms.AttendanceScan, error) {
	if err := q.prepare(scan); err != nil {
		return nil, err
	}

	stored, err := q.db.InsertAttendance(ctx, scan)
	if err != nil {
		return nil, fmt.Errorf("queueing attendance for %s: %w", scan.SubjectID, err)
	}

	q.logger.Info("attendance queued",
		"id", stored.ID, "subject", stored.SubjectID, "class", stored.ClassID, "key", stored.IdempotencyKey)
	return stored, nil
}

// Record handles a fresh scan. While online it is submitted right away and
// only queued if that fails; while offline it is queued without any network
// call. queued reports which path was taken.
func (q *Queue) Record(ctx context.Context, scan *lms.AttendanceScan) (queued bool, err error) {
	if err := q.prepare(scan); err != nil {
		return false, err
	}

	if q.conn.IsOnline() {
		err := q.submitter.SubmitAttendance(ctx, scan)
		if err == nil {
			q.logger.Info("attendance submitted", "subject", scan.SubjectID, "class", scan.ClassID)
			return false, nil
		}
		q.logger.Warn("attendance submit failed, queueing", "subject", scan.SubjectID, "error", err)
	}

	if _, err := q.Enqueue(ctx, scan); err != nil {
		return false, err
	}
	return true, nil
}

// DrainResult summarizes one Drain call.
type DrainResult struct {
	Submitted int
	Failed    int
	Remaining int
	Skipped   bool // another drain was already running
}

// Drain submits every pending scan in insertion order. Each scan is handled
// on its own: a success deletes it, a failure bumps its attempt count and
// the drain moves on. Cancelling ctx stops before the next scan.
func (q *Queue) Drain(ctx context.Context) (DrainResult, error) {
	if !q.draining.TryLock() {
		q.logger.Debug("drain already running")
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Unlock()

	var res DrainResult
	// Bookkeeping for a scan already handed to the server must land even if
	// ctx is cancelled meanwhile.
	local := context.WithoutCancel(ctx)

	pending, err := q.db.ListPendingAttendance(ctx)
	if err != nil {
		return res, fmt.Errorf("listing pending attendance: %w", err)
	}

	for _, scan := range pending {
		if ctx.Err() != nil {
			break
		}

		if err := q.submitter.SubmitAttendance(ctx, scan); err != nil {
			res.Failed++
			q.logger.Warn("attendance delivery failed",
				"id", scan.ID, "subject", scan.SubjectID, "attempt", scan.Attempts+1, "error", err)
			if markErr := q.db.MarkAttendanceFailed(local, scan.ID, err.Error()); markErr != nil {
				q.logger.Error("recording failed attempt", "id", scan.ID, "error", markErr)
			}
			continue
		}

		// A failed delete leaves the row for a harmless resubmission under
		// the same idempotency key.
		if err := q.db.DeleteAttendance(local, scan.ID); err != nil {
			q.logger.Error("removing delivered attendance", "id", scan.ID, "error", err)
		}
		res.Submitted++
	}

	remaining, err := q.db.CountPendingAttendance(local)
	if err != nil {
		return res, fmt.Errorf("counting pending attendance: %w", err)
	}
	res.Remaining = remaining

	if res.Submitted > 0 || res.Failed > 0 {
		q.logger.Info("drain finished", "submitted", res.Submitted, "failed", res.Failed, "remaining", res.Remaining)
	}
	return res, ctx.Err()
}

// Pending returns every queued scan in drain order.
func (q *Queue) Pending(ctx context.Context) ([]*lms.AttendanceScan, error) {
	return q.db.ListPendingAttendance(ctx)
}

// PendingCount returns how many scans are waiting.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.db.CountPendingAttendance(ctx)
}

// Stalled returns how many queued scans have failed at least the configured
// number of times. A non-zero value drives the "items failed to sync" banner.
func (q *Queue) Stalled(ctx context.Context) (int, error) {
	return q.db.CountStalledAttendance(ctx, q.threshold)
}
