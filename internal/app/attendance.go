package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// AttendanceEntry is one scan in a class's on-device attendance list.
type AttendanceEntry struct {
	SubjectID string    `json:"subject_id"`
	ScannedAt time.Time `json:"scanned_at"`
	Pending   bool      `json:"-"` // filled in from the queue on read
}

// key identifies a scan; rescanning the same subject at the same instant
// replaces the entry.
func (e AttendanceEntry) key() string {
	return e.SubjectID + "@" + e.ScannedAt.UTC().Format(time.RFC3339Nano)
}

// RecordScan records an attendance scan by the current actor. While online
// it is submitted right away; otherwise, or if that fails, it is queued.
// An error means the scan was lost and the user must be told.
func (a *LMSApp) RecordScan(ctx context.Context, subjectID string, classID int64, at time.Time) (queued bool, err error) {
	actor, err := a.actorID()
	if err != nil {
		a.op.Fail(err)
		return false, err
	}

	scan := &lms.AttendanceScan{
		SubjectID: subjectID,
		ClassID:   classID,
		ActorID:   actor,
		ScannedAt: at,
	}
	queued, err = a.queue.Record(ctx, scan)
	if err != nil {
		a.op.Fail(err)
		return false, fmt.Errorf("recording scan: %w", err)
	}

	a.attendance.Upsert(ctx, cache.IDs(classID), AttendanceEntry{SubjectID: subjectID, ScannedAt: at})
	return queued, nil
}

// Attendance returns the scans recorded on this device for a class,
// marking the ones still waiting in the queue. Queued scans the cached list
// does not hold (recorded while the cache was locked) are appended.
func (a *LMSApp) Attendance(ctx context.Context, classID int64) ([]AttendanceEntry, error) {
	pending, err := a.queue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading queue: %w", err)
	}

	var out []AttendanceEntry
	seen := make(map[string]bool)
	if entry := a.attendance.Load(ctx, cache.IDs(classID)); entry.Hit() {
		out = make([]AttendanceEntry, 0, len(*entry.Data))
		for _, e := range *entry.Data {
			seen[e.key()] = true
			out = append(out, e)
		}
	}

	waiting := make(map[string]bool, len(pending))
	for _, p := range pending {
		if p.ClassID != classID {
			continue
		}
		e := AttendanceEntry{SubjectID: p.SubjectID, ScannedAt: p.ScannedAt, Pending: true}
		waiting[e.key()] = true
		if !seen[e.key()] {
			seen[e.key()] = true
			out = append(out, e)
		}
	}

	for i := range out {
		out[i].Pending = waiting[out[i].key()]
	}
	return out, nil
}
