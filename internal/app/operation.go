package app

import (
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// Operation is one CLI invocation. Its ID tags every log line written while
// it runs so a single command can be picked out of the shared log file.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string // lms.RunStatusSuccess or lms.RunStatusError
	Err       error
}

// NewOperation creates an operation that has not failed yet.
func NewOperation(name string, clock lms.Clock) *Operation {
	now := clock.Now().UTC()
	return &Operation{
		ID:        now.Format("20060102T150405Z"),
		Name:      name,
		StartedAt: now,
		Status:    lms.RunStatusSuccess,
	}
}

// Fail marks the operation as failed. The first error is kept.
func (op *Operation) Fail(err error) {
	if err == nil {
		return
	}
	op.Status = lms.RunStatusError
	if op.Err == nil {
		op.Err = err
	}
}

// Failed reports whether Fail has been called with an error.
func (op *Operation) Failed() bool {
	return op.Err != nil
}
