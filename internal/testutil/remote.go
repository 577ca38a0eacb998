package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// ErrUnreachable is the default failure returned by FakeRemote.
var ErrUnreachable = errors.New("remote unreachable")

// FakeRemote records attendance submissions and fails the ones it is told to.
// Safe for concurrent use.
type FakeRemote struct {
	mu        sync.Mutex
	attempts  []lms.AttendanceScan
	delivered []lms.AttendanceScan
	failing   map[string]error
	down      bool
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{failing: make(map[string]error)}
}

// SubmitAttendance implements outbox.Submitter.
func (f *FakeRemote) SubmitAttendance(ctx context.Context, scan *lms.AttendanceScan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts = append(f.attempts, *scan)
	if f.down {
		return ErrUnreachable
	}
	if err, ok := f.failing[scan.SubjectID]; ok {
		return err
	}
	f.delivered = append(f.delivered, *scan)
	return nil
}

// FailSubject makes every submission for subject fail with err (ErrUnreachable if nil).
func (f *FakeRemote) FailSubject(subject string, err error) {
	if err == nil {
		err = ErrUnreachable
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[subject] = err
}

// Heal clears every configured failure.
func (f *FakeRemote) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = make(map[string]error)
	f.down = false
}

// SetDown makes every submission fail.
func (f *FakeRemote) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Attempts returns every submission seen, successful or not.
func (f *FakeRemote) Attempts() []lms.AttendanceScan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lms.AttendanceScan(nil), f.attempts...)
}

// Delivered returns the submissions that succeeded, in order.
func (f *FakeRemote) Delivered() []lms.AttendanceScan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lms.AttendanceScan(nil), f.delivered...)
}

// DeliveredSubjects returns the subject ids of successful submissions.
func (f *FakeRemote) DeliveredSubjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.delivered))
	for i, s := range f.delivered {
		out[i] = s.SubjectID
	}
	return out
}
