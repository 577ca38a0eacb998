package outbox

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/connectivity"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/testutil"
)

type fixture struct {
	queue  *Queue
	db     lms.Database
	remote *testutil.FakeRemote
	conn   *connectivity.Manual
	clock  *testutil.StubClock
}

func newFixture(t *testing.T, online bool) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)
	remote := testutil.NewFakeRemote()
	conn := connectivity.NewManual(online)
	q := NewQueue(db, remote, conn, clock, testutil.NewStubIDGenerator(), lms.NewNopLogger(), 3)
	return &fixture{queue: q, db: db, remote: remote, conn: conn, clock: clock}
}

func (f *fixture) scan(subject string) *lms.AttendanceScan {
	return &lms.AttendanceScan{
		SubjectID: subject,
		ClassID:   7,
		ActorID:   42,
		ScannedAt: f.clock.Now(),
	}
}

func (f *fixture) pendingSubjects(t *testing.T) []string {
	t.Helper()
	pending, err := f.queue.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending() error = %v", err)
	}
	out := []string{}
	for _, p := range pending {
		out = append(out, p.SubjectID)
	}
	return out
}

func TestQueue_Enqueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	stored, err := f.queue.Enqueue(ctx, f.scan("S1"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if stored.ID == 0 {
		t.Error("stored.ID = 0")
	}
	if stored.IdempotencyKey != "id-1" {
		t.Errorf("IdempotencyKey = %q, want generated id-1", stored.IdempotencyKey)
	}

	keep := f.scan("S2")
	keep.IdempotencyKey = "caller-key"
	stored, err = f.queue.Enqueue(ctx, keep)
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if stored.IdempotencyKey != "caller-key" {
		t.Errorf("IdempotencyKey = %q, want caller-key", stored.IdempotencyKey)
	}

	if n, _ := f.queue.PendingCount(ctx); n != 2 {
		t.Errorf("PendingCount() = %d, want 2", n)
	}
}

func TestQueue_EnqueueValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	valid := f.scan("S1")

	tests := []struct {
		name   string
		mutate func(s *lms.AttendanceScan)
	}{
		{name: "missing subject", mutate: func(s *lms.AttendanceScan) { s.SubjectID = "" }},
		{name: "missing class", mutate: func(s *lms.AttendanceScan) { s.ClassID = 0 }},
		{name: "negative actor", mutate: func(s *lms.AttendanceScan) { s.ActorID = -1 }},
		{name: "missing timestamp", mutate: func(s *lms.AttendanceScan) { s.ScannedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *valid
			tt.mutate(&s)
			_, err := f.queue.Enqueue(ctx, &s)
			if !errors.Is(err, ErrInvalidScan) {
				t.Errorf("Enqueue() error = %v, want ErrInvalidScan", err)
			}
		})
	}

	if n, _ := f.queue.PendingCount(ctx); n != 0 {
		t.Errorf("invalid scans were stored: %d", n)
	}
}

func TestQueue_EnqueueStorageFailurePropagates(t *testing.T) {
	f := newFixture(t, false)
	f.db.Close()

	if _, err := f.queue.Enqueue(context.Background(), f.scan("S1")); err == nil {
		t.Error("Enqueue() on closed database returned nil error")
	}
}

func TestQueue_DrainFIFO(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	for _, s := range []string{"A", "B", "C"} {
		if _, err := f.queue.Enqueue(ctx, f.scan(s)); err != nil {
			t.Fatalf("Enqueue(%s) error = %v", s, err)
		}
	}

	res, err := f.queue.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res != (DrainResult{Submitted: 3}) {
		t.Errorf("Drain() = %+v, want 3 submitted", res)
	}
	if got := f.remote.DeliveredSubjects(); !reflect.DeepEqual(got, []string{"A", "B", "C"}) {
		t.Errorf("delivery order = %v, want [A B C]", got)
	}
	if got := f.pendingSubjects(t); len(got) != 0 {
		t.Errorf("pending after drain = %v, want empty", got)
	}
}

func TestQueue_DrainPartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	for _, s := range []string{"A", "B", "C"} {
		f.queue.Enqueue(ctx, f.scan(s))
	}
	f.remote.FailSubject("B", nil)

	res, err := f.queue.Drain(ctx)
	if err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if res.Submitted != 2 || res.Failed != 1 || res.Remaining != 1 {
		t.Errorf("Drain() = %+v, want 2 submitted, 1 failed, 1 remaining", res)
	}
	if got := f.pendingSubjects(t); !reflect.DeepEqual(got, []string{"B"}) {
		t.Errorf("pending = %v, want [B]", got)
	}

	pending, _ := f.queue.Pending(ctx)
	if pending[0].Attempts != 1 || pending[0].LastError == "" {
		t.Errorf("B attempts=%d last_error=%q, want 1 and an error", pending[0].Attempts, pending[0].LastError)
	}

	f.remote.Heal()
	res, err = f.queue.Drain(ctx)
	if err != nil {
		t.Fatalf("second Drain() error = %v", err)
	}
	if res.Submitted != 1 || res.Remaining != 0 {
		t.Errorf("second Drain() = %+v, want 1 submitted, 0 remaining", res)
	}
	if got := f.remote.DeliveredSubjects(); !reflect.DeepEqual(got, []string{"A", "C", "B"}) {
		t.Errorf("delivered = %v, want [A C B]", got)
	}
}

func TestQueue_RetriesReuseIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.queue.Enqueue(ctx, f.scan("A"))
	f.remote.SetDown(true)
	f.queue.Drain(ctx)
	f.queue.Drain(ctx)
	f.remote.SetDown(false)
	f.queue.Drain(ctx)

	attempts := f.remote.Attempts()
	if len(attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(attempts))
	}
	for _, a := range attempts {
		if a.IdempotencyKey != attempts[0].IdempotencyKey {
			t.Errorf("idempotency key changed between attempts: %q vs %q", a.IdempotencyKey, attempts[0].IdempotencyKey)
		}
	}
}

// cancelingRemote cancels the drain after the first delivery.
type cancelingRemote struct {
	*testutil.FakeRemote
	cancel context.CancelFunc
}

func (c *cancelingRemote) SubmitAttendance(ctx context.Context, scan *lms.AttendanceScan) error {
	err := c.FakeRemote.SubmitAttendance(ctx, scan)
	c.cancel()
	return err
}

func TestQueue_DrainStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)
	remote := &cancelingRemote{FakeRemote: testutil.NewFakeRemote(), cancel: cancel}
	q := NewQueue(db, remote, connectivity.NewManual(true), clock, testutil.NewStubIDGenerator(), lms.NewNopLogger(), 3)

	for _, s := range []string{"A", "B"} {
		q.Enqueue(context.Background(), &lms.AttendanceScan{SubjectID: s, ClassID: 7, ActorID: 42, ScannedAt: clock.Now()})
	}

	res, err := q.Drain(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Drain() error = %v, want context.Canceled", err)
	}
	if res.Submitted != 1 || res.Remaining != 1 {
		t.Errorf("Drain() = %+v, want 1 submitted and 1 remaining", res)
	}
	if n := len(remote.Attempts()); n != 1 {
		t.Errorf("remote called %d times, want 1", n)
	}
}

// blockingRemote holds every submission until release is closed.
type blockingRemote struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingRemote) SubmitAttendance(ctx context.Context, scan *lms.AttendanceScan) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func TestQueue_ConcurrentDrainSkipped(t *testing.T) {
	ctx := context.Background()
	clock := testutil.FixedClock()
	db := testutil.NewTestDatabase(t, clock)
	remote := &blockingRemote{entered: make(chan struct{}), release: make(chan struct{})}
	q := NewQueue(db, remote, connectivity.NewManual(true), clock, testutil.NewStubIDGenerator(), lms.NewNopLogger(), 3)

	q.Enqueue(ctx, &lms.AttendanceScan{SubjectID: "A", ClassID: 7, ActorID: 42, ScannedAt: clock.Now()})

	first := make(chan DrainResult, 1)
	go func() {
		res, _ := q.Drain(ctx)
		first <- res
	}()
	<-remote.entered

	res, err := q.Drain(ctx)
	if err != nil {
		t.Fatalf("concurrent Drain() error = %v", err)
	}
	if !res.Skipped {
		t.Errorf("concurrent Drain() = %+v, want Skipped", res)
	}

	close(remote.release)
	if got := <-first; got.Submitted != 1 {
		t.Errorf("first Drain() = %+v, want 1 submitted", got)
	}
}

func TestQueue_Stalled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)

	f.queue.Enqueue(ctx, f.scan("A"))
	f.queue.Enqueue(ctx, f.scan("B"))
	f.remote.FailSubject("A", nil)

	for i := 0; i < 2; i++ {
		f.queue.Drain(ctx)
	}
	if n, _ := f.queue.Stalled(ctx); n != 0 {
		t.Errorf("Stalled() after 2 failures = %d, want 0", n)
	}

	f.queue.Drain(ctx)
	if n, _ := f.queue.Stalled(ctx); n != 1 {
		t.Errorf("Stalled() after 3 failures = %d, want 1", n)
	}
}

func TestQueue_RecordOffline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	t1 := f.clock.Now().Add(-5 * time.Minute)

	queued, err := f.queue.Record(ctx, &lms.AttendanceScan{SubjectID: "S123", ClassID: 7, ActorID: 42, ScannedAt: t1})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !queued {
		t.Error("Record() offline: queued = false")
	}
	if n := len(f.remote.Attempts()); n != 0 {
		t.Errorf("remote called %d times while offline", n)
	}

	pending, _ := f.queue.Pending(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	p := pending[0]
	if p.SubjectID != "S123" || p.ClassID != 7 || p.ActorID != 42 || !p.ScannedAt.Equal(t1) {
		t.Errorf("pending = %+v, want (S123, 7, 42, %v)", p, t1)
	}
}

func TestQueue_RecordOnline(t *testing.T) {
	ctx := context.Background()

	t.Run("submits directly", func(t *testing.T) {
		f := newFixture(t, true)
		queued, err := f.queue.Record(ctx, f.scan("S1"))
		if err != nil || queued {
			t.Fatalf("Record() = %v, %v; want false, nil", queued, err)
		}
		if got := f.remote.DeliveredSubjects(); !reflect.DeepEqual(got, []string{"S1"}) {
			t.Errorf("delivered = %v", got)
		}
		if n, _ := f.queue.PendingCount(ctx); n != 0 {
			t.Errorf("PendingCount() = %d, want 0", n)
		}
	})

	t.Run("queues when submit fails", func(t *testing.T) {
		f := newFixture(t, true)
		f.remote.SetDown(true)

		queued, err := f.queue.Record(ctx, f.scan("S1"))
		if err != nil || !queued {
			t.Fatalf("Record() = %v, %v; want true, nil", queued, err)
		}

		pending, _ := f.queue.Pending(ctx)
		attempts := f.remote.Attempts()
		if len(pending) != 1 || len(attempts) != 1 {
			t.Fatalf("pending=%d attempts=%d, want 1 and 1", len(pending), len(attempts))
		}
		if pending[0].IdempotencyKey != attempts[0].IdempotencyKey {
			t.Error("queued scan lost the idempotency key used for the direct attempt")
		}
	})

	t.Run("invalid scan never reaches the network", func(t *testing.T) {
		f := newFixture(t, true)
		_, err := f.queue.Record(ctx, &lms.AttendanceScan{ClassID: 7})
		if !errors.Is(err, ErrInvalidScan) {
			t.Errorf("Record() error = %v, want ErrInvalidScan", err)
		}
		if len(f.remote.Attempts()) != 0 {
			t.Error("invalid scan submitted")
		}
	})
}
