// Package syncer decides when queued writes are drained and when cached
// entities are refreshed. It owns no persistent state besides the run
// history rows it writes for each pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/outbox"
)

// ErrUnknownTask is returned by RunTask for a name not in the manifest.
var ErrUnknownTask = errors.New("unknown sync task")

// Task fetches one entity type and writes it to the cache.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Drainer is the offline write queue as seen by the orchestrator.
type Drainer interface {
	Drain(ctx context.Context) (outbox.DrainResult, error)
}

// Report is the outcome of one resync pass.
type Report struct {
	Succeeded []string
	Failed    map[string]error
	Skipped   bool // offline, or another pass was running
}

// Options configures an Orchestrator. Queue, Conn and Database are required.
type Options struct {
	Tasks     []Task
	Queue     Drainer
	Conn      lms.Connectivity
	Database  lms.Database
	Clock     lms.Clock
	Logger    lms.Logger
	Interval  time.Duration
	NewTicker TickerFactory
}

// Orchestrator wires connectivity and foreground events to drains and
// resync passes.
type Orchestrator struct {
	tasks     []Task
	queue     Drainer
	conn      lms.Connectivity
	db        lms.Database
	clock     lms.Clock
	logger    lms.Logger
	interval  time.Duration
	newTicker TickerFactory

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	resyncing sync.Mutex

	mu          sync.Mutex
	ticker      Ticker
	tickerDone  chan struct{}
	unsubscribe func()
	stopped     bool
}

// DefaultInterval is the resync period while foregrounded.
const DefaultInterval = 25 * time.Second

// New creates an Orchestrator. Nothing happens until Start or Foreground.
func New(opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = lms.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = lms.NewNopLogger()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewRealTicker
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		tasks:     opts.Tasks,
		queue:     opts.Queue,
		conn:      opts.Conn,
		db:        opts.Database,
		clock:     opts.Clock,
		logger:    opts.Logger,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Tasks returns the manifest task names in order.
func (o *Orchestrator) Tasks() []string {
	names := make([]string, len(o.tasks))
	for i, t := range o.tasks {
		names[i] = t.Name
	}
	return names
}

// Start subscribes to connectivity. Every offline to online transition
// drains the queue and then runs a resync pass in the background.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped || o.unsubscribe != nil {
		return
	}

	o.unsubscribe = o.conn.Subscribe(func(online bool) {
		if !online {
			o.logger.Info("connectivity lost")
			return
		}
		o.logger.Info("connectivity restored, syncing")
		o.Trigger("connectivity")
	})
}

// Trigger runs a drain and then a resync pass in the background. Stop
// waits for it.
func (o *Orchestrator) Trigger(trigger string) {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.cycle(o.ctx, trigger)
	}()
}

func (o *Orchestrator) cycle(ctx context.Context, trigger string) {
	if _, err := o.DrainNow(ctx); err != nil {
		o.logger.Warn("drain failed", "trigger", trigger, "error", err)
	}
	if _, err := o.Resync(ctx); err != nil {
		o.logger.Warn("resync failed", "trigger", trigger, "error", err)
	}
}

// Foreground (re)starts the periodic timer. Each tick drains the queue and
// runs a resync pass.
func (o *Orchestrator) Foreground() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopTickerLocked()

	ticker := o.newTicker(o.interval)
	done := make(chan struct{})
	o.ticker = ticker
	o.tickerDone = done

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-o.ctx.Done():
				return
			case <-ticker.C():
				o.cycle(o.ctx, "timer")
			}
		}
	}()
	o.logger.Debug("periodic sync started", "interval", o.interval)
}

// Background stops the periodic timer. A tick already in progress finishes.
func (o *Orchestrator) Background() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopTickerLocked()
}

func (o *Orchestrator) stopTickerLocked() {
	if o.ticker == nil {
		return
	}
	o.ticker.Stop()
	close(o.tickerDone)
	o.ticker = nil
	o.tickerDone = nil
	o.logger.Debug("periodic sync stopped")
}

// Foregrounded reports whether the periodic timer is running.
func (o *Orchestrator) Foregrounded() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ticker != nil
}

// Stop unsubscribes, stops the timer, cancels in-flight work and waits for
// it to return. The Orchestrator cannot be restarted.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	if o.unsubscribe != nil {
		o.unsubscribe()
		o.unsubscribe = nil
	}
	o.stopTickerLocked()
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
}

// DrainNow drains the queue if the device is online and records the pass.
func (o *Orchestrator) DrainNow(ctx context.Context) (outbox.DrainResult, error) {
	if !o.conn.IsOnline() {
		return outbox.DrainResult{Skipped: true}, nil
	}

	res, err := o.queue.Drain(ctx)
	if res.Skipped {
		return res, err
	}
	if res.Submitted == 0 && res.Failed == 0 && err == nil {
		// Nothing was queued; don't clutter the history.
		return res, nil
	}

	status := lms.RunStatusSuccess
	switch {
	case err != nil:
		status = lms.RunStatusError
	case res.Failed > 0 && res.Submitted > 0:
		status = lms.RunStatusPartial
	case res.Failed > 0:
		status = lms.RunStatusError
	}
	detail := fmt.Sprintf("submitted=%d failed=%d remaining=%d", res.Submitted, res.Failed, res.Remaining)
	if err != nil {
		detail += " error=" + err.Error()
	}
	o.finish(ctx, o.begin(ctx, lms.RunKindDrain), status, detail)

	return res, err
}

// Resync runs every manifest task once. A failing task is logged and does
// not stop the others. The pass is skipped while offline or while another
// pass is running.
func (o *Orchestrator) Resync(ctx context.Context) (Report, error) {
	if !o.conn.IsOnline() {
		o.logger.Debug("resync skipped: offline")
		return Report{Skipped: true}, nil
	}
	if !o.resyncing.TryLock() {
		o.logger.Debug("resync skipped: already running")
		return Report{Skipped: true}, nil
	}
	defer o.resyncing.Unlock()

	start := o.clock.Now()
	runID := o.begin(ctx, lms.RunKindResync)
	report := Report{Failed: make(map[string]error)}
	for _, task := range o.tasks {
		if err := ctx.Err(); err != nil {
			report.Failed[task.Name] = err
			continue
		}
		if err := o.runTask(ctx, task); err != nil {
			report.Failed[task.Name] = err
			continue
		}
		report.Succeeded = append(report.Succeeded, task.Name)
	}

	status := lms.RunStatusSuccess
	switch {
	case len(report.Failed) > 0 && len(report.Succeeded) > 0:
		status = lms.RunStatusPartial
	case len(report.Failed) > 0:
		status = lms.RunStatusError
	}
	o.finish(ctx, runID, status, report.detail())

	o.logger.Info("resync finished",
		"succeeded", len(report.Succeeded), "failed", len(report.Failed), "duration", o.clock.Now().Sub(start))
	return report, ctx.Err()
}

// RunTask runs the named manifest task on its own. This backs the manual
// reload affordance; it does not check connectivity so a user retry always
// reaches the network.
func (o *Orchestrator) RunTask(ctx context.Context, name string) error {
	for _, task := range o.tasks {
		if task.Name == name {
			return o.runTask(ctx, task)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownTask, name)
}

func (o *Orchestrator) runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
		if err != nil {
			o.logger.Warn("sync task failed", "task", task.Name, "error", err)
		}
	}()
	return task.Run(ctx)
}

// begin opens a run history row and returns its id, or 0 when history
// is unavailable. History is best effort.
func (o *Orchestrator) begin(ctx context.Context, kind string) int64 {
	if o.db == nil {
		return 0
	}
	run, err := o.db.CreateSyncRun(context.WithoutCancel(ctx), kind)
	if err != nil {
		o.logger.Error("recording sync run", "kind", kind, "error", err)
		return 0
	}
	return run.ID
}

func (o *Orchestrator) finish(ctx context.Context, id int64, status, detail string) {
	if o.db == nil || id == 0 {
		return
	}
	if err := o.db.FinishSyncRun(context.WithoutCancel(ctx), id, status, detail); err != nil {
		o.logger.Error("finishing sync run", "id", id, "error", err)
	}
}

func (r Report) detail() string {
	if len(r.Failed) == 0 {
		return fmt.Sprintf("tasks=%d", len(r.Succeeded))
	}
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("tasks=%d failed=%s", len(r.Succeeded)+len(r.Failed), strings.Join(names, ","))
}
