package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/tonio1998/snsulms-sub001/internal/api"
	"github.com/tonio1998/snsulms-sub001/internal/cache"
	"github.com/tonio1998/snsulms-sub001/internal/config"
	"github.com/tonio1998/snsulms-sub001/internal/connectivity"
	"github.com/tonio1998/snsulms-sub001/internal/database"
	"github.com/tonio1998/snsulms-sub001/internal/encryption"
	"github.com/tonio1998/snsulms-sub001/internal/freshness"
	"github.com/tonio1998/snsulms-sub001/internal/identity"
	"github.com/tonio1998/snsulms-sub001/internal/kvstore"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/outbox"
	"github.com/tonio1998/snsulms-sub001/internal/syncer"
)

// Options adjusts how NewLMSApp builds the app.
type Options struct {
	// Operation names the CLI command being run (e.g. "scan", "daemon").
	Operation string

	// Offline forces the connectivity signal off, whatever the network says.
	Offline bool

	// StderrLevel mirrors log records at or above this level to stderr.
	// Nil keeps stderr quiet.
	StderrLevel slog.Leveler

	Clock      lms.Clock
	HTTPClient *http.Client
}

// LMSApp is the application layer between the CLI and the sync core.
// It constructs all dependencies from config, exposes the high-level
// operations the commands need, and manages resource lifecycle on Close.
type LMSApp struct {
	cfg     *config.Config
	clock   lms.Clock
	logger  lms.Logger
	logFile *os.File
	op      *Operation

	db       *database.SQLiteDatabase
	sealed   *kvstore.EncryptedStore // nil unless the store is encrypted
	cache    *cache.Cache
	client   *api.Client
	identity lms.Identity
	idErr    error
	conn     lms.Connectivity
	monitor  *connectivity.WebSocketMonitor // nil without a connectivity url
	queue    *outbox.Queue
	syncer   *syncer.Orchestrator

	events          *cache.Bucket[[]api.Event]
	classes         *cache.Bucket[[]api.Class]
	activities      *cache.Bucket[[]api.Activity]
	classActivities *cache.Bucket[[]api.ClassActivity]
	classWall       *cache.Bucket[[]api.WallPost]
	activity        *cache.Bucket[api.Activity]
	attendance      *cache.ListBucket[AttendanceEntry]
	indicators      map[string]*freshness.Indicator

	wallMu sync.Mutex
	walls  map[int64]*cache.Pager[api.WallPost]

	stopMonitor context.CancelFunc
	monitorDone chan struct{}
}

// NewLMSApp creates a fully wired LMSApp from the given config.
// The caller must call Close when done.
func NewLMSApp(ctx context.Context, cfg *config.Config, opts Options) (*LMSApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = lms.RealClock{}
	}

	if err := config.ValidateAPI(cfg.API); err != nil {
		return nil, fmt.Errorf("invalid api config: %w", err)
	}

	op := NewOperation(opts.Operation, clock)
	slogger, logFile, err := newLogger(cfg.LogDir, op.ID, opts.StderrLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.DeviceID, clock)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	fail := func(err error) (*LMSApp, error) {
		db.Close()
		logFile.Close()
		return nil, err
	}

	if err := db.CheckMigrations(); err != nil {
		return fail(fmt.Errorf("database schema out of date: %w", err))
	}

	store, err := kvstore.NewStoreFromConfig(ctx, cfg.Store, db)
	if err != nil {
		return fail(fmt.Errorf("creating store: %w", err))
	}

	var sealed *kvstore.EncryptedStore
	if cfg.Store.Encrypted {
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fail(fmt.Errorf("creating encryptor: %w", err))
		}
		if !enc.IsConfigured() {
			return fail(fmt.Errorf("store is encrypted but no keys exist (run 'lmssync keys init')"))
		}
		sealed = kvstore.NewEncryptedStore(store, enc)
		store = sealed
	}

	clientOpts := []api.ClientOption{api.WithTimeout(cfg.API.Timeout())}
	if cfg.API.Token != "" {
		clientOpts = append(clientOpts, api.WithToken(cfg.API.Token))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	client := api.NewClient(cfg.API.BaseURL, clientOpts...)

	ident, idErr := resolveIdentity(cfg)

	var (
		conn    lms.Connectivity
		monitor *connectivity.WebSocketMonitor
	)
	switch {
	case opts.Offline:
		conn = connectivity.NewManual(false)
	case cfg.Sync.ConnectivityURL != "":
		monitor = connectivity.NewWebSocketMonitor(cfg.Sync.ConnectivityURL,
			connectivity.WithToken(cfg.API.Token),
			connectivity.WithPingInterval(cfg.Sync.PingInterval()),
			connectivity.WithLogger(logger),
		)
		conn = monitor
	default:
		// Without a signal, assume the network is there; failed requests
		// still fall back to the cache and the queue.
		conn = connectivity.NewManual(true)
	}

	c := cache.New(store, clock, logger)
	a := &LMSApp{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		logFile:  logFile,
		op:       op,
		db:       db,
		sealed:   sealed,
		cache:    c,
		client:   client,
		identity: ident,
		idErr:    idErr,
		conn:     conn,
		monitor:  monitor,
		queue:    outbox.NewQueue(db, client, conn, clock, lms.UUIDGenerator{}, logger, cfg.Sync.StalledThreshold()),

		events:          cache.NewBucket[[]api.Event](c, cache.EntityEvents),
		classes:         cache.NewBucket[[]api.Class](c, cache.EntityClasses),
		activities:      cache.NewBucket[[]api.Activity](c, cache.EntityActivities),
		classActivities: cache.NewBucket[[]api.ClassActivity](c, cache.EntityClassActivities),
		classWall:       cache.NewBucket[[]api.WallPost](c, cache.EntityClassWall),
		activity:        cache.NewBucket[api.Activity](c, cache.EntityActivity),
		attendance:      cache.NewListBucket(c, cache.EntityAttendance, AttendanceEntry.key),
		walls:           make(map[int64]*cache.Pager[api.WallPost]),
	}

	a.syncer = syncer.New(syncer.Options{
		Tasks:    a.manifest(),
		Queue:    a.queue,
		Conn:     conn,
		Database: db,
		Clock:    clock,
		Logger:   logger,
		Interval: cfg.Sync.Interval(),
	})
	a.indicators = a.buildIndicators()

	logger.Info("operation started", "operation", op.Name, "device", cfg.DeviceID, "online", conn.IsOnline())
	return a, nil
}

func resolveIdentity(cfg *config.Config) (lms.Identity, error) {
	if cfg.Identity.ActorID > 0 {
		return identity.Static(cfg.Identity.ActorID), nil
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("no actor configured: set identity.actor_id or api.token")
	}
	id, err := identity.FromToken(cfg.API.Token)
	if err != nil {
		return nil, fmt.Errorf("reading actor from api token: %w", err)
	}
	return id, nil
}

// actorID returns the current actor, or the reason there is none.
func (a *LMSApp) actorID() (int64, error) {
	if a.idErr != nil {
		return 0, a.idErr
	}
	return a.identity.ActorID(), nil
}

// Config returns the config the app was built from.
func (a *LMSApp) Config() *config.Config { return a.cfg }

// Operation returns the operation this app is running.
func (a *LMSApp) Operation() *Operation { return a.op }

// Logger returns the operation's logger.
func (a *LMSApp) Logger() lms.Logger { return a.logger }

// Encrypted reports whether cached entities are stored encrypted.
func (a *LMSApp) Encrypted() bool { return a.sealed != nil }

// Locked reports whether the encrypted store still needs Unlock before
// cached entities can be read.
func (a *LMSApp) Locked() bool { return a.sealed != nil && a.sealed.Locked() }

// Unlock opens the encrypted store for reading.
func (a *LMSApp) Unlock(passphrase string) error {
	if a.sealed == nil {
		return nil
	}
	return a.sealed.Unlock(passphrase)
}

// Connect refreshes the connectivity signal once and reports the result.
// Short-lived commands call it before doing any work.
func (a *LMSApp) Connect(ctx context.Context) bool {
	if a.monitor != nil {
		return a.monitor.Probe(ctx)
	}
	return a.conn.IsOnline()
}

// Online reports the current connectivity state.
func (a *LMSApp) Online() bool { return a.conn.IsOnline() }

// Start runs the long-lived parts: the connectivity monitor, the
// connectivity subscription and the periodic resync timer. An initial
// drain and resync run straight away when already online.
func (a *LMSApp) Start(ctx context.Context) {
	if a.monitor != nil && a.stopMonitor == nil {
		mctx, cancel := context.WithCancel(ctx)
		a.stopMonitor = cancel
		a.monitorDone = make(chan struct{})
		go func() {
			defer close(a.monitorDone)
			a.monitor.Run(mctx)
		}()
	}

	a.syncer.Start()
	a.syncer.Foreground()
	if a.conn.IsOnline() {
		a.syncer.Trigger("startup")
	}
}

// Foreground restarts the periodic resync timer.
func (a *LMSApp) Foreground() { a.syncer.Foreground() }

// Background stops the periodic resync timer.
func (a *LMSApp) Background() { a.syncer.Background() }

// Foregrounded reports whether the periodic timer is running.
func (a *LMSApp) Foregrounded() bool { return a.syncer.Foregrounded() }

// Close stops background work and closes all resources.
func (a *LMSApp) Close() error {
	a.syncer.Stop()
	if a.stopMonitor != nil {
		a.stopMonitor()
		<-a.monitorDone
	}

	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	args := []any{"operation", a.op.Name, "status", a.op.Status, "duration", a.clock.Now().Sub(a.op.StartedAt)}
	if a.op.Failed() {
		args = append(args, "error", a.op.Err)
	}
	a.logger.Info("operation finished", args...)

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// SyncResult is the outcome of an explicit sync: a drain followed by a
// resync pass.
type SyncResult struct {
	Drain  outbox.DrainResult
	Resync syncer.Report
}

// Sync drains the queue and then refreshes every manifest entity.
func (a *LMSApp) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	var err error

	res.Drain, err = a.syncer.DrainNow(ctx)
	if err != nil {
		a.op.Fail(err)
		return res, fmt.Errorf("draining queue: %w", err)
	}
	res.Resync, err = a.syncer.Resync(ctx)
	if err != nil {
		a.op.Fail(err)
		return res, fmt.Errorf("resyncing: %w", err)
	}
	if len(res.Resync.Failed) > 0 {
		a.op.Fail(fmt.Errorf("%d sync task(s) failed", len(res.Resync.Failed)))
	}
	return res, nil
}

// Drain submits every queued scan once.
func (a *LMSApp) Drain(ctx context.Context) (outbox.DrainResult, error) {
	res, err := a.syncer.DrainNow(ctx)
	if err != nil {
		a.op.Fail(err)
		return res, fmt.Errorf("draining queue: %w", err)
	}
	return res, nil
}

// Reload runs one manifest task. It backs the reload affordance.
func (a *LMSApp) Reload(ctx context.Context, task string) error {
	if err := a.syncer.RunTask(ctx, task); err != nil {
		a.op.Fail(err)
		return err
	}
	return nil
}

// Tasks returns the names of the manifest tasks.
func (a *LMSApp) Tasks() []string { return a.syncer.Tasks() }

// PendingScans returns the queued scans in drain order.
func (a *LMSApp) PendingScans(ctx context.Context) ([]*lms.AttendanceScan, error) {
	return a.queue.Pending(ctx)
}

// History returns the most recent drain and resync runs.
func (a *LMSApp) History(ctx context.Context, limit int) ([]*lms.SyncRun, error) {
	return a.db.ListSyncRuns(ctx, limit)
}

// BackupDatabase writes a consistent copy of the relational store to dest.
func (a *LMSApp) BackupDatabase(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%s already exists", dest)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", dest, err)
	}
	if err := a.db.BackupTo(ctx, dest); err != nil {
		a.op.Fail(err)
		return err
	}
	a.logger.Info("database backed up", "dest", dest)
	return nil
}

// Now returns the app clock's current time.
func (a *LMSApp) Now() time.Time { return a.clock.Now() }
