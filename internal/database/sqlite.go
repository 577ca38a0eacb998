package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/tonio1998/snsulms-sub001/internal/database/migrations"
	"github.com/tonio1998/snsulms-sub001/internal/lms"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// timeLayout is used for every TEXT timestamp column.
const timeLayout = time.RFC3339Nano

// SQLiteDatabase implements lms.Database and lms.Store on a single SQLite file.
type SQLiteDatabase struct {
	db    *sqlx.DB
	clock lms.Clock
	path  string
}

var (
	_ lms.Database = (*SQLiteDatabase)(nil)
	_ lms.Store    = (*SQLiteDatabase)(nil)
)

// NewSQLiteDatabase opens path (a file or ":memory:") and brings its schema up
// to date. A nil clock means wall-clock time.
func NewSQLiteDatabase(path string, clock lms.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	if clock == nil {
		clock = lms.RealClock{}
	}
	return &SQLiteDatabase{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs the
// sync layer relies on. It does not run migrations.
func OpenConnection(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writers are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return db, nil
}

// Attendance queue

type attendanceRow struct {
	ID             int64  `db:"id"`
	SubjectID      string `db:"subject_id"`
	ClassID        int64  `db:"class_id"`
	ActorID        int64  `db:"actor_id"`
	ScannedAt      string `db:"scanned_at"`
	IdempotencyKey string `db:"idempotency_key"`
	Attempts       int    `db:"attempts"`
	LastError      string `db:"last_error"`
	CreatedAt      string `db:"created_at"`
}

func (r attendanceRow) toScan() (*lms.AttendanceScan, error) {
	scannedAt, err := time.Parse(timeLayout, r.ScannedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing scanned_at of attendance %d: %w", r.ID, err)
	}
	createdAt, err := time.Parse(timeLayout, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at of attendance %d: %w", r.ID, err)
	}
	return &lms.AttendanceScan{
		ID:             r.ID,
		SubjectID:      r.SubjectID,
		ClassID:        r.ClassID,
		ActorID:        r.ActorID,
		ScannedAt:      scannedAt,
		IdempotencyKey: r.IdempotencyKey,
		Attempts:       r.Attempts,
		LastError:      r.LastError,
		CreatedAt:      createdAt,
	}, nil
}

func (s *SQLiteDatabase) InsertAttendance(ctx context.Context, scan *lms.AttendanceScan) (*lms.AttendanceScan, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attendance (subject_id, class_id, actor_id, scanned_at, idempotency_key, attempts, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, '', ?)`,
		scan.SubjectID, scan.ClassID, scan.ActorID,
		scan.ScannedAt.UTC().Format(timeLayout), scan.IdempotencyKey, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("inserting attendance: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading attendance id: %w", err)
	}

	stored := *scan
	stored.ID = id
	stored.Attempts = 0
	stored.LastError = ""
	stored.CreatedAt = now
	return &stored, nil
}

func (s *SQLiteDatabase) ListPendingAttendance(ctx context.Context) ([]*lms.AttendanceScan, error) {
	var rows []attendanceRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM attendance ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("listing pending attendance: %w", err)
	}

	result := make([]*lms.AttendanceScan, 0, len(rows))
	for _, r := range rows {
		scan, err := r.toScan()
		if err != nil {
			return nil, err
		}
		result = append(result, scan)
	}
	return result, nil
}

func (s *SQLiteDatabase) DeleteAttendance(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting attendance %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) MarkAttendanceFailed(ctx context.Context, id int64, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attendance SET attempts = attempts + 1, last_error = ? WHERE id = ?`, errMsg, id)
	if err != nil {
		return fmt.Errorf("marking attendance %d failed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking attendance %d failed: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("attendance %d not found", id)
	}
	return nil
}

func (s *SQLiteDatabase) CountPendingAttendance(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM attendance`); err != nil {
		return 0, fmt.Errorf("counting pending attendance: %w", err)
	}
	return n, nil
}

func (s *SQLiteDatabase) CountStalledAttendance(ctx context.Context, minAttempts int) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM attendance WHERE attempts >= ?`, minAttempts); err != nil {
		return 0, fmt.Errorf("counting stalled attendance: %w", err)
	}
	return n, nil
}

// Sync run tracking

type syncRunRow struct {
	ID         int64          `db:"id"`
	Kind       string         `db:"kind"`
	Status     string         `db:"status"`
	Detail     string         `db:"detail"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
}

func (r syncRunRow) toRun() (*lms.SyncRun, error) {
	startedAt, err := time.Parse(timeLayout, r.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing started_at of run %d: %w", r.ID, err)
	}
	run := &lms.SyncRun{
		ID:        r.ID,
		Kind:      r.Kind,
		Status:    r.Status,
		Detail:    r.Detail,
		StartedAt: startedAt,
	}
	if r.FinishedAt.Valid {
		finishedAt, err := time.Parse(timeLayout, r.FinishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing finished_at of run %d: %w", r.ID, err)
		}
		run.FinishedAt = &finishedAt
	}
	return run, nil
}

func (s *SQLiteDatabase) CreateSyncRun(ctx context.Context, kind string) (*lms.SyncRun, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (kind, status, detail, started_at) VALUES (?, ?, '', ?)`,
		kind, lms.RunStatusRunning, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading sync run id: %w", err)
	}
	return &lms.SyncRun{ID: id, Kind: kind, Status: lms.RunStatusRunning, StartedAt: now}, nil
}

func (s *SQLiteDatabase) FinishSyncRun(ctx context.Context, id int64, status string, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sync_runs SET status = ?, detail = ?, finished_at = ? WHERE id = ?`,
		status, detail, s.clock.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("finishing sync run %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncRuns(ctx context.Context, limit int) ([]*lms.SyncRun, error) {
	var rows []syncRunRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sync_runs ORDER BY id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}

	result := make([]*lms.SyncRun, 0, len(rows))
	for _, r := range rows {
		run, err := r.toRun()
		if err != nil {
			return nil, err
		}
		result = append(result, run)
	}
	return result, nil
}

// Key-value entries

func (s *SQLiteDatabase) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.GetContext(ctx, &value, `SELECT value FROM kv_entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (s *SQLiteDatabase) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDatabase) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	// substr rather than LIKE so "_" and "%" in prefixes match literally
	err := s.db.SelectContext(ctx, &keys,
		`SELECT key FROM kv_entries WHERE substr(key, 1, length(?)) = ? ORDER BY key ASC`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
	}
	return keys, nil
}

// Maintenance

// Path returns the file path the database was opened with.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations reports whether the schema matches this binary.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db.DB)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database to %s: %w", destPath, err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
