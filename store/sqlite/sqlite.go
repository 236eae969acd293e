/*
Package sqlite provides the SQLite-backed implementation of every
storage port in the compliance engine.

PURPOSE:
  One Store implements all persistence interfaces: the directory
  (courses, users, enrolments), completion state live and archived,
  per-course settings and equivalents, scheduling state (cache bounds,
  reset markers, grace records), activity data driven by the reset
  engine, external-sync snapshots, and task-run audit rows. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

FILE LAYOUT:
  sqlite.go:      Store, schema migration, shared helpers
  directory.go:   courses, users, enrolments
  completions.go: live + archived completions, module completions
  schedule.go:    completion_cache, reset_markers, grace_records
  settings.go:    per-course settings, equivalents, app settings
  activity.go:    quiz / scorm / assignment / certificate / grade data
  sync.go:        out_of_compliance, completion_sync, task_runs

TIMESTAMPS:
  Epoch seconds as INTEGER throughout. time_completed is nullable:
  NULL means "not completed"; a stored 0 is a defect repaired by the
  housekeeping pass.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - recompletion: Interface definitions the engine reads through
  - recompletion/reset: Ports driven during a reset
*/
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Directory: the slice of the host platform the engine reads
	CREATE TABLE IF NOT EXISTS courses (
		id INTEGER PRIMARY KEY,
		idnumber TEXT NOT NULL DEFAULT '',
		fullname TEXT NOT NULL,
		visible INTEGER NOT NULL DEFAULT 1,
		completion_enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		idnumber TEXT NOT NULL DEFAULT '',
		fullname TEXT NOT NULL,
		email TEXT NOT NULL,
		suspended INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS enrolments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		method TEXT NOT NULL DEFAULT 'manual',
		status INTEGER NOT NULL DEFAULT 0,
		time_created INTEGER NOT NULL DEFAULT 0,
		time_start INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_enrolments_user_course
		ON enrolments(user_id, course_id);
	CREATE INDEX IF NOT EXISTS idx_enrolments_course
		ON enrolments(course_id, status);

	-- Live completion state: unique per (user, course)
	CREATE TABLE IF NOT EXISTS completions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		time_enrolled INTEGER NOT NULL DEFAULT 0,
		time_started INTEGER NOT NULL DEFAULT 0,
		time_completed INTEGER,
		reaggregate INTEGER NOT NULL DEFAULT 0,
		UNIQUE(user_id, course_id)
	);

	CREATE INDEX IF NOT EXISTS idx_completions_course
		ON completions(course_id, time_completed);

	-- Archived completions: many rows per pair allowed
	CREATE TABLE IF NOT EXISTS completions_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		time_enrolled INTEGER NOT NULL DEFAULT 0,
		time_started INTEGER NOT NULL DEFAULT 0,
		time_completed INTEGER,
		reaggregate INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_completions_archive_user
		ON completions_archive(user_id, course_id);
	CREATE INDEX IF NOT EXISTS idx_completions_archive_course
		ON completions_archive(course_id, time_completed);

	CREATE TABLE IF NOT EXISTS module_completions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		module_id INTEGER NOT NULL,
		state INTEGER NOT NULL DEFAULT 0,
		time_modified INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_module_completions_user_course
		ON module_completions(user_id, course_id);

	CREATE TABLE IF NOT EXISTS module_completions_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		module_id INTEGER NOT NULL,
		state INTEGER NOT NULL DEFAULT 0,
		time_modified INTEGER NOT NULL DEFAULT 0
	);

	-- Sparse per-course policy settings
	CREATE TABLE IF NOT EXISTS settings (
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (course_id, name)
	);

	-- Equivalent-course links (single hop, optionally one-way)
	CREATE TABLE IF NOT EXISTS equivalents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_one_id INTEGER NOT NULL,
		course_two_id INTEGER NOT NULL,
		unidirectional INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_equivalents_one ON equivalents(course_one_id);
	CREATE INDEX IF NOT EXISTS idx_equivalents_two ON equivalents(course_two_id);

	-- Cached earliest/latest completion per learner+course
	CREATE TABLE IF NOT EXISTS completion_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		original_comp INTEGER NOT NULL,
		latest_comp INTEGER NOT NULL,
		UNIQUE(user_id, course_id)
	);

	-- How recently the equivalent-driven reset path fired per pair
	CREATE TABLE IF NOT EXISTS reset_markers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		time_reset INTEGER NOT NULL,
		UNIQUE(user_id, course_id)
	);

	-- One-shot grace notices, bulk-deleted after each grace pass
	CREATE TABLE IF NOT EXISTS grace_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		time_start INTEGER NOT NULL,
		UNIQUE(user_id, course_id)
	);

	-- External-sync snapshots, idnumber-keyed, append-only
	CREATE TABLE IF NOT EXISTS out_of_compliance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_idnumber TEXT NOT NULL,
		course_idnumber TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		time_synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_out_of_compliance_synced
		ON out_of_compliance(synced, time_synced);

	CREATE TABLE IF NOT EXISTS completion_sync (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_idnumber TEXT NOT NULL,
		course_idnumber TEXT NOT NULL,
		time_completed INTEGER NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0,
		time_synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_completion_sync_synced
		ON completion_sync(synced, time_synced);

	-- Activity data the reset engine touches
	CREATE TABLE IF NOT EXISTS quizzes (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS quiz_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'finished',
		time_finish INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_quiz_attempts_user
		ON quiz_attempts(user_id, quiz_id);

	CREATE TABLE IF NOT EXISTS quiz_attempts_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		state TEXT NOT NULL DEFAULT 'finished',
		time_finish INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS quiz_grades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		grade REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS quiz_grades_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		grade REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS quiz_overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quiz_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		UNIQUE(quiz_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS scorms (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS scorm_tracks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scorm_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		element TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_scorm_tracks_user
		ON scorm_tracks(user_id, scorm_id);

	CREATE TABLE IF NOT EXISTS scorm_tracks_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scorm_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		element TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS assignment_submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		attempt_number INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'new'
	);

	CREATE INDEX IF NOT EXISTS idx_assignment_submissions_user
		ON assignment_submissions(user_id, assignment_id);

	CREATE TABLE IF NOT EXISTS certificates (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS certificate_issues (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		certificate_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		time_created INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS certificate_issues_archive (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		certificate_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		time_created INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS grade_items (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		item_name TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS grades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		final_grade REAL
	);

	CREATE INDEX IF NOT EXISTS idx_grades_user ON grades(user_id, item_id);

	CREATE TABLE IF NOT EXISTS grades_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		item_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		time_modified INTEGER NOT NULL
	);

	-- Audit of scheduled pass executions
	CREATE TABLE IF NOT EXISTS task_runs (
		id TEXT PRIMARY KEY,
		task TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		detail TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task, started_at);

	-- Installation-wide key/value state (notifylast)
	CREATE TABLE IF NOT EXISTS app_settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"courses", "users", "enrolments",
		"completions", "completions_archive",
		"module_completions", "module_completions_archive",
		"settings", "equivalents",
		"completion_cache", "reset_markers", "grace_records",
		"out_of_compliance", "completion_sync",
		"quizzes", "quiz_attempts", "quiz_attempts_archive",
		"quiz_grades", "quiz_grades_archive", "quiz_overrides",
		"scorms", "scorm_tracks", "scorm_tracks_archive",
		"assignments", "assignment_submissions",
		"certificates", "certificate_issues", "certificate_issues_archive",
		"grade_items", "grades", "grades_history",
		"task_runs", "app_settings",
	}
	for _, table := range tables {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// placeholders builds "?, ?, ?" for an IN clause of n values.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
