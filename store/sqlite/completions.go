/*
completions.go - Live and archived completion state

PURPOSE:
  Live completion rows are unique per (user, course) and owned by the
  host's completion engine; the reset engine is the sole actor that
  archives-then-deletes them. Archive rows accumulate one per past
  cycle. Both populations are exposed through CompletionSource
  adapters so the aggregator can merge them uniformly.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// LIVE COMPLETIONS
// =============================================================================

// SaveCompletion inserts or updates the live completion for a
// learner+course and returns its id.
func (s *Store) SaveCompletion(ctx context.Context, c recompletion.Completion) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO completions (user_id, course_id, time_enrolled, time_started, time_completed, reaggregate)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			time_enrolled = excluded.time_enrolled,
			time_started = excluded.time_started,
			time_completed = excluded.time_completed,
			reaggregate = excluded.reaggregate
	`
	res, err := s.db.ExecContext(ctx, query,
		c.UserID, c.CourseID, c.TimeEnrolled, c.TimeStarted, nullInt64(c.TimeCompleted), c.Reaggregate)
	if err != nil {
		return 0, fmt.Errorf("failed to save completion: %w", err)
	}
	return res.LastInsertId()
}

// Completion returns the live completion for a learner+course, or
// ErrCompletionNotFound.
func (s *Store) Completion(ctx context.Context, userID, courseID int64) (*recompletion.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c recompletion.Completion
	var tc sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, time_enrolled, time_started, time_completed, reaggregate
		FROM completions WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&c.ID, &c.UserID, &c.CourseID, &c.TimeEnrolled, &c.TimeStarted, &tc, &c.Reaggregate)

	if err == sql.ErrNoRows {
		return nil, recompletion.ErrCompletionNotFound
	}
	if err != nil {
		return nil, err
	}
	c.TimeCompleted = int64Ptr(tc)
	return &c, nil
}

// CompletionsForUser returns the learner's completions across live and
// archive, live rows first. The API's merged list endpoint reads this.
func (s *Store) CompletionsForUser(ctx context.Context, userID int64) ([]recompletion.Completion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, course_id, time_enrolled, time_started, time_completed, reaggregate, 0 AS archived
		FROM completions WHERE user_id = ?
		UNION ALL
		SELECT id, user_id, course_id, time_enrolled, time_started, time_completed, reaggregate, 1 AS archived
		FROM completions_archive WHERE user_id = ?
		ORDER BY archived ASC, course_id ASC, id ASC
	`
	return s.queryCompletions(ctx, query, userID, userID)
}

// =============================================================================
// ARCHIVE-THEN-DELETE (reset.CompletionArchiver)
// =============================================================================

// ArchiveCompletions copies the learner's live completion rows for the
// course into the archive table.
func (s *Store) ArchiveCompletions(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completions_archive (user_id, course_id, time_enrolled, time_started, time_completed, reaggregate)
		SELECT user_id, course_id, time_enrolled, time_started, time_completed, reaggregate
		FROM completions WHERE user_id = ? AND course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive completions: %w", err)
	}
	return nil
}

// DeleteCompletions removes the learner's live completion rows for the
// course.
func (s *Store) DeleteCompletions(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM completions WHERE user_id = ? AND course_id = ?",
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete completions: %w", err)
	}
	return nil
}

// ArchiveModuleCompletions copies the learner's activity-level rows for
// the course into the archive table.
func (s *Store) ArchiveModuleCompletions(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_completions_archive (user_id, course_id, module_id, state, time_modified)
		SELECT user_id, course_id, module_id, state, time_modified
		FROM module_completions WHERE user_id = ? AND course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive module completions: %w", err)
	}
	return nil
}

// DeleteModuleCompletions removes the learner's activity-level rows for
// the course.
func (s *Store) DeleteModuleCompletions(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"DELETE FROM module_completions WHERE user_id = ? AND course_id = ?",
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete module completions: %w", err)
	}
	return nil
}

// SaveModuleCompletion inserts an activity-level completion row.
func (s *Store) SaveModuleCompletion(ctx context.Context, m recompletion.ModuleCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO module_completions (user_id, course_id, module_id, state, time_modified)
		VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.CourseID, m.ModuleID, m.State, m.TimeModified)
	return err
}

// ModuleCompletionCount reports how many live activity-level rows the
// learner has in the course.
func (s *Store) ModuleCompletionCount(ctx context.Context, userID, courseID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM module_completions WHERE user_id = ? AND course_id = ?",
		userID, courseID).Scan(&count)
	return count, err
}

// =============================================================================
// COMPLETION SOURCES (recompletion.CompletionSource adapters)
// =============================================================================

// LiveSource exposes the live completions table to the aggregator.
func (s *Store) LiveSource() recompletion.CompletionSource {
	return &completionSource{store: s, table: "completions", archived: false}
}

// ArchiveSource exposes the archive table to the aggregator.
func (s *Store) ArchiveSource() recompletion.CompletionSource {
	return &completionSource{store: s, table: "completions_archive", archived: true}
}

type completionSource struct {
	store    *Store
	table    string
	archived bool
}

func (cs *completionSource) ByUser(ctx context.Context, userID int64, courseIDs []int64) ([]recompletion.Completion, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	cs.store.mu.RLock()
	defer cs.store.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT id, user_id, course_id, time_enrolled, time_started, time_completed, reaggregate
		FROM %s
		WHERE user_id = ? AND course_id IN (%s)
		ORDER BY id ASC`,
		cs.table, placeholders(len(courseIDs)))

	args := append([]any{userID}, int64Args(courseIDs)...)
	return cs.query(ctx, query, args...)
}

func (cs *completionSource) ByCourses(ctx context.Context, courseIDs []int64) ([]recompletion.Completion, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}
	cs.store.mu.RLock()
	defer cs.store.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT id, user_id, course_id, time_enrolled, time_started, time_completed, reaggregate
		FROM %s
		WHERE course_id IN (%s)
		ORDER BY user_id ASC, id ASC`,
		cs.table, placeholders(len(courseIDs)))

	return cs.query(ctx, query, int64Args(courseIDs)...)
}

func (cs *completionSource) query(ctx context.Context, query string, args ...any) ([]recompletion.Completion, error) {
	rows, err := cs.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", cs.table, err)
	}
	defer rows.Close()

	var completions []recompletion.Completion
	for rows.Next() {
		var c recompletion.Completion
		var tc sql.NullInt64
		if err := rows.Scan(&c.ID, &c.UserID, &c.CourseID, &c.TimeEnrolled, &c.TimeStarted, &tc, &c.Reaggregate); err != nil {
			return nil, err
		}
		c.TimeCompleted = int64Ptr(tc)
		c.Archived = cs.archived
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

func (s *Store) queryCompletions(ctx context.Context, query string, args ...any) ([]recompletion.Completion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []recompletion.Completion
	for rows.Next() {
		var c recompletion.Completion
		var tc sql.NullInt64
		var archived int
		if err := rows.Scan(&c.ID, &c.UserID, &c.CourseID, &c.TimeEnrolled, &c.TimeStarted, &tc, &c.Reaggregate, &archived); err != nil {
			return nil, err
		}
		c.TimeCompleted = int64Ptr(tc)
		c.Archived = archived == 1
		completions = append(completions, c)
	}
	return completions, rows.Err()
}

// =============================================================================
// HOUSEKEEPING
// =============================================================================

// RepairZeroCompletions rewrites time_completed = 0 to NULL in both
// populations. Zero is never a legitimate completion instant; older
// completion code wrote it for "incomplete". Returns how many rows
// were repaired.
func (s *Store) RepairZeroCompletions(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, table := range []string{"completions", "completions_archive"} {
		res, err := s.db.ExecContext(ctx,
			"UPDATE "+table+" SET time_completed = NULL WHERE time_completed = 0")
		if err != nil {
			return total, fmt.Errorf("failed to repair %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
