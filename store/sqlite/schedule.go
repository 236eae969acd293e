/*
schedule.go - Per-learner scheduling state

PURPOSE:
  Three small record families the scheduled passes read and write:
  cached completion bounds (rebuilt incrementally, wiped on config
  change), reset markers (upserted when the equivalent-driven reset
  fires), and grace records (written at enrolment, bulk-deleted after
  each grace pass).
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// COMPLETION CACHE (recompletion.BoundsStore)
// =============================================================================

// Bounds returns the cached completion bounds for a learner+course, or
// nil when no cache row exists.
func (s *Store) Bounds(ctx context.Context, userID, courseID int64) (*recompletion.CacheBounds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var b recompletion.CacheBounds
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, original_comp, latest_comp
		FROM completion_cache WHERE user_id = ? AND course_id = ?`,
		userID, courseID,
	).Scan(&b.ID, &b.UserID, &b.CourseID, &b.OriginalComp, &b.LatestComp)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// BoundsForCourse returns every cache row for a course keyed by user.
// The cache-maintenance pass diffs fresh bounds against this map.
func (s *Store) BoundsForCourse(ctx context.Context, courseID int64) (map[int64]recompletion.CacheBounds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, original_comp, latest_comp
		FROM completion_cache WHERE course_id = ?`,
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byUser := make(map[int64]recompletion.CacheBounds)
	for rows.Next() {
		var b recompletion.CacheBounds
		if err := rows.Scan(&b.ID, &b.UserID, &b.CourseID, &b.OriginalComp, &b.LatestComp); err != nil {
			return nil, err
		}
		byUser[b.UserID] = b
	}
	return byUser, rows.Err()
}

// SaveBounds inserts or replaces the cache row for a learner+course.
func (s *Store) SaveBounds(ctx context.Context, b recompletion.CacheBounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO completion_cache (user_id, course_id, original_comp, latest_comp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			original_comp = excluded.original_comp,
			latest_comp = excluded.latest_comp
	`
	_, err := s.db.ExecContext(ctx, query, b.UserID, b.CourseID, b.OriginalComp, b.LatestComp)
	if err != nil {
		return fmt.Errorf("failed to save completion cache row: %w", err)
	}
	return nil
}

// WipeBounds clears the entire completion cache. Used after config or
// equivalence changes invalidate every cached bound.
func (s *Store) WipeBounds(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM completion_cache")
	return err
}

// PurgeCompletionCaches implements the reset engine's coarse cache
// invalidation.
func (s *Store) PurgeCompletionCaches(ctx context.Context) error {
	return s.WipeBounds(ctx)
}

// =============================================================================
// RESET MARKERS
// =============================================================================

// ResetMarker returns the marker for a learner+course, or nil when the
// equivalent-driven path has never fired for the pair.
func (s *Store) ResetMarker(ctx context.Context, userID, courseID int64) (*recompletion.ResetMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m recompletion.ResetMarker
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, course_id, time_reset FROM reset_markers WHERE user_id = ? AND course_id = ?",
		userID, courseID,
	).Scan(&m.ID, &m.UserID, &m.CourseID, &m.TimeReset)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpsertResetMarker records that the equivalent-driven reset fired at
// the given instant.
func (s *Store) UpsertResetMarker(ctx context.Context, userID, courseID, timeReset int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO reset_markers (user_id, course_id, time_reset)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, course_id) DO UPDATE SET
			time_reset = excluded.time_reset
	`
	_, err := s.db.ExecContext(ctx, query, userID, courseID, timeReset)
	return err
}

// =============================================================================
// GRACE RECORDS
// =============================================================================

// InsertGraceRecord writes the one-shot grace row created at enrolment.
// A duplicate (user, course) insert returns ErrDuplicateGrace.
func (s *Store) InsertGraceRecord(ctx context.Context, userID, courseID, timeStart int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO grace_records (user_id, course_id, time_start) VALUES (?, ?, ?)",
		userID, courseID, timeStart)
	if err != nil {
		if isUniqueConstraintError(err) {
			return recompletion.ErrDuplicateGrace
		}
		return fmt.Errorf("failed to insert grace record: %w", err)
	}
	return nil
}

// GraceRecords returns every pending grace record in stable order.
func (s *Store) GraceRecords(ctx context.Context) ([]recompletion.GraceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, course_id, time_start FROM grace_records ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []recompletion.GraceRecord
	for rows.Next() {
		var g recompletion.GraceRecord
		if err := rows.Scan(&g.ID, &g.UserID, &g.CourseID, &g.TimeStart); err != nil {
			return nil, err
		}
		records = append(records, g)
	}
	return records, rows.Err()
}

// DeleteAllGraceRecords clears the table. The grace pass deletes
// everything, not just the rows it notified: enrolment or config may
// have changed since insertion, and the notice is one-shot either way.
func (s *Store) DeleteAllGraceRecords(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM grace_records")
	return err
}
