/*
sync.go - External-sync snapshots and task run audit

PURPOSE:
  Two idnumber-keyed export tables polled by external compliance
  systems, plus the task_runs audit of scheduled pass executions.
  Export rows are append-only; the downstream consumer marks them
  synced and a housekeeping pass purges synced rows past retention.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// OUT-OF-COMPLIANCE EXPORT
// =============================================================================

// AppendOutOfCompliance writes one snapshot row. The pass does not
// dedupe against existing unsynced rows; consumers dedupe via synced
// and retention.
func (s *Store) AppendOutOfCompliance(ctx context.Context, userIDNumber, courseIDNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO out_of_compliance (user_idnumber, course_idnumber) VALUES (?, ?)",
		userIDNumber, courseIDNumber)
	if err != nil {
		return fmt.Errorf("failed to append out-of-compliance row: %w", err)
	}
	return nil
}

// UnsyncedOutOfCompliance returns rows not yet picked up, oldest first.
func (s *Store) UnsyncedOutOfCompliance(ctx context.Context) ([]recompletion.OutOfComplianceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_idnumber, course_idnumber, synced, time_synced
		FROM out_of_compliance WHERE synced = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []recompletion.OutOfComplianceRecord
	for rows.Next() {
		var r recompletion.OutOfComplianceRecord
		var synced int
		if err := rows.Scan(&r.ID, &r.UserIDNumber, &r.CourseIDNumber, &synced, &r.TimeSynced); err != nil {
			return nil, err
		}
		r.Synced = synced == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkOutOfComplianceSynced stamps the given rows as consumed.
func (s *Store) MarkOutOfComplianceSynced(ctx context.Context, ids []int64, at int64) error {
	return s.markSynced(ctx, "out_of_compliance", ids, at)
}

// =============================================================================
// COMPLETION SYNC EXPORT
// =============================================================================

// AppendCompletionSync writes one completion snapshot for export.
func (s *Store) AppendCompletionSync(ctx context.Context, userIDNumber, courseIDNumber string, timeCompleted int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO completion_sync (user_idnumber, course_idnumber, time_completed)
		VALUES (?, ?, ?)`,
		userIDNumber, courseIDNumber, timeCompleted)
	if err != nil {
		return fmt.Errorf("failed to append completion-sync row: %w", err)
	}
	return nil
}

// UnsyncedCompletionSync returns rows not yet picked up, oldest first.
func (s *Store) UnsyncedCompletionSync(ctx context.Context) ([]recompletion.CompletionSyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_idnumber, course_idnumber, time_completed, synced, time_synced
		FROM completion_sync WHERE synced = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []recompletion.CompletionSyncRecord
	for rows.Next() {
		var r recompletion.CompletionSyncRecord
		var synced int
		if err := rows.Scan(&r.ID, &r.UserIDNumber, &r.CourseIDNumber, &r.TimeCompleted, &synced, &r.TimeSynced); err != nil {
			return nil, err
		}
		r.Synced = synced == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

// MarkCompletionSyncSynced stamps the given rows as consumed.
func (s *Store) MarkCompletionSyncSynced(ctx context.Context, ids []int64, at int64) error {
	return s.markSynced(ctx, "completion_sync", ids, at)
}

// DeleteOldSynced purges synced export rows whose sync stamp is older
// than the cutoff, from both export tables. Returns rows removed.
func (s *Store) DeleteOldSynced(ctx context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, table := range []string{"out_of_compliance", "completion_sync"} {
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE synced = 1 AND time_synced < ?", cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to purge %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (s *Store) markSynced(ctx context.Context, table string, ids []int64, at int64) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(
		"UPDATE %s SET synced = 1, time_synced = ? WHERE id IN (%s)",
		table, placeholders(len(ids)))
	args := append([]any{at}, int64Args(ids)...)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// =============================================================================
// TASK RUNS
// =============================================================================

// TaskRun is one scheduled pass execution.
type TaskRun struct {
	ID          string
	Task        string
	Status      string // running, completed, failed
	Detail      string
	StartedAt   int64
	CompletedAt *int64
}

// StartTaskRun records a pass starting and returns the run id.
func (s *Store) StartTaskRun(ctx context.Context, task string, at int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_runs (id, task, status, started_at) VALUES (?, ?, 'running', ?)",
		id, task, at)
	if err != nil {
		return "", fmt.Errorf("failed to start task run: %w", err)
	}
	return id, nil
}

// FinishTaskRun stamps a run completed or failed with a detail line.
func (s *Store) FinishTaskRun(ctx context.Context, id, status, detail string, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE task_runs SET status = ?, detail = ?, completed_at = ? WHERE id = ?",
		status, detail, at, id)
	return err
}

// TaskRuns returns recent runs, newest first, optionally filtered by
// task name.
func (s *Store) TaskRuns(ctx context.Context, task string, limit int) ([]TaskRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var query string
	var args []any
	if task != "" {
		query = `
			SELECT id, task, status, detail, started_at, completed_at
			FROM task_runs WHERE task = ? ORDER BY started_at DESC LIMIT ?`
		args = []any{task, limit}
	} else {
		query = `
			SELECT id, task, status, detail, started_at, completed_at
			FROM task_runs ORDER BY started_at DESC LIMIT ?`
		args = []any{limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TaskRun
	for rows.Next() {
		var r TaskRun
		var completedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Task, &r.Status, &r.Detail, &r.StartedAt, &completedAt); err != nil {
			return nil, err
		}
		r.CompletedAt = int64Ptr(completedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
