/*
activity.go - Quiz, SCORM, assignment, certificate and grade data

PURPOSE:
  Implements the activity-subsystem ports the reset engine drives.
  Grade deletion writes a grades_history row per deleted grade so
  downstream consumers see the same trail the host's grading subsystem
  would produce.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/compliance-engine/recompletion/reset"
)

// =============================================================================
// GRADES (reset.GradeService)
// =============================================================================

// GradeItems lists the gradable items in a course.
func (s *Store) GradeItems(ctx context.Context, courseID int64) ([]reset.GradeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_id, item_name FROM grade_items WHERE course_id = ? ORDER BY id ASC",
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []reset.GradeItem
	for rows.Next() {
		var item reset.GradeItem
		if err := rows.Scan(&item.ID, &item.CourseID, &item.ItemName); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteGrades removes the learner's grades for one item, recording a
// history row per deletion.
func (s *Store) DeleteGrades(ctx context.Context, userID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM grades WHERE user_id = ? AND item_id = ?", userID, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete grades: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO grades_history (item_id, user_id, action, time_modified)
			VALUES (?, ?, 'deleted', ?)`,
			itemID, userID, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("failed to record grade history: %w", err)
		}
	}
	return tx.Commit()
}

// SaveGradeItem and SaveGrade seed grading data.
func (s *Store) SaveGradeItem(ctx context.Context, item reset.GradeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO grade_items (id, course_id, item_name) VALUES (?, ?, ?)",
		item.ID, item.CourseID, item.ItemName)
	return err
}

func (s *Store) SaveGrade(ctx context.Context, itemID, userID int64, grade float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO grades (item_id, user_id, final_grade) VALUES (?, ?, ?)",
		itemID, userID, grade)
	return err
}

// GradeHistoryCount reports how many history rows exist for a
// learner+item.
func (s *Store) GradeHistoryCount(ctx context.Context, userID, itemID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM grades_history WHERE user_id = ? AND item_id = ?",
		userID, itemID).Scan(&count)
	return count, err
}

// GradeCount reports remaining grades for a learner+item.
func (s *Store) GradeCount(ctx context.Context, userID, itemID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM grades WHERE user_id = ? AND item_id = ?",
		userID, itemID).Scan(&count)
	return count, err
}

// =============================================================================
// QUIZZES (reset.QuizService)
// =============================================================================

// Quizzes lists the quizzes in a course.
func (s *Store) Quizzes(ctx context.Context, courseID int64) ([]reset.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_id, name, attempts FROM quizzes WHERE course_id = ? ORDER BY id ASC",
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []reset.Quiz
	for rows.Next() {
		var q reset.Quiz
		if err := rows.Scan(&q.ID, &q.CourseID, &q.Name, &q.Attempts); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

// AttemptCount returns how many attempts the learner has on one quiz.
func (s *Store) AttemptCount(ctx context.Context, userID, quizID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM quiz_attempts WHERE user_id = ? AND quiz_id = ?",
		userID, quizID).Scan(&count)
	return count, err
}

// Override returns the learner's attempt override for a quiz, or nil.
func (s *Store) Override(ctx context.Context, userID, quizID int64) (*reset.QuizOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var o reset.QuizOverride
	err := s.db.QueryRowContext(ctx,
		"SELECT id, quiz_id, user_id, attempts FROM quiz_overrides WHERE user_id = ? AND quiz_id = ?",
		userID, quizID,
	).Scan(&o.ID, &o.QuizID, &o.UserID, &o.Attempts)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// SetOverride creates or replaces the learner's attempt ceiling.
func (s *Store) SetOverride(ctx context.Context, userID, quizID int64, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO quiz_overrides (quiz_id, user_id, attempts)
		VALUES (?, ?, ?)
		ON CONFLICT(quiz_id, user_id) DO UPDATE SET
			attempts = excluded.attempts
	`
	_, err := s.db.ExecContext(ctx, query, quizID, userID, attempts)
	return err
}

// ArchiveAttempts copies the learner's quiz attempts and grades for
// every quiz in the course into the archive tables.
func (s *Store) ArchiveAttempts(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quiz_attempts_archive (quiz_id, user_id, attempt, state, time_finish)
		SELECT qa.quiz_id, qa.user_id, qa.attempt, qa.state, qa.time_finish
		FROM quiz_attempts qa
		JOIN quizzes q ON q.id = qa.quiz_id
		WHERE qa.user_id = ? AND q.course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive quiz attempts: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO quiz_grades_archive (quiz_id, user_id, grade)
		SELECT qg.quiz_id, qg.user_id, qg.grade
		FROM quiz_grades qg
		JOIN quizzes q ON q.id = qg.quiz_id
		WHERE qg.user_id = ? AND q.course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive quiz grades: %w", err)
	}
	return tx.Commit()
}

// DeleteAttempts removes the learner's quiz attempts and grades for
// every quiz in the course.
func (s *Store) DeleteAttempts(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM quiz_attempts WHERE user_id = ?
			AND quiz_id IN (SELECT id FROM quizzes WHERE course_id = ?)`,
		`DELETE FROM quiz_grades WHERE user_id = ?
			AND quiz_id IN (SELECT id FROM quizzes WHERE course_id = ?)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID, courseID); err != nil {
			return fmt.Errorf("failed to delete quiz data: %w", err)
		}
	}
	return tx.Commit()
}

// SaveQuiz and SaveQuizAttempt seed quiz data.
func (s *Store) SaveQuiz(ctx context.Context, q reset.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO quizzes (id, course_id, name, attempts) VALUES (?, ?, ?, ?)",
		q.ID, q.CourseID, q.Name, q.Attempts)
	return err
}

func (s *Store) SaveQuizAttempt(ctx context.Context, quizID, userID int64, attempt int, timeFinish int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_attempts (quiz_id, user_id, attempt, state, time_finish)
		VALUES (?, ?, ?, 'finished', ?)`,
		quizID, userID, attempt, timeFinish)
	return err
}

// =============================================================================
// SCORM (reset.ScormService)
// =============================================================================

// ArchiveTracks copies the learner's SCORM tracking rows for the
// course into the archive table.
func (s *Store) ArchiveTracks(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scorm_tracks_archive (scorm_id, user_id, element, value)
		SELECT st.scorm_id, st.user_id, st.element, st.value
		FROM scorm_tracks st
		JOIN scorms sc ON sc.id = st.scorm_id
		WHERE st.user_id = ? AND sc.course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive scorm tracks: %w", err)
	}
	return nil
}

// DeleteTracks removes the learner's SCORM tracking rows for the course.
func (s *Store) DeleteTracks(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM scorm_tracks WHERE user_id = ?
			AND scorm_id IN (SELECT id FROM scorms WHERE course_id = ?)`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete scorm tracks: %w", err)
	}
	return nil
}

// SaveScorm and SaveScormTrack seed SCORM data.
func (s *Store) SaveScorm(ctx context.Context, id, courseID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO scorms (id, course_id, name) VALUES (?, ?, ?)", id, courseID, name)
	return err
}

func (s *Store) SaveScormTrack(ctx context.Context, scormID, userID int64, element, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO scorm_tracks (scorm_id, user_id, element, value) VALUES (?, ?, ?, ?)",
		scormID, userID, element, value)
	return err
}

// ScormTrackCount reports remaining live tracking rows.
func (s *Store) ScormTrackCount(ctx context.Context, userID, courseID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM scorm_tracks st
		JOIN scorms sc ON sc.id = st.scorm_id
		WHERE st.user_id = ? AND sc.course_id = ?`,
		userID, courseID).Scan(&count)
	return count, err
}

// =============================================================================
// ASSIGNMENTS (reset.AssignService)
// =============================================================================

// Assignments lists the assignments in a course.
func (s *Store) Assignments(ctx context.Context, courseID int64) ([]reset.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_id, name FROM assignments WHERE course_id = ? ORDER BY id ASC",
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assigns []reset.Assignment
	for rows.Next() {
		var a reset.Assignment
		if err := rows.Scan(&a.ID, &a.CourseID, &a.Name); err != nil {
			return nil, err
		}
		assigns = append(assigns, a)
	}
	return assigns, rows.Err()
}

// AddAttempt opens one additional submission attempt: a fresh 'new'
// submission row numbered after the learner's latest.
func (s *Store) AddAttempt(ctx context.Context, userID, assignID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(attempt_number) FROM assignment_submissions WHERE user_id = ? AND assignment_id = ?",
		userID, assignID).Scan(&latest)
	if err != nil {
		return err
	}

	next := int64(0)
	if latest.Valid {
		next = latest.Int64 + 1
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO assignment_submissions (assignment_id, user_id, attempt_number, status)
		VALUES (?, ?, ?, 'new')`,
		assignID, userID, next)
	if err != nil {
		return fmt.Errorf("failed to add submission attempt: %w", err)
	}
	return nil
}

// SaveAssignment and SaveSubmission seed assignment data.
func (s *Store) SaveAssignment(ctx context.Context, a reset.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO assignments (id, course_id, name) VALUES (?, ?, ?)",
		a.ID, a.CourseID, a.Name)
	return err
}

func (s *Store) SaveSubmission(ctx context.Context, assignID, userID int64, attempt int, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_submissions (assignment_id, user_id, attempt_number, status)
		VALUES (?, ?, ?, ?)`,
		assignID, userID, attempt, status)
	return err
}

// LatestAttemptNumber returns the learner's highest submission attempt,
// -1 if they have none.
func (s *Store) LatestAttemptNumber(ctx context.Context, userID, assignID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(attempt_number) FROM assignment_submissions WHERE user_id = ? AND assignment_id = ?",
		userID, assignID).Scan(&latest)
	if err != nil {
		return -1, err
	}
	if !latest.Valid {
		return -1, nil
	}
	return latest.Int64, nil
}

// =============================================================================
// CERTIFICATES (reset.CertificateService)
// =============================================================================

// ArchiveIssues copies the learner's issued certificates for the
// course into the archive table.
func (s *Store) ArchiveIssues(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO certificate_issues_archive (certificate_id, user_id, time_created)
		SELECT ci.certificate_id, ci.user_id, ci.time_created
		FROM certificate_issues ci
		JOIN certificates c ON c.id = ci.certificate_id
		WHERE ci.user_id = ? AND c.course_id = ?`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to archive certificate issues: %w", err)
	}
	return nil
}

// DeleteIssues removes the learner's issued certificates for the course.
func (s *Store) DeleteIssues(ctx context.Context, userID, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM certificate_issues WHERE user_id = ?
			AND certificate_id IN (SELECT id FROM certificates WHERE course_id = ?)`,
		userID, courseID)
	if err != nil {
		return fmt.Errorf("failed to delete certificate issues: %w", err)
	}
	return nil
}

// SaveCertificate and SaveCertificateIssue seed certificate data.
func (s *Store) SaveCertificate(ctx context.Context, id, courseID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO certificates (id, course_id, name) VALUES (?, ?, ?)", id, courseID, name)
	return err
}

func (s *Store) SaveCertificateIssue(ctx context.Context, certificateID, userID, timeCreated int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO certificate_issues (certificate_id, user_id, time_created) VALUES (?, ?, ?)",
		certificateID, userID, timeCreated)
	return err
}
