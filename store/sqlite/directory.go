/*
directory.go - Courses, users, enrolments

PURPOSE:
  The engine reads a slice of the host platform's directory. In a real
  deployment these tables are synced from the host; here they are also
  writable so the API and tests can seed them.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// COURSES
// =============================================================================

// SaveCourse inserts or updates a course.
func (s *Store) SaveCourse(ctx context.Context, c recompletion.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO courses (id, idnumber, fullname, visible, completion_enabled)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			idnumber = excluded.idnumber,
			fullname = excluded.fullname,
			visible = excluded.visible,
			completion_enabled = excluded.completion_enabled
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.IDNumber, c.FullName, boolInt(c.Visible), boolInt(c.CompletionEnabled))
	return err
}

// Course retrieves a course by id.
func (s *Store) Course(ctx context.Context, id int64) (*recompletion.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c recompletion.Course
	var visible, completionEnabled int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, idnumber, fullname, visible, completion_enabled FROM courses WHERE id = ?",
		id,
	).Scan(&c.ID, &c.IDNumber, &c.FullName, &visible, &completionEnabled)

	if err == sql.ErrNoRows {
		return nil, &recompletion.NotFoundError{Kind: "course", ID: id}
	}
	if err != nil {
		return nil, err
	}
	c.Visible = visible == 1
	c.CompletionEnabled = completionEnabled == 1
	return &c, nil
}

// EnabledCourses returns visible, completion-enabled courses whose
// recompletion setting rows carry enable=1 and a positive duration.
// This is the course set every scheduled pass iterates.
func (s *Store) EnabledCourses(ctx context.Context) ([]recompletion.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT c.id, c.idnumber, c.fullname, c.visible, c.completion_enabled
		FROM courses c
		JOIN settings se ON se.course_id = c.id AND se.name = 'enable' AND se.value = '1'
		JOIN settings sd ON sd.course_id = c.id AND sd.name = 'recompletionduration'
			AND CAST(sd.value AS INTEGER) > 0
		WHERE c.visible = 1 AND c.completion_enabled = 1
		ORDER BY c.id ASC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled courses: %w", err)
	}
	defer rows.Close()

	var courses []recompletion.Course
	for rows.Next() {
		var c recompletion.Course
		var visible, completionEnabled int
		if err := rows.Scan(&c.ID, &c.IDNumber, &c.FullName, &visible, &completionEnabled); err != nil {
			return nil, err
		}
		c.Visible = visible == 1
		c.CompletionEnabled = completionEnabled == 1
		courses = append(courses, c)
	}
	return courses, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, u recompletion.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, idnumber, fullname, email, suspended, timezone)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			idnumber = excluded.idnumber,
			fullname = excluded.fullname,
			email = excluded.email,
			suspended = excluded.suspended,
			timezone = excluded.timezone
	`
	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.IDNumber, u.FullName, u.Email, boolInt(u.Suspended), u.Timezone)
	return err
}

// User retrieves a user by id.
func (s *Store) User(ctx context.Context, id int64) (*recompletion.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u recompletion.User
	var suspended int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, idnumber, fullname, email, suspended, timezone FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.IDNumber, &u.FullName, &u.Email, &suspended, &u.Timezone)

	if err == sql.ErrNoRows {
		return nil, &recompletion.NotFoundError{Kind: "user", ID: id}
	}
	if err != nil {
		return nil, err
	}
	u.Suspended = suspended == 1
	return &u, nil
}

// =============================================================================
// ENROLMENTS
// =============================================================================

// SaveEnrolment inserts an enrolment and returns its id.
func (s *Store) SaveEnrolment(ctx context.Context, e recompletion.Enrolment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO enrolments (user_id, course_id, method, status, time_created, time_start)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CourseID, e.Method, e.Status, e.TimeCreated, e.TimeStart)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Enrolments returns all enrolments for one learner in one course.
// Implements the due-date calculator's EnrolmentStore.
func (s *Store) Enrolments(ctx context.Context, userID, courseID int64) ([]recompletion.Enrolment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, course_id, method, status, time_created, time_start
		FROM enrolments
		WHERE user_id = ? AND course_id = ?
		ORDER BY id ASC`,
		userID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEnrolments(rows)
}

// EnrolledUserIDs returns the ids of actively enrolled learners in a
// course, in stable ascending order.
func (s *Store) EnrolledUserIDs(ctx context.Context, courseID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT user_id FROM enrolments
		WHERE course_id = ? AND status = 0
		ORDER BY user_id ASC`,
		courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ActiveEnrolmentCount returns how many enabled courses a learner is
// actively enrolled in. Used as the compliance-rate denominator.
func (s *Store) ActiveEnrolmentCount(ctx context.Context, userID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(DISTINCT e.course_id)
		FROM enrolments e
		JOIN settings se ON se.course_id = e.course_id AND se.name = 'enable' AND se.value = '1'
		WHERE e.user_id = ? AND e.status = 0
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&count)
	return count, err
}

func scanEnrolments(rows *sql.Rows) ([]recompletion.Enrolment, error) {
	var enrolments []recompletion.Enrolment
	for rows.Next() {
		var e recompletion.Enrolment
		if err := rows.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Method, &e.Status, &e.TimeCreated, &e.TimeStart); err != nil {
			return nil, err
		}
		enrolments = append(enrolments, e)
	}
	return enrolments, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
