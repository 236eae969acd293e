/*
settings.go - Per-course policy settings, equivalents, app settings

PURPOSE:
  Course policy is stored as sparse name/value rows; the engine parses
  them through recompletion.ParseConfig. Equivalent links live here
  too, as does the installation-wide app_settings table that carries
  the notifylast guard.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// COURSE SETTINGS (recompletion.SettingsStore)
// =============================================================================

// CourseSettings returns the raw setting rows for a course. Missing
// keys are simply absent from the map.
func (s *Store) CourseSettings(ctx context.Context, courseID int64) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT name, value FROM settings WHERE course_id = ?", courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		settings[name] = value
	}
	return settings, rows.Err()
}

// SaveSetting writes one setting row. Values arrive already
// second-denominated; day conversion happens at the API boundary.
func (s *Store) SaveSetting(ctx context.Context, courseID int64, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO settings (course_id, name, value)
		VALUES (?, ?, ?)
		ON CONFLICT(course_id, name) DO UPDATE SET
			value = excluded.value
	`
	_, err := s.db.ExecContext(ctx, query, courseID, name, value)
	return err
}

// DeleteSettings removes every setting row for a course.
func (s *Store) DeleteSettings(ctx context.Context, courseID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM settings WHERE course_id = ?", courseID)
	return err
}

// =============================================================================
// EQUIVALENTS (recompletion.EquivalenceStore)
// =============================================================================

// LinksFor returns every equivalent link touching the course, in
// either position.
func (s *Store) LinksFor(ctx context.Context, courseID int64) ([]recompletion.Equivalent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_one_id, course_two_id, unidirectional
		FROM equivalents
		WHERE course_one_id = ? OR course_two_id = ?
		ORDER BY id ASC`,
		courseID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equivalents: %w", err)
	}
	defer rows.Close()

	return scanEquivalents(rows)
}

// Equivalents returns all links.
func (s *Store) Equivalents(ctx context.Context) ([]recompletion.Equivalent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, course_one_id, course_two_id, unidirectional FROM equivalents ORDER BY id ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEquivalents(rows)
}

// SaveEquivalent inserts a link and returns its id.
func (s *Store) SaveEquivalent(ctx context.Context, e recompletion.Equivalent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO equivalents (course_one_id, course_two_id, unidirectional) VALUES (?, ?, ?)",
		e.CourseOneID, e.CourseTwoID, boolInt(e.Unidirectional))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteEquivalent removes a link.
func (s *Store) DeleteEquivalent(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM equivalents WHERE id = ?", id)
	return err
}

func scanEquivalents(rows *sql.Rows) ([]recompletion.Equivalent, error) {
	var links []recompletion.Equivalent
	for rows.Next() {
		var e recompletion.Equivalent
		var uni int
		if err := rows.Scan(&e.ID, &e.CourseOneID, &e.CourseTwoID, &uni); err != nil {
			return nil, err
		}
		e.Unidirectional = uni == 1
		links = append(links, e)
	}
	return links, rows.Err()
}

// =============================================================================
// APP SETTINGS (installation-wide)
// =============================================================================

const appSettingNotifyLast = "notifylast"

// AppSetting returns an installation-wide value, or "" when unset.
func (s *Store) AppSetting(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM app_settings WHERE name = ?", name).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetAppSetting writes an installation-wide value.
func (s *Store) SetAppSetting(ctx context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO app_settings (name, value)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value
	`
	_, err := s.db.ExecContext(ctx, query, name, value)
	return err
}

// NotifyLast returns when the reminder pass last ran, 0 if never.
func (s *Store) NotifyLast(ctx context.Context) (int64, error) {
	value, err := s.AppSetting(ctx, appSettingNotifyLast)
	if err != nil || value == "" {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed notifylast %q: %w", value, err)
	}
	return n, nil
}

// SetNotifyLast records the reminder pass's run instant.
func (s *Store) SetNotifyLast(ctx context.Context, at int64) error {
	return s.SetAppSetting(ctx, appSettingNotifyLast, strconv.FormatInt(at, 10))
}
