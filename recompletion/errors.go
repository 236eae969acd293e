/*
errors.go - Centralized error types for the recompletion engine

PURPOSE:
  All sentinel errors in one place for consistency and discoverability.
  Storage implementations map their driver errors onto these so callers
  can use errors.Is without knowing the backend.

ERROR CATEGORIES:
  1. Lookup errors - referenced records that do not exist
  2. Duplicate errors - unique-constraint conflicts (often swallowed)
  3. Policy errors - operations blocked by course configuration

SEE ALSO:
  - store/sqlite: maps SQLite constraint failures onto these
  - reset/engine.go: Warning, the non-fatal counterpart
*/
package recompletion

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCompletionNotFound is returned when an explicitly referenced
	// completion record does not exist. Batch discovery never raises
	// this; it originates from external update/delete requests.
	ErrCompletionNotFound = errors.New("completion record not found")

	// ErrCourseNotFound is returned when a referenced course doesn't exist.
	ErrCourseNotFound = errors.New("course not found")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateGrace is returned when a grace record already exists
	// for a learner+course. Callers treat it as "already handled".
	ErrDuplicateGrace = errors.New("grace record already exists")

	// ErrDuplicateCompletion is returned when a live completion row
	// already exists for a learner+course.
	ErrDuplicateCompletion = errors.New("completion record already exists")

	// ErrRecompletionDisabled is returned when an operation requires
	// recompletion to be enabled for the course and it is not.
	ErrRecompletionDisabled = errors.New("recompletion not enabled for course")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError carries the identity of a missing record.
type NotFoundError struct {
	Kind string // "completion", "course", "user"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "course":
		return ErrCourseNotFound
	case "user":
		return ErrUserNotFound
	default:
		return ErrCompletionNotFound
	}
}

// IsDuplicate reports whether the error is a unique-constraint conflict
// that callers may safely swallow.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateGrace) || errors.Is(err, ErrDuplicateCompletion)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCompletionNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
