/*
ports.go - Storage and activity-subsystem interfaces the reset engine drives

PURPOSE:
  The reset engine touches several record families owned by different
  subsystems: course completions, module completions, grades, and the
  per-activity data of quizzes, SCORM packages, assignments and
  certificates. Each family gets a small interface here so the engine
  stays independent of the SQL layer and activity data can be faked in
  tests.

ARCHIVE-THEN-DELETE:
  Every archivable family exposes a separate Archive* and Delete*
  method rather than one combined call. Archiving is additive and
  optional; deletion is unconditional once the policy fires. Keeping
  the two apart lets the engine honor the archive flags independently
  per family.

SEE ALSO:
  - engine.go: Orchestrates these ports in strict step order
  - ../../store/sqlite: Production implementations
*/
package reset

import "context"

// =============================================================================
// COMPLETION RECORDS
// =============================================================================

// CompletionArchiver archives and deletes course- and module-level
// completion rows for one learner in one course.
type CompletionArchiver interface {
	// ArchiveCompletions copies the learner's live course completion and
	// per-criterion rows into the archive tables.
	ArchiveCompletions(ctx context.Context, userID, courseID int64) error

	// DeleteCompletions removes the learner's live course completion and
	// per-criterion rows.
	DeleteCompletions(ctx context.Context, userID, courseID int64) error

	// ArchiveModuleCompletions copies the learner's activity-level
	// completion rows for the course into the archive table.
	ArchiveModuleCompletions(ctx context.Context, userID, courseID int64) error

	// DeleteModuleCompletions removes the learner's activity-level
	// completion rows for the course.
	DeleteModuleCompletions(ctx context.Context, userID, courseID int64) error
}

// =============================================================================
// GRADES
// =============================================================================

// GradeItem identifies one gradable item within a course.
type GradeItem struct {
	ID       int64
	CourseID int64
	ItemName string
}

// GradeService deletes a learner's grades through the grading
// subsystem's own deletion path so downstream grade-history hooks fire.
type GradeService interface {
	GradeItems(ctx context.Context, courseID int64) ([]GradeItem, error)
	DeleteGrades(ctx context.Context, userID, itemID int64) error
}

// =============================================================================
// ACTIVITY SUBSYSTEMS
// =============================================================================

// Quiz is the slice of a quiz activity the engine needs: its base
// attempt allowance. Attempts==0 means unlimited, which never needs an
// override.
type Quiz struct {
	ID       int64
	CourseID int64
	Name     string
	Attempts int
}

// QuizOverride is a per-user attempt ceiling for one quiz.
type QuizOverride struct {
	ID       int64
	QuizID   int64
	UserID   int64
	Attempts int
}

// QuizService exposes quiz attempt data and per-user overrides.
type QuizService interface {
	Quizzes(ctx context.Context, courseID int64) ([]Quiz, error)
	AttemptCount(ctx context.Context, userID, quizID int64) (int, error)

	// Override returns the learner's existing attempt override for the
	// quiz, or nil if none exists.
	Override(ctx context.Context, userID, quizID int64) (*QuizOverride, error)
	SetOverride(ctx context.Context, userID, quizID int64, attempts int) error

	ArchiveAttempts(ctx context.Context, userID, courseID int64) error
	DeleteAttempts(ctx context.Context, userID, courseID int64) error
}

// ScormService archives and deletes SCORM tracking rows.
type ScormService interface {
	ArchiveTracks(ctx context.Context, userID, courseID int64) error
	DeleteTracks(ctx context.Context, userID, courseID int64) error
}

// Assignment is the slice of an assignment activity the engine needs.
type Assignment struct {
	ID       int64
	CourseID int64
	Name     string
}

// AssignService grants additional submission attempts through the
// assignment subsystem's own extension path.
type AssignService interface {
	Assignments(ctx context.Context, courseID int64) ([]Assignment, error)
	AddAttempt(ctx context.Context, userID, assignID int64) error
}

// CertificateService archives and deletes issued-certificate rows.
type CertificateService interface {
	ArchiveIssues(ctx context.Context, userID, courseID int64) error
	DeleteIssues(ctx context.Context, userID, courseID int64) error
}

// =============================================================================
// CROSS-CUTTING
// =============================================================================

// Authorizer answers capability questions for the engine's acting
// identity. Extending assignment attempts requires grading capability
// in the course.
type Authorizer interface {
	CanGrade(ctx context.Context, courseID int64) (bool, error)
}

// AllowAll grants every capability. Scheduled passes run as the
// system identity, which can always grade.
type AllowAll struct{}

func (AllowAll) CanGrade(context.Context, int64) (bool, error) { return true, nil }

// CachePurger invalidates completion-related caches after a reset.
// The purge is coarse (everything, not per-learner): resets are batch
// and infrequent relative to read traffic.
type CachePurger interface {
	PurgeCompletionCaches(ctx context.Context) error
}
