/*
engine.go - The reset/archive state machine for one learner+course

PURPOSE:
  When a learner's recompletion cycle fires, their previous completion
  state must be cleared so the host's completion machinery can track the
  new cycle from a clean slate. What "cleared" means is policy-driven
  per course: archive first or discard, delete activity data or grant
  extra attempts instead.

STEP ORDER (strict):
  1. Archive (optional) + delete course/criterion completion rows
  2. Archive (optional) + delete module-level completion rows
  3. Delete grade data through the grading subsystem
  4. Per-activity resets: quiz, SCORM, assignment, certificate
  5. Emit a completion_reset event
  6. Purge completion caches (coarse)

FAILURE SEMANTICS:
  Completion deletion (1-2) and grade deletion (3) are mandatory: an
  error there aborts the reset and propagates. Per-activity resets (4)
  are best-effort: a failure in one activity type is collected as a
  warning and never blocks the others, so a flaky quiz subsystem cannot
  leave a learner half-reset on the mandatory records.

SEE ALSO:
  - ports.go: The interfaces each step drives
  - ../config.go: ResetPolicy and the archive flags
*/
package reset

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// WARNINGS
// =============================================================================

// Warning is a non-fatal issue collected during a reset, such as a
// missing grading capability. The reset itself still counts as done.
type Warning struct {
	Activity string
	Message  string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Activity, w.Message)
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs the reset state transition for a learner+course.
// All fields except Certificates and Logger are required; Certificates
// may be nil on hosts without a certificate subsystem.
type Engine struct {
	Completions  CompletionArchiver
	Grades       GradeService
	Quizzes      QuizService
	Scorms       ScormService
	Assignments  AssignService
	Certificates CertificateService
	Auth         Authorizer
	Cache        CachePurger
	Events       recompletion.EventSink

	Logger *log.Logger

	// Now is stubbed in tests. Defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() int64 {
	if e.Now != nil {
		return e.Now().Unix()
	}
	return time.Now().Unix()
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf("[ResetEngine] "+format, args...)
	}
}

// ResetUser clears one learner's completion state in one course per the
// course's policy. Returns accumulated warnings for best-effort steps;
// returns an error only when a mandatory step failed, in which case the
// reset must be retried.
func (e *Engine) ResetUser(ctx context.Context, userID int64, course recompletion.Course, cfg recompletion.Config) ([]Warning, error) {
	var warnings []Warning

	// Step 1: course-level completion rows. Archiving is additive;
	// deletion is unconditional and mandatory.
	if cfg.ArchiveCompletionData {
		if err := e.Completions.ArchiveCompletions(ctx, userID, course.ID); err != nil {
			return warnings, fmt.Errorf("archive completions for user %d course %d: %w", userID, course.ID, err)
		}
	}
	if err := e.Completions.DeleteCompletions(ctx, userID, course.ID); err != nil {
		return warnings, fmt.Errorf("delete completions for user %d course %d: %w", userID, course.ID, err)
	}

	// Step 2: module-level completion rows, same pattern.
	if cfg.ArchiveCompletionData {
		if err := e.Completions.ArchiveModuleCompletions(ctx, userID, course.ID); err != nil {
			return warnings, fmt.Errorf("archive module completions for user %d course %d: %w", userID, course.ID, err)
		}
	}
	if err := e.Completions.DeleteModuleCompletions(ctx, userID, course.ID); err != nil {
		return warnings, fmt.Errorf("delete module completions for user %d course %d: %w", userID, course.ID, err)
	}

	// Step 3: grades, mandatory when enabled. Deletion goes through the
	// grading subsystem so grade-history hooks fire.
	if cfg.DeleteGradeData {
		items, err := e.Grades.GradeItems(ctx, course.ID)
		if err != nil {
			return warnings, fmt.Errorf("list grade items for course %d: %w", course.ID, err)
		}
		for _, item := range items {
			if err := e.Grades.DeleteGrades(ctx, userID, item.ID); err != nil {
				return warnings, fmt.Errorf("delete grades for user %d item %d: %w", userID, item.ID, err)
			}
		}
	}

	// Step 4: per-activity resets, best-effort from here on.
	warnings = append(warnings, e.resetQuizzes(ctx, userID, course, cfg)...)
	warnings = append(warnings, e.resetScorm(ctx, userID, course, cfg)...)
	warnings = append(warnings, e.resetAssignments(ctx, userID, course, cfg)...)
	warnings = append(warnings, e.resetCertificates(ctx, userID, course, cfg)...)

	// Step 5: audit event.
	ev := recompletion.NewEvent(recompletion.EventCompletionReset, userID, course.ID, e.now())
	if err := e.Events.Record(ctx, ev); err != nil {
		warnings = append(warnings, Warning{Activity: "event", Message: err.Error()})
	}

	// Step 6: coarse cache purge.
	if err := e.Cache.PurgeCompletionCaches(ctx); err != nil {
		warnings = append(warnings, Warning{Activity: "cache", Message: err.Error()})
	}

	e.logf("reset user=%d course=%d (%s), %d warning(s)", userID, course.ID, course.FullName, len(warnings))
	return warnings, nil
}

// =============================================================================
// PER-ACTIVITY STEPS
// =============================================================================

func (e *Engine) resetQuizzes(ctx context.Context, userID int64, course recompletion.Course, cfg recompletion.Config) []Warning {
	switch cfg.QuizData {
	case recompletion.ResetDelete:
		if cfg.ArchiveQuizData {
			if err := e.Quizzes.ArchiveAttempts(ctx, userID, course.ID); err != nil {
				return []Warning{{Activity: "quiz", Message: "archive attempts: " + err.Error()}}
			}
		}
		if err := e.Quizzes.DeleteAttempts(ctx, userID, course.ID); err != nil {
			return []Warning{{Activity: "quiz", Message: "delete attempts: " + err.Error()}}
		}
		return nil

	case recompletion.ResetExtraAttempt:
		return e.extendQuizAttempts(ctx, userID, course)

	default:
		return nil
	}
}

// extendQuizAttempts raises each quiz's per-user attempt ceiling to
// (attempts already used + the quiz's base allowance). An existing
// override is never lowered; quizzes with unlimited base attempts need
// no override at all.
func (e *Engine) extendQuizAttempts(ctx context.Context, userID int64, course recompletion.Course) []Warning {
	quizzes, err := e.Quizzes.Quizzes(ctx, course.ID)
	if err != nil {
		return []Warning{{Activity: "quiz", Message: "list quizzes: " + err.Error()}}
	}

	var warnings []Warning
	for _, q := range quizzes {
		if q.Attempts == 0 {
			continue // unlimited
		}
		used, err := e.Quizzes.AttemptCount(ctx, userID, q.ID)
		if err != nil {
			warnings = append(warnings, Warning{Activity: "quiz", Message: fmt.Sprintf("quiz %d attempt count: %v", q.ID, err)})
			continue
		}
		ceiling := used + q.Attempts

		existing, err := e.Quizzes.Override(ctx, userID, q.ID)
		if err != nil {
			warnings = append(warnings, Warning{Activity: "quiz", Message: fmt.Sprintf("quiz %d override lookup: %v", q.ID, err)})
			continue
		}
		if existing != nil && existing.Attempts >= ceiling {
			continue
		}
		if err := e.Quizzes.SetOverride(ctx, userID, q.ID, ceiling); err != nil {
			warnings = append(warnings, Warning{Activity: "quiz", Message: fmt.Sprintf("quiz %d set override: %v", q.ID, err)})
		}
	}
	return warnings
}

func (e *Engine) resetScorm(ctx context.Context, userID int64, course recompletion.Course, cfg recompletion.Config) []Warning {
	// SCORM supports delete only; extra-attempt has no meaning for
	// tracking rows.
	if cfg.ScormData != recompletion.ResetDelete {
		return nil
	}
	if cfg.ArchiveScormData {
		if err := e.Scorms.ArchiveTracks(ctx, userID, course.ID); err != nil {
			return []Warning{{Activity: "scorm", Message: "archive tracks: " + err.Error()}}
		}
	}
	if err := e.Scorms.DeleteTracks(ctx, userID, course.ID); err != nil {
		return []Warning{{Activity: "scorm", Message: "delete tracks: " + err.Error()}}
	}
	return nil
}

func (e *Engine) resetAssignments(ctx context.Context, userID int64, course recompletion.Course, cfg recompletion.Config) []Warning {
	// Assignments support extra-attempt only; the activity owns its
	// submission history.
	if cfg.AssignData != recompletion.ResetExtraAttempt {
		return nil
	}
	ok, err := e.Auth.CanGrade(ctx, course.ID)
	if err != nil {
		return []Warning{{Activity: "assign", Message: "capability check: " + err.Error()}}
	}
	if !ok {
		return []Warning{{Activity: "assign", Message: fmt.Sprintf("no grading permission in course %d; attempts not extended", course.ID)}}
	}

	assigns, err := e.Assignments.Assignments(ctx, course.ID)
	if err != nil {
		return []Warning{{Activity: "assign", Message: "list assignments: " + err.Error()}}
	}
	var warnings []Warning
	for _, a := range assigns {
		if err := e.Assignments.AddAttempt(ctx, userID, a.ID); err != nil {
			warnings = append(warnings, Warning{Activity: "assign", Message: fmt.Sprintf("assignment %d add attempt: %v", a.ID, err)})
		}
	}
	return warnings
}

func (e *Engine) resetCertificates(ctx context.Context, userID int64, course recompletion.Course, cfg recompletion.Config) []Warning {
	if cfg.CertificateData != recompletion.ResetDelete || e.Certificates == nil {
		return nil
	}
	if cfg.ArchiveCertificateData {
		if err := e.Certificates.ArchiveIssues(ctx, userID, course.ID); err != nil {
			return []Warning{{Activity: "certificate", Message: "archive issues: " + err.Error()}}
		}
	}
	if err := e.Certificates.DeleteIssues(ctx, userID, course.ID); err != nil {
		return []Warning{{Activity: "certificate", Message: "delete issues: " + err.Error()}}
	}
	return nil
}
