/*
Package recompletion provides the core recompletion scheduling engine.

PURPOSE:
  This package contains the domain types and algorithms for recurring
  compliance courses: resolving equivalent courses, aggregating completion
  history across live and archived records, and computing when a learner
  is next due to recomplete.

KEY CONCEPTS IN THIS FILE (types.go):
  - Completion: One learner's completion state for one course
  - Course/User/Enrolment: Directory records the engine reads
  - Equivalent: A direct link declaring two courses interchangeable
  - CacheBounds: Cached earliest/latest completion per learner+course

DESIGN PRINCIPLES:
  1. Seconds everywhere: all durations and instants are epoch seconds
  2. NULL means incomplete: a nil TimeCompleted is "not done yet";
     zero is a data defect repaired by a housekeeping pass
  3. Storage-agnostic: the engine talks to small interfaces, never SQL

SEE ALSO:
  - equivalence.go: Equivalent-course resolution
  - aggregate.go: Live+archive completion merging
  - duedate.go: Due-date and notification-window computation
  - config.go: Per-course policy settings
*/
package recompletion

// DaySecs is the number of seconds in a day. Course settings are
// day-denominated at the API boundary and stored as seconds.
const DaySecs int64 = 86400

// =============================================================================
// DIRECTORY RECORDS
// =============================================================================

// Course is the slice of the host course directory the engine needs.
type Course struct {
	ID                int64
	IDNumber          string // external join key; may be empty
	FullName          string
	Visible           bool
	CompletionEnabled bool
}

// User is the slice of the host user directory the engine needs.
type User struct {
	ID        int64
	IDNumber  string // external join key; may be empty
	FullName  string
	Email     string
	Suspended bool
	Timezone  string
}

// Enrolment records a learner's membership in a course.
type Enrolment struct {
	ID          int64
	UserID      int64
	CourseID    int64
	Method      string // "manual", "self", "auto", ...
	Status      int    // 0 = active
	TimeCreated int64
	TimeStart   int64
}

// Active reports whether the enrolment currently grants membership.
func (e Enrolment) Active() bool { return e.Status == 0 }

// SelfServe reports whether the enrolment came from an automatic or
// self-serve method. Grace notices are not sent for these.
func (e Enrolment) SelfServe() bool { return e.Method == "auto" || e.Method == "self" }

// =============================================================================
// COMPLETION - Live or archived completion state
// =============================================================================

// Completion is one learner's completion state for one course.
// Live rows are unique per (user, course); archive rows are not.
type Completion struct {
	ID           int64
	UserID       int64
	CourseID     int64
	TimeEnrolled int64
	TimeStarted  int64
	// TimeCompleted is nil while the course is incomplete. A stored zero
	// is a defect; the repair-completions pass rewrites it to NULL.
	TimeCompleted *int64
	Reaggregate   int64
	Archived      bool
}

// Completed reports whether the record carries a real completion time.
func (c Completion) Completed() bool {
	return c.TimeCompleted != nil && *c.TimeCompleted > 0
}

// CompletedAt returns the completion time, or 0 if incomplete.
func (c Completion) CompletedAt() int64 {
	if c.TimeCompleted == nil {
		return 0
	}
	return *c.TimeCompleted
}

// ModuleCompletion is activity-level completion state within a course.
type ModuleCompletion struct {
	ID           int64
	UserID       int64
	CourseID     int64
	ModuleID     int64
	State        int
	TimeModified int64
}

// =============================================================================
// EQUIVALENTS
// =============================================================================

// Equivalent declares that completing CourseTwo satisfies CourseOne's
// completion requirement. When Unidirectional is false the relation is
// symmetric. Links are single-hop: chains do not combine transitively.
type Equivalent struct {
	ID             int64
	CourseOneID    int64
	CourseTwoID    int64
	Unidirectional bool
}

// =============================================================================
// PER-LEARNER SCHEDULING STATE
// =============================================================================

// CacheBounds caches the earliest and latest known completion for one
// learner+course across live and archived records and all equivalents.
// Invariant: OriginalComp <= LatestComp.
type CacheBounds struct {
	ID           int64
	UserID       int64
	CourseID     int64
	OriginalComp int64
	LatestComp   int64
}

// ResetMarker records when the equivalent-driven reset path last fired
// for a learner+course, so one completion event resets at most once.
type ResetMarker struct {
	ID        int64
	UserID    int64
	CourseID  int64
	TimeReset int64
}

// GraceRecord is created at enrolment time for courses with a grace
// period, consumed once by the grace-notification pass, then deleted.
type GraceRecord struct {
	ID        int64
	UserID    int64
	CourseID  int64
	TimeStart int64
}

// =============================================================================
// EXTERNAL SYNC RECORDS (idnumber-keyed)
// =============================================================================

// OutOfComplianceRecord is an append-only snapshot for external systems.
// Keys are external idnumbers, never internal ids; learners or courses
// without an idnumber are never emitted.
type OutOfComplianceRecord struct {
	ID             int64
	UserIDNumber   string
	CourseIDNumber string
	Synced         bool
	TimeSynced     int64
}

// CompletionSyncRecord is an idnumber-keyed completion snapshot polled
// by an external system and purged after a retention window once synced.
type CompletionSyncRecord struct {
	ID             int64
	UserIDNumber   string
	CourseIDNumber string
	TimeCompleted  int64
	Synced         bool
	TimeSynced     int64
}
