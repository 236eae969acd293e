/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients, kept separate from domain types so
  the wire format can evolve independently. Durations cross this
  boundary day-denominated; the engine stores seconds.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Producers and consumers of these shapes
*/
package api

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

// CourseRequest creates or updates a course directory record.
type CourseRequest struct {
	ID                int64  `json:"id"`
	IDNumber          string `json:"idnumber"`
	FullName          string `json:"fullname"`
	Visible           bool   `json:"visible"`
	CompletionEnabled bool   `json:"completion_enabled"`
}

// UserRequest creates or updates a user directory record.
type UserRequest struct {
	ID        int64  `json:"id"`
	IDNumber  string `json:"idnumber"`
	FullName  string `json:"fullname"`
	Email     string `json:"email"`
	Suspended bool   `json:"suspended"`
	Timezone  string `json:"timezone"`
}

// EnrolmentRequest enrols a user in a course.
type EnrolmentRequest struct {
	UserID    int64  `json:"user_id"`
	CourseID  int64  `json:"course_id"`
	Method    string `json:"method"`
	TimeStart int64  `json:"time_start,omitempty"`
}

// EnrolmentResponse reports the created enrolment and whether a grace
// record was filed for it.
type EnrolmentResponse struct {
	ID           int64 `json:"id"`
	GraceCreated bool  `json:"grace_created"`
}

// =============================================================================
// COMPLETIONS
// =============================================================================

// CompletionRequest records a completion.
type CompletionRequest struct {
	UserID        int64 `json:"user_id"`
	CourseID      int64 `json:"course_id"`
	TimeCompleted int64 `json:"time_completed"`
	TimeEnrolled  int64 `json:"time_enrolled,omitempty"`
	TimeStarted   int64 `json:"time_started,omitempty"`
}

// CompletionDTO is one completion row, live or archived.
type CompletionDTO struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	CourseID      int64  `json:"course_id"`
	TimeEnrolled  int64  `json:"time_enrolled"`
	TimeStarted   int64  `json:"time_started"`
	TimeCompleted *int64 `json:"time_completed"`
	Archived      bool   `json:"archived"`
}

// CompletionCreatedResponse reports the recorded completion plus any
// equivalent courses auto-completed alongside it.
type CompletionCreatedResponse struct {
	ID            int64   `json:"id"`
	AutoCompleted []int64 `json:"auto_completed,omitempty"`
}

// =============================================================================
// SETTINGS AND EQUIVALENTS
// =============================================================================

// SettingsRequest updates a course's recompletion settings. Duration
// keys carry whole days.
type SettingsRequest struct {
	Settings map[string]string `json:"settings"`
}

// EquivalentRequest declares an equivalence link.
type EquivalentRequest struct {
	CourseOneID    int64 `json:"course_one_id"`
	CourseTwoID    int64 `json:"course_two_id"`
	Unidirectional bool  `json:"unidirectional"`
}

// EquivalentDTO is one declared link.
type EquivalentDTO struct {
	ID             int64 `json:"id"`
	CourseOneID    int64 `json:"course_one_id"`
	CourseTwoID    int64 `json:"course_two_id"`
	Unidirectional bool  `json:"unidirectional"`
}

// =============================================================================
// EXTERNAL SYNC
// =============================================================================

// OutOfComplianceDTO is one unsynced out-of-compliance export row.
type OutOfComplianceDTO struct {
	ID             int64  `json:"id"`
	UserIDNumber   string `json:"user_idnumber"`
	CourseIDNumber string `json:"course_idnumber"`
}

// CompletionSyncDTO is one unsynced completion export row.
type CompletionSyncDTO struct {
	ID             int64  `json:"id"`
	UserIDNumber   string `json:"user_idnumber"`
	CourseIDNumber string `json:"course_idnumber"`
	TimeCompleted  int64  `json:"time_completed"`
}

// AckRequest marks export rows as synced.
type AckRequest struct {
	IDs []int64 `json:"ids"`
}

// =============================================================================
// COMPLIANCE RATE AND ADMIN
// =============================================================================

// ComplianceRateDTO is a learner's compliance percentage across
// recompletion-enabled courses.
type ComplianceRateDTO struct {
	UserID    int64  `json:"user_id"`
	Enrolled  int    `json:"enrolled"`
	Compliant int    `json:"compliant"`
	Rate      string `json:"rate"` // percentage with two decimals
}

// TaskRunDTO is one audit row for a scheduled pass.
type TaskRunDTO struct {
	ID          string `json:"id"`
	Task        string `json:"task"`
	Status      string `json:"status"`
	Detail      string `json:"detail"`
	StartedAt   int64  `json:"started_at"`
	CompletedAt *int64 `json:"completed_at"`
}
