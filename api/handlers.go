/*
handlers.go - HTTP handlers for the compliance engine

PURPOSE:
  Exposes the recompletion engine over REST: directory upserts,
  completion recording with equivalent auto-completion, per-course
  settings, equivalence links, the external sync surface, compliance
  rates, and manual pass triggers.

ENDPOINTS:
  Directory:
    POST   /api/courses                       Upsert course record
    POST   /api/users                         Upsert user record
    POST   /api/enrolments                    Enrol (files grace record)

  Completions:
    GET    /api/users/{id}/completions        Live + archived history
    POST   /api/completions                   Record completion
    DELETE /api/completions/{userID}/{courseID}

  Course policy:
    GET    /api/courses/{id}/settings         Settings (days out)
    PUT    /api/courses/{id}/settings         Settings (days in)
    GET    /api/equivalents                   List links
    POST   /api/equivalents                   Declare link
    DELETE /api/equivalents/{id}

  External sync:
    GET    /api/sync/out-of-compliance        Unsynced export rows
    POST   /api/sync/out-of-compliance/ack    Mark synced
    GET    /api/sync/completions              Unsynced completion rows
    POST   /api/sync/completions/ack          Mark synced

  Compliance and admin:
    GET    /api/users/{id}/compliance         Compliance rate
    POST   /api/admin/passes/{task}           Run a pass now
    GET    /api/admin/tasks/{task}/runs       Pass audit history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Record not found, unknown task
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: The background counterpart of the manual triggers
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/compliance-engine/recompletion"
	"github.com/warp/compliance-engine/scanner"
	"github.com/warp/compliance-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Scanner *scanner.Scanner
	Events  recompletion.EventSink

	calculator *recompletion.Calculator

	// Now is stubbed in tests. Defaults to time.Now.
	Now func() time.Time
}

// NewHandler creates a handler over the store. The scanner backs the
// manual pass triggers; events receive completion_set audit records.
func NewHandler(store *sqlite.Store, sc *scanner.Scanner, events recompletion.EventSink) *Handler {
	if events == nil {
		events = recompletion.DiscardEvents{}
	}
	return &Handler{
		Store:   store,
		Scanner: sc,
		Events:  events,
		calculator: &recompletion.Calculator{
			Settings: store,
			Resolver: &recompletion.Resolver{Links: store},
			Aggregator: &recompletion.Aggregator{
				Sources: []recompletion.CompletionSource{store.LiveSource(), store.ArchiveSource()},
			},
			Cache:      store,
			Enrolments: store,
		},
	}
}

func (h *Handler) now() int64 {
	if h.Now != nil {
		return h.Now().Unix()
	}
	return time.Now().Unix()
}

// =============================================================================
// DIRECTORY HANDLERS
// =============================================================================

// CreateCourse upserts a course directory record.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	var req CourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID <= 0 || req.FullName == "" {
		writeError(w, http.StatusBadRequest, "Course id and fullname are required", nil)
		return
	}
	err := h.Store.SaveCourse(r.Context(), recompletion.Course{
		ID:                req.ID,
		IDNumber:          req.IDNumber,
		FullName:          req.FullName,
		Visible:           req.Visible,
		CompletionEnabled: req.CompletionEnabled,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save course", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// CreateUser upserts a user directory record.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID <= 0 || req.Email == "" {
		writeError(w, http.StatusBadRequest, "User id and email are required", nil)
		return
	}
	err := h.Store.SaveUser(r.Context(), recompletion.User{
		ID:        req.ID,
		IDNumber:  req.IDNumber,
		FullName:  req.FullName,
		Email:     req.Email,
		Suspended: req.Suspended,
		Timezone:  req.Timezone,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save user", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// CreateEnrolment enrols a user and, for courses with a grace period,
// files the grace record the notification pass later consumes.
func (h *Handler) CreateEnrolment(w http.ResponseWriter, r *http.Request) {
	var req EnrolmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID <= 0 || req.CourseID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id and course_id are required", nil)
		return
	}
	if req.Method == "" {
		req.Method = "manual"
	}

	ctx := r.Context()
	created := h.now()
	id, err := h.Store.SaveEnrolment(ctx, recompletion.Enrolment{
		UserID:      req.UserID,
		CourseID:    req.CourseID,
		Method:      req.Method,
		TimeCreated: created,
		TimeStart:   req.TimeStart,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save enrolment", err)
		return
	}

	graced, err := h.fileGraceRecord(ctx, req, created)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to file grace record", err)
		return
	}
	writeJSON(w, http.StatusCreated, EnrolmentResponse{ID: id, GraceCreated: graced})
}

// fileGraceRecord inserts the one-shot grace record when the course
// grants a grace window. Duplicates mean the learner was enrolled
// before and are swallowed.
func (h *Handler) fileGraceRecord(ctx context.Context, req EnrolmentRequest, created int64) (bool, error) {
	raw, err := h.Store.CourseSettings(ctx, req.CourseID)
	if err != nil {
		return false, err
	}
	cfg := recompletion.ParseConfig(raw)
	if !cfg.Enable || cfg.GracePeriod <= 0 {
		return false, nil
	}
	start := created
	if req.TimeStart > start {
		start = req.TimeStart
	}
	if err := h.Store.InsertGraceRecord(ctx, req.UserID, req.CourseID, start); err != nil {
		if recompletion.IsDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// =============================================================================
// COMPLETION HANDLERS
// =============================================================================

// GetUserCompletions returns the learner's merged live + archived
// completion history.
func (h *Handler) GetUserCompletions(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.Store.CompletionsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list completions", err)
		return
	}
	dtos := make([]CompletionDTO, len(rows))
	for i, c := range rows {
		dtos[i] = CompletionDTO{
			ID:            c.ID,
			UserID:        c.UserID,
			CourseID:      c.CourseID,
			TimeEnrolled:  c.TimeEnrolled,
			TimeStarted:   c.TimeStarted,
			TimeCompleted: c.TimeCompleted,
			Archived:      c.Archived,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCompletion records a completion, propagates it to equivalent
// courses configured for auto-completion, and queues export rows.
func (h *Handler) CreateCompletion(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.UserID <= 0 || req.CourseID <= 0 || req.TimeCompleted <= 0 {
		writeError(w, http.StatusBadRequest, "user_id, course_id and time_completed are required", nil)
		return
	}

	id, auto, err := h.recordCompletion(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to record completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, CompletionCreatedResponse{ID: id, AutoCompleted: auto})
}

// recordCompletion is the service flow behind CreateCompletion: upsert
// the live row, mirror it into equivalents that auto-complete, emit
// completion_set events for the mirrors, and append export snapshots.
func (h *Handler) recordCompletion(ctx context.Context, req CompletionRequest) (int64, []int64, error) {
	at := req.TimeCompleted
	id, err := h.Store.SaveCompletion(ctx, recompletion.Completion{
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		TimeEnrolled:  req.TimeEnrolled,
		TimeStarted:   req.TimeStarted,
		TimeCompleted: &at,
	})
	if err != nil {
		return 0, nil, err
	}
	if err := h.appendCompletionSync(ctx, req.UserID, req.CourseID, at); err != nil {
		return 0, nil, err
	}

	// Completing this course may satisfy other courses' requirements:
	// every link pointing at it, plus the symmetric side of its own
	// links, is a candidate.
	links, err := h.Store.LinksFor(ctx, req.CourseID)
	if err != nil {
		return 0, nil, err
	}
	targets := make(map[int64]bool)
	for _, link := range links {
		switch {
		case link.CourseTwoID == req.CourseID:
			targets[link.CourseOneID] = true
		case link.CourseOneID == req.CourseID && !link.Unidirectional:
			targets[link.CourseTwoID] = true
		}
	}
	delete(targets, req.CourseID)

	var auto []int64
	for target := range targets {
		raw, err := h.Store.CourseSettings(ctx, target)
		if err != nil {
			return 0, nil, err
		}
		if !recompletion.ParseConfig(raw).AutoCompleteWithEquivalent {
			continue
		}
		mirror := at
		if _, err := h.Store.SaveCompletion(ctx, recompletion.Completion{
			UserID:        req.UserID,
			CourseID:      target,
			TimeEnrolled:  req.TimeEnrolled,
			TimeCompleted: &mirror,
		}); err != nil {
			return 0, nil, err
		}
		ev := recompletion.NewEvent(recompletion.EventCompletionSet, req.UserID, target, h.now())
		ev.Detail = "auto-completed with equivalent " + strconv.FormatInt(req.CourseID, 10)
		if err := h.Events.Record(ctx, ev); err != nil {
			return 0, nil, err
		}
		if err := h.appendCompletionSync(ctx, req.UserID, target, at); err != nil {
			return 0, nil, err
		}
		auto = append(auto, target)
	}
	sort.Slice(auto, func(i, j int) bool { return auto[i] < auto[j] })
	return id, auto, nil
}

// appendCompletionSync queues an idnumber-keyed export snapshot. Pairs
// without external keys are not exportable and are skipped silently.
func (h *Handler) appendCompletionSync(ctx context.Context, userID, courseID, at int64) error {
	user, err := h.Store.User(ctx, userID)
	if err != nil {
		if recompletion.IsNotFound(err) {
			return nil
		}
		return err
	}
	course, err := h.Store.Course(ctx, courseID)
	if err != nil {
		if recompletion.IsNotFound(err) {
			return nil
		}
		return err
	}
	if user.IDNumber == "" || course.IDNumber == "" {
		return nil
	}
	return h.Store.AppendCompletionSync(ctx, user.IDNumber, course.IDNumber, at)
}

// DeleteCompletion removes a learner's live completion row.
func (h *Handler) DeleteCompletion(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	courseID, ok := pathID(w, r, "courseID")
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.Store.Completion(ctx, userID, courseID); err != nil {
		if recompletion.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "Completion not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load completion", err)
		return
	}
	if err := h.Store.DeleteCompletions(ctx, userID, courseID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete completion", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COURSE SETTINGS
// =============================================================================

// GetSettings returns a course's recompletion settings with duration
// keys converted back to whole days.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	raw, err := h.Store.CourseSettings(r.Context(), courseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load settings", err)
		return
	}
	out := make(map[string]string, len(raw))
	for name, value := range raw {
		if recompletion.IsDurationSetting(name) {
			secs, err := strconv.ParseInt(value, 10, 64)
			if err == nil {
				value = strconv.FormatInt(recompletion.SecondsToDays(secs), 10)
			}
		}
		out[name] = value
	}
	writeJSON(w, http.StatusOK, SettingsRequest{Settings: out})
}

// UpdateSettings writes a course's recompletion settings, converting
// duration keys from days to seconds.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	courseID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	for name, value := range req.Settings {
		if !validSetting(name) {
			writeError(w, http.StatusBadRequest, "Unknown setting "+name, nil)
			return
		}
		if recompletion.IsDurationSetting(name) {
			days, err := strconv.ParseInt(value, 10, 64)
			if err != nil || days < 0 {
				writeError(w, http.StatusBadRequest, "Setting "+name+" must be a whole number of days", err)
				return
			}
			value = strconv.FormatInt(recompletion.DaysToSeconds(days), 10)
		}
		if err := h.Store.SaveSetting(ctx, courseID, name, value); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save setting "+name, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

var settingNames = map[string]bool{
	recompletion.SettingEnable:                     true,
	recompletion.SettingRecompletionDuration:       true,
	recompletion.SettingNotificationStart:          true,
	recompletion.SettingFrequency:                  true,
	recompletion.SettingGracePeriod:                true,
	recompletion.SettingBulkNotification:           true,
	recompletion.SettingRecompleteWithEquivalent:   true,
	recompletion.SettingAutoCompleteWithEquivalent: true,
	recompletion.SettingArchiveCompletionData:      true,
	recompletion.SettingDeleteGradeData:            true,
	recompletion.SettingQuizData:                   true,
	recompletion.SettingArchiveQuizData:            true,
	recompletion.SettingScormData:                  true,
	recompletion.SettingArchiveScormData:           true,
	recompletion.SettingAssignData:                 true,
	recompletion.SettingCertificateData:            true,
	recompletion.SettingArchiveCertificateData:     true,
	recompletion.SettingEmailEnable:                true,
	recompletion.SettingExpirySubject:              true,
	recompletion.SettingExpiryBody:                 true,
	recompletion.SettingReminderSubject:            true,
	recompletion.SettingReminderBody:               true,
}

func validSetting(name string) bool { return settingNames[name] }

// =============================================================================
// EQUIVALENTS
// =============================================================================

// ListEquivalents returns every declared equivalence link.
func (h *Handler) ListEquivalents(w http.ResponseWriter, r *http.Request) {
	links, err := h.Store.Equivalents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list equivalents", err)
		return
	}
	dtos := make([]EquivalentDTO, len(links))
	for i, link := range links {
		dtos[i] = EquivalentDTO{
			ID:             link.ID,
			CourseOneID:    link.CourseOneID,
			CourseTwoID:    link.CourseTwoID,
			Unidirectional: link.Unidirectional,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEquivalent declares an equivalence link.
func (h *Handler) CreateEquivalent(w http.ResponseWriter, r *http.Request) {
	var req EquivalentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CourseOneID <= 0 || req.CourseTwoID <= 0 || req.CourseOneID == req.CourseTwoID {
		writeError(w, http.StatusBadRequest, "Two distinct course ids are required", nil)
		return
	}
	id, err := h.Store.SaveEquivalent(r.Context(), recompletion.Equivalent{
		CourseOneID:    req.CourseOneID,
		CourseTwoID:    req.CourseTwoID,
		Unidirectional: req.Unidirectional,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save equivalent", err)
		return
	}
	writeJSON(w, http.StatusCreated, EquivalentDTO{
		ID:             id,
		CourseOneID:    req.CourseOneID,
		CourseTwoID:    req.CourseTwoID,
		Unidirectional: req.Unidirectional,
	})
}

// DeleteEquivalent removes an equivalence link.
func (h *Handler) DeleteEquivalent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Store.DeleteEquivalent(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete equivalent", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EXTERNAL SYNC SURFACE
// =============================================================================

// ListOutOfCompliance returns unsynced out-of-compliance rows, oldest
// first.
func (h *Handler) ListOutOfCompliance(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.UnsyncedOutOfCompliance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list out-of-compliance rows", err)
		return
	}
	dtos := make([]OutOfComplianceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = OutOfComplianceDTO{ID: row.ID, UserIDNumber: row.UserIDNumber, CourseIDNumber: row.CourseIDNumber}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AckOutOfCompliance marks out-of-compliance rows as synced.
func (h *Handler) AckOutOfCompliance(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, h.Store.MarkOutOfComplianceSynced)
}

// ListCompletionSync returns unsynced completion export rows, oldest
// first.
func (h *Handler) ListCompletionSync(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.UnsyncedCompletionSync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list completion sync rows", err)
		return
	}
	dtos := make([]CompletionSyncDTO, len(rows))
	for i, row := range rows {
		dtos[i] = CompletionSyncDTO{
			ID:             row.ID,
			UserIDNumber:   row.UserIDNumber,
			CourseIDNumber: row.CourseIDNumber,
			TimeCompleted:  row.TimeCompleted,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AckCompletionSync marks completion export rows as synced.
func (h *Handler) AckCompletionSync(w http.ResponseWriter, r *http.Request) {
	h.ack(w, r, h.Store.MarkCompletionSyncSynced)
}

func (h *Handler) ack(w http.ResponseWriter, r *http.Request, mark func(context.Context, []int64, int64) error) {
	var req AckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids are required", nil)
		return
	}
	if err := mark(r.Context(), req.IDs, h.now()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to mark rows synced", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// COMPLIANCE RATE
// =============================================================================

// GetComplianceRate returns the share of the learner's
// recompletion-enabled enrolments that are currently in compliance.
func (h *Handler) GetComplianceRate(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	now := h.now()

	courses, err := h.Store.EnabledCourses(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list enabled courses", err)
		return
	}

	var enrolled, compliant int
	for _, course := range courses {
		enrolments, err := h.Store.Enrolments(ctx, userID, course.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load enrolments", err)
			return
		}
		active := false
		for _, e := range enrolments {
			if e.Active() {
				active = true
				break
			}
		}
		if !active {
			continue
		}
		enrolled++

		due, dueOK, err := h.calculator.DueDate(ctx, userID, course.ID, true, true)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute due date", err)
			return
		}
		if dueOK && due > now {
			compliant++
		}
	}

	rate := decimal.NewFromInt(100)
	if enrolled > 0 {
		rate = decimal.NewFromInt(int64(compliant)).
			Div(decimal.NewFromInt(int64(enrolled))).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	writeJSON(w, http.StatusOK, ComplianceRateDTO{
		UserID:    userID,
		Enrolled:  enrolled,
		Compliant: compliant,
		Rate:      rate.StringFixed(2),
	})
}

// =============================================================================
// ADMIN: PASS TRIGGERS AND AUDIT
// =============================================================================

// TriggerPass runs one scheduled pass immediately.
func (h *Handler) TriggerPass(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	pass, ok := h.passes()[task]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown task "+task, nil)
		return
	}
	if err := pass(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Pass failed", err)
		return
	}
	runs, err := h.Store.TaskRuns(r.Context(), task, 1)
	if err != nil || len(runs) == 0 {
		writeError(w, http.StatusInternalServerError, "Pass ran but no audit row found", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskRunDTO(runs[0]))
}

// ListTaskRuns returns the audit history for one pass, newest first.
func (h *Handler) ListTaskRuns(w http.ResponseWriter, r *http.Request) {
	task := chi.URLParam(r, "task")
	if _, ok := h.passes()[task]; !ok {
		writeError(w, http.StatusNotFound, "Unknown task "+task, nil)
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}
	runs, err := h.Store.TaskRuns(r.Context(), task, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list task runs", err)
		return
	}
	dtos := make([]TaskRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toTaskRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) passes() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		scanner.TaskCheckRecompletion:    h.Scanner.CheckRecompletion,
		scanner.TaskOutOfCompliance:      h.Scanner.OutOfCompliance,
		scanner.TaskCacheCompletions:     h.Scanner.CacheCompletions,
		scanner.TaskRepairCompletions:    h.Scanner.RepairCompletions,
		scanner.TaskResetCompletionCache: h.Scanner.ResetCompletionCache,
		scanner.TaskRemoveOldSynced:      h.Scanner.RemoveOldSynced,
	}
}

func toTaskRunDTO(run sqlite.TaskRun) TaskRunDTO {
	return TaskRunDTO{
		ID:          run.ID,
		Task:        run.Task,
		Status:      run.Status,
		Detail:      run.Detail,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
