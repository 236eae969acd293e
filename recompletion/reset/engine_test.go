package reset

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/recompletion"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeCompletions struct {
	calls   []string
	failOn  string
	failErr error
}

func (f *fakeCompletions) step(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return f.failErr
	}
	return nil
}

func (f *fakeCompletions) ArchiveCompletions(_ context.Context, _, _ int64) error {
	return f.step("archive")
}
func (f *fakeCompletions) DeleteCompletions(_ context.Context, _, _ int64) error {
	return f.step("delete")
}
func (f *fakeCompletions) ArchiveModuleCompletions(_ context.Context, _, _ int64) error {
	return f.step("archive-modules")
}
func (f *fakeCompletions) DeleteModuleCompletions(_ context.Context, _, _ int64) error {
	return f.step("delete-modules")
}

type fakeGrades struct {
	items     []GradeItem
	deleted   []int64
	deleteErr error
}

func (f *fakeGrades) GradeItems(_ context.Context, _ int64) ([]GradeItem, error) {
	return f.items, nil
}
func (f *fakeGrades) DeleteGrades(_ context.Context, _, itemID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, itemID)
	return nil
}

type fakeQuizzes struct {
	quizzes   []Quiz
	attempts  map[int64]int           // quizID -> used attempts
	overrides map[int64]*QuizOverride // quizID -> existing override
	set       map[int64]int           // quizID -> attempts written
	archived  bool
	deleted   bool
}

func (f *fakeQuizzes) Quizzes(_ context.Context, _ int64) ([]Quiz, error) { return f.quizzes, nil }
func (f *fakeQuizzes) AttemptCount(_ context.Context, _, quizID int64) (int, error) {
	return f.attempts[quizID], nil
}
func (f *fakeQuizzes) Override(_ context.Context, _, quizID int64) (*QuizOverride, error) {
	return f.overrides[quizID], nil
}
func (f *fakeQuizzes) SetOverride(_ context.Context, _, quizID int64, attempts int) error {
	if f.set == nil {
		f.set = map[int64]int{}
	}
	f.set[quizID] = attempts
	return nil
}
func (f *fakeQuizzes) ArchiveAttempts(_ context.Context, _, _ int64) error {
	f.archived = true
	return nil
}
func (f *fakeQuizzes) DeleteAttempts(_ context.Context, _, _ int64) error {
	f.deleted = true
	return nil
}

type fakeScorm struct {
	archived  bool
	deleted   bool
	deleteErr error
}

func (f *fakeScorm) ArchiveTracks(_ context.Context, _, _ int64) error {
	f.archived = true
	return nil
}
func (f *fakeScorm) DeleteTracks(_ context.Context, _, _ int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = true
	return nil
}

type fakeAssign struct {
	assigns []Assignment
	added   []int64
}

func (f *fakeAssign) Assignments(_ context.Context, _ int64) ([]Assignment, error) {
	return f.assigns, nil
}
func (f *fakeAssign) AddAttempt(_ context.Context, _, assignID int64) error {
	f.added = append(f.added, assignID)
	return nil
}

type fakeCerts struct {
	archived bool
	deleted  bool
}

func (f *fakeCerts) ArchiveIssues(_ context.Context, _, _ int64) error {
	f.archived = true
	return nil
}
func (f *fakeCerts) DeleteIssues(_ context.Context, _, _ int64) error {
	f.deleted = true
	return nil
}

type fakeAuth struct{ canGrade bool }

func (f *fakeAuth) CanGrade(_ context.Context, _ int64) (bool, error) { return f.canGrade, nil }

type fakePurger struct{ purged int }

func (f *fakePurger) PurgeCompletionCaches(_ context.Context) error {
	f.purged++
	return nil
}

type fixture struct {
	engine      *Engine
	completions *fakeCompletions
	grades      *fakeGrades
	quizzes     *fakeQuizzes
	scorm       *fakeScorm
	assign      *fakeAssign
	certs       *fakeCerts
	auth        *fakeAuth
	purger      *fakePurger
	events      *recompletion.EventLog
}

func newFixture() *fixture {
	f := &fixture{
		completions: &fakeCompletions{failErr: errors.New("boom")},
		grades:      &fakeGrades{},
		quizzes:     &fakeQuizzes{},
		scorm:       &fakeScorm{},
		assign:      &fakeAssign{},
		certs:       &fakeCerts{},
		auth:        &fakeAuth{canGrade: true},
		purger:      &fakePurger{},
		events:      &recompletion.EventLog{},
	}
	f.engine = &Engine{
		Completions:  f.completions,
		Grades:       f.grades,
		Quizzes:      f.quizzes,
		Scorms:       f.scorm,
		Assignments:  f.assign,
		Certificates: f.certs,
		Auth:         f.auth,
		Cache:        f.purger,
		Events:       f.events,
		Now:          func() time.Time { return time.Unix(1_700_000_000, 0) },
	}
	return f
}

func course() recompletion.Course {
	return recompletion.Course{ID: 10, FullName: "Fire Safety"}
}

// =============================================================================
// TESTS
// =============================================================================

func TestResetUser_ArchiveRunsBeforeDelete(t *testing.T) {
	f := newFixture()
	cfg := recompletion.Config{ArchiveCompletionData: true}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []string{"archive", "delete", "archive-modules", "delete-modules"}, f.completions.calls)
}

func TestResetUser_DeletionIsUnconditional(t *testing.T) {
	// GIVEN archiving is disabled
	f := newFixture()
	cfg := recompletion.Config{ArchiveCompletionData: false}

	// WHEN the reset runs
	_, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)

	// THEN live rows are still deleted, with no archive step
	assert.Equal(t, []string{"delete", "delete-modules"}, f.completions.calls)
}

func TestResetUser_CompletionDeleteFailureAborts(t *testing.T) {
	f := newFixture()
	f.completions.failOn = "delete"

	_, err := f.engine.ResetUser(context.Background(), 1, course(), recompletion.Config{})
	require.Error(t, err)
	// Nothing downstream ran.
	assert.Zero(t, f.purger.purged)
	assert.Empty(t, f.events.Events)
}

func TestResetUser_GradeDeleteFailurePropagates(t *testing.T) {
	f := newFixture()
	f.grades.items = []GradeItem{{ID: 7, CourseID: 10}}
	f.grades.deleteErr = errors.New("grade subsystem down")

	_, err := f.engine.ResetUser(context.Background(), 1, course(), recompletion.Config{DeleteGradeData: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grade")
}

func TestResetUser_GradeDeletionPerItem(t *testing.T) {
	f := newFixture()
	f.grades.items = []GradeItem{{ID: 7}, {ID: 8}}

	_, err := f.engine.ResetUser(context.Background(), 1, course(), recompletion.Config{DeleteGradeData: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 8}, f.grades.deleted)
}

func TestResetUser_QuizDeleteWithArchive(t *testing.T) {
	f := newFixture()
	cfg := recompletion.Config{QuizData: recompletion.ResetDelete, ArchiveQuizData: true}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.True(t, f.quizzes.archived)
	assert.True(t, f.quizzes.deleted)
}

func TestResetUser_QuizExtraAttemptRaisesCeiling(t *testing.T) {
	// GIVEN a 3-attempt quiz where the learner used 1 attempt and holds
	// an override of 2
	f := newFixture()
	f.quizzes.quizzes = []Quiz{{ID: 5, Attempts: 3}}
	f.quizzes.attempts = map[int64]int{5: 1}
	f.quizzes.overrides = map[int64]*QuizOverride{5: {ID: 1, QuizID: 5, Attempts: 2}}
	cfg := recompletion.Config{QuizData: recompletion.ResetExtraAttempt}

	// WHEN the reset runs
	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// THEN the ceiling becomes used(1) + base(3) = 4
	assert.Equal(t, 4, f.quizzes.set[5])
	// AND no attempt data is removed in extra-attempt mode
	assert.False(t, f.quizzes.deleted)
}

func TestResetUser_QuizOverrideNeverLowered(t *testing.T) {
	f := newFixture()
	f.quizzes.quizzes = []Quiz{{ID: 5, Attempts: 3}}
	f.quizzes.attempts = map[int64]int{5: 1}
	f.quizzes.overrides = map[int64]*QuizOverride{5: {ID: 1, QuizID: 5, Attempts: 9}}
	cfg := recompletion.Config{QuizData: recompletion.ResetExtraAttempt}

	_, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	_, wrote := f.quizzes.set[5]
	assert.False(t, wrote, "existing higher override must not be touched")
}

func TestResetUser_UnlimitedQuizNeedsNoOverride(t *testing.T) {
	f := newFixture()
	f.quizzes.quizzes = []Quiz{{ID: 5, Attempts: 0}}
	cfg := recompletion.Config{QuizData: recompletion.ResetExtraAttempt}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Empty(t, f.quizzes.set)
}

func TestResetUser_AssignWithoutGradingPermission(t *testing.T) {
	f := newFixture()
	f.auth.canGrade = false
	f.assign.assigns = []Assignment{{ID: 3}}
	cfg := recompletion.Config{AssignData: recompletion.ResetExtraAttempt}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err, "permission denial is a warning, not a failure")
	require.Len(t, warnings, 1)
	assert.Equal(t, "assign", warnings[0].Activity)
	assert.Empty(t, f.assign.added)
}

func TestResetUser_AssignExtraAttempts(t *testing.T) {
	f := newFixture()
	f.assign.assigns = []Assignment{{ID: 3}, {ID: 4}}
	cfg := recompletion.Config{AssignData: recompletion.ResetExtraAttempt}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, []int64{3, 4}, f.assign.added)
}

func TestResetUser_ScormFailureDoesNotBlockCertificates(t *testing.T) {
	f := newFixture()
	f.scorm.deleteErr = errors.New("scorm table locked")
	cfg := recompletion.Config{
		ScormData:       recompletion.ResetDelete,
		CertificateData: recompletion.ResetDelete,
	}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "scorm", warnings[0].Activity)
	assert.True(t, f.certs.deleted, "later activity steps still run")
}

func TestResetUser_EmitsEventAndPurgesCache(t *testing.T) {
	f := newFixture()

	_, err := f.engine.ResetUser(context.Background(), 42, course(), recompletion.Config{})
	require.NoError(t, err)

	require.Len(t, f.events.Events, 1)
	ev := f.events.Events[0]
	assert.Equal(t, recompletion.EventCompletionReset, ev.Type)
	assert.Equal(t, int64(42), ev.UserID)
	assert.Equal(t, int64(10), ev.CourseID)
	assert.Equal(t, int64(1_700_000_000), ev.Time)
	assert.Equal(t, 1, f.purger.purged)
}

func TestResetUser_NilCertificateSubsystem(t *testing.T) {
	f := newFixture()
	f.engine.Certificates = nil
	cfg := recompletion.Config{CertificateData: recompletion.ResetDelete}

	warnings, err := f.engine.ResetUser(context.Background(), 1, course(), cfg)
	require.NoError(t, err)
	assert.Empty(t, warnings)
}
