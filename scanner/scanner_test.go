package scanner

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/compliance-engine/notify"
	"github.com/warp/compliance-engine/recompletion"
	"github.com/warp/compliance-engine/store/sqlite"
)

const day = recompletion.DaySecs

// Mar 15 is a digest day under the default options.
var testNow = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t      *testing.T
	store  *sqlite.Store
	mailer *notify.CaptureMailer
	events *recompletion.EventLog
	sc     *Scanner
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	mailer := &notify.CaptureMailer{}
	events := &recompletion.EventLog{}
	dispatcher := &notify.Dispatcher{
		Mailer:  mailer,
		Events:  events,
		BaseURL: "https://lms.example.com",
	}
	sc := New(st, dispatcher, events, DefaultOptions(), nil)

	f := &fixture{t: t, store: st, mailer: mailer, events: events, sc: sc, now: testNow}
	f.setClock(testNow)
	return f
}

func (f *fixture) setClock(now time.Time) {
	f.now = now
	f.sc.SetClock(func() time.Time { return now })
}

func (f *fixture) seedCourse(id int64, name, idnumber string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveCourse(context.Background(), recompletion.Course{
		ID: id, IDNumber: idnumber, FullName: name, Visible: true, CompletionEnabled: true,
	}))
}

func (f *fixture) seedUser(id int64, name, idnumber string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveUser(context.Background(), recompletion.User{
		ID: id, IDNumber: idnumber, FullName: name,
		Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
	}))
}

func (f *fixture) enrol(userID, courseID int64, method string) {
	f.t.Helper()
	_, err := f.store.SaveEnrolment(context.Background(), recompletion.Enrolment{
		UserID: userID, CourseID: courseID, Method: method,
		TimeCreated: f.now.Unix() - 200*day,
	})
	require.NoError(f.t, err)
}

func (f *fixture) setting(courseID int64, name, value string) {
	f.t.Helper()
	require.NoError(f.t, f.store.SaveSetting(context.Background(), courseID, name, value))
}

func (f *fixture) settingDays(courseID int64, name string, days int64) {
	f.setting(courseID, name, strconv.FormatInt(days*day, 10))
}

func (f *fixture) complete(userID, courseID, at int64) {
	f.t.Helper()
	_, err := f.store.SaveCompletion(context.Background(), recompletion.Completion{
		UserID: userID, CourseID: courseID,
		TimeEnrolled:  at - 10*day,
		TimeCompleted: &at,
	})
	require.NoError(f.t, err)
}

func (f *fixture) lastTaskRun(task string) sqlite.TaskRun {
	f.t.Helper()
	runs, err := f.store.TaskRuns(context.Background(), task, 1)
	require.NoError(f.t, err)
	require.Len(f.t, runs, 1)
	return runs[0]
}

// =============================================================================
// DIRECT EXPIRY RESETS
// =============================================================================

func TestExpiryResetFiresAtWindowOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Fire Safety", "FS-101")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.settingDays(1, recompletion.SettingNotificationStart, 5)
	f.setting(1, recompletion.SettingArchiveCompletionData, "1")
	f.seedUser(7, "Ada Boyle", "E-7")
	f.enrol(7, 1, "manual")

	// Completed 40 days ago: the 25-day reset point is well past.
	f.complete(7, 1, f.now.Unix()-40*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	// Live row gone, archive keeps the history.
	_, err := f.store.Completion(ctx, 7, 1)
	assert.ErrorIs(t, err, recompletion.ErrCompletionNotFound)
	history, err := f.store.CompletionsForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Archived)

	require.Len(t, f.events.Events, 1)
	assert.Equal(t, recompletion.EventCompletionReset, f.events.Events[0].Type)

	run := f.lastTaskRun(TaskCheckRecompletion)
	assert.Equal(t, "completed", run.Status)
	assert.Contains(t, run.Detail, "1 reset(s)")
}

func TestExpiryResetWaitsForWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Fire Safety", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.settingDays(1, recompletion.SettingNotificationStart, 5)
	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")

	// 10 days remain; the window opens at 5 days out.
	f.complete(7, 1, f.now.Unix()-20*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	live, err := f.store.Completion(ctx, 7, 1)
	require.NoError(t, err)
	assert.True(t, live.Completed())
	assert.Empty(t, f.events.Events)
}

// =============================================================================
// EQUIVALENT-DRIVEN RESETS
// =============================================================================

func TestEquivalentResetFiresOnceAcrossSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// First Aid (1) accepts First Aid Refresher (2) as equivalent.
	f.seedCourse(1, "First Aid", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.setting(1, recompletion.SettingRecompleteWithEquivalent, "1")
	f.seedCourse(2, "First Aid Refresher", "")
	f.setting(2, recompletion.SettingEnable, "1")
	f.settingDays(2, recompletion.SettingRecompletionDuration, 30)
	f.setting(2, recompletion.SettingArchiveCompletionData, "1")
	_, err := f.store.SaveEquivalent(ctx, recompletion.Equivalent{CourseOneID: 1, CourseTwoID: 2})
	require.NoError(t, err)

	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")
	f.enrol(7, 2, "manual")

	// Never completed First Aid itself; the refresher completion from 40
	// days ago drives the whole set's clock.
	f.complete(7, 2, f.now.Unix()-40*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	// The refresher's live completion is cleared so both courses start
	// the new cycle together.
	_, err = f.store.Completion(ctx, 7, 2)
	assert.ErrorIs(t, err, recompletion.ErrCompletionNotFound)

	marker, err := f.store.ResetMarker(ctx, 7, 1)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, f.now.Unix(), marker.TimeReset)

	// Resets fired for both courses in the set, but counted once.
	run := f.lastTaskRun(TaskCheckRecompletion)
	assert.Contains(t, run.Detail, "1 reset(s)")

	// Second run: the archived completion still yields the same due date,
	// but the marker blocks a repeat.
	before := len(f.events.Events)
	require.NoError(t, f.sc.CheckRecompletion(ctx))
	assert.Len(t, f.events.Events, before)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func TestNonBulkExpiryAndReminderEmails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Working at Heights", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.settingDays(1, recompletion.SettingNotificationStart, 10)
	f.settingDays(1, recompletion.SettingFrequency, 5)
	f.setting(1, recompletion.SettingEmailEnable, "1")
	f.setting(1, recompletion.SettingBulkNotification, "0")
	f.setting(1, recompletion.SettingArchiveCompletionData, "1")

	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")
	f.seedUser(8, "Ben Cole", "")
	f.enrol(8, 1, "manual")

	// Ada is due today, Ben in 5 days (window opened 5 days ago).
	f.complete(7, 1, f.now.Unix()-30*day)
	f.complete(8, 1, f.now.Unix()-25*day)

	// The resets in this run archive the live rows; the reminder sweep
	// then reads the due dates back out of the archive.
	require.NoError(t, f.sc.CheckRecompletion(ctx))

	require.Len(t, f.mailer.Sent, 2)
	bySubject := map[string]notify.Message{}
	for _, m := range f.mailer.Sent {
		bySubject[m.Subject] = m
	}
	expiry, ok := bySubject["Course completion expired: Working at Heights"]
	require.True(t, ok, "expiry email missing")
	assert.Equal(t, "ada.boyle@example.com", expiry.To.Email)
	reminder, ok := bySubject["Course completion expiring soon: Working at Heights"]
	require.True(t, ok, "reminder email missing")
	assert.Equal(t, "ben.cole@example.com", reminder.To.Email)

	// Same-day rerun: the notifylast guard suppresses a second sweep.
	require.NoError(t, f.sc.CheckRecompletion(ctx))
	assert.Len(t, f.mailer.Sent, 2)
}

func TestBulkDigestOnDigestDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for id, name := range map[int64]string{1: "Fire Safety", 2: "First Aid"} {
		f.seedCourse(id, name, "")
		f.setting(id, recompletion.SettingEnable, "1")
		f.settingDays(id, recompletion.SettingRecompletionDuration, 30)
		f.settingDays(id, recompletion.SettingNotificationStart, 10)
		f.settingDays(id, recompletion.SettingFrequency, 5)
		f.setting(id, recompletion.SettingEmailEnable, "1")
		f.setting(id, recompletion.SettingArchiveCompletionData, "1")
	}
	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")
	f.enrol(7, 2, "manual")

	// Fire Safety expired 5 days ago, First Aid expires in 3 days.
	f.complete(7, 1, f.now.Unix()-35*day)
	f.complete(7, 2, f.now.Unix()-27*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	require.Len(t, f.mailer.Sent, 1)
	msg := f.mailer.Sent[0]
	assert.Equal(t, notify.DefaultDigestSubject, msg.Subject)
	assert.Contains(t, msg.TextBody, "Fire Safety expired on")
	assert.Contains(t, msg.TextBody, "First Aid will expire on")
}

func TestBulkDigestSkipsOrdinaryDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setClock(time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC))

	f.seedCourse(1, "Fire Safety", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.settingDays(1, recompletion.SettingNotificationStart, 10)
	f.setting(1, recompletion.SettingEmailEnable, "1")
	f.setting(1, recompletion.SettingArchiveCompletionData, "1")
	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")
	f.complete(7, 1, f.now.Unix()-35*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	assert.Empty(t, f.mailer.Sent)
}

func TestSubDayCycleNeverNotifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Durations under a day still reset but must stay silent.
	f.seedCourse(1, "Fire Safety", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.setting(1, recompletion.SettingRecompletionDuration, "3600")
	f.setting(1, recompletion.SettingNotificationStart, "1800")
	f.setting(1, recompletion.SettingFrequency, "600")
	f.setting(1, recompletion.SettingEmailEnable, "1")
	f.setting(1, recompletion.SettingArchiveCompletionData, "1")
	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")

	// Long overdue: the hourly cycle elapsed two days ago.
	f.complete(7, 1, f.now.Unix()-2*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))
	f.setClock(f.now.Add(24 * time.Hour))
	require.NoError(t, f.sc.CheckRecompletion(ctx))

	// The reset still happened, but no email ever went out.
	require.Len(t, f.events.Events, 1)
	assert.Equal(t, recompletion.EventCompletionReset, f.events.Events[0].Type)
	assert.Empty(t, f.mailer.Sent)
}

func TestGraceNoticesConsumeTheQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Induction", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingGracePeriod, 10)

	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")
	f.seedUser(8, "Ben Cole", "")
	f.enrol(8, 1, "self")

	start := f.now.Unix() - 2*day
	require.NoError(t, f.store.InsertGraceRecord(ctx, 7, 1, start))
	require.NoError(t, f.store.InsertGraceRecord(ctx, 8, 1, start))

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	// Ada gets the notice; Ben's self-serve enrolment does not.
	require.Len(t, f.mailer.Sent, 1)
	msg := f.mailer.Sent[0]
	assert.Equal(t, "ada.boyle@example.com", msg.To.Email)
	assert.Equal(t, "Completion required: Induction", msg.Subject)
	assert.Contains(t, msg.TextBody, "must complete it by")

	// Both records are consumed either way.
	records, err := f.store.GraceRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestGraceNoticesSkipArchivedCompletions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Induction", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.settingDays(1, recompletion.SettingGracePeriod, 10)
	f.setting(1, recompletion.SettingArchiveCompletionData, "1")

	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")

	// Ada completed 40 days ago, so the expiry reset earlier in this
	// same pass archives her live row. A grace record left over from
	// her enrolment must not turn into an onboarding notice.
	require.NoError(t, f.store.InsertGraceRecord(ctx, 7, 1, f.now.Unix()-2*day))
	f.complete(7, 1, f.now.Unix()-40*day)

	require.NoError(t, f.sc.CheckRecompletion(ctx))

	// The reset went through and the queue is consumed, silently.
	history, err := f.store.CompletionsForUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Archived)

	records, err := f.store.GraceRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, f.mailer.Sent)
}

// =============================================================================
// OUT-OF-COMPLIANCE EXPORT
// =============================================================================

func TestOutOfCompliancePass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Fire Safety", "FS-101")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)

	f.seedUser(1, "Ada Boyle", "E-1")
	f.seedUser(2, "Ben Cole", "") // no external key, never exported
	f.seedUser(3, "Cam Diaz", "E-3")
	f.seedUser(4, "Dee Evans", "E-4")
	for id := int64(1); id <= 4; id++ {
		f.enrol(id, 1, "manual")
	}

	f.complete(1, 1, f.now.Unix()-40*day) // expired
	f.complete(2, 1, f.now.Unix()-40*day) // expired but unkeyed
	f.complete(4, 1, f.now.Unix()-10*day) // still compliant

	// Cam never completed; enrolled 40 days ago with a 30-day duration.
	_, err := f.store.SaveCompletion(ctx, recompletion.Completion{
		UserID: 3, CourseID: 1, TimeEnrolled: f.now.Unix() - 40*day,
	})
	require.NoError(t, err)

	require.NoError(t, f.sc.OutOfCompliance(ctx))

	records, err := f.store.UnsyncedOutOfCompliance(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	got := []string{records[0].UserIDNumber, records[1].UserIDNumber}
	assert.ElementsMatch(t, []string{"E-1", "E-3"}, got)
	for _, r := range records {
		assert.Equal(t, "FS-101", r.CourseIDNumber)
	}

	run := f.lastTaskRun(TaskOutOfCompliance)
	assert.Equal(t, "completed", run.Status)
	assert.Contains(t, run.Detail, "2 record(s)")
}

// =============================================================================
// CACHE MAINTENANCE AND HOUSEKEEPING
// =============================================================================

func TestCacheCompletionsWidensOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Fire Safety", "")
	f.setting(1, recompletion.SettingEnable, "1")
	f.settingDays(1, recompletion.SettingRecompletionDuration, 30)
	f.seedUser(7, "Ada Boyle", "")
	f.enrol(7, 1, "manual")

	// One archived completion, one live recompletion.
	older := f.now.Unix() - 100*day
	newer := f.now.Unix() - 10*day
	f.complete(7, 1, older)
	require.NoError(t, f.store.ArchiveCompletions(ctx, 7, 1))
	require.NoError(t, f.store.DeleteCompletions(ctx, 7, 1))
	f.complete(7, 1, newer)

	require.NoError(t, f.sc.CacheCompletions(ctx))
	bounds, err := f.store.Bounds(ctx, 7, 1)
	require.NoError(t, err)
	require.NotNil(t, bounds)
	assert.Equal(t, older, bounds.OriginalComp)
	assert.Equal(t, newer, bounds.LatestComp)

	// A pre-widened row never narrows back.
	wide := recompletion.CacheBounds{UserID: 7, CourseID: 1, OriginalComp: older - day, LatestComp: newer + day}
	require.NoError(t, f.store.SaveBounds(ctx, wide))
	require.NoError(t, f.sc.CacheCompletions(ctx))
	bounds, err = f.store.Bounds(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, older-day, bounds.OriginalComp)
	assert.Equal(t, newer+day, bounds.LatestComp)
}

func TestHousekeepingPasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCourse(1, "Fire Safety", "")
	f.seedUser(7, "Ada Boyle", "")
	var zero int64
	_, err := f.store.SaveCompletion(ctx, recompletion.Completion{
		UserID: 7, CourseID: 1, TimeCompleted: &zero,
	})
	require.NoError(t, err)

	require.NoError(t, f.sc.RepairCompletions(ctx))
	assert.Contains(t, f.lastTaskRun(TaskRepairCompletions).Detail, "1 row(s) repaired")

	require.NoError(t, f.store.SaveBounds(ctx, recompletion.CacheBounds{UserID: 7, CourseID: 1, OriginalComp: 1, LatestComp: 2}))
	require.NoError(t, f.sc.ResetCompletionCache(ctx))
	bounds, err := f.store.Bounds(ctx, 7, 1)
	require.NoError(t, err)
	assert.Nil(t, bounds)

	// A row synced 40 days ago falls outside the 30-day retention.
	require.NoError(t, f.store.AppendOutOfCompliance(ctx, "E-7", "FS-101"))
	records, err := f.store.UnsyncedOutOfCompliance(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NoError(t, f.store.MarkOutOfComplianceSynced(ctx, []int64{records[0].ID}, f.now.Unix()-40*day))

	require.NoError(t, f.sc.RemoveOldSynced(ctx))
	assert.Contains(t, f.lastTaskRun(TaskRemoveOldSynced).Detail, "1 synced row(s) purged")
}
