/*
check.go - The main recompletion pass

PURPOSE:
  The hourly pass over enabled courses: fire overdue resets (both the
  equivalent-driven path and direct expiry), send one-time grace
  notices, then run the daily reminder/digest sweep.

ORDER MATTERS:
  Resets run before notifications so a learner reset in this run is
  already incomplete by the time the reminder sweep looks at them.
  Grace notices run before reminders because both read the same clock
  but grace records are consumed (deleted) by their sub-pass.

SEE ALSO:
  - scanner.go: Wiring and the task_runs bracket
  - notify/decide.go: The calendar math the reminder sweep uses
*/
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/warp/compliance-engine/notify"
	"github.com/warp/compliance-engine/recompletion"
)

// CheckRecompletion runs the full hourly pass and records it in
// task_runs.
func (sc *Scanner) CheckRecompletion(ctx context.Context) error {
	return sc.runTask(ctx, TaskCheckRecompletion, sc.checkRecompletion)
}

func (sc *Scanner) checkRecompletion(ctx context.Context) (string, error) {
	now := sc.now().In(sc.opts.Location)
	rc := newRunCache(sc.store)

	courses, err := sc.store.EnabledCourses(ctx)
	if err != nil {
		return "", fmt.Errorf("list enabled courses: %w", err)
	}

	var resets int
	for _, course := range courses {
		cfg, err := rc.config(ctx, course.ID)
		if err != nil {
			return "", fmt.Errorf("settings for course %d: %w", course.ID, err)
		}

		n, err := sc.equivalentResets(ctx, rc, course, cfg, now.Unix())
		if err != nil {
			return "", err
		}
		resets += n

		n, err = sc.expiryResets(ctx, course, cfg, now.Unix())
		if err != nil {
			return "", err
		}
		resets += n
	}

	graced, err := sc.graceNotices(ctx, rc, now.Unix())
	if err != nil {
		return "", err
	}

	notified, err := sc.notifyUsers(ctx, rc, courses, now)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%d reset(s), %d grace notice(s), %d notification(s)", resets, graced, notified), nil
}

// =============================================================================
// RESETS
// =============================================================================

// equivalentResets fires when a learner never completed this course
// but their equivalence-aggregated completion clock has run out. The
// reset clears the learner in this course AND every equivalent, so the
// whole set starts the new cycle together. A reset marker keeps one
// expiration from firing twice.
func (sc *Scanner) equivalentResets(ctx context.Context, rc *runCache, course recompletion.Course, cfg recompletion.Config, now int64) (int, error) {
	if !cfg.RecompleteWithEquivalent || cfg.RecompletionDuration <= 0 {
		return 0, nil
	}
	equivalents, err := sc.resolver.Resolve(ctx, course.ID, false)
	if err != nil {
		return 0, fmt.Errorf("resolve equivalents for course %d: %w", course.ID, err)
	}
	if len(equivalents) == 0 {
		return 0, nil
	}

	userIDs, err := sc.store.EnrolledUserIDs(ctx, course.ID)
	if err != nil {
		return 0, fmt.Errorf("enrolled users for course %d: %w", course.ID, err)
	}

	var resets int
	for _, userID := range userIDs {
		live, err := sc.store.Completion(ctx, userID, course.ID)
		if err != nil && !errors.Is(err, recompletion.ErrCompletionNotFound) {
			return resets, fmt.Errorf("completion for user %d course %d: %w", userID, course.ID, err)
		}
		if live != nil && live.Completed() {
			continue // direct expiry handles completed learners
		}

		due, ok, err := sc.calculator.DueDate(ctx, userID, course.ID, true, false)
		if err != nil {
			return resets, fmt.Errorf("due date for user %d course %d: %w", userID, course.ID, err)
		}
		if !ok || due >= now {
			continue
		}

		marker, err := sc.store.ResetMarker(ctx, userID, course.ID)
		if err != nil {
			return resets, fmt.Errorf("reset marker for user %d course %d: %w", userID, course.ID, err)
		}
		if marker != nil && marker.TimeReset >= due {
			continue // this expiration already fired
		}

		if err := sc.resetAcrossSet(ctx, rc, userID, course, cfg, equivalents); err != nil {
			return resets, err
		}
		if err := sc.store.UpsertResetMarker(ctx, userID, course.ID, now); err != nil {
			return resets, fmt.Errorf("upsert reset marker for user %d course %d: %w", userID, course.ID, err)
		}
		resets++
	}
	return resets, nil
}

// resetAcrossSet resets the learner in the primary course and in each
// existing equivalent, each under that course's own policy.
func (sc *Scanner) resetAcrossSet(ctx context.Context, rc *runCache, userID int64, course recompletion.Course, cfg recompletion.Config, equivalents []int64) error {
	warnings, err := sc.engine.ResetUser(ctx, userID, course, cfg)
	if err != nil {
		return fmt.Errorf("reset user %d course %d: %w", userID, course.ID, err)
	}
	for _, w := range warnings {
		sc.logf("reset user=%d course=%d: %s", userID, course.ID, w)
	}

	for _, eqID := range equivalents {
		eqCourse, err := rc.course(ctx, eqID)
		if err != nil {
			if recompletion.IsNotFound(err) {
				sc.logf("equivalent course %d missing from directory; skipped", eqID)
				continue
			}
			return fmt.Errorf("equivalent course %d: %w", eqID, err)
		}
		eqCfg, err := rc.config(ctx, eqID)
		if err != nil {
			return fmt.Errorf("settings for equivalent course %d: %w", eqID, err)
		}
		warnings, err := sc.engine.ResetUser(ctx, userID, *eqCourse, eqCfg)
		if err != nil {
			return fmt.Errorf("reset user %d equivalent course %d: %w", userID, eqID, err)
		}
		for _, w := range warnings {
			sc.logf("reset user=%d course=%d: %s", userID, eqID, w)
		}
	}
	return nil
}

// expiryResets fires for learners whose live completion has aged past
// duration minus the notification lead. Resetting at window open (not
// at the due date) lets the learner recomplete while reminders run.
func (sc *Scanner) expiryResets(ctx context.Context, course recompletion.Course, cfg recompletion.Config, now int64) (int, error) {
	if cfg.RecompletionDuration <= 0 {
		return 0, nil
	}

	rows, err := sc.store.LiveSource().ByCourses(ctx, []int64{course.ID})
	if err != nil {
		return 0, fmt.Errorf("live completions for course %d: %w", course.ID, err)
	}

	var resets int
	for _, row := range rows {
		if !row.Completed() {
			continue
		}
		if row.CompletedAt()+cfg.RecompletionDuration-cfg.NotificationStart >= now {
			continue
		}
		warnings, err := sc.engine.ResetUser(ctx, row.UserID, course, cfg)
		if err != nil {
			return resets, fmt.Errorf("reset user %d course %d: %w", row.UserID, course.ID, err)
		}
		for _, w := range warnings {
			sc.logf("reset user=%d course=%d: %s", row.UserID, course.ID, w)
		}
		resets++
	}
	return resets, nil
}

// =============================================================================
// GRACE NOTICES
// =============================================================================

// graceNotices sends the one-time onboarding notice to learners inside
// their grace window, then consumes the whole queue. The delete is
// deliberately bulk: a record skipped this run (completed learner,
// self-serve enrolment) would be skipped every run, so holding it has
// no value.
func (sc *Scanner) graceNotices(ctx context.Context, rc *runCache, now int64) (int, error) {
	records, err := sc.store.GraceRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("list grace records: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	var sent int
	for _, rec := range records {
		cfg, err := rc.config(ctx, rec.CourseID)
		if err != nil {
			return sent, fmt.Errorf("settings for course %d: %w", rec.CourseID, err)
		}
		if cfg.GracePeriod <= 0 {
			continue
		}

		// A completion anywhere in the learner's history counts: a row
		// archived by an earlier reset in this same run still means the
		// learner is past onboarding.
		history, err := sc.store.CompletionsForUser(ctx, rec.UserID)
		if err != nil {
			return sent, fmt.Errorf("completions for user %d: %w", rec.UserID, err)
		}
		completed := false
		for _, c := range history {
			if c.CourseID == rec.CourseID && c.Completed() {
				completed = true
				break
			}
		}
		if completed {
			continue
		}

		// Self-serve enrolments chose their own start date; grace notices
		// are for learners someone else enrolled.
		enrolments, err := sc.store.Enrolments(ctx, rec.UserID, rec.CourseID)
		if err != nil {
			return sent, fmt.Errorf("enrolments for user %d course %d: %w", rec.UserID, rec.CourseID, err)
		}
		eligible := false
		for _, e := range enrolments {
			if e.Active() && !e.SelfServe() {
				eligible = true
				break
			}
		}
		if !eligible {
			continue
		}

		user, err := rc.user(ctx, rec.UserID)
		if err != nil {
			if recompletion.IsNotFound(err) {
				continue
			}
			return sent, fmt.Errorf("user %d: %w", rec.UserID, err)
		}
		if user.Suspended {
			continue
		}
		course, err := rc.course(ctx, rec.CourseID)
		if err != nil {
			if recompletion.IsNotFound(err) {
				continue
			}
			return sent, fmt.Errorf("course %d: %w", rec.CourseID, err)
		}

		if err := sc.dispatcher.SendGrace(ctx, *user, *course, rec.TimeStart+cfg.GracePeriod); err != nil {
			sc.logf("grace notice to user %d course %d: %v", rec.UserID, rec.CourseID, err)
			continue
		}
		sent++
	}

	if err := sc.store.DeleteAllGraceRecords(ctx); err != nil {
		return sent, fmt.Errorf("consume grace records: %w", err)
	}
	return sent, nil
}

// =============================================================================
// REMINDER / DIGEST SWEEP
// =============================================================================

// notifyUsers is the daily sweep: expiry and reminder emails for
// non-bulk courses, per-learner digests for bulk courses on digest
// days. The notifylast guard limits it to once per calendar day.
func (sc *Scanner) notifyUsers(ctx context.Context, rc *runCache, courses []recompletion.Course, now time.Time) (int, error) {
	notifyLast, err := sc.store.NotifyLast(ctx)
	if err != nil {
		return 0, fmt.Errorf("read notifylast: %w", err)
	}
	if !notify.ShouldRunReminderPass(notifyLast, now, sc.opts.NotifyHour) {
		return 0, nil
	}

	digestDay := notify.IsDigestDay(now, sc.opts.BulkDay1, sc.opts.BulkDay2)
	digests := make(map[int64]*notify.Digest)
	nowUnix := now.Unix()
	var sent int

	for _, course := range courses {
		cfg, err := rc.config(ctx, course.ID)
		if err != nil {
			return sent, fmt.Errorf("settings for course %d: %w", course.ID, err)
		}
		if !cfg.EmailEnable || cfg.SameDayCycle() {
			continue
		}
		if cfg.BulkNotification && !digestDay {
			continue
		}

		userIDs, err := sc.store.EnrolledUserIDs(ctx, course.ID)
		if err != nil {
			return sent, fmt.Errorf("enrolled users for course %d: %w", course.ID, err)
		}
		for _, userID := range userIDs {
			due, ok, err := sc.calculator.DueDate(ctx, userID, course.ID, true, false)
			if err != nil {
				return sent, fmt.Errorf("due date for user %d course %d: %w", userID, course.ID, err)
			}
			if !ok {
				continue
			}
			if notify.DaysSinceWindowOpened(nowUnix, due, cfg.NotificationStart) < 0 {
				continue // window not open yet
			}

			user, err := rc.user(ctx, userID)
			if err != nil {
				if recompletion.IsNotFound(err) {
					continue
				}
				return sent, fmt.Errorf("user %d: %w", userID, err)
			}
			if user.Suspended || user.Email == "" {
				continue
			}

			if cfg.BulkNotification {
				dg, found := digests[userID]
				if !found {
					dg = &notify.Digest{}
					digests[userID] = dg
				}
				dg.Add(notify.Classify(nowUnix, due), notify.DigestEntry{
					CourseID:   course.ID,
					CourseName: course.FullName,
					ExpireAt:   due,
				})
				continue
			}

			switch {
			case notify.OnDueDay(nowUnix, due):
				if err := sc.dispatcher.SendExpiry(ctx, *user, course, cfg); err != nil {
					sc.logf("expiry email to user %d course %d: %v", userID, course.ID, err)
					continue
				}
				sent++
			case notify.ShouldRemind(nowUnix, due, cfg):
				if err := sc.dispatcher.SendReminder(ctx, *user, course, cfg); err != nil {
					sc.logf("reminder email to user %d course %d: %v", userID, course.ID, err)
					continue
				}
				sent++
			}
		}
	}

	// Stable ordering so repeated runs and tests see the same send order.
	userIDs := make([]int64, 0, len(digests))
	for id := range digests {
		userIDs = append(userIDs, id)
	}
	sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })
	for _, userID := range userIDs {
		user, err := rc.user(ctx, userID)
		if err != nil {
			continue
		}
		if err := sc.dispatcher.SendBulkDigest(ctx, *user, *digests[userID]); err != nil {
			sc.logf("digest email to user %d: %v", userID, err)
			continue
		}
		sent++
	}

	if err := sc.store.SetNotifyLast(ctx, nowUnix); err != nil {
		return sent, fmt.Errorf("write notifylast: %w", err)
	}
	return sent, nil
}
