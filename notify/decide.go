/*
decide.go - Pure notification scheduling decisions

PURPOSE:
  All calendar math for the reminder pass lives here as pure functions
  so it can be tested without a dispatcher, a mailer, or a clock.

MODEL:
  The notification window opens at dueDate - notificationstart and
  closes at dueDate. Inside the window, behavior depends on the
  per-course bulk flag:
    bulk on (default): entries accumulate into per-learner digests sent
      only on fixed days of the month
    bulk off: an expired email fires on the exact due day; reminders
      fire every frequency-days since the window opened

  Courses with any sub-day duration never notify; same-day cycles only
  exist on misconfigured or test courses.
*/
package notify

import (
	"time"

	"github.com/warp/compliance-engine/recompletion"
)

// DigestSection classifies one digest entry.
type DigestSection int

const (
	SectionOutOfComp DigestSection = iota // expired, or expiring today
	SectionComingDue                      // still inside the window
)

// floorDiv is integer division rounding toward negative infinity.
// Day arithmetic near the window boundary goes negative.
func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

// DaysSinceWindowOpened returns how many whole days have passed since
// the notification window opened. Negative means the window has not
// opened yet.
func DaysSinceWindowOpened(now, dueDate, notificationStart int64) int64 {
	return floorDiv(now-(dueDate-notificationStart), recompletion.DaySecs)
}

// OnDueDay reports whether now falls on the same calendar day as the
// due date, in epoch-day terms.
func OnDueDay(now, dueDate int64) bool {
	return floorDiv(now, recompletion.DaySecs) == floorDiv(dueDate, recompletion.DaySecs)
}

// ShouldRemind reports whether a non-bulk reminder fires: the window is
// open, today is a whole multiple of the frequency since it opened, and
// the due date has not passed.
func ShouldRemind(now, dueDate int64, cfg recompletion.Config) bool {
	days := DaysSinceWindowOpened(now, dueDate, cfg.NotificationStart)
	if days < 0 {
		return false
	}
	freqDays := cfg.Frequency / recompletion.DaySecs
	if freqDays <= 0 {
		return false
	}
	return days%freqDays == 0 && now < dueDate
}

// Classify places a learner/course pair into a digest section: out of
// compliance when the due day is today or already past, coming due
// otherwise.
func Classify(now, dueDate int64) DigestSection {
	if OnDueDay(now, dueDate) || now >= dueDate {
		return SectionOutOfComp
	}
	return SectionComingDue
}

// IsDigestDay reports whether the calendar day-of-month matches one of
// the two configured digest days.
func IsDigestDay(now time.Time, day1, day2 int) bool {
	d := now.Day()
	return d == day1 || d == day2
}

// ShouldRunReminderPass implements the once-per-day guard. The pass is
// eligible once the local clock passes midnight plus the notify-hour
// offset, and only if the last run predates today's eligibility point.
func ShouldRunReminderPass(notifyLast int64, now time.Time, notifyHour int) bool {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	notifyTime := midnight.Unix() + int64(notifyHour)*3600

	if notifyLast > notifyTime {
		// Already ran today.
		return false
	}
	if now.Unix() < notifyTime {
		// Too early; eligible later today.
		return false
	}
	return true
}
