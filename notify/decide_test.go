package notify

import (
	"testing"
	"time"

	"github.com/warp/compliance-engine/recompletion"
)

const day = recompletion.DaySecs

func cfgDays(durationDays, startDays, freqDays int64) recompletion.Config {
	return recompletion.Config{
		RecompletionDuration: durationDays * day,
		NotificationStart:    startDays * day,
		Frequency:            freqDays * day,
	}
}

func TestDaysSinceWindowOpened(t *testing.T) {
	due := int64(100 * day)
	start := int64(10 * day)

	tests := []struct {
		now  int64
		want int64
	}{
		{due - start, 0},            // window opens
		{due - start + day, 1},      // one day in
		{due - start - 1, -1},       // one second early, floors to -1
		{due - start - 2*day, -2},   // well before the window
		{due + 3*day, 13},           // past due
	}
	for _, tt := range tests {
		if got := DaysSinceWindowOpened(tt.now, due, start); got != tt.want {
			t.Errorf("DaysSinceWindowOpened(now=%d) = %d, want %d", tt.now, got, tt.want)
		}
	}
}

func TestShouldRemind_FrequencyMultiples(t *testing.T) {
	cfg := cfgDays(365, 10, 3)
	due := int64(1000 * day)
	windowOpen := due - cfg.NotificationStart

	if !ShouldRemind(windowOpen, due, cfg) {
		t.Error("day 0 of the window is a reminder day")
	}
	if ShouldRemind(windowOpen+day, due, cfg) {
		t.Error("day 1 is not a multiple of frequency 3")
	}
	if !ShouldRemind(windowOpen+3*day, due, cfg) {
		t.Error("day 3 is a reminder day")
	}
	if ShouldRemind(windowOpen-day, due, cfg) {
		t.Error("before the window, never remind")
	}
	if ShouldRemind(due+2*day, due, cfg) {
		// day 12 is a multiple of 3, but the due date has passed
		t.Error("past the due date, reminders stop")
	}
}

func TestShouldRemind_ZeroFrequencyNeverFires(t *testing.T) {
	cfg := cfgDays(365, 10, 0)
	due := int64(1000 * day)
	if ShouldRemind(due-cfg.NotificationStart, due, cfg) {
		t.Error("zero frequency must never remind")
	}
}

func TestClassify(t *testing.T) {
	due := int64(100*day + 3600) // an hour into day 100

	if Classify(due-5*day, due) != SectionComingDue {
		t.Error("five days out is coming-due")
	}
	if Classify(due-1800, due) != SectionOutOfComp {
		t.Error("expiring today counts as out of compliance")
	}
	if Classify(due+day, due) != SectionOutOfComp {
		t.Error("past due is out of compliance")
	}
}

func TestIsDigestDay(t *testing.T) {
	first := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	mid := time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
	other := time.Date(2026, time.March, 9, 12, 0, 0, 0, time.UTC)

	if !IsDigestDay(first, 1, 15) || !IsDigestDay(mid, 1, 15) {
		t.Error("configured days must match")
	}
	if IsDigestDay(other, 1, 15) {
		t.Error("non-digest day must not match")
	}
}

func TestShouldRunReminderPass(t *testing.T) {
	loc := time.UTC
	today9am := time.Date(2026, time.March, 9, 9, 0, 0, 0, loc)
	midnight := time.Date(2026, time.March, 9, 0, 0, 0, 0, loc).Unix()

	// GIVEN the pass last ran yesterday
	if !ShouldRunReminderPass(midnight-3600, today9am, 0) {
		t.Error("pass should run: last run was yesterday")
	}

	// GIVEN the pass already ran today
	if ShouldRunReminderPass(midnight+3600, today9am, 0) {
		t.Error("pass must run at most once per calendar day")
	}

	// GIVEN a notify hour later than the current time
	if ShouldRunReminderPass(midnight-3600, today9am, 10) {
		t.Error("before the notify hour the pass must wait")
	}

	// GIVEN a notify hour already passed
	if !ShouldRunReminderPass(midnight-3600, today9am, 8) {
		t.Error("after the notify hour the pass runs")
	}
}
