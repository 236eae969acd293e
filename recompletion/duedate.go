/*
duedate.go - Recompletion due-date computation

PURPOSE:
  Derives when a learner must next recomplete a course, and when the
  notification window for that deadline opens.

DECISION ORDER:
  1. Recompletion disabled and no grace requested -> no due date.
  2. Duration set and a completion exists -> lastCompletion + duration.
  3. No completion, grace configured and requested -> enrolmentStart +
     gracePeriod. Grace applies even when recompletion itself is
     disabled: grace notices are about onboarding, not policy.
  4. Otherwise no due date.

CACHED MODE:
  With useCached, the latest completion comes from the maintained
  CacheBounds row instead of a full live+archive aggregation scan.

SEE ALSO:
  - aggregate.go: The full-scan path
  - scanner: Maintains the cache the fast path reads
*/
package recompletion

import "context"

// SettingsStore reads a course's raw recompletion settings.
type SettingsStore interface {
	CourseSettings(ctx context.Context, courseID int64) (map[string]string, error)
}

// BoundsStore reads cached completion bounds.
type BoundsStore interface {
	// Bounds returns the cached bounds for a learner+course, or nil when
	// no cache row exists.
	Bounds(ctx context.Context, userID, courseID int64) (*CacheBounds, error)
}

// EnrolmentStore resolves a learner's enrolments in a course.
type EnrolmentStore interface {
	Enrolments(ctx context.Context, userID, courseID int64) ([]Enrolment, error)
}

// Calculator computes due dates from config, completion history and
// enrolment data.
type Calculator struct {
	Settings   SettingsStore
	Resolver   *Resolver
	Aggregator *Aggregator
	Cache      BoundsStore
	Enrolments EnrolmentStore
}

// DueDate returns the learner's recompletion due date in epoch seconds.
// The second return is false when no due date applies.
func (c *Calculator) DueDate(ctx context.Context, userID, courseID int64, useCached, applyGrace bool) (int64, bool, error) {
	raw, err := c.Settings.CourseSettings(ctx, courseID)
	if err != nil {
		return 0, false, err
	}
	cfg := ParseConfig(raw)

	// Disabled recompletion skips everything except an independently
	// requested grace window.
	if !cfg.Enable && !(applyGrace && cfg.GracePeriod > 0) {
		return 0, false, nil
	}

	if cfg.Enable && cfg.RecompletionDuration > 0 {
		last, err := c.latestCompletion(ctx, userID, courseID, useCached)
		if err != nil {
			return 0, false, err
		}
		if last > 0 {
			return last + cfg.RecompletionDuration, true, nil
		}
	}

	if applyGrace && cfg.GracePeriod > 0 {
		start, err := c.enrolmentStart(ctx, userID, courseID)
		if err != nil {
			return 0, false, err
		}
		if start > 0 {
			return start + cfg.GracePeriod, true, nil
		}
	}

	return 0, false, nil
}

// NotificationStart returns the instant the notification window opens
// for a due date, or false when the course has no notification lead.
func NotificationStart(dueDate int64, cfg Config) (int64, bool) {
	if dueDate == 0 || cfg.NotificationStart <= 0 {
		return 0, false
	}
	return dueDate - cfg.NotificationStart, true
}

func (c *Calculator) latestCompletion(ctx context.Context, userID, courseID int64, useCached bool) (int64, error) {
	if useCached {
		bounds, err := c.Cache.Bounds(ctx, userID, courseID)
		if err != nil {
			return 0, err
		}
		if bounds != nil {
			return bounds.LatestComp, nil
		}
		// No cache row yet; fall through to the full scan.
	}

	courses, err := c.Resolver.Resolve(ctx, courseID, true)
	if err != nil {
		return 0, err
	}
	last, err := c.Aggregator.LastCompletion(ctx, userID, courses)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return 0, nil
	}
	return last.CompletedAt(), nil
}

// enrolmentStart is the greatest of enrolment creation time and
// enrolment start time across the learner's active enrolments.
func (c *Calculator) enrolmentStart(ctx context.Context, userID, courseID int64) (int64, error) {
	enrolments, err := c.Enrolments.Enrolments(ctx, userID, courseID)
	if err != nil {
		return 0, err
	}
	var start int64
	for _, e := range enrolments {
		if !e.Active() {
			continue
		}
		if e.TimeCreated > start {
			start = e.TimeCreated
		}
		if e.TimeStart > start {
			start = e.TimeStart
		}
	}
	return start, nil
}
