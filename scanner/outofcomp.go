/*
outofcomp.go - Out-of-compliance export snapshots

PURPOSE:
  Appends idnumber-keyed rows for learners currently out of compliance
  so external systems can poll them. Rows are append-only and NOT
  deduplicated: each run re-states the current out-of-compliance set,
  and the consumer reconciles.

WHO QUALIFIES:
  - due date (including grace) already passed, or
  - never completed, no applicable due date, and the enrolment is older
    than the course's recompletion duration

  Learners or courses without an external idnumber are never emitted;
  there is nothing to key them on downstream.
*/
package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/compliance-engine/recompletion"
)

// OutOfCompliance runs the export snapshot pass and records it in
// task_runs.
func (sc *Scanner) OutOfCompliance(ctx context.Context) error {
	return sc.runTask(ctx, TaskOutOfCompliance, sc.outOfCompliance)
}

func (sc *Scanner) outOfCompliance(ctx context.Context) (string, error) {
	now := sc.now().Unix()
	rc := newRunCache(sc.store)

	courses, err := sc.store.EnabledCourses(ctx)
	if err != nil {
		return "", fmt.Errorf("list enabled courses: %w", err)
	}

	var appended, scanned int
	for _, course := range courses {
		if course.IDNumber == "" {
			continue
		}
		cfg, err := rc.config(ctx, course.ID)
		if err != nil {
			return "", fmt.Errorf("settings for course %d: %w", course.ID, err)
		}
		scanned++

		userIDs, err := sc.store.EnrolledUserIDs(ctx, course.ID)
		if err != nil {
			return "", fmt.Errorf("enrolled users for course %d: %w", course.ID, err)
		}
		for _, userID := range userIDs {
			user, err := rc.user(ctx, userID)
			if err != nil {
				if recompletion.IsNotFound(err) {
					continue
				}
				return "", fmt.Errorf("user %d: %w", userID, err)
			}
			if user.IDNumber == "" || user.Suspended {
				continue
			}

			out, err := sc.isOutOfCompliance(ctx, userID, course.ID, cfg, now)
			if err != nil {
				return "", err
			}
			if !out {
				continue
			}
			if err := sc.store.AppendOutOfCompliance(ctx, user.IDNumber, course.IDNumber); err != nil {
				return "", fmt.Errorf("append record for user %s course %s: %w", user.IDNumber, course.IDNumber, err)
			}
			appended++
		}
	}
	return fmt.Sprintf("%d record(s) appended across %d course(s)", appended, scanned), nil
}

func (sc *Scanner) isOutOfCompliance(ctx context.Context, userID, courseID int64, cfg recompletion.Config, now int64) (bool, error) {
	due, ok, err := sc.calculator.DueDate(ctx, userID, courseID, true, true)
	if err != nil {
		return false, fmt.Errorf("due date for user %d course %d: %w", userID, courseID, err)
	}
	if ok {
		return due < now, nil
	}

	// No due date means no completion and no grace window. The learner
	// is still out of compliance once their enrolment has outlived the
	// recompletion duration without a completion.
	if cfg.RecompletionDuration <= 0 {
		return false, nil
	}
	live, err := sc.store.Completion(ctx, userID, courseID)
	if err != nil {
		if errors.Is(err, recompletion.ErrCompletionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("completion for user %d course %d: %w", userID, courseID, err)
	}
	if live.Completed() || live.TimeEnrolled <= 0 {
		return false, nil
	}
	return live.TimeEnrolled+cfg.RecompletionDuration < now, nil
}
