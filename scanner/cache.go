/*
cache.go - Completion-bounds cache maintenance and housekeeping passes

PURPOSE:
  CacheCompletions keeps the per-learner completion-bounds cache in
  step with live, archived, and equivalent completions so the due-date
  fast path stays accurate. The remaining passes are housekeeping:
  zero-timestamp repair, full cache wipe, and synced-row retention.

MONOTONE WRITES:
  The cache only widens: OriginalComp only moves earlier, LatestComp
  only moves later. A row whose bounds already cover the aggregated
  values is left untouched, which keeps quiet runs write-free.
*/
package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/warp/compliance-engine/recompletion"
)

// CacheCompletions rebuilds the completion-bounds cache incrementally
// and records the run in task_runs.
func (sc *Scanner) CacheCompletions(ctx context.Context) error {
	return sc.runTask(ctx, TaskCacheCompletions, sc.cacheCompletions)
}

func (sc *Scanner) cacheCompletions(ctx context.Context) (string, error) {
	courses, err := sc.store.EnabledCourses(ctx)
	if err != nil {
		return "", fmt.Errorf("list enabled courses: %w", err)
	}

	var written int
	for _, course := range courses {
		courseIDs, err := sc.resolver.Resolve(ctx, course.ID, true)
		if err != nil {
			return "", fmt.Errorf("resolve equivalents for course %d: %w", course.ID, err)
		}
		bounds, err := sc.aggregator.EarliestAndLatest(ctx, courseIDs)
		if err != nil {
			return "", fmt.Errorf("aggregate completions for course %d: %w", course.ID, err)
		}
		existing, err := sc.store.BoundsForCourse(ctx, course.ID)
		if err != nil {
			return "", fmt.Errorf("cached bounds for course %d: %w", course.ID, err)
		}

		userIDs := make([]int64, 0, len(bounds))
		for id := range bounds {
			userIDs = append(userIDs, id)
		}
		sort.Slice(userIDs, func(i, j int) bool { return userIDs[i] < userIDs[j] })

		for _, userID := range userIDs {
			b := bounds[userID]
			row := recompletion.CacheBounds{
				UserID:       userID,
				CourseID:     course.ID,
				OriginalComp: b.Earliest,
				LatestComp:   b.Latest,
			}
			if cur, ok := existing[userID]; ok {
				if cur.OriginalComp <= b.Earliest && cur.LatestComp >= b.Latest {
					continue // cache already covers the aggregated bounds
				}
				if cur.OriginalComp < b.Earliest {
					row.OriginalComp = cur.OriginalComp
				}
				if cur.LatestComp > b.Latest {
					row.LatestComp = cur.LatestComp
				}
			}
			if err := sc.store.SaveBounds(ctx, row); err != nil {
				return "", fmt.Errorf("save bounds for user %d course %d: %w", userID, course.ID, err)
			}
			written++
		}
	}
	return fmt.Sprintf("%d cache row(s) written across %d course(s)", written, len(courses)), nil
}

// =============================================================================
// HOUSEKEEPING
// =============================================================================

// RepairCompletions rewrites zero completion timestamps to NULL so they
// read as incomplete instead of completed-at-epoch.
func (sc *Scanner) RepairCompletions(ctx context.Context) error {
	return sc.runTask(ctx, TaskRepairCompletions, func(ctx context.Context) (string, error) {
		n, err := sc.store.RepairZeroCompletions(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d row(s) repaired", n), nil
	})
}

// ResetCompletionCache wipes the whole bounds cache. Run it after bulk
// settings or equivalence changes; the next CacheCompletions pass
// rebuilds from scratch.
func (sc *Scanner) ResetCompletionCache(ctx context.Context) error {
	return sc.runTask(ctx, TaskResetCompletionCache, func(ctx context.Context) (string, error) {
		if err := sc.store.WipeBounds(ctx); err != nil {
			return "", err
		}
		return "completion cache wiped", nil
	})
}

// RemoveOldSynced purges export rows that were synced before the
// retention window.
func (sc *Scanner) RemoveOldSynced(ctx context.Context) error {
	return sc.runTask(ctx, TaskRemoveOldSynced, func(ctx context.Context) (string, error) {
		cutoff := sc.now().Add(-sc.opts.Retention).Unix()
		n, err := sc.store.DeleteOldSynced(ctx, cutoff)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d synced row(s) purged", n), nil
	})
}
