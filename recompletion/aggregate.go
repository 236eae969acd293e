/*
aggregate.go - Multi-source completion aggregation

PURPOSE:
  A learner's completion history lives in two places: the live
  completion table and the archive written by resets. Scheduling
  decisions need both, merged as one logical stream. This file defines
  the CompletionSource interface and the aggregation over it.

MOST-RECENT-WINS:
  LastCompletion returns the row with the maximum completion time
  across all sources and all courses in the set. A learner re-completing
  an equivalent course resets everyone's clock.

SEE ALSO:
  - duedate.go: Consumes LastCompletion
  - scanner: Consumes EarliestAndLatest for cache maintenance
*/
package recompletion

import "context"

// CompletionSource is one logical store of completion rows. Live and
// archived completions are two concrete sources with identical shape;
// the aggregator merges them instead of relying on a SQL UNION.
type CompletionSource interface {
	// ByUser returns the user's completion rows for any of the courses.
	ByUser(ctx context.Context, userID int64, courseIDs []int64) ([]Completion, error)

	// ByCourses returns all completion rows for any of the courses.
	ByCourses(ctx context.Context, courseIDs []int64) ([]Completion, error)
}

// Bounds is the earliest and latest completion found for one learner.
type Bounds struct {
	Earliest int64
	Latest   int64
}

// Aggregator merges completion rows across sources.
type Aggregator struct {
	Sources []CompletionSource
}

// LastCompletion returns the completed row with the greatest
// TimeCompleted for the user across courseIDs, or nil if the user has
// no completion anywhere in the set. Rows with no completion time are
// ignored. Ties break to the lowest record id so repeated runs see the
// same winner.
func (a *Aggregator) LastCompletion(ctx context.Context, userID int64, courseIDs []int64) (*Completion, error) {
	if len(courseIDs) == 0 {
		return nil, nil
	}

	var best *Completion
	for _, src := range a.Sources {
		rows, err := src.ByUser(ctx, userID, courseIDs)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			row := rows[i]
			if !row.Completed() {
				continue
			}
			if best == nil ||
				row.CompletedAt() > best.CompletedAt() ||
				(row.CompletedAt() == best.CompletedAt() && row.ID < best.ID) {
				best = &row
			}
		}
	}
	return best, nil
}

// EarliestAndLatest computes per-learner min/max completion times across
// courseIDs, merging every source. Learners with no completed rows are
// absent from the result.
func (a *Aggregator) EarliestAndLatest(ctx context.Context, courseIDs []int64) (map[int64]Bounds, error) {
	out := make(map[int64]Bounds)
	if len(courseIDs) == 0 {
		return out, nil
	}

	for _, src := range a.Sources {
		rows, err := src.ByCourses(ctx, courseIDs)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if !row.Completed() {
				continue
			}
			at := row.CompletedAt()
			b, ok := out[row.UserID]
			if !ok {
				out[row.UserID] = Bounds{Earliest: at, Latest: at}
				continue
			}
			if at < b.Earliest {
				b.Earliest = at
			}
			if at > b.Latest {
				b.Latest = at
			}
			out[row.UserID] = b
		}
	}
	return out, nil
}
