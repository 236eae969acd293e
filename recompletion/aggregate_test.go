package recompletion_test

import (
	"context"
	"testing"

	"github.com/warp/compliance-engine/recompletion"
)

// fakeSource is an in-memory CompletionSource.
type fakeSource struct {
	rows []recompletion.Completion
}

func (f *fakeSource) ByUser(_ context.Context, userID int64, courseIDs []int64) ([]recompletion.Completion, error) {
	var out []recompletion.Completion
	for _, row := range f.rows {
		if row.UserID == userID && containsID(courseIDs, row.CourseID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSource) ByCourses(_ context.Context, courseIDs []int64) ([]recompletion.Completion, error) {
	var out []recompletion.Completion
	for _, row := range f.rows {
		if containsID(courseIDs, row.CourseID) {
			out = append(out, row)
		}
	}
	return out, nil
}

func completed(id, userID, courseID, at int64) recompletion.Completion {
	return recompletion.Completion{ID: id, UserID: userID, CourseID: courseID, TimeCompleted: &at}
}

func TestLastCompletion_MostRecentWins(t *testing.T) {
	// Completion in course 1 at t=1000, in equivalent course 2 at t=2000.
	live := &fakeSource{rows: []recompletion.Completion{
		completed(1, 10, 1, 1000),
	}}
	archive := &fakeSource{rows: []recompletion.Completion{
		completed(2, 10, 2, 2000),
	}}
	agg := &recompletion.Aggregator{Sources: []recompletion.CompletionSource{live, archive}}

	got, err := agg.LastCompletion(context.Background(), 10, []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CompletedAt() != 2000 {
		t.Errorf("LastCompletion = %+v, want the t=2000 row", got)
	}
}

func TestLastCompletion_TieBreaksToLowestID(t *testing.T) {
	src := &fakeSource{rows: []recompletion.Completion{
		completed(9, 10, 1, 1500),
		completed(3, 10, 2, 1500),
	}}
	agg := &recompletion.Aggregator{Sources: []recompletion.CompletionSource{src}}

	got, _ := agg.LastCompletion(context.Background(), 10, []int64{1, 2})
	if got == nil || got.ID != 3 {
		t.Errorf("LastCompletion = %+v, want row id 3 on a timestamp tie", got)
	}
}

func TestLastCompletion_IgnoresIncompleteRows(t *testing.T) {
	src := &fakeSource{rows: []recompletion.Completion{
		{ID: 1, UserID: 10, CourseID: 1}, // TimeCompleted nil
	}}
	agg := &recompletion.Aggregator{Sources: []recompletion.CompletionSource{src}}

	got, _ := agg.LastCompletion(context.Background(), 10, []int64{1})
	if got != nil {
		t.Errorf("LastCompletion = %+v, want nil for incomplete-only history", got)
	}
}

func TestLastCompletion_EmptyCourseSetShortCircuits(t *testing.T) {
	agg := &recompletion.Aggregator{}

	got, err := agg.LastCompletion(context.Background(), 10, nil)
	if err != nil || got != nil {
		t.Errorf("LastCompletion(empty set) = (%+v, %v), want (nil, nil)", got, err)
	}
}

func TestEarliestAndLatest_PerLearnerBounds(t *testing.T) {
	live := &fakeSource{rows: []recompletion.Completion{
		completed(1, 10, 1, 3000),
		completed(2, 20, 1, 5000),
	}}
	archive := &fakeSource{rows: []recompletion.Completion{
		completed(3, 10, 2, 1000),
		completed(4, 10, 1, 4000),
	}}
	agg := &recompletion.Aggregator{Sources: []recompletion.CompletionSource{live, archive}}

	got, err := agg.EarliestAndLatest(context.Background(), []int64{1, 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if b := got[10]; b.Earliest != 1000 || b.Latest != 4000 {
		t.Errorf("bounds for user 10 = %+v, want {1000 4000}", b)
	}
	if b := got[20]; b.Earliest != 5000 || b.Latest != 5000 {
		t.Errorf("bounds for user 20 = %+v, want {5000 5000}", b)
	}
}
