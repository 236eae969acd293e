/*
equivalence.go - Equivalent-course resolution

PURPOSE:
  Resolves the set of courses whose completion satisfies a given
  course's completion requirement. Links are declared pairwise; a
  non-unidirectional link counts in both directions, a unidirectional
  link only from its declared source.

ONE HOP ONLY:
  Resolution is deliberately non-transitive. Given links A~B and B~C,
  resolving A yields {B}, never {B, C}. This matches how equivalence
  data is administered today; multi-hop chains are an open question,
  not an oversight.

SEE ALSO:
  - aggregate.go: Merges completions across a resolved set
*/
package recompletion

import (
	"context"
	"sort"
)

// EquivalenceStore lists the equivalence links touching a course,
// regardless of which side of the pair the course appears on.
type EquivalenceStore interface {
	LinksFor(ctx context.Context, courseID int64) ([]Equivalent, error)
}

// Resolver resolves equivalent-course sets from declared links.
type Resolver struct {
	Links EquivalenceStore
}

// Resolve returns the courses equivalent to courseID, deduplicated and
// in ascending id order. An empty result is valid and means "only this
// course". When includeSelf is true, courseID itself is included.
//
// A link (A, B) contributes B to Resolve(A) always, and A to Resolve(B)
// only when the link is not unidirectional.
func (r *Resolver) Resolve(ctx context.Context, courseID int64, includeSelf bool) ([]int64, error) {
	links, err := r.Links.LinksFor(ctx, courseID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	for _, link := range links {
		switch {
		case link.CourseOneID == courseID:
			seen[link.CourseTwoID] = true
		case link.CourseTwoID == courseID && !link.Unidirectional:
			seen[link.CourseOneID] = true
		}
	}
	delete(seen, courseID) // self-inclusion is explicit, never implied by data

	if includeSelf {
		seen[courseID] = true
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
