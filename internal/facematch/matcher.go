package facematch

import (
	"context"
	"iter"

	"github.com/kozaktomas/attendance/internal/constants"
)

// Matcher finds a stored descriptor within tolerance of a candidate.
// The bool result is false when nothing matches; that is not an error.
type Matcher interface {
	Match(ctx context.Context, candidate Descriptor, known iter.Seq2[Candidate, error], tolerance float64) (Candidate, bool, error)
}

// FirstMatcher returns the first known descriptor within tolerance in iteration order.
// Iteration stops at the first hit, so the rest of the stream is never read.
type FirstMatcher struct{}

func (FirstMatcher) Match(ctx context.Context, candidate Descriptor, known iter.Seq2[Candidate, error], tolerance float64) (Candidate, bool, error) {
	for c, err := range known {
		if err != nil {
			return Candidate{}, false, err
		}
		if err := ctx.Err(); err != nil {
			return Candidate{}, false, err
		}
		dist, err := EuclideanDistance(candidate, c.Descriptor)
		if err != nil {
			return Candidate{}, false, err
		}
		if dist <= tolerance {
			return c, true, nil
		}
	}
	return Candidate{}, false, nil
}

// NearestMatcher scans the whole stream and returns the closest descriptor within tolerance.
// Ties keep the earlier candidate.
type NearestMatcher struct{}

func (NearestMatcher) Match(ctx context.Context, candidate Descriptor, known iter.Seq2[Candidate, error], tolerance float64) (Candidate, bool, error) {
	var (
		best     Candidate
		bestDist float64
		found    bool
	)
	for c, err := range known {
		if err != nil {
			return Candidate{}, false, err
		}
		if err := ctx.Err(); err != nil {
			return Candidate{}, false, err
		}
		dist, err := EuclideanDistance(candidate, c.Descriptor)
		if err != nil {
			return Candidate{}, false, err
		}
		if dist <= tolerance && (!found || dist < bestDist) {
			best, bestDist, found = c, dist, true
		}
	}
	return best, found, nil
}

// Verify is the 1:1 comparison used by attendance: candidate against one stored descriptor.
func Verify(candidate, stored Descriptor, tolerance float64) (bool, error) {
	dist, err := EuclideanDistance(candidate, stored)
	if err != nil {
		return false, err
	}
	return dist <= tolerance, nil
}

// Slice adapts an in-memory slice to the streaming form matchers consume.
func Slice(candidates []Candidate) iter.Seq2[Candidate, error] {
	return func(yield func(Candidate, error) bool) {
		for _, c := range candidates {
			if !yield(c, nil) {
				return
			}
		}
	}
}

// NewMatcher returns the matcher for a configured policy name ("first" or "nearest").
func NewMatcher(policy string) Matcher {
	if policy == constants.MatchPolicyNearest {
		return NearestMatcher{}
	}
	return FirstMatcher{}
}
