package timeline

import (
	"math"
	"sort"
)

// Normalize returns a copy of segments sorted by start with display bounds
// enforced, left to right:
//
//   - start is clamped to 0;
//   - a segment shorter than MinDuration is extended to MinDuration;
//   - an end later than next.start - Gap is pulled back to it, never below start.
//
// The shrink rule runs last, so it wins when the two conflict. Normalize is
// idempotent on its own output.
func Normalize(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	for i := range out {
		out[i].Start = math.Max(0, out[i].Start)
	}
	for i := range out {
		seg := &out[i]
		if seg.End-seg.Start < MinDuration {
			seg.End = seg.Start + MinDuration
		}
		if i+1 < len(out) {
			limit := out[i+1].Start - Gap
			if seg.End > limit {
				seg.End = math.Max(seg.Start, limit)
			}
		}
	}
	return out
}
