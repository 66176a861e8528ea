package sleep

import "time"

// MergeInterruptions joins sleep-like segments separated by a short awake gap.
//
// Only segments of at least thresholdHours/2 are candidates; shorter ones are
// ordinary daytime inactivity and are dropped. Consecutive candidates whose
// awake gap is at most maxInterruption are joined, and the joined segment
// spans from the first start to the last end, so the awake time of the
// interruption counts towards Hours.
func MergeInterruptions(segments []Segment, thresholdHours float64, maxInterruption time.Duration) []Segment {
	minHours := thresholdHours / 2

	var candidates []Segment
	for _, s := range segments {
		if s.Hours >= minHours {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	maxGapMinutes := maxInterruption.Minutes()
	out := make([]Segment, 0, len(candidates))
	cur := candidates[0]

	for _, next := range candidates[1:] {
		awake := next.Start.Sub(cur.End).Minutes()
		if awake <= maxGapMinutes {
			cur = newSegment(cur.Start, next.End)
			continue
		}
		out = append(out, cur)
		cur = next
	}

	return append(out, cur)
}
