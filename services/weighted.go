// services/weighted.go
package services

import "math/rand"

// Segment is one weighted possible outcome of a randomized reward draw.
// ChancePermille values are relative weights; they need not sum to 1000.
type Segment struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	AmountCents    int64  `json:"amount_cents"`
	ChancePermille int    `json:"chance_permille"`
}

// PickWeighted draws one segment with probability proportional to its
// weight: a uniform roll in [0, totalWeight) walked down the ordered list.
// Zero-weight segments are unreachable; an empty or all-zero list falls
// back to the first segment.
func PickWeighted(segments []Segment, r *rand.Rand) Segment {
	if len(segments) == 0 {
		return Segment{}
	}
	total := 0
	for _, s := range segments {
		if s.ChancePermille > 0 {
			total += s.ChancePermille
		}
	}
	if total <= 0 {
		return segments[0]
	}
	remaining := r.Intn(total)
	for _, s := range segments {
		if s.ChancePermille <= 0 {
			continue
		}
		remaining -= s.ChancePermille
		if remaining < 0 {
			return s
		}
	}
	return segments[0]
}
