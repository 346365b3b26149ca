package detect

import "sort"

// Suppressor runs greedy non-max suppression separately for each class.
type Suppressor struct {
	// ScoreThreshold drops candidates whose confidence is not above it.
	ScoreThreshold float32
	// IoUThreshold is the maximum overlap allowed between two kept boxes
	// of the same class.
	IoUThreshold float64
}

// NewSuppressor returns a Suppressor with the given thresholds.
func NewSuppressor(score float32, iou float64) Suppressor {
	return Suppressor{ScoreThreshold: score, IoUThreshold: iou}
}

// Apply returns the surviving subset of candidates, highest confidence
// first. The input slice is not modified.
func (s Suppressor) Apply(candidates []Detection) Result {
	order := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if c.Confidence > s.ScoreThreshold {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Confidence > candidates[order[b]].Confidence
	})

	kept := make(Result, 0, len(order))
	for _, idx := range order {
		c := candidates[idx]
		if s.overlapsKept(kept, c) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (s Suppressor) overlapsKept(kept Result, c Detection) bool {
	for _, k := range kept {
		if k.ClassID != c.ClassID {
			continue
		}
		if IoU(k.Box, c.Box) > s.IoUThreshold {
			return true
		}
	}
	return false
}
