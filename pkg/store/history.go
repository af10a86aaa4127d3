package store

import "github.com/menta2k/image-annotator/pkg/types"

// DefaultHistoryLimit is the number of undo snapshots kept.
const DefaultHistoryLimit = 200

// History is a bounded stack of full box-collection snapshots. Once the limit
// is reached the oldest snapshot is evicted.
type History struct {
	snapshots [][]types.BoundingBox
	limit     int
}

// NewHistory creates a history holding at most limit snapshots. A limit
// below one uses DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit < 1 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push stores a copy of boxes.
func (h *History) Push(boxes []types.BoundingBox) {
	h.snapshots = append(h.snapshots, cloneBoxes(boxes))
	if over := len(h.snapshots) - h.limit; over > 0 {
		h.snapshots = append(h.snapshots[:0:0], h.snapshots[over:]...)
	}
}

// Pop removes and returns the most recent snapshot.
func (h *History) Pop() ([]types.BoundingBox, bool) {
	if len(h.snapshots) == 0 {
		return nil, false
	}
	last := h.snapshots[len(h.snapshots)-1]
	h.snapshots = h.snapshots[:len(h.snapshots)-1]
	return last, true
}

// Peek returns the most recent snapshot without removing it.
func (h *History) Peek() ([]types.BoundingBox, bool) {
	if len(h.snapshots) == 0 {
		return nil, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	return len(h.snapshots)
}

// Limit returns the capacity.
func (h *History) Limit() int {
	return h.limit
}

// Clear drops every snapshot.
func (h *History) Clear() {
	h.snapshots = nil
}

func cloneBoxes(boxes []types.BoundingBox) []types.BoundingBox {
	out := make([]types.BoundingBox, len(boxes))
	copy(out, boxes)
	return out
}
