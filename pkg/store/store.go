// Package store owns the box collection of the image being edited, its
// selection and its undo history. It never touches disk; callers persist
// after every mutation.
package store

import "github.com/menta2k/image-annotator/pkg/types"

// MinBoxSize is the smallest width or height a box may shrink to.
const MinBoxSize = 0.0001

// Store holds the live boxes of one image.
type Store struct {
	boxes    []types.BoundingBox
	selected int
	history  *History
}

// New creates an empty store with the given history limit.
func New(historyLimit int) *Store {
	return &Store{selected: -1, history: NewHistory(historyLimit)}
}

// Boxes returns a copy of the collection in insertion order.
func (s *Store) Boxes() []types.BoundingBox {
	return cloneBoxes(s.boxes)
}

// Len returns the number of boxes.
func (s *Store) Len() int {
	return len(s.boxes)
}

// Box returns the box at i.
func (s *Store) Box(i int) (types.BoundingBox, bool) {
	if i < 0 || i >= len(s.boxes) {
		return types.BoundingBox{}, false
	}
	return s.boxes[i], true
}

// Load replaces the collection with boxes and clears selection and history.
func (s *Store) Load(boxes []types.BoundingBox) {
	s.boxes = cloneBoxes(boxes)
	s.selected = -1
	s.history.Clear()
}

// Reset empties the collection, selection and history.
func (s *Store) Reset() {
	s.Load(nil)
}

// Add appends b and returns its index.
func (s *Store) Add(b types.BoundingBox) int {
	s.boxes = append(s.boxes, b)
	return len(s.boxes) - 1
}

// Remove deletes the box at i. Selection is cleared when it pointed at i
// and shifted when it pointed past it.
func (s *Store) Remove(i int) bool {
	if i < 0 || i >= len(s.boxes) {
		return false
	}
	s.boxes = append(s.boxes[:i], s.boxes[i+1:]...)
	switch {
	case s.selected == i:
		s.selected = -1
	case s.selected > i:
		s.selected--
	}
	return true
}

// Update applies fn to the box at i in place.
func (s *Store) Update(i int, fn func(b *types.BoundingBox)) bool {
	if i < 0 || i >= len(s.boxes) {
		return false
	}
	fn(&s.boxes[i])
	return true
}

// Duplicate appends a copy of the box at i and returns the new index.
func (s *Store) Duplicate(i int) (int, bool) {
	b, ok := s.Box(i)
	if !ok {
		return -1, false
	}
	return s.Add(b), true
}

// Select marks the box at i as selected.
func (s *Store) Select(i int) bool {
	if i < 0 || i >= len(s.boxes) {
		s.selected = -1
		return false
	}
	s.selected = i
	return true
}

// ClearSelection drops the selection.
func (s *Store) ClearSelection() {
	s.selected = -1
}

// Selected returns the selected index. A selection that no longer points at
// a box is cleared.
func (s *Store) Selected() (int, bool) {
	if s.selected < 0 {
		return -1, false
	}
	if s.selected >= len(s.boxes) {
		s.selected = -1
		return -1, false
	}
	return s.selected, true
}

// PushHistory snapshots the collection. Call it once when a user action
// starts, before the action mutates anything.
func (s *Store) PushHistory() {
	s.history.Push(s.boxes)
}

// DiscardHistory drops the latest snapshot when it equals the live
// collection, so actions that changed nothing leave no undo step.
func (s *Store) DiscardHistory() bool {
	last, ok := s.history.Peek()
	if !ok || !equalBoxes(last, s.boxes) {
		return false
	}
	s.history.Pop()
	return true
}

// Undo restores the most recent snapshot and clears the selection. It
// reports false, leaving everything untouched, when there is nothing to undo.
func (s *Store) Undo() bool {
	prev, ok := s.history.Pop()
	if !ok {
		return false
	}
	s.boxes = prev
	s.selected = -1
	return true
}

// HistoryLen returns the number of undo steps available.
func (s *Store) HistoryLen() int {
	return s.history.Len()
}

func equalBoxes(a, b []types.BoundingBox) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
