package store

import (
	"reflect"
	"testing"

	"github.com/menta2k/image-annotator/pkg/types"
)

func box(name string, cx float64) types.BoundingBox {
	return types.BoundingBox{ClassName: name, Cx: cx, Cy: 0.5, W: 0.1, H: 0.1}
}

func TestNew(t *testing.T) {
	s := New(0)
	if s.Len() != 0 {
		t.Errorf("Expected empty store, got %d boxes", s.Len())
	}
	if _, ok := s.Selected(); ok {
		t.Error("Expected no selection")
	}
	if s.history.Limit() != DefaultHistoryLimit {
		t.Errorf("Expected default limit %d, got %d", DefaultHistoryLimit, s.history.Limit())
	}
}

func TestUndoRestoresPriorState(t *testing.T) {
	s := New(DefaultHistoryLimit)

	s.PushHistory()
	s.Add(box("a", 0.1))
	afterA := s.Boxes()

	s.PushHistory()
	s.Add(box("b", 0.2))

	if !s.Undo() {
		t.Fatal("Expected undo to succeed")
	}
	if !reflect.DeepEqual(s.Boxes(), afterA) {
		t.Errorf("Expected %v after undo, got %v", afterA, s.Boxes())
	}
}

func TestUndoEmptyHistory(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	s.Select(0)

	if s.Undo() {
		t.Error("Expected undo on empty history to report false")
	}
	if s.Len() != 1 {
		t.Errorf("Expected collection unchanged, got %v", s.Boxes())
	}
	if i, ok := s.Selected(); !ok || i != 0 {
		t.Error("Expected selection untouched by a no-op undo")
	}
}

func TestUndoClearsSelection(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	s.PushHistory()
	s.Add(box("b", 0.2))
	s.Select(1)

	s.Undo()
	if _, ok := s.Selected(); ok {
		t.Error("Expected selection cleared by undo")
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	s.PushHistory()
	s.Update(0, func(b *types.BoundingBox) { b.Cx = 0.9 })

	s.Undo()
	if b, _ := s.Box(0); b.Cx != 0.1 {
		t.Errorf("Snapshot shared state with live box, cx=%f", b.Cx)
	}
}

func TestHistoryEviction(t *testing.T) {
	const limit = 200
	s := New(limit)

	for i := 0; i < limit+1; i++ {
		s.PushHistory()
		s.Add(box("a", float64(i)/1000))
	}
	if s.HistoryLen() != limit {
		t.Fatalf("Expected %d snapshots, got %d", limit, s.HistoryLen())
	}

	for i := 0; i < limit+1; i++ {
		s.Undo()
	}
	// The snapshot of the empty collection was evicted; the oldest retained
	// one holds the first box.
	if s.Len() != 1 {
		t.Errorf("Expected oldest retained snapshot with 1 box, got %d", s.Len())
	}
}

func TestDiscardHistory(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))

	s.PushHistory()
	if !s.DiscardHistory() {
		t.Error("Expected unchanged snapshot to be discarded")
	}
	if s.HistoryLen() != 0 {
		t.Errorf("Expected empty history, got %d", s.HistoryLen())
	}

	s.PushHistory()
	s.Update(0, func(b *types.BoundingBox) { b.Cy = 0.7 })
	if s.DiscardHistory() {
		t.Error("Changed collection must keep its snapshot")
	}
}

func TestRemoveAdjustsSelection(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	s.Add(box("b", 0.2))
	s.Add(box("c", 0.3))

	s.Select(2)
	s.Remove(0)
	if i, ok := s.Selected(); !ok || i != 1 {
		t.Errorf("Expected selection shifted to 1, got %d ok=%v", i, ok)
	}

	s.Remove(1)
	if _, ok := s.Selected(); ok {
		t.Error("Expected selection cleared after removing selected box")
	}

	if s.Remove(5) {
		t.Error("Expected out of range remove to fail")
	}
}

func TestDuplicate(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))

	i, ok := s.Duplicate(0)
	if !ok || i != 1 {
		t.Fatalf("Expected duplicate at 1, got %d ok=%v", i, ok)
	}
	a, _ := s.Box(0)
	b, _ := s.Box(1)
	if a != b {
		t.Errorf("Expected identical boxes, got %+v and %+v", a, b)
	}
	if _, ok := s.Duplicate(7); ok {
		t.Error("Expected duplicate of missing box to fail")
	}
}

func TestLoadResets(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	s.PushHistory()
	s.Select(0)

	s.Load([]types.BoundingBox{box("x", 0.5), box("y", 0.6)})
	if s.Len() != 2 || s.HistoryLen() != 0 {
		t.Errorf("Expected 2 boxes and empty history, got %d and %d", s.Len(), s.HistoryLen())
	}
	if _, ok := s.Selected(); ok {
		t.Error("Expected selection cleared by Load")
	}
}

func TestBoxesIsCopy(t *testing.T) {
	s := New(DefaultHistoryLimit)
	s.Add(box("a", 0.1))
	boxes := s.Boxes()
	boxes[0].ClassName = "mutated"
	if b, _ := s.Box(0); b.ClassName != "a" {
		t.Error("Boxes must return a copy")
	}
}

func BenchmarkPushHistory(b *testing.B) {
	s := New(DefaultHistoryLimit)
	for i := 0; i < 50; i++ {
		s.Add(box("a", 0.5))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.PushHistory()
	}
}
