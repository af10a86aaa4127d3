// Package interaction turns abstract pointer events into box edits: creating
// a box by dragging, selecting, moving and resizing it by its corners.
package interaction

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
)

// Persister writes the current collection to disk.
type Persister interface {
	Persist() error
}

// ClassPicker supplies the class given to newly created boxes.
type ClassPicker interface {
	ActiveClass() string
}

// Settings holds the pointer tolerances, all in screen pixels.
type Settings struct {
	ClickTolerance  float64 `json:"click_tolerance"`
	MinBoxPixels    float64 `json:"min_box_pixels"`
	MinHandleRadius float64 `json:"min_handle_radius"`
	HandleSize      float64 `json:"handle_size"`
}

// DefaultSettings returns the stock tolerances.
func DefaultSettings() Settings {
	return Settings{
		ClickTolerance:  8,
		MinBoxPixels:    geometry.DefaultMinBoxPixels,
		MinHandleRadius: 6,
		HandleSize:      6,
	}
}

// HandleRadius is how close to a corner a press must land to start a resize.
func (s Settings) HandleRadius() float64 {
	return math.Max(s.ClickTolerance, s.MinHandleRadius)
}

// Machine is the pointer state machine for one image at a time. Events must
// be delivered in order from a single goroutine.
type Machine struct {
	store    *store.Store
	classes  ClassPicker
	persist  Persister
	settings Settings

	rect    types.Rect
	mode    DragMode
	anchor  types.Point
	dragEnd types.Point
	last    types.Point
	hasLast bool
}

// New creates a Machine editing s.
func New(s *store.Store, classes ClassPicker, p Persister, settings Settings) *Machine {
	return &Machine{
		store:    s,
		classes:  classes,
		persist:  p,
		settings: settings,
	}
}

// SetImageRect records where the image is displayed on screen.
func (m *Machine) SetImageRect(r types.Rect) {
	m.rect = r
}

// ImageRect returns the displayed image rectangle.
func (m *Machine) ImageRect() types.Rect {
	return m.rect
}

// Settings returns the current tolerances.
func (m *Machine) Settings() Settings {
	return m.settings
}

// SetSettings replaces the tolerances.
func (m *Machine) SetSettings(s Settings) {
	m.settings = s
}

// Mode returns the active drag mode.
func (m *Machine) Mode() DragMode {
	return m.mode
}

// Press starts an interaction at pos. A press on a box selects it and
// starts a move, or a resize when pos is near a corner. A press on empty
// image area starts drawing a new box. Presses outside the image are
// ignored. A press arriving mid-drag first finishes that drag.
func (m *Machine) Press(pos types.Point) error {
	var err error
	if !m.mode.IsNone() {
		err = m.Release()
	}
	if !m.rect.Valid() || !m.rect.Contains(pos) {
		return err
	}

	if i, ok := m.HitTest(pos); ok {
		m.store.Select(i)
		m.store.PushHistory()
		m.last, m.hasLast = pos, true
		if c, ok := m.CornerAt(i, pos); ok {
			m.mode = Resizing(c)
		} else {
			m.mode = Moving
		}
		return err
	}

	m.store.ClearSelection()
	m.mode = Creating
	m.anchor, m.dragEnd = pos, pos
	m.store.PushHistory()
	return err
}

// Drag updates the active interaction with the pointer at pos.
func (m *Machine) Drag(pos types.Point) {
	if m.mode.IsNone() || !m.rect.Valid() {
		return
	}
	if m.mode.IsCreating() {
		m.dragEnd = pos
		return
	}

	i, ok := m.store.Selected()
	if !ok {
		return
	}
	if m.mode.IsMoving() {
		m.move(i, pos)
		return
	}
	if c, ok := m.mode.Corner(); ok {
		m.resize(i, c, pos)
	}
}

func (m *Machine) move(i int, pos types.Point) {
	if !m.hasLast {
		m.last, m.hasLast = pos, true
		return
	}
	x0, y0 := geometry.ToRatio(m.last, m.rect)
	x1, y1 := geometry.ToRatio(pos, m.rect)
	m.store.Update(i, func(b *types.BoundingBox) {
		b.Cx = geometry.Clamp(b.Cx+x1-x0, 0, 1)
		b.Cy = geometry.Clamp(b.Cy+y1-y0, 0, 1)
	})
	m.last = pos
}

func (m *Machine) resize(i int, c Corner, pos types.Point) {
	rx, ry := geometry.ToRatio(pos, m.rect)
	m.store.Update(i, func(b *types.BoundingBox) {
		left, top, right, bottom := b.Edges()
		switch c {
		case TopLeft:
			left, top = rx, ry
		case TopRight:
			right, top = rx, ry
		case BottomLeft:
			left, bottom = rx, ry
		case BottomRight:
			right, bottom = rx, ry
		}
		l, r := math.Min(left, right), math.Max(left, right)
		t, bt := math.Min(top, bottom), math.Max(top, bottom)
		b.Cx = (l + r) / 2
		b.Cy = (t + bt) / 2
		b.W = geometry.Clamp(r-l, store.MinBoxSize, 1)
		b.H = geometry.Clamp(bt-t, store.MinBoxSize, 1)
	})
	m.last, m.hasLast = pos, true
}

// Release ends the active interaction and persists the result. A drawn box
// too small to keep is dropped. An action that changed nothing leaves no undo
// step behind.
func (m *Machine) Release() error {
	if m.mode.IsNone() {
		return nil
	}
	if m.mode.IsCreating() {
		if b, ok := geometry.BoxFromDrag(m.anchor, m.dragEnd, m.rect, m.settings.MinBoxPixels); ok {
			b.ClassName = m.activeClass()
			m.store.Add(b)
		}
	}
	m.store.DiscardHistory()
	m.reset()
	return m.save()
}

// Cancel abandons the active interaction without persisting.
func (m *Machine) Cancel() {
	m.reset()
}

func (m *Machine) reset() {
	m.mode = None
	m.anchor, m.dragEnd = types.Point{}, types.Point{}
	m.last, m.hasLast = types.Point{}, false
}

// HitTest returns the topmost box whose screen rectangle, grown by the click
// tolerance, contains pos. Later boxes are on top.
func (m *Machine) HitTest(pos types.Point) (int, bool) {
	tol := m.settings.ClickTolerance
	boxes := m.store.Boxes()
	for i := len(boxes) - 1; i >= 0; i-- {
		s := geometry.ToScreenRect(boxes[i], m.rect)
		if pos.X >= s.Left-tol && pos.X <= s.Right()+tol &&
			pos.Y >= s.Top-tol && pos.Y <= s.Bottom()+tol {
			return i, true
		}
	}
	return -1, false
}

// CornerAt returns the corner of box i within the handle radius of pos,
// checking top-left, top-right, bottom-left then bottom-right.
func (m *Machine) CornerAt(i int, pos types.Point) (Corner, bool) {
	b, ok := m.store.Box(i)
	if !ok {
		return 0, false
	}
	s := geometry.ToScreenRect(b, m.rect)
	h := m.settings.HandleRadius()
	nearLeft := math.Abs(pos.X-s.Left) <= h
	nearRight := math.Abs(pos.X-s.Right()) <= h
	nearTop := math.Abs(pos.Y-s.Top) <= h
	nearBottom := math.Abs(pos.Y-s.Bottom()) <= h

	switch {
	case nearLeft && nearTop:
		return TopLeft, true
	case nearRight && nearTop:
		return TopRight, true
	case nearLeft && nearBottom:
		return BottomLeft, true
	case nearRight && nearBottom:
		return BottomRight, true
	}
	return 0, false
}

// Select marks box i as selected without starting an interaction.
func (m *Machine) Select(i int) bool {
	return m.store.Select(i)
}

// Undo abandons any interaction, restores the previous snapshot and
// persists it. It reports false when there was nothing to undo.
func (m *Machine) Undo() (bool, error) {
	m.reset()
	if !m.store.Undo() {
		return false, nil
	}
	return true, m.save()
}

// DeleteSelected removes the selected box.
func (m *Machine) DeleteSelected() (bool, error) {
	i, ok := m.store.Selected()
	if !ok {
		return false, nil
	}
	m.store.PushHistory()
	m.store.Remove(i)
	m.store.ClearSelection()
	return true, m.save()
}

// DuplicateSelected appends a copy of the selected box. The selection stays
// on the original.
func (m *Machine) DuplicateSelected() (bool, error) {
	i, ok := m.store.Selected()
	if !ok {
		return false, nil
	}
	m.store.PushHistory()
	m.store.Duplicate(i)
	return true, m.save()
}

// ReassignSelected changes the class of the selected box. Nothing is
// persisted when the box already has that class.
func (m *Machine) ReassignSelected(name string) (bool, error) {
	i, ok := m.store.Selected()
	if !ok {
		return false, nil
	}
	m.store.PushHistory()
	changed := false
	m.store.Update(i, func(b *types.BoundingBox) {
		if b.ClassName != name {
			b.ClassName = name
			changed = true
		}
	})
	if !changed {
		m.store.DiscardHistory()
		return false, nil
	}
	return true, m.save()
}

// AssignActiveClass gives the selected box the active class.
func (m *Machine) AssignActiveClass() (bool, error) {
	return m.ReassignSelected(m.activeClass())
}

func (m *Machine) activeClass() string {
	if m.classes == nil {
		return classes.DefaultClass
	}
	return m.classes.ActiveClass()
}

func (m *Machine) save() error {
	if m.persist == nil {
		return nil
	}
	return m.persist.Persist()
}
