package interaction

import (
	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/types"
)

// RenderBox is a box ready for drawing.
type RenderBox struct {
	Index    int               `json:"index"`
	ClassID  int               `json:"class_id"`
	Box      types.BoundingBox `json:"box"`
	Screen   types.Rect        `json:"screen"`
	Selected bool              `json:"selected"`
	// Handles holds the corner squares of the selected box in
	// TopLeft, TopRight, BottomLeft, BottomRight order.
	Handles []types.Rect `json:"handles,omitempty"`
}

// ClassIndexer maps a class name to its table id. A ClassPicker that also
// implements it gets class ids filled into RenderBox; otherwise ClassID is -1.
type ClassIndexer interface {
	Index(name string) (int, bool)
}

// Boxes returns every box projected onto the image rectangle.
func (m *Machine) Boxes() []RenderBox {
	indexer, _ := m.classes.(ClassIndexer)
	sel, hasSel := m.store.Selected()
	boxes := m.store.Boxes()
	out := make([]RenderBox, 0, len(boxes))
	for i, b := range boxes {
		rb := RenderBox{
			Index:   i,
			Box:     b,
			ClassID: -1,
			Screen:  geometry.ToScreenRect(b, m.rect),
		}
		if indexer != nil {
			if id, ok := indexer.Index(b.ClassName); ok {
				rb.ClassID = id
			}
		}
		if hasSel && i == sel {
			rb.Selected = true
			rb.Handles = handles(rb.Screen, m.settings.HandleSize)
		}
		out = append(out, rb)
	}
	return out
}

// Preview returns the rectangle being dragged out while creating a box.
func (m *Machine) Preview() (types.Rect, bool) {
	if !m.mode.IsCreating() || !m.rect.Valid() {
		return types.Rect{}, false
	}
	return geometry.DragRect(m.anchor, m.dragEnd, m.rect), true
}

func handles(s types.Rect, hs float64) []types.Rect {
	corners := []types.Point{
		{X: s.Left, Y: s.Top},
		{X: s.Right(), Y: s.Top},
		{X: s.Left, Y: s.Bottom()},
		{X: s.Right(), Y: s.Bottom()},
	}
	out := make([]types.Rect, len(corners))
	for i, c := range corners {
		out[i] = types.Rect{Left: c.X - hs, Top: c.Y - hs, Width: 2 * hs, Height: 2 * hs}
	}
	return out
}
