package interaction

import (
	"fmt"
	"strings"
)

// Corner identifies the box corner grabbed for a resize.
type Corner int

// Corners in hit-test priority order.
const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

func (c Corner) String() string {
	switch c {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	default:
		return fmt.Sprintf("corner(%d)", int(c))
	}
}

type dragKind int

const (
	dragNone dragKind = iota
	dragCreating
	dragMoving
	dragResizing
)

// DragMode is the active pointer interaction. The corner is only carried by
// Resizing modes, so a mode can never be moving and resizing at once.
type DragMode struct {
	kind   dragKind
	corner Corner
}

// Drag modes without payload.
var (
	None     = DragMode{kind: dragNone}
	Creating = DragMode{kind: dragCreating}
	Moving   = DragMode{kind: dragMoving}
)

// Resizing returns the mode for dragging corner c.
func Resizing(c Corner) DragMode {
	return DragMode{kind: dragResizing, corner: c}
}

// IsNone reports whether no interaction is active.
func (m DragMode) IsNone() bool { return m.kind == dragNone }

// IsCreating reports whether a new box is being dragged out.
func (m DragMode) IsCreating() bool { return m.kind == dragCreating }

// IsMoving reports whether the selected box is being moved.
func (m DragMode) IsMoving() bool { return m.kind == dragMoving }

// Corner returns the dragged corner of a Resizing mode.
func (m DragMode) Corner() (Corner, bool) {
	if m.kind != dragResizing {
		return 0, false
	}
	return m.corner, true
}

func (m DragMode) String() string {
	switch m.kind {
	case dragCreating:
		return "creating"
	case dragMoving:
		return "moving"
	case dragResizing:
		return "resizing(" + m.corner.String() + ")"
	default:
		return "none"
	}
}

// MarshalText lets hosts serialize the mode as its string form.
func (m DragMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses the form written by MarshalText.
func (m *DragMode) UnmarshalText(text []byte) error {
	s := string(text)
	switch s {
	case "none", "":
		*m = None
		return nil
	case "creating":
		*m = Creating
		return nil
	case "moving":
		*m = Moving
		return nil
	}
	if strings.HasPrefix(s, "resizing(") && strings.HasSuffix(s, ")") {
		name := strings.TrimSuffix(strings.TrimPrefix(s, "resizing("), ")")
		for _, c := range []Corner{TopLeft, TopRight, BottomLeft, BottomRight} {
			if c.String() == name {
				*m = Resizing(c)
				return nil
			}
		}
	}
	return fmt.Errorf("unknown drag mode %q", s)
}
