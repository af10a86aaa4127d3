package api

import (
	"fmt"

	"github.com/menta2k/image-annotator/pkg/types"
)

// Command types accepted by /api/command and the WebSocket stream.
const (
	CmdPress       = "press"
	CmdDrag        = "drag"
	CmdRelease     = "release"
	CmdSelect      = "select"
	CmdDelete      = "delete"
	CmdDuplicate   = "duplicate"
	CmdReassign    = "reassign"
	CmdAssign      = "assign"
	CmdUndo        = "undo"
	CmdAddClass    = "add_class"
	CmdActiveClass = "active_class"
	CmdSave        = "save"
	CmdNext        = "next"
	CmdPrev        = "prev"
	CmdSwitch      = "switch"
	CmdReload      = "reload"
	CmdViewport    = "viewport"
	CmdImageRect   = "image_rect"
)

// Command is one host event. Only the fields used by Type are read.
type Command struct {
	Type    string      `json:"type" binding:"required"`
	X       float64     `json:"x"`
	Y       float64     `json:"y"`
	Index   int         `json:"index"`
	ClassID int         `json:"class_id"`
	Name    string      `json:"name"`
	Rect    *types.Rect `json:"rect,omitempty"`
}

func (c Command) point() types.Point {
	return types.Point{X: c.X, Y: c.Y}
}

// apply runs cmd against the session. The caller holds s.mu.
func (s *Server) apply(cmd Command) error {
	if s.closed {
		return errClosed
	}
	sess := s.sess
	switch cmd.Type {
	case CmdPress:
		return sess.Press(cmd.point())
	case CmdDrag:
		sess.Drag(cmd.point())
		return nil
	case CmdRelease:
		return sess.Release()
	case CmdSelect:
		if !sess.Select(cmd.Index) {
			return fmt.Errorf("%w: no box at index %d", errBadCommand, cmd.Index)
		}
		return nil
	case CmdDelete:
		_, err := sess.DeleteSelected()
		return err
	case CmdDuplicate:
		_, err := sess.DuplicateSelected()
		return err
	case CmdReassign:
		_, err := sess.ReassignSelected(cmd.ClassID)
		return err
	case CmdAssign:
		_, err := sess.AssignActiveClass()
		return err
	case CmdUndo:
		_, err := sess.Undo()
		return err
	case CmdAddClass:
		_, err := sess.AddClass(cmd.Name)
		return err
	case CmdActiveClass:
		return sess.SetActiveClass(cmd.ClassID)
	case CmdSave:
		return sess.Save()
	case CmdNext:
		return sess.Next()
	case CmdPrev:
		return sess.Prev()
	case CmdSwitch:
		return sess.Switch(cmd.Index)
	case CmdReload:
		return sess.Reload()
	case CmdViewport:
		if cmd.Rect == nil {
			return fmt.Errorf("%w: viewport needs rect", errBadCommand)
		}
		_, err := sess.SetViewport(*cmd.Rect)
		return err
	case CmdImageRect:
		if cmd.Rect == nil {
			return fmt.Errorf("%w: image_rect needs rect", errBadCommand)
		}
		sess.SetImageRect(*cmd.Rect)
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", errBadCommand, cmd.Type)
	}
}
