package session

import (
	"path/filepath"

	"github.com/menta2k/image-annotator/pkg/interaction"
	"github.com/menta2k/image-annotator/pkg/types"
)

// State is a snapshot of everything a host needs to draw the editor.
type State struct {
	Dir         string                  `json:"dir"`
	Image       *types.ImageEntry       `json:"image,omitempty"`
	ImageName   string                  `json:"image_name,omitempty"`
	Index       int                     `json:"index"`
	Count       int                     `json:"count"`
	Classes     []string                `json:"classes"`
	ActiveClass int                     `json:"active_class"`
	ImageRect   types.Rect              `json:"image_rect"`
	Boxes       []interaction.RenderBox `json:"boxes"`
	Preview     *types.Rect             `json:"preview,omitempty"`
	Selected    int                     `json:"selected"`
	Mode        interaction.DragMode    `json:"mode"`
	CanUndo     bool                    `json:"can_undo"`
}

// State returns the current editor state.
func (s *Session) State() State {
	st := State{
		Dir:         s.dir,
		Index:       s.index,
		Count:       len(s.images),
		Classes:     s.table.Names(),
		ActiveClass: s.active,
		ImageRect:   s.machine.ImageRect(),
		Boxes:       s.machine.Boxes(),
		Selected:    -1,
		Mode:        s.machine.Mode(),
		CanUndo:     s.store.HistoryLen() > 0,
	}
	if s.current != nil {
		img := *s.current
		st.Image = &img
		st.ImageName = filepath.Base(img.Path)
	}
	if r, ok := s.machine.Preview(); ok {
		st.Preview = &r
	}
	if i, ok := s.store.Selected(); ok {
		st.Selected = i
	}
	return st
}
