// Package geometry converts between screen pixels and normalized
// center/size box coordinates.
package geometry

import (
	"math"

	"github.com/menta2k/image-annotator/pkg/types"
)

// DefaultMinBoxPixels is the smallest side, in screen pixels, a dragged box may have.
const DefaultMinBoxPixels = 6.0

// ToRatio maps a screen point into the image rectangle as fractions of its
// size. Both axes are clamped to [0,1].
func ToRatio(p types.Point, r types.Rect) (float64, float64) {
	x := Clamp((p.X-r.Left)/r.Width, 0, 1)
	y := Clamp((p.Y-r.Top)/r.Height, 0, 1)
	return x, y
}

// ToScreenRect projects a box onto the displayed image rectangle.
func ToScreenRect(b types.BoundingBox, r types.Rect) types.Rect {
	left := r.Left + (b.Cx-b.W/2)*r.Width
	top := r.Top + (b.Cy-b.H/2)*r.Height
	return types.Rect{
		Left:   left,
		Top:    top,
		Width:  b.W * r.Width,
		Height: b.H * r.Height,
	}
}

// FromScreenRect is the inverse of ToScreenRect. The class name is left empty.
func FromScreenRect(s types.Rect, r types.Rect) types.BoundingBox {
	left := (s.Left - r.Left) / r.Width
	top := (s.Top - r.Top) / r.Height
	w := s.Width / r.Width
	h := s.Height / r.Height
	return types.BoundingBox{
		Cx: left + w/2,
		Cy: top + h/2,
		W:  w,
		H:  h,
	}
}

// ClampPoint pins a screen point inside the rectangle.
func ClampPoint(p types.Point, r types.Rect) types.Point {
	return types.Point{
		X: Clamp(p.X, r.Left, r.Right()),
		Y: Clamp(p.Y, r.Top, r.Bottom()),
	}
}

// DragRect returns the screen rectangle spanned by two points after both are
// clamped into r.
func DragRect(start, end types.Point, r types.Rect) types.Rect {
	a := ClampPoint(start, r)
	b := ClampPoint(end, r)
	return types.RectFromEdges(
		math.Min(a.X, b.X), math.Min(a.Y, b.Y),
		math.Max(a.X, b.X), math.Max(a.Y, b.Y),
	)
}

// BoxFromDrag builds a box from a press/release pair. It returns false when
// the dragged area is narrower or shorter than minPixels on screen, so a
// stray click never produces a box.
func BoxFromDrag(start, end types.Point, r types.Rect, minPixels float64) (types.BoundingBox, bool) {
	if !r.Valid() {
		return types.BoundingBox{}, false
	}
	s := DragRect(start, end, r)
	if s.Width <= 0 || s.Height <= 0 || s.Width < minPixels || s.Height < minPixels {
		return types.BoundingBox{}, false
	}

	x0, y0 := ToRatio(types.Point{X: s.Left, Y: s.Top}, r)
	x1, y1 := ToRatio(types.Point{X: s.Right(), Y: s.Bottom()}, r)
	return types.BoundingBox{
		Cx: (x0 + x1) / 2,
		Cy: (y0 + y1) / 2,
		W:  x1 - x0,
		H:  y1 - y0,
	}, true
}

// FitRect returns the largest rectangle with the image's aspect ratio that
// fits inside available, anchored at its top-left corner.
func FitRect(imgWidth, imgHeight int, available types.Rect) types.Rect {
	if imgWidth <= 0 || imgHeight <= 0 || !available.Valid() {
		return types.Rect{Left: available.Left, Top: available.Top}
	}
	aspect := float64(imgWidth) / float64(imgHeight)
	w, h := available.Width, available.Height
	if w/h > aspect {
		w = h * aspect
	} else {
		h = w / aspect
	}
	return types.Rect{Left: available.Left, Top: available.Top, Width: w, Height: h}
}

// Clamp ensures a value is within the given bounds
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
