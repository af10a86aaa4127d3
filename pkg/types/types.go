package types

// BoundingBox is an axis-aligned box stored as center and size, each a
// fraction of the image width or height.
type BoundingBox struct {
	ClassName string  `json:"class_name"`
	Cx        float64 `json:"cx"`
	Cy        float64 `json:"cy"`
	W         float64 `json:"w"`
	H         float64 `json:"h"`
}

// Edges returns the left, top, right and bottom edges in ratio space.
func (b BoundingBox) Edges() (left, top, right, bottom float64) {
	return b.Cx - b.W/2, b.Cy - b.H/2, b.Cx + b.W/2, b.Cy + b.H/2
}

// Point is a position in screen pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a screen rectangle given by its top-left corner and size.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromEdges builds a Rect from min/max coordinates.
func RectFromEdges(left, top, right, bottom float64) Rect {
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Valid reports whether the rectangle has a positive area.
func (r Rect) Valid() bool { return r.Width > 0 && r.Height > 0 }

// Contains reports whether p lies inside the rectangle, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() && p.Y >= r.Top && p.Y <= r.Bottom()
}

// ImageEntry is a discovered image together with its decoded pixel size.
type ImageEntry struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Detection is a single object proposed by a vision model. Box uses the
// top-left convention of the model prompt, normalized to [0,1].
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// Box represents a normalized top-left/size box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// SuggestionResult is the parsed reply of a vision model asked to pre-annotate an image.
type SuggestionResult struct {
	Objects     []Detection `json:"objects"`
	Description string      `json:"description"`
}
