package vision

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-annotator/pkg/types"
)

// SaliencyProposer proposes boxes around visually distinct regions without a
// model server. It is a rough first pass for the annotator to correct.
type SaliencyProposer struct {
	config ProposalConfig
}

// ProposalConfig holds configuration for saliency proposals
type ProposalConfig struct {
	// EdgeThreshold is the minimum center-surround score of a region.
	EdgeThreshold  float64
	ContrastWeight float64
	ColorWeight    float64
	// MinSubjectRatio is the smallest region area as a fraction of the image.
	MinSubjectRatio float64
	MaxProposals    int
	// OverlapThreshold is the IoU above which a weaker region is suppressed.
	OverlapThreshold float64
	// WorkingSize is the longest side the image is reduced to before analysis.
	WorkingSize int
}

// New creates a new SaliencyProposer with default configuration
func New() *SaliencyProposer {
	return &SaliencyProposer{
		config: ProposalConfig{
			EdgeThreshold:    0.01,
			ContrastWeight:   0.3,
			ColorWeight:      0.2,
			MinSubjectRatio:  0.005,
			MaxProposals:     5,
			OverlapThreshold: 0.3,
			WorkingSize:      512,
		},
	}
}

// NewWithConfig creates a new SaliencyProposer with custom configuration
func NewWithConfig(config ProposalConfig) *SaliencyProposer {
	return &SaliencyProposer{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

func (r Region) intersection(o Region) int {
	w := minInt(r.X+r.Width, o.X+o.Width) - maxInt(r.X, o.X)
	h := minInt(r.Y+r.Height, o.Y+o.Height) - maxInt(r.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU returns the intersection over union of two regions.
func (r Region) IoU(o Region) float64 {
	inter := r.intersection(o)
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Propose returns detections in the normalized top-left form a vision model
// would produce. Labels are left empty. Confidence is relative to the
// strongest region, which gets 1.
func (p *SaliencyProposer) Propose(img image.Image) *types.SuggestionResult {
	work := img
	if p.config.WorkingSize > 0 {
		b := img.Bounds()
		if b.Dx() > p.config.WorkingSize || b.Dy() > p.config.WorkingSize {
			work = imaging.Fit(img, p.config.WorkingSize, p.config.WorkingSize, imaging.Box)
		}
	}

	regions := p.DetectSubjects(work)
	result := &types.SuggestionResult{Description: "saliency proposals"}
	if len(regions) == 0 {
		return result
	}

	w := float64(work.Bounds().Dx())
	h := float64(work.Bounds().Dy())
	top := regions[0].Score
	for _, r := range regions {
		result.Objects = append(result.Objects, types.Detection{
			Confidence: r.Score / top,
			Box: types.Box{
				X: float64(r.X) / w,
				Y: float64(r.Y) / h,
				W: float64(r.Width) / w,
				H: float64(r.Height) / h,
			},
		})
	}
	return result
}

// DetectSubjects returns distinct regions of img ordered by score. Each
// region scores the mean saliency inside it minus the mean of a surrounding
// ring, so windows fitting an object tightly rank highest.
func (p *SaliencyProposer) DetectSubjects(img image.Image) []Region {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width < 3 || height < 3 {
		return nil
	}

	sal := p.calculateSaliencyMap(img)
	integral := newIntegral(sal, width, height)

	candidates := p.findCandidateRegions(integral, width, height)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	return p.suppress(candidates)
}

// calculateSaliencyMap combines local edge strength with the color distance
// from the image mean. Values are roughly in [0,1].
func (p *SaliencyProposer) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	norm := 65535.0 * math.Sqrt(3)

	pix := make([][3]float64, width*height)
	var mean [3]float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			c := [3]float64{float64(r), float64(g), float64(b)}
			pix[y*width+x] = c
			mean[0] += c[0]
			mean[1] += c[1]
			mean[2] += c[2]
		}
	}
	n := float64(width * height)
	mean[0] /= n
	mean[1] /= n
	mean[2] /= n

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	neighbors := [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := pix[y*width+x]

			var edgeStrength float64
			if x > 0 && y > 0 && x < width-1 && y < height-1 {
				for _, off := range neighbors {
					edgeStrength += colorDistance(c, pix[(y+off[1])*width+x+off[0]])
				}
				edgeStrength /= 8 * norm
			}
			contrast := colorDistance(c, mean) / norm

			saliencyMap[y][x] = p.config.ContrastWeight*edgeStrength + p.config.ColorWeight*contrast
		}
	}
	return saliencyMap
}

func colorDistance(a, b [3]float64) float64 {
	dr, dg, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

// windowShapes are width:height ratios tried at every scale.
var windowShapes = [][2]int{{1, 1}, {2, 1}, {1, 2}}

// windowScales are window sizes as fractions of the shorter image side.
var windowScales = []float64{1.0 / 8, 1.0 / 6, 1.0 / 4, 1.0 / 3, 2.0 / 5, 1.0 / 2, 2.0 / 3}

func (p *SaliencyProposer) findCandidateRegions(in *integral, width, height int) []Region {
	var regions []Region
	short := minInt(width, height)
	minArea := int(float64(width*height) * p.config.MinSubjectRatio)

	for _, scale := range windowScales {
		base := int(float64(short) * scale)
		if base < 8 {
			continue
		}
		for _, shape := range windowShapes {
			// The shorter window side is base.
			ww, wh := base, base
			if shape[0] > shape[1] {
				ww = base * shape[0] / shape[1]
			} else if shape[1] > shape[0] {
				wh = base * shape[1] / shape[0]
			}
			if ww > width || wh > height || ww*wh < minArea {
				continue
			}

			step := maxInt(1, minInt(ww, wh)/8)
			for y := 0; y+wh <= height; y += step {
				for x := 0; x+ww <= width; x += step {
					score := centerSurround(in, x, y, ww, wh, width, height)
					if score > p.config.EdgeThreshold {
						regions = append(regions, Region{X: x, Y: y, Width: ww, Height: wh, Score: score})
					}
				}
			}
		}
	}
	return regions
}

// centerSurround scores a window against a ring a quarter of its size wide,
// clipped to the image.
func centerSurround(in *integral, x, y, w, h, width, height int) float64 {
	inner := in.sum(x, y, x+w, y+h)
	innerMean := inner / float64(w*h)

	mx, my := maxInt(1, w/4), maxInt(1, h/4)
	ox0, oy0 := maxInt(0, x-mx), maxInt(0, y-my)
	ox1, oy1 := minInt(width, x+w+mx), minInt(height, y+h+my)
	ringArea := (ox1-ox0)*(oy1-oy0) - w*h
	if ringArea <= 0 {
		return innerMean
	}
	ringMean := (in.sum(ox0, oy0, ox1, oy1) - inner) / float64(ringArea)
	return innerMean - ringMean
}

// suppress keeps the strongest regions, dropping any that overlap or mostly
// contain/are contained by a stronger one.
func (p *SaliencyProposer) suppress(sorted []Region) []Region {
	var kept []Region
	for _, r := range sorted {
		if p.config.MaxProposals > 0 && len(kept) >= p.config.MaxProposals {
			break
		}
		ok := true
		for _, k := range kept {
			inter := r.intersection(k)
			if r.IoU(k) > p.config.OverlapThreshold ||
				float64(inter) > 0.6*float64(minInt(r.Area(), k.Area())) {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, r)
		}
	}
	return kept
}

// integral is a summed-area table of the saliency map.
type integral struct {
	w    int
	sums []float64
}

func newIntegral(m [][]float64, width, height int) *integral {
	in := &integral{w: width + 1, sums: make([]float64, (width+1)*(height+1))}
	for y := 0; y < height; y++ {
		var row float64
		for x := 0; x < width; x++ {
			row += m[y][x]
			in.sums[(y+1)*in.w+x+1] = in.sums[y*in.w+x+1] + row
		}
	}
	return in
}

// sum returns the total over [x0,x1) x [y0,y1).
func (in *integral) sum(x0, y0, x1, y1 int) float64 {
	return in.sums[y1*in.w+x1] - in.sums[y0*in.w+x1] - in.sums[y1*in.w+x0] + in.sums[y0*in.w+x0]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
