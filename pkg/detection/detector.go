package detection

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/types"
)

// SimpleTestPrompt for testing if the model can see images
const SimpleTestPrompt = `What do you see in this image? Describe it briefly.`

// promptTemplate asks for every instance of the listed classes. %s is
// replaced by the class list.
const promptTemplate = `You are an object detector preparing training annotations.

Find every instance of these classes in the image: %s.

Return JSON only:
{
  "objects": [
    {"label": "class name", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- box.x and box.y are the TOP-LEFT corner; w and h are width and height.
- All coordinates are normalized to [0,1] (NOT pixels).
- Boxes must tightly enclose the object.
- label must be one of the listed classes, spelled exactly as given.
- If nothing is found, return {"objects": [], "description": "no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// openPrompt is used when the class table carries no meaningful names.
const openPrompt = `You are an object detector preparing training annotations.

Find the distinct, clearly visible objects in the image (people, vehicles, animals, products).

Return JSON only:
{
  "objects": [
    {"label": "short lowercase noun", "confidence": 0.0, "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}}
  ],
  "description": "short neutral sentence (≤ 20 words)"
}

HARD RULES
- box.x and box.y are the TOP-LEFT corner; w and h are width and height.
- All coordinates are normalized to [0,1] (NOT pixels).
- If nothing is found, return {"objects": [], "description": "no objects"}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Options tune a suggestion request.
type Options struct {
	Model string
	// Classes are the names the model may use. Placeholder names and the
	// generic default class are left out of the prompt.
	Classes []string
	// MinConfidence drops detections below the threshold.
	MinConfidence float64
	// Restrict drops detections whose label is not one of Classes.
	Restrict bool
	// ImageWidth and ImageHeight rescale replies given in pixels. Zero
	// means pixel replies are clamped instead.
	ImageWidth  int
	ImageHeight int
}

// Detector turns vision model replies into annotation boxes
type Detector struct {
	client client.VisionClient
}

// NewDetector creates a new detector with a vision client
func NewDetector(client client.VisionClient) *Detector {
	return &Detector{client: client}
}

// BuildPrompt returns the prompt used for the given class names.
func BuildPrompt(classNames []string) string {
	names := promptClasses(classNames)
	if len(names) == 0 {
		return openPrompt
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(quoted, ", "))
}

// Suggest asks the model for objects in imageB64 and converts them into
// center/size boxes labelled with class names.
func (d *Detector) Suggest(ctx context.Context, imageB64 string, opts Options) ([]types.BoundingBox, error) {
	result, err := d.client.SuggestObjects(ctx, opts.Model, BuildPrompt(opts.Classes), imageB64)
	if err != nil {
		return nil, fmt.Errorf("suggestion request failed: %w", err)
	}
	return Convert(result, opts), nil
}

// TestVision tests if the model can actually see the image with a simple prompt
func (d *Detector) TestVision(ctx context.Context, model, imageB64 string) (string, error) {
	return d.client.SimpleQuery(ctx, model, SimpleTestPrompt, imageB64)
}

// Convert filters and converts raw detections. Labels are matched to
// opts.Classes case-insensitively and take the table's spelling. Unlabelled
// detections keep an empty class name for the caller to fill in.
func Convert(result *types.SuggestionResult, opts Options) []types.BoundingBox {
	if result == nil {
		return nil
	}

	known := make(map[string]string, len(opts.Classes))
	for _, n := range opts.Classes {
		known[normalizeLabel(n)] = n
	}

	var out []types.BoundingBox
	for _, det := range result.Objects {
		if det.Confidence < opts.MinConfidence {
			continue
		}
		label := strings.TrimSpace(det.Label)
		if strings.EqualFold(label, "none") {
			continue
		}
		if label != "" {
			if name, ok := known[normalizeLabel(label)]; ok {
				label = name
			} else if opts.Restrict {
				continue
			}
		}

		b, ok := toCenterBox(normalizeBox(det.Box, opts.ImageWidth, opts.ImageHeight))
		if !ok {
			continue
		}
		b.ClassName = label
		out = append(out, b)
	}
	return out
}

// toCenterBox converts a clamped top-left box into center/size form.
func toCenterBox(b types.Box) (types.BoundingBox, bool) {
	left, top := b.X, b.Y
	right := clamp(b.X+b.W, 0, 1)
	bottom := clamp(b.Y+b.H, 0, 1)
	w, h := right-left, bottom-top
	if w <= 0 || h <= 0 || math.IsNaN(w) || math.IsNaN(h) {
		return types.BoundingBox{}, false
	}
	return types.BoundingBox{Cx: left + w/2, Cy: top + h/2, W: w, H: h}, true
}

func promptClasses(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || n == "object" || strings.HasPrefix(n, "class_") {
			continue
		}
		out = append(out, n)
	}
	return out
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "_", " ")
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox ensures box coordinates are within [0,1] bounds
func normalizeBox(b types.Box, imgW, imgH int) types.Box {
	// Convert from pixel coordinates if needed
	if imgW > 0 && imgH > 0 && (b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1) {
		b = types.Box{
			X: b.X / float64(imgW),
			Y: b.Y / float64(imgH),
			W: b.W / float64(imgW),
			H: b.H / float64(imgH),
		}
	}

	return types.Box{
		X: clamp(b.X, 0, 1),
		Y: clamp(b.Y, 0, 1),
		W: clamp(b.W, 0, 1),
		H: clamp(b.H, 0, 1),
	}
}
