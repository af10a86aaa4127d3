package imageannotator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-annotator/pkg/types"
)

type fakeVision struct {
	result *types.SuggestionResult
	reply  string
	err    error
	calls  int
	image  string
}

func (f *fakeVision) SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.image = imgB64
	return f.reply, f.err
}

func (f *fakeVision) SuggestObjects(ctx context.Context, model, prompt, imgB64 string) (*types.SuggestionResult, error) {
	f.calls++
	return f.result, f.err
}

func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{40, 40, 40, 255})
		}
	}
	// Bright square in the middle so saliency has something to find
	for y := height / 3; y < 2*height/3; y++ {
		for x := width / 3; x < 2*width/3; x++ {
			img.Set(x, y, color.NRGBA{250, 220, 30, 255})
		}
	}
	return img
}

func writeTestImage(t *testing.T, dir, name string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := imaging.Save(createTestImage(width, height), path); err != nil {
		t.Fatalf("Failed to write test image: %v", err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func TestNew(t *testing.T) {
	ann, err := New(nil)
	if err != nil {
		t.Fatalf("Expected default config to work, got %v", err)
	}
	if ann.detector == nil {
		t.Error("Expected ollama backend to create a detector")
	}

	cfg := DefaultConfig()
	cfg.Suggest.Backend = "saliency"
	ann, err = New(cfg)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ann.detector != nil {
		t.Error("Saliency backend should not create a remote detector")
	}

	cfg = DefaultConfig()
	cfg.Suggest.Backend = "llamacpp"
	if ann, err = New(cfg); err != nil || ann.detector == nil {
		t.Errorf("Expected llamacpp detector, got err %v", err)
	}

	cfg = DefaultConfig()
	cfg.Suggest.URL = "not a url"
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for a URL without scheme")
	}

	cfg = DefaultConfig()
	cfg.Suggest.Backend = "yolo"
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for an unknown backend")
	}
}

func TestSessionOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Files.LabelsFile = "names.txt"
	cfg.Editor.HistoryLimit = 7
	cfg.Editor.ClickTolerance = 12

	opts := NewWithClient(cfg, nil).SessionOptions()
	if opts.LabelsFile != "names.txt" || opts.HistoryLimit != 7 {
		t.Errorf("Options not taken from config: %+v", opts)
	}
	if opts.Settings.ClickTolerance != 12 {
		t.Errorf("Expected click tolerance 12, got %v", opts.Settings.ClickTolerance)
	}
}

func TestSuggestForModel(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 400, 200)

	fv := &fakeVision{result: &types.SuggestionResult{Objects: []types.Detection{
		{Label: "Dog", Confidence: 0.9, Box: types.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.4}},
		{Label: "", Confidence: 0.8, Box: types.Box{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}},
		{Label: "dog", Confidence: 0.05, Box: types.Box{X: 0.6, Y: 0.1, W: 0.1, H: 0.1}},
	}}}
	ann := NewWithClient(DefaultConfig(), fv)

	boxes, err := ann.SuggestFor(context.Background(), path, []string{"object", "dog"})
	if err != nil {
		t.Fatalf("SuggestFor failed: %v", err)
	}
	if fv.calls != 1 {
		t.Errorf("Expected one model call, got %d", fv.calls)
	}
	if len(boxes) != 2 {
		t.Fatalf("Expected 2 boxes, got %d", len(boxes))
	}
	if boxes[0].ClassName != "dog" {
		t.Errorf("Expected table spelling 'dog', got %q", boxes[0].ClassName)
	}
	if !near(boxes[0].Cx, 0.2) || !near(boxes[0].Cy, 0.3) {
		t.Errorf("Expected center (0.2, 0.3), got (%v, %v)", boxes[0].Cx, boxes[0].Cy)
	}
	if boxes[1].ClassName != "" {
		t.Errorf("Unlabelled detection should keep an empty class, got %q", boxes[1].ClassName)
	}

	fv.err = errors.New("model offline")
	if _, err := ann.SuggestFor(context.Background(), path, nil); err == nil {
		t.Error("Expected model error to propagate")
	}

	if _, err := ann.SuggestFor(context.Background(), filepath.Join(dir, "missing.png"), nil); err == nil {
		t.Error("Expected error for a missing image")
	}
}

func TestSuggestForSaliency(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 300, 300)

	ann := NewWithClient(DefaultConfig(), nil)
	boxes, err := ann.SuggestFor(context.Background(), path, []string{"object"})
	if err != nil {
		t.Fatalf("SuggestFor failed: %v", err)
	}
	if len(boxes) == 0 {
		t.Fatal("Expected at least one saliency proposal")
	}
	b := boxes[0]
	if b.Cx < 0.3 || b.Cx > 0.7 || b.Cy < 0.3 || b.Cy > 0.7 {
		t.Errorf("Expected the top proposal near the bright square, got %+v", b)
	}
}

func TestSuggestSession(t *testing.T) {
	dir := t.TempDir()
	img := writeTestImage(t, dir, "a.png", 200, 200)

	fv := &fakeVision{result: &types.SuggestionResult{Objects: []types.Detection{
		{Confidence: 0.9, Box: types.Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}},
	}}}
	ann := NewWithClient(DefaultConfig(), fv)
	sess := ann.NewSession()
	if err := sess.Open(dir); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	n, err := ann.SuggestSession(context.Background(), sess)
	if err != nil {
		t.Fatalf("SuggestSession failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 box applied, got %d", n)
	}

	data, err := os.ReadFile(strings.TrimSuffix(img, ".png") + ".txt")
	if err != nil {
		t.Fatalf("Expected annotation file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "0 0.500000 0.500000 0.500000 0.500000" {
		t.Errorf("Unexpected annotation line %q", got)
	}
}

func TestCheckModel(t *testing.T) {
	dir := t.TempDir()
	path := writeTestImage(t, dir, "a.png", 64, 64)

	fv := &fakeVision{reply: "a yellow square"}
	out, err := NewWithClient(DefaultConfig(), fv).CheckModel(context.Background(), path)
	if err != nil {
		t.Fatalf("CheckModel failed: %v", err)
	}
	if out != "a yellow square" {
		t.Errorf("Expected model reply, got %q", out)
	}
	if fv.image == "" {
		t.Error("Expected the image to be sent to the model")
	}

	if _, err := NewWithClient(DefaultConfig(), nil).CheckModel(context.Background(), path); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel for the saliency backend, got %v", err)
	}
}

func TestSentSize(t *testing.T) {
	tests := []struct {
		w, h, max int
		ew, eh    int
	}{
		{400, 200, 100, 100, 50},
		{200, 400, 100, 50, 100},
		{80, 60, 100, 80, 60},
		{1000, 3, 100, 100, 1},
		{640, 480, 0, 640, 480},
	}
	for _, tt := range tests {
		w, h := sentSize(image.NewNRGBA(image.Rect(0, 0, tt.w, tt.h)), tt.max)
		if w != tt.ew || h != tt.eh {
			t.Errorf("sentSize(%dx%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, tt.max, w, h, tt.ew, tt.eh)
		}
	}
}

func TestRenderDir(t *testing.T) {
	dir := t.TempDir()
	img := writeTestImage(t, dir, "a.png", 120, 80)
	writeTestImage(t, dir, "b.png", 120, 80)
	writeFile(t, filepath.Join(dir, "_darknet.labels"), "object\ncat\n")
	writeFile(t, strings.TrimSuffix(img, ".png")+".txt", "1 0.5 0.5 0.5 0.5\n")

	cfg := DefaultConfig()
	cfg.Render.OutputDir = filepath.Join(dir, "out")
	ann := NewWithClient(cfg, nil)

	n, err := ann.RenderDir(dir)
	if err != nil {
		t.Fatalf("RenderDir failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 overlays, got %d", n)
	}
	if _, err := os.Stat(filepath.Join(cfg.Render.OutputDir, "a_boxes.png")); err != nil {
		t.Errorf("Expected overlay file: %v", err)
	}

	if _, err := ann.RenderDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("Expected error for a missing directory")
	}
}

func TestNormalize(t *testing.T) {
	dir := t.TempDir()
	a := writeTestImage(t, dir, "a.png", 50, 50)
	writeTestImage(t, dir, "b.png", 50, 50)
	writeFile(t, filepath.Join(dir, "_darknet.labels"), "car\n")
	writeFile(t, strings.TrimSuffix(a, ".png")+".txt", "0 0.5 0.5 0.25 0.25\ngarbage\n3 0.1 0.1 0.1 0.1\n")

	ann := NewWithClient(DefaultConfig(), nil)
	n, err := ann.Normalize(dir)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 rewritten file, got %d", n)
	}

	data, _ := os.ReadFile(strings.TrimSuffix(a, ".png") + ".txt")
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected malformed line dropped, got %q", data)
	}
	if lines[0] != "0 0.500000 0.500000 0.250000 0.250000" {
		t.Errorf("Unexpected canonical line %q", lines[0])
	}

	labels, _ := os.ReadFile(filepath.Join(dir, "_darknet.labels"))
	if !strings.Contains(string(labels), "class_3") {
		t.Errorf("Expected placeholder class saved, got %q", labels)
	}
	if _, err := os.Stat(filepath.Join(dir, "b.txt")); !os.IsNotExist(err) {
		t.Error("Normalize should not create annotation files")
	}
}

func TestStats(t *testing.T) {
	dir := t.TempDir()
	a := writeTestImage(t, dir, "a.png", 50, 50)
	writeTestImage(t, dir, "b.png", 50, 50)
	writeFile(t, filepath.Join(dir, "_darknet.labels"), "car\nbus\n")
	writeFile(t, strings.TrimSuffix(a, ".png")+".txt", "0 0.5 0.5 0.2 0.2\n1 0.3 0.3 0.1 0.1\n")

	report, err := NewWithClient(DefaultConfig(), nil).Stats(dir)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if report.Images != 2 || report.Annotated != 1 || report.Boxes != 2 {
		t.Errorf("Unexpected report: %+v", report)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("Expected version %s, got %s", Version, GetVersion())
	}
}
