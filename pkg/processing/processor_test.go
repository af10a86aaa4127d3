package processing

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/image-annotator/pkg/types"
)

// createTestImage creates a uniform gray test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{64, 64, 64, 255})
		}
	}
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestDimensions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	writePNG(t, path, createTestImage(320, 240))

	w, h, err := NewProcessor().Dimensions(path)
	if err != nil {
		t.Fatalf("Dimensions failed: %v", err)
	}
	if w != 320 || h != 240 {
		t.Errorf("Expected 320x240, got %dx%d", w, h)
	}
}

func TestDimensionsErrors(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()

	if _, _, err := p.Dimensions(filepath.Join(dir, "missing.png")); err == nil {
		t.Error("Expected error for missing file")
	}

	bogus := filepath.Join(dir, "bogus.png")
	if err := os.WriteFile(bogus, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := p.Dimensions(bogus); err == nil {
		t.Error("Expected error for undecodable file")
	}
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.png")
	writePNG(t, path, createTestImage(50, 40))

	img, err := NewProcessor().LoadImage(path)
	if err != nil {
		t.Fatalf("LoadImage failed: %v", err)
	}
	if img.Bounds().Dx() != 50 || img.Bounds().Dy() != 40 {
		t.Errorf("Unexpected bounds %v", img.Bounds())
	}
}

func TestCreateOverlay(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(200, 100)
	boxes := []OverlayBox{
		{Box: types.BoundingBox{Cx: 0.25, Cy: 0.5, W: 0.2, H: 0.4}},
		{Box: types.BoundingBox{Cx: 0.75, Cy: 0.5, W: 0.2, H: 0.4}, Selected: true, Label: "0:car"},
	}

	out := p.CreateOverlay(img, boxes, nil)
	if out.Bounds() != img.Bounds() {
		t.Fatalf("Overlay changed bounds: %v", out.Bounds())
	}

	// Left edge of the first box sits at x=30, y from 30 to 70.
	r, g, b, _ := out.At(30, 50).RGBA()
	if r>>8 != 200 || g>>8 != 100 || b>>8 != 50 {
		t.Errorf("Expected box color on first box edge, got (%d, %d, %d)", r>>8, g>>8, b>>8)
	}

	// Top-left handle of the selected box is centered on (130, 30).
	r, g, b, _ = out.At(128, 28).RGBA()
	if r>>8 != 255 || g>>8 != 255 || b>>8 != 255 {
		t.Errorf("Expected white handle, got (%d, %d, %d)", r>>8, g>>8, b>>8)
	}

	// Source image must be untouched.
	r, _, _, _ = img.At(30, 50).RGBA()
	if r>>8 != 64 {
		t.Error("CreateOverlay modified the source image")
	}
}

func TestCreateOverlayPreview(t *testing.T) {
	img := createTestImage(100, 100)
	preview := types.BoundingBox{Cx: 0.5, Cy: 0.5, W: 0.5, H: 0.5}

	out := NewProcessor().CreateOverlay(img, nil, &preview)
	r, g, b, _ := out.At(25, 50).RGBA()
	if r>>8 != 100 || g>>8 != 200 || b>>8 != 200 {
		t.Errorf("Expected preview color, got (%d, %d, %d)", r>>8, g>>8, b>>8)
	}
}

func TestSaveImage(t *testing.T) {
	p := NewProcessor()
	dir := t.TempDir()
	img := createTestImage(64, 48)

	for _, format := range []string{"png", "jpg", "webp"} {
		path := filepath.Join(dir, "out."+format)
		if err := p.SaveImage(img, path, format, 90, false); err != nil {
			t.Fatalf("SaveImage(%s) failed: %v", format, err)
		}
		w, h, err := p.Dimensions(path)
		if err != nil {
			t.Fatalf("Dimensions(%s) failed: %v", format, err)
		}
		if w != 64 || h != 48 {
			t.Errorf("%s: expected 64x48, got %dx%d", format, w, h)
		}
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	img := createTestImage(400, 200)

	b64, err := p.PrepareImageForModel(img, "png", 100, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("Invalid base64: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Invalid png: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("Expected 100x50, got %dx%d", cfg.Width, cfg.Height)
	}
}

func BenchmarkCreateOverlay(b *testing.B) {
	p := NewProcessor()
	img := createTestImage(1920, 1080)
	boxes := []OverlayBox{
		{Box: types.BoundingBox{Cx: 0.3, Cy: 0.3, W: 0.2, H: 0.2}, Label: "0:car"},
		{Box: types.BoundingBox{Cx: 0.6, Cy: 0.6, W: 0.3, H: 0.1}, Selected: true},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.CreateOverlay(img, boxes, nil)
	}
}
