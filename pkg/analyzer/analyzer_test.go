package analyzer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/image-annotator/pkg/types"
)

// createTestDir creates an image directory from a map of file names to contents
func createTestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestNew(t *testing.T) {
	a := New()
	if a == nil {
		t.Fatal("New() returned nil")
	}
	if a.config.LabelsFile != "_darknet.labels" {
		t.Errorf("Expected default labels file, got %q", a.config.LabelsFile)
	}
}

func TestNewWithConfig(t *testing.T) {
	a := NewWithConfig(Config{LabelsFile: "labels.txt", ImageExtensions: []string{"png"}, MinBoxSize: 0.01})
	if a.config.MinBoxSize != 0.01 {
		t.Errorf("Expected min box size 0.01, got %f", a.config.MinBoxSize)
	}
}

func TestAnalyzeDir(t *testing.T) {
	dir := createTestDir(t, map[string]string{
		"_darknet.labels": "car\nperson\nbike\n",
		"a.png":           "img",
		"a.txt":           "0 0.5 0.5 0.2 0.2\n1 0.3 0.3 0.1 0.1\n0 0.7 0.7 0.1 0.1\n",
		"b.jpg":           "img",
		"b.txt":           "1 0.95 0.5 0.2 0.2\nbroken line\n",
		"c.png":           "img",
	})

	report, err := New().AnalyzeDir(dir)
	if err != nil {
		t.Fatalf("AnalyzeDir failed: %v", err)
	}

	if report.Images != 3 || report.Annotated != 2 || report.Unannotated() != 1 {
		t.Errorf("Unexpected image counts: %+v", report)
	}
	if report.Boxes != 4 {
		t.Errorf("Expected 4 boxes, got %d", report.Boxes)
	}

	want := []ClassCount{{0, "car", 2}, {1, "person", 2}, {2, "bike", 0}}
	if len(report.Classes) != len(want) {
		t.Fatalf("Expected %d classes, got %+v", len(want), report.Classes)
	}
	for i, c := range want {
		if report.Classes[i] != c {
			t.Errorf("Class %d: expected %+v, got %+v", i, c, report.Classes[i])
		}
	}

	if len(report.Issues) != 1 || report.Issues[0].Image != "b.jpg" || report.Issues[0].Box != 0 {
		t.Errorf("Expected one out-of-bounds issue in b.jpg, got %+v", report.Issues)
	}

	// Analysis is read-only.
	data, _ := os.ReadFile(filepath.Join(dir, "_darknet.labels"))
	if string(data) != "car\nperson\nbike\n" {
		t.Errorf("Label file was modified: %q", data)
	}
}

func TestAnalyzeDirUnknownIDs(t *testing.T) {
	dir := createTestDir(t, map[string]string{
		"_darknet.labels": "car\n",
		"a.png":           "img",
		"a.txt":           "3 0.5 0.5 0.2 0.2\n",
	})

	report, err := New().AnalyzeDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Issues) != 1 || !strings.Contains(report.Issues[0].String(), "missing from the label file") {
		t.Errorf("Expected missing-class issue, got %+v", report.Issues)
	}
	last := report.Classes[len(report.Classes)-1]
	if last.Name != "class_3" || last.Boxes != 1 {
		t.Errorf("Expected placeholder class counted, got %+v", report.Classes)
	}
	for _, c := range report.Classes {
		if c.Name == "class_1" {
			t.Error("Unused placeholders should not be reported")
		}
	}
}

func TestAnalyzeDirMissing(t *testing.T) {
	if _, err := New().AnalyzeDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestValidateBox(t *testing.T) {
	a := New()
	tests := []struct {
		name  string
		box   types.BoundingBox
		valid bool
	}{
		{"inside", types.BoundingBox{Cx: 0.5, Cy: 0.5, W: 0.2, H: 0.2}, true},
		{"full image", types.BoundingBox{Cx: 0.5, Cy: 0.5, W: 1, H: 1}, true},
		{"overflow right", types.BoundingBox{Cx: 0.95, Cy: 0.5, W: 0.2, H: 0.2}, false},
		{"degenerate", types.BoundingBox{Cx: 0.5, Cy: 0.5, W: 0, H: 0.2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.ValidateBox(tt.box)
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestIssueString(t *testing.T) {
	if got := (Issue{Image: "a.png", Box: -1, Problem: "bad"}).String(); got != "a.png: bad" {
		t.Errorf("Unexpected %q", got)
	}
	if got := (Issue{Image: "a.png", Box: 2, Problem: "bad"}).String(); got != "a.png box 2: bad" {
		t.Errorf("Unexpected %q", got)
	}
}
