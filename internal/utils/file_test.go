package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsImageFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.png", true},
		{"b.JPG", true},
		{"c.jpeg", true},
		{"d.webp", true},
		{"e.tif", true},
		{"f.bmp", true},
		{"g.txt", false},
		{"_darknet.labels", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := IsImageFile(tt.name, DefaultImageExtensions); got != tt.want {
			t.Errorf("IsImageFile(%q) = %v, expected %v", tt.name, got, tt.want)
		}
	}

	if !IsImageFile("x.gif", []string{".GIF"}) {
		t.Error("Expected custom extension with dot and upper case to match")
	}
}

func TestListImageFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "a.txt", "_darknet.labels", "c.WEBP"} {
		touch(t, filepath.Join(dir, name))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := ListImageFiles(dir, DefaultImageExtensions)
	if err != nil {
		t.Fatalf("ListImageFiles failed: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "c.WEBP"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Expected %v, got %v", want, files)
	}
}

func TestListImageFilesMissingDir(t *testing.T) {
	if _, err := ListImageFiles(filepath.Join(t.TempDir(), "missing"), DefaultImageExtensions); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/in/cat.jpg", "/out", "", "_boxes", "png")
	if got != filepath.Join("/out", "cat_boxes.png") {
		t.Errorf("Unexpected output name %q", got)
	}

	got = GenerateOutputFilename("/in/cat.webp", "/out", "p_", "", "")
	if got != filepath.Join("/out", "p_cat.webp") {
		t.Errorf("Unexpected output name %q", got)
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	touch(t, file)

	if !FileExists(file) || FileExists(dir) || FileExists(filepath.Join(dir, "nope")) {
		t.Error("FileExists misreported")
	}
	if !DirExists(dir) || DirExists(file) {
		t.Error("DirExists misreported")
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	if !DirExists(dir) {
		t.Error("Expected directory to be created")
	}
}
