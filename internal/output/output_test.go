package output

import (
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestArtifactPathFormat(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 8, 25, 14, 30, 5, 0, time.Local)

	path, err := ArtifactPath(dir, ts, "mp4")
	if err != nil {
		t.Fatalf("ArtifactPath failed: %v", err)
	}

	want := filepath.Join(dir, "Tiny Clips 2026-08-25 at 14.30.05.mp4")
	if path != want {
		t.Errorf("ArtifactPath = %q, want %q", path, want)
	}
}

func TestArtifactPathCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "save")
	if _, err := ArtifactPath(dir, time.Now(), "gif"); err != nil {
		t.Fatalf("ArtifactPath failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Save directory not created: %v", err)
	}
}

// TestArtifactPathCollision verifies an existing file at the resolved path
// is reported as ErrIO carrying the attempted path.
func TestArtifactPathCollision(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2026, 8, 25, 9, 0, 0, 0, time.Local)

	path, err := ArtifactPath(dir, ts, "mp4")
	if err != nil {
		t.Fatalf("ArtifactPath failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err = ArtifactPath(dir, ts, "mp4")
	if !errors.Is(err, ErrIO) {
		t.Fatalf("Expected ErrIO on collision, got %v", err)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("Error does not carry the attempted path: %v", err)
	}
}

func TestTrimmedPath(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"/save/Tiny Clips 2026-08-25 at 14.30.05.mp4", "/save/Tiny Clips 2026-08-25 at 14.30.05 (trimmed).mp4"},
		{"/save/clip.gif", "/save/clip (trimmed).gif"},
		{"noext", "noext (trimmed)"},
	}

	for _, tt := range tests {
		if got := TrimmedPath(tt.src); got != tt.want {
			t.Errorf("TrimmedPath(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestKindExt(t *testing.T) {
	tests := []struct {
		kind Kind
		ext  string
		name string
	}{
		{KindScreenshot, "png", "screenshot"},
		{KindVideo, "mp4", "video"},
		{KindGIF, "gif", "gif"},
	}

	for _, tt := range tests {
		if got := tt.kind.Ext(); got != tt.ext {
			t.Errorf("%v.Ext() = %q, want %q", tt.kind, got, tt.ext)
		}
		if got := tt.kind.String(); got != tt.name {
			t.Errorf("Kind.String() = %q, want %q", got, tt.name)
		}
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = byte(i)
	}
	return img
}

func TestSaveImagePNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	if err := SaveImage(testImage(64, 48), path, ImageOptions{Format: FormatPNG, ScalePercent: 100}); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Output not decodable PNG: %v", err)
	}
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 48 {
		t.Errorf("Expected 64x48, got %v", img.Bounds())
	}
}

func TestSaveImageJPEGScaled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.jpg")
	opts := ImageOptions{Format: FormatJPEG, Quality: 0.8, ScalePercent: 50}
	if err := SaveImage(testImage(64, 48), path, opts); err != nil {
		t.Fatalf("SaveImage failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Output missing: %v", err)
	}
	defer f.Close()
	img, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("Output not decodable JPEG: %v", err)
	}
	if img.Bounds().Dx() != 32 || img.Bounds().Dy() != 24 {
		t.Errorf("Expected 32x24 at 50%%, got %v", img.Bounds())
	}
}

func TestSaveImageRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	if err := SaveImage(nil, path, ImageOptions{}); err == nil {
		t.Error("Expected error for nil image")
	}
	if err := SaveImage(&image.RGBA{}, path, ImageOptions{}); err == nil {
		t.Error("Expected error for empty image")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("No file should exist after rejected save")
	}
}
