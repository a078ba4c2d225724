package gifenc

import (
	"bytes"
	"errors"
	"image"
	"image/gif"
	"testing"

	"pgregory.net/rapid"
)

func solidFrame(w, h int, c byte) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = c
	}
	return img
}

func filledBuffer(t *testing.T, n int, opts ...Option) *Buffer {
	t.Helper()
	b, err := NewBuffer(10, 960, opts...)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	t.Cleanup(b.Close)
	for i := 0; i < n; i++ {
		if err := b.Append(solidFrame(32, 24, byte(i))); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	return b
}

func TestNewBufferDelay(t *testing.T) {
	tests := []struct {
		fps  float64
		want int
	}{
		{10, 10},
		{30, 3},
		{5, 20},
		{24, 4},  // round(100/24) = round(4.17)
		{1, 100},
	}

	for _, tt := range tests {
		b, err := NewBuffer(tt.fps, 960)
		if err != nil {
			t.Fatalf("NewBuffer(%.0f) failed: %v", tt.fps, err)
		}
		if b.Delay() != tt.want {
			t.Errorf("Delay at %.0f fps = %d, want %d", tt.fps, b.Delay(), tt.want)
		}
	}
}

func TestNewBufferValidation(t *testing.T) {
	if _, err := NewBuffer(0.5, 960); err == nil {
		t.Error("Expected error for FPS below 1")
	}
	if _, err := NewBuffer(31, 960); err == nil {
		t.Error("Expected error for FPS above 30")
	}
	if _, err := NewBuffer(10, 0); err == nil {
		t.Error("Expected error for zero max width")
	}
}

func TestEncodeFullBuffer(t *testing.T) {
	b := filledBuffer(t, 5)

	var out bytes.Buffer
	if err := b.Encode(&out); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	g, err := gif.DecodeAll(&out)
	if err != nil {
		t.Fatalf("Output not a decodable GIF: %v", err)
	}
	if len(g.Image) != 5 {
		t.Errorf("Expected 5 frames, got %d", len(g.Image))
	}
	if g.LoopCount != 0 {
		t.Errorf("Expected infinite loop (0), got %d", g.LoopCount)
	}
	for i, d := range g.Delay {
		if d != b.Delay() {
			t.Errorf("Frame %d delay = %d, want %d", i, d, b.Delay())
		}
	}
}

func TestEncodeEmptyBuffer(t *testing.T) {
	b, err := NewBuffer(10, 960)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	if err := b.Encode(&bytes.Buffer{}); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("Expected ErrNoFrames, got %v", err)
	}
}

// TestEncodeRange verifies the inclusive range semantics: 30 buffered
// frames trimmed to [5,15] encode exactly 11, and the buffer keeps all 30.
func TestEncodeRange(t *testing.T) {
	b := filledBuffer(t, 30)

	var out bytes.Buffer
	if err := b.EncodeRange(&out, 5, 15); err != nil {
		t.Fatalf("EncodeRange failed: %v", err)
	}

	g, err := gif.DecodeAll(&out)
	if err != nil {
		t.Fatalf("Output not a decodable GIF: %v", err)
	}
	if len(g.Image) != 11 {
		t.Errorf("Expected 11 frames, got %d", len(g.Image))
	}

	// The buffer is untouched: the full set stays exportable.
	if b.Len() != 30 {
		t.Errorf("Expected 30 buffered frames after range encode, got %d", b.Len())
	}
	out.Reset()
	if err := b.Encode(&out); err != nil {
		t.Errorf("Full encode after range encode failed: %v", err)
	}
}

func TestEncodeRangeValidation(t *testing.T) {
	b := filledBuffer(t, 10)

	tests := []struct {
		name       string
		start, end int
	}{
		{"negative start", -1, 5},
		{"end past last", 0, 10},
		{"inverted", 7, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.EncodeRange(&bytes.Buffer{}, tt.start, tt.end)
			if !errors.Is(err, ErrRangeInvalid) {
				t.Errorf("Expected ErrRangeInvalid, got %v", err)
			}
		})
	}

	// Single-frame range is valid.
	if err := b.EncodeRange(&bytes.Buffer{}, 4, 4); err != nil {
		t.Errorf("Single-frame range failed: %v", err)
	}
}

// TestSpillBeyondBudget verifies frames past the memory budget land on disk
// and encode identically to resident ones.
func TestSpillBeyondBudget(t *testing.T) {
	frameBytes := 4 * 32 * 24
	b := filledBuffer(t, 10, WithMemoryBudget(3*frameBytes))

	if b.spillDir == "" {
		t.Fatal("Expected spilling past the budget")
	}

	var out bytes.Buffer
	if err := b.Encode(&out); err != nil {
		t.Fatalf("Encode with spilled frames failed: %v", err)
	}
	g, err := gif.DecodeAll(&out)
	if err != nil {
		t.Fatalf("Output not a decodable GIF: %v", err)
	}
	if len(g.Image) != 10 {
		t.Errorf("Expected 10 frames, got %d", len(g.Image))
	}
}

func TestDownsamplePreservesAspect(t *testing.T) {
	b, err := NewBuffer(10, 100)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	defer b.Close()
	if err := b.Append(solidFrame(400, 200, 0x80)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	var out bytes.Buffer
	if err := b.Encode(&out); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	g, err := gif.DecodeAll(&out)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	bounds := g.Image[0].Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Errorf("Expected 100x50 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestAppendRejectsEmptyFrame(t *testing.T) {
	b, err := NewBuffer(10, 960)
	if err != nil {
		t.Fatalf("NewBuffer failed: %v", err)
	}
	if err := b.Append(nil); err == nil {
		t.Error("Expected error for nil frame")
	}
	if err := b.Append(&image.RGBA{}); err == nil {
		t.Error("Expected error for empty frame")
	}
}

// TestRangeValidationProperty checks the range invariant over arbitrary
// index pairs: EncodeRange accepts exactly 0 <= start <= end < len.
func TestRangeValidationProperty(t *testing.T) {
	b := filledBuffer(t, 12)

	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(-5, 20).Draw(t, "start")
		end := rapid.IntRange(-5, 20).Draw(t, "end")

		err := b.EncodeRange(&bytes.Buffer{}, start, end)
		valid := start >= 0 && start <= end && end < b.Len()
		if valid && err != nil {
			t.Fatalf("Valid range [%d,%d] rejected: %v", start, end, err)
		}
		if !valid && !errors.Is(err, ErrRangeInvalid) {
			t.Fatalf("Invalid range [%d,%d] accepted (err=%v)", start, end, err)
		}
	})
}
