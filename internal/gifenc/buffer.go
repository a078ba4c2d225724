// Package gifenc accumulates captured frames and encodes them into an
// animated GIF at stop time.
//
// No incremental container exists during a GIF capture: trimming needs
// random access to every frame, so the full ordered set is held until the
// encode step runs. Frames live in memory up to a budget and spill to
// per-frame temporary files beyond it, bounding memory for long recordings.
package gifenc

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

// Sentinel errors. The session layer translates these into its user-facing
// taxonomy.
var (
	// ErrNoFrames reports an encode over an empty frame set.
	ErrNoFrames = errors.New("no frames captured")

	// ErrRangeInvalid reports inverted or out-of-bounds trim indices.
	ErrRangeInvalid = errors.New("frame range invalid")
)

// DefaultMemoryBudget is the in-memory frame budget before spilling
// (raw RGBA bytes).
const DefaultMemoryBudget = 256 << 20

// frameRef is one buffered frame: either resident or spilled to disk.
type frameRef struct {
	img  *image.RGBA
	path string
}

// Buffer is the ordered frame accumulator for one GIF capture.
//
// Not safe for concurrent use: a single session goroutine appends, and the
// encode step runs after capture has stopped.
type Buffer struct {
	frames   []frameRef
	delay    int // per-frame delay in centiseconds, uniform
	maxWidth int

	memoryBudget int
	memoryUsed   int
	spillDir     string
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithMemoryBudget overrides the in-memory byte budget before spilling.
func WithMemoryBudget(bytes int) Option {
	return func(b *Buffer) { b.memoryBudget = bytes }
}

// NewBuffer creates an accumulator for the given capture rate and maximum
// output width, with fail-fast validation.
//
// The per-frame delay is fixed for the whole animation:
// max(1, round(100/fps)) in GIF centisecond units.
func NewBuffer(fps float64, maxWidth int, opts ...Option) (*Buffer, error) {
	if fps < 1 || fps > 30 {
		return nil, fmt.Errorf("gifenc: invalid FPS %.1f (must be 1-30)", fps)
	}
	if maxWidth < 1 {
		return nil, fmt.Errorf("gifenc: invalid max width %d", maxWidth)
	}

	delay := int(math.Round(100 / fps))
	if delay < 1 {
		delay = 1
	}

	b := &Buffer{
		delay:        delay,
		maxWidth:     maxWidth,
		memoryBudget: DefaultMemoryBudget,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Delay returns the uniform per-frame delay in centiseconds.
func (b *Buffer) Delay() int { return b.delay }

// Len returns the number of buffered frames.
func (b *Buffer) Len() int { return len(b.frames) }

// Append adds one frame to the buffer, spilling to a temporary file once
// the memory budget is exceeded.
func (b *Buffer) Append(img *image.RGBA) error {
	if img == nil || len(img.Pix) == 0 {
		return fmt.Errorf("gifenc: refusing to buffer empty frame")
	}

	if b.memoryUsed+len(img.Pix) > b.memoryBudget {
		return b.spill(img)
	}

	b.frames = append(b.frames, frameRef{img: img})
	b.memoryUsed += len(img.Pix)
	return nil
}

// spill writes the frame to a per-frame temporary file.
func (b *Buffer) spill(img *image.RGBA) error {
	if b.spillDir == "" {
		dir, err := os.MkdirTemp("", "tinyclips-gif-*")
		if err != nil {
			return fmt.Errorf("gifenc: failed to create spill dir: %w", err)
		}
		b.spillDir = dir
		slog.Info("gifenc: memory budget reached, spilling frames to disk",
			"dir", dir,
			"buffered", len(b.frames),
		)
	}

	path := filepath.Join(b.spillDir, fmt.Sprintf("frame-%06d.png", len(b.frames)))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("gifenc: failed to create spill file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return fmt.Errorf("gifenc: failed to spill frame: %w", err)
	}

	b.frames = append(b.frames, frameRef{path: path})
	return nil
}

// load materializes a frame, reading it back from disk if spilled.
func (r frameRef) load() (*image.RGBA, error) {
	if r.img != nil {
		return r.img, nil
	}
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("gifenc: failed to reload spilled frame: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("gifenc: failed to decode spilled frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba, nil
}

// validRange checks inclusive frame indices against the buffer.
func (b *Buffer) validRange(start, end int) error {
	if start < 0 || end >= len(b.frames) || start > end {
		return fmt.Errorf("gifenc: range [%d,%d] outside 0-%d: %w",
			start, end, len(b.frames)-1, ErrRangeInvalid)
	}
	return nil
}

// Close releases spilled frames. The buffer is unusable afterwards.
func (b *Buffer) Close() {
	if b.spillDir != "" {
		if err := os.RemoveAll(b.spillDir); err != nil {
			slog.Warn("gifenc: failed to remove spill dir", "dir", b.spillDir, "error", err)
		}
		b.spillDir = ""
	}
	b.frames = nil
	b.memoryUsed = 0
}
