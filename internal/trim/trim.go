// Package trim produces a new artifact restricted to a sub-range of a
// finished capture. The original is never mutated in place; it is deleted
// only after a replacement succeeds, or on explicit discard.
package trim

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tobitege/tiny-clips-mac/internal/gifenc"
	"github.com/tobitege/tiny-clips-mac/internal/output"
)

// ErrRangeInvalid reports inverted or out-of-bounds trim bounds. The source
// artifact is untouched.
var ErrRangeInvalid = errors.New("trim range invalid")

// Range is a half-open video trim range [Start, End) on the artifact
// timeline.
type Range struct {
	Start time.Duration
	End   time.Duration
}

// Validate checks 0 <= Start < End <= duration.
func (r Range) Validate(duration time.Duration) error {
	if r.Start < 0 || r.Start >= r.End || r.End > duration {
		return fmt.Errorf("trim: range [%s,%s) outside artifact duration %s: %w",
			r.Start, r.End, duration, ErrRangeInvalid)
	}
	return nil
}

// ExportGifRange encodes the inclusive frame range [startFrame, endFrame]
// of a finished GIF capture to path. The buffer keeps all frames: the full
// capture stays separately exportable afterwards.
func ExportGifRange(buf *gifenc.Buffer, startFrame, endFrame int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trim: cannot create %s (%v): %w", path, err, output.ErrIO)
	}

	encErr := buf.EncodeRange(f, startFrame, endFrame)
	if cerr := f.Close(); encErr == nil {
		encErr = cerr
	}
	if encErr != nil {
		os.Remove(path)
		if errors.Is(encErr, gifenc.ErrRangeInvalid) {
			return fmt.Errorf("trim: %w", ErrRangeInvalid)
		}
		return encErr
	}

	slog.Info("trim: gif range exported",
		"path", path,
		"frames", endFrame-startFrame+1,
	)
	return nil
}

// ExportGifAll encodes the complete frame set to path ("save all frames").
func ExportGifAll(buf *gifenc.Buffer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("trim: cannot create %s (%v): %w", path, err, output.ErrIO)
	}

	encErr := buf.Encode(f)
	if cerr := f.Close(); encErr == nil {
		encErr = cerr
	}
	if encErr != nil {
		os.Remove(path)
		return encErr
	}
	return nil
}

// Discard deletes a raw source artifact the user chose not to keep.
func Discard(src string) error {
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("trim: cannot discard %s (%v): %w", src, err, output.ErrIO)
	}
	slog.Info("trim: source discarded", "path", src)
	return nil
}
