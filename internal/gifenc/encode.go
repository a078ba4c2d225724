package gifenc

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"log/slog"
	"time"

	xdraw "golang.org/x/image/draw"
)

// Encode writes the full frame set as an infinite-loop GIF89a with the
// buffer's uniform per-frame delay.
//
// Each frame is downsampled to the configured maximum width (aspect ratio
// preserved, Catmull-Rom interpolation) before palettization.
func (b *Buffer) Encode(w io.Writer) error {
	if len(b.frames) == 0 {
		return fmt.Errorf("gifenc: %w", ErrNoFrames)
	}
	return b.encodeRange(w, 0, len(b.frames)-1)
}

// EncodeRange writes only the frames in the inclusive index range
// [start, end], re-running the same downsample and encode step. The buffer
// itself is untouched: the full capture stays exportable afterwards.
func (b *Buffer) EncodeRange(w io.Writer, start, end int) error {
	if len(b.frames) == 0 {
		return fmt.Errorf("gifenc: %w", ErrNoFrames)
	}
	if err := b.validRange(start, end); err != nil {
		return err
	}
	return b.encodeRange(w, start, end)
}

func (b *Buffer) encodeRange(w io.Writer, start, end int) error {
	began := time.Now()
	count := end - start + 1

	anim := &gif.GIF{
		Image:     make([]*image.Paletted, 0, count),
		Delay:     make([]int, 0, count),
		LoopCount: 0, // loop forever
	}

	for i := start; i <= end; i++ {
		img, err := b.frames[i].load()
		if err != nil {
			return err
		}
		scaled := downsample(img, b.maxWidth)

		pal := image.NewPaletted(scaled.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pal, scaled.Bounds(), scaled, image.Point{})

		anim.Image = append(anim.Image, pal)
		anim.Delay = append(anim.Delay, b.delay)
	}

	if err := gif.EncodeAll(w, anim); err != nil {
		return fmt.Errorf("gifenc: encode failed: %w", err)
	}

	slog.Info("gifenc: animation encoded",
		"frames", count,
		"delay_cs", b.delay,
		"elapsed", time.Since(began),
	)
	return nil
}

// downsample scales the image down to maxWidth preserving aspect ratio.
// Images at or below the limit pass through untouched.
func downsample(img *image.RGBA, maxWidth int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth {
		return img
	}
	ratio := float64(maxWidth) / float64(bounds.Dx())
	h := int(float64(bounds.Dy()) * ratio)
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}
