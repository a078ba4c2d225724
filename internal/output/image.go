package output

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"

	xdraw "golang.org/x/image/draw"
)

// ImageFormat selects the still-image encoder.
type ImageFormat string

const (
	// FormatPNG encodes lossless PNG.
	FormatPNG ImageFormat = "png"
	// FormatJPEG encodes JPEG at a configurable quality.
	FormatJPEG ImageFormat = "jpeg"
)

// ImageOptions configures SaveImage.
type ImageOptions struct {
	// Format selects PNG or JPEG.
	Format ImageFormat
	// Quality applies to JPEG only, range 0.1-1.0.
	Quality float64
	// ScalePercent resizes the output: 25, 50, 75 or 100.
	ScalePercent int
}

// SaveImage encodes img to path in the requested format and scale.
//
// Scaling uses Catmull-Rom interpolation; the file is written atomically
// enough for a screenshot (create, encode, close; removed on encode error).
func SaveImage(img *image.RGBA, path string, opts ImageOptions) error {
	if img == nil || len(img.Pix) == 0 {
		return fmt.Errorf("output: refusing to save empty image")
	}

	out := scaleImage(img, opts.ScalePercent)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: cannot create %s (%v): %w", path, err, ErrIO)
	}

	switch opts.Format {
	case FormatJPEG:
		q := opts.Quality
		if q < 0.1 {
			q = 0.1
		}
		if q > 1.0 {
			q = 1.0
		}
		err = jpeg.Encode(f, out, &jpeg.Options{Quality: int(q * 100)})
	default:
		err = png.Encode(f, out)
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("output: failed to encode %s: %w", path, err)
	}

	slog.Info("output: image saved",
		"path", path,
		"format", string(opts.Format),
		"scale_percent", opts.ScalePercent,
	)
	return nil
}

// scaleImage resizes by the given percentage (25/50/75); 100 or out-of-range
// values pass the image through untouched.
func scaleImage(img *image.RGBA, percent int) image.Image {
	switch percent {
	case 25, 50, 75:
	default:
		return img
	}
	bounds := img.Bounds()
	w := bounds.Dx() * percent / 100
	h := bounds.Dy() * percent / 100
	if w < 1 || h < 1 {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)
	return dst
}
