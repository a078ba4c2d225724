package capture

import (
	"fmt"
	"image"
)

// Region describes the rectangular screen area to capture.
//
// A Region is produced by the external region selector and is immutable once
// a session starts: every producer receives its own copy by value.
type Region struct {
	// OriginX and OriginY are the top-left corner in display coordinates.
	OriginX int
	// OriginY is the top-left Y coordinate.
	OriginY int
	// Width in pixels (must be > 0).
	Width int
	// Height in pixels (must be > 0).
	Height int
	// DisplayID identifies the target display/monitor.
	DisplayID int
	// PixelScale is the backing-store scale factor (1.0 on standard DPI).
	PixelScale float64
}

// Validate checks the region invariants (fail-fast, before any resource
// is allocated).
//
// Returns ErrRegionInvalid if width or height is non-positive.
func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("capture: invalid region %dx%d (width and height must be > 0): %w",
			r.Width, r.Height, ErrRegionInvalid)
	}
	return nil
}

// Rect returns the region as an image.Rectangle in display coordinates.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.OriginX, r.OriginY, r.OriginX+r.Width, r.OriginY+r.Height)
}

// PixelSize returns the capture size in physical pixels, honoring the
// display scale factor.
func (r Region) PixelSize() (width, height int) {
	scale := r.PixelScale
	if scale <= 0 {
		scale = 1.0
	}
	return int(float64(r.Width) * scale), int(float64(r.Height) * scale)
}

// String returns a compact human-readable form, e.g. "800x600+10+20@1".
func (r Region) String() string {
	return fmt.Sprintf("%dx%d+%d+%d@%d", r.Width, r.Height, r.OriginX, r.OriginY, r.DisplayID)
}
