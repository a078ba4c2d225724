package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// GrabImage samples the region once, for the screenshot path. Validates the
// region before touching the platform.
func GrabImage(region Region) (*image.RGBA, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}

	rect := region.Rect()
	if region.DisplayID >= 0 && region.DisplayID < screenshot.NumActiveDisplays() {
		rect = rect.Add(screenshot.GetDisplayBounds(region.DisplayID).Min)
	}

	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, fmt.Errorf("capture: screenshot failed (%v): %w", err, ErrProducerUnavailable)
	}
	if img == nil || len(img.Pix) == 0 {
		return nil, fmt.Errorf("capture: screenshot returned empty image: %w", ErrProducerUnavailable)
	}
	return img, nil
}
