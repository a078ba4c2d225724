package capture

import "errors"

// Sentinel errors surfaced by producers. The session layer translates these
// into its user-facing taxonomy; callers match with errors.Is.
var (
	// ErrRegionInvalid reports a region with non-positive width or height.
	ErrRegionInvalid = errors.New("region invalid")

	// ErrProducerUnavailable reports that a capture source could not start:
	// permission revoked, device busy, or the platform pipeline refused to
	// reach its playing state.
	ErrProducerUnavailable = errors.New("producer unavailable")
)
