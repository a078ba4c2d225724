package session

import (
	"errors"

	"github.com/tobitege/tiny-clips-mac/internal/capture"
	"github.com/tobitege/tiny-clips-mac/internal/mux"
)

// User-facing error taxonomy. Producer- and writer-level faults are caught
// at the session boundary and translated into these; nothing below the
// session throws directly to the caller. Match with errors.Is.
var (
	// ErrRegionInvalid reports a non-positive capture region; rejected
	// before any resource is allocated.
	ErrRegionInvalid = capture.ErrRegionInvalid

	// ErrAlreadyActive reports a second session start while one is live.
	// The existing session is unaffected.
	ErrAlreadyActive = errors.New("a recording is already active")

	// ErrProducerUnavailable reports permission denied or device busy at
	// start; every allocated resource has been released.
	ErrProducerUnavailable = capture.ErrProducerUnavailable

	// ErrNoFramesCaptured reports that stop was reached with zero accepted
	// video units (or zero buffered GIF frames). No artifact exists.
	ErrNoFramesCaptured = errors.New("no frames captured")

	// ErrWriterFailed reports a container-writer failure at finalize. The
	// partial file has been deleted.
	ErrWriterFailed = mux.ErrWriterFailed
)
