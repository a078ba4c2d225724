package mux

import "errors"

// Sentinel errors surfaced by the writer. The session layer translates
// these into its user-facing taxonomy.
var (
	// ErrWriterFailed reports that the underlying container writer failed
	// at finalize. The partial file has already been deleted.
	ErrWriterFailed = errors.New("writer failed")

	// ErrNoUnits reports that finalize was reached with zero accepted
	// video units; no artifact exists.
	ErrNoUnits = errors.New("no video units accepted")
)
