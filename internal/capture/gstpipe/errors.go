package gstpipe

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies GStreamer errors for telemetry and for mapping
// onto the session error taxonomy.
type ErrorCategory int

const (
	// ErrCategoryPermission indicates capture access was denied (screen
	// recording permission revoked, audio device access forbidden).
	ErrCategoryPermission ErrorCategory = iota
	// ErrCategoryDevice indicates the source device is busy or missing.
	ErrCategoryDevice
	// ErrCategoryFormat indicates caps negotiation or encode failures.
	ErrCategoryFormat
	// ErrCategoryUnknown indicates unclassified errors.
	ErrCategoryUnknown
)

// String returns a human-readable name for the category.
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryPermission:
		return "permission"
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	default:
		return "unknown"
	}
}

// Classify analyzes a GStreamer error and categorizes it.
//
// Permission and device errors both map to "producer unavailable" at the
// session boundary; format errors indicate a pipeline misconfiguration.
// go-gst's GError does not expose Domain(), so classification relies on
// message heuristics, same limitation as upstream.
func Classify(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyText(gerr.Error(), gerr.DebugString())
}

// classifyText applies the keyword heuristics to an error message and its
// debug string.
func classifyText(message, debug string) ErrorCategory {
	combined := strings.ToLower(message) + " " + strings.ToLower(debug)

	for _, kw := range permissionKeywords {
		if strings.Contains(combined, kw) {
			return ErrCategoryPermission
		}
	}
	for _, kw := range deviceKeywords {
		if strings.Contains(combined, kw) {
			return ErrCategoryDevice
		}
	}
	for _, kw := range formatKeywords {
		if strings.Contains(combined, kw) {
			return ErrCategoryFormat
		}
	}
	return ErrCategoryUnknown
}

var permissionKeywords = []string{
	"permission",
	"denied",
	"forbidden",
	"not authorized",
	"access",
}

var deviceKeywords = []string{
	"device",
	"busy",
	"resource",
	"no such",
	"not found",
	"could not open",
	"failed to connect",
	"display",
}

var formatKeywords = []string{
	"caps",
	"negotiated",
	"negotiation",
	"format",
	"encode",
	"decode",
	"missing plugin",
	"no element",
}
