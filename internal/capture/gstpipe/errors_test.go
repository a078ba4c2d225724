package gstpipe

import "testing"

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name    string
		message string
		debug   string
		want    ErrorCategory
	}{
		{"permission denied", "Permission denied", "", ErrCategoryPermission},
		{"access forbidden", "could not capture", "access forbidden by policy", ErrCategoryPermission},
		{"device busy", "Device '/dev/video0' is busy", "", ErrCategoryDevice},
		{"display gone", "Could not open display :0", "", ErrCategoryDevice},
		{"caps negotiation", "Internal data stream error", "streaming stopped, reason not-negotiated", ErrCategoryFormat},
		{"missing plugin", "Your GStreamer installation is missing a plug-in", "missing plugin for encoding", ErrCategoryFormat},
		{"unclassified", "something odd happened", "", ErrCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyText(tt.message, tt.debug); got != tt.want {
				t.Errorf("classifyText(%q, %q) = %s, want %s", tt.message, tt.debug, got, tt.want)
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if got := Classify(nil); got != ErrCategoryUnknown {
		t.Errorf("Classify(nil) = %s, want unknown", got)
	}
}

func TestErrorCategoryString(t *testing.T) {
	tests := []struct {
		cat  ErrorCategory
		want string
	}{
		{ErrCategoryPermission, "permission"},
		{ErrCategoryDevice, "device"},
		{ErrCategoryFormat, "format"},
		{ErrCategoryUnknown, "unknown"},
	}

	for _, tt := range tests {
		if got := tt.cat.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
