package cmd

import (
	"testing"
	"time"
)

func TestParseRegion(t *testing.T) {
	r, err := parseRegion("100,200,800x600", 1, 2.0)
	if err != nil {
		t.Fatalf("parseRegion failed: %v", err)
	}
	if r.OriginX != 100 || r.OriginY != 200 || r.Width != 800 || r.Height != 600 {
		t.Errorf("parseRegion = %+v", r)
	}
	if r.DisplayID != 1 || r.PixelScale != 2.0 {
		t.Errorf("Display/scale not carried: %+v", r)
	}
}

func TestParseRegionErrors(t *testing.T) {
	tests := []string{
		"",
		"100,200",
		"100,200,800",
		"a,200,800x600",
		"100,b,800x600",
		"100,200,ax600",
		"100,200,800xb",
		"100,200,0x600", // invalid region, caught by Validate
	}

	for _, spec := range tests {
		if _, err := parseRegion(spec, 0, 1.0); err == nil {
			t.Errorf("parseRegion(%q) should fail", spec)
		}
	}
}

func TestParseTimeRange(t *testing.T) {
	r, err := parseTimeRange("1.5s-10s")
	if err != nil {
		t.Fatalf("parseTimeRange failed: %v", err)
	}
	if r.Start != 1500*time.Millisecond || r.End != 10*time.Second {
		t.Errorf("parseTimeRange = %+v", r)
	}

	for _, spec := range []string{"", "5s", "x-10s", "1s-y"} {
		if _, err := parseTimeRange(spec); err == nil {
			t.Errorf("parseTimeRange(%q) should fail", spec)
		}
	}
}

func TestParseFrameRange(t *testing.T) {
	start, end, err := parseFrameRange("5:15")
	if err != nil {
		t.Fatalf("parseFrameRange failed: %v", err)
	}
	if start != 5 || end != 15 {
		t.Errorf("parseFrameRange = %d,%d", start, end)
	}

	for _, spec := range []string{"", "5", "a:15", "5:b"} {
		if _, _, err := parseFrameRange(spec); err == nil {
			t.Errorf("parseFrameRange(%q) should fail", spec)
		}
	}
}
