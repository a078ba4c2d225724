package config

import "testing"

func validSettings() Settings {
	return Settings{
		VideoFPS:          30,
		GifFPS:            10,
		GifMaxWidth:       960,
		CountdownSeconds:  3,
		SaveDir:           "/tmp/clips",
		ImageFormat:       "png",
		ImageQuality:      0.9,
		ImageScalePercent: 100,
	}
}

func TestClampedPassesValidValues(t *testing.T) {
	s := validSettings()
	if got := s.Clamped(); got != s {
		t.Errorf("Valid settings changed by Clamped: %+v vs %+v", got, s)
	}
}

func TestClampedVideoFPS(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{24, 24},
		{30, 30},
		{60, 60},
		{0, 30},
		{25, 30},
		{120, 30},
		{-1, 30},
	}

	for _, tt := range tests {
		s := validSettings()
		s.VideoFPS = tt.in
		if got := s.Clamped().VideoFPS; got != tt.want {
			t.Errorf("VideoFPS %d clamped to %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampedGifFields(t *testing.T) {
	s := validSettings()
	s.GifFPS = 4
	s.GifMaxWidth = 100
	c := s.Clamped()
	if c.GifFPS != 10 {
		t.Errorf("GifFPS 4 clamped to %d, want 10", c.GifFPS)
	}
	if c.GifMaxWidth != 960 {
		t.Errorf("GifMaxWidth 100 clamped to %d, want 960", c.GifMaxWidth)
	}

	s = validSettings()
	s.GifFPS = 30
	s.GifMaxWidth = 1920
	c = s.Clamped()
	if c.GifFPS != 30 || c.GifMaxWidth != 1920 {
		t.Errorf("Boundary values should survive: got fps=%d width=%d", c.GifFPS, c.GifMaxWidth)
	}
}

func TestClampedImageFields(t *testing.T) {
	s := validSettings()
	s.ImageFormat = "webp"
	s.ImageQuality = 1.5
	s.ImageScalePercent = 33
	c := s.Clamped()

	if c.ImageFormat != "png" {
		t.Errorf("Unknown format clamped to %q, want png", c.ImageFormat)
	}
	if c.ImageQuality != 0.9 {
		t.Errorf("Quality 1.5 clamped to %v, want 0.9", c.ImageQuality)
	}
	if c.ImageScalePercent != 100 {
		t.Errorf("Scale 33 clamped to %d, want 100", c.ImageScalePercent)
	}
}

func TestClampedCountdownAndSaveDir(t *testing.T) {
	s := validSettings()
	s.CountdownSeconds = 0
	s.SaveDir = ""
	c := s.Clamped()

	if c.CountdownSeconds != 3 {
		t.Errorf("CountdownSeconds 0 clamped to %d, want 3", c.CountdownSeconds)
	}
	if c.SaveDir == "" {
		t.Error("Empty SaveDir should fall back to the default")
	}
}
