// Package config loads user settings and snapshots them into an immutable
// value.
//
// A Settings value is read once when a session starts and never changes for
// that session's lifetime: mutating the config file (or viper state) mid-
// recording must not affect an in-flight capture.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings is the immutable per-session configuration snapshot.
type Settings struct {
	// VideoFPS is the video capture rate: 24, 30 or 60.
	VideoFPS int
	// GifFPS is the GIF capture rate: 5-30.
	GifFPS int
	// GifMaxWidth bounds the GIF output width: 320-1920 px.
	GifMaxWidth int
	// RecordSystemAudio enables the system-mix track.
	RecordSystemAudio bool
	// RecordMicrophone enables the microphone track.
	RecordMicrophone bool
	// CountdownEnabled delays capture start.
	CountdownEnabled bool
	// CountdownSeconds is the delay length.
	CountdownSeconds int
	// VideoTrimmerEnabled offers the trim step after video capture.
	VideoTrimmerEnabled bool
	// GifTrimmerEnabled offers the trim step after GIF capture.
	GifTrimmerEnabled bool
	// SaveDir is the artifact directory.
	SaveDir string
	// ImageFormat is "png" or "jpeg" for screenshots.
	ImageFormat string
	// ImageQuality applies to JPEG screenshots: 0.1-1.0.
	ImageQuality float64
	// ImageScalePercent resizes screenshots: 25, 50, 75 or 100.
	ImageScalePercent int
}

// SetDefaults registers defaults so settings resolve even without a config
// file.
func SetDefaults() {
	viper.SetDefault("video.fps", 30)
	viper.SetDefault("gif.fps", 10)
	viper.SetDefault("gif.max_width", 960)
	viper.SetDefault("audio.system", false)
	viper.SetDefault("audio.microphone", false)
	viper.SetDefault("countdown.enabled", false)
	viper.SetDefault("countdown.seconds", 3)
	viper.SetDefault("trimmer.video", true)
	viper.SetDefault("trimmer.gif", true)
	viper.SetDefault("save_dir", defaultSaveDir())
	viper.SetDefault("image.format", "png")
	viper.SetDefault("image.quality", 0.9)
	viper.SetDefault("image.scale_percent", 100)
}

// Init wires viper to the config file and environment. Called once from the
// CLI before any Load.
func Init(cfgFile string) {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TINYCLIPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing config file is fine: defaults apply.
	_ = viper.ReadInConfig()
}

// ConfigDir returns the per-user configuration directory.
func ConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tinyclips")
}

func defaultSaveDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Videos")
}

// Load snapshots the current settings, clamping out-of-range values with a
// warning rather than failing.
func Load() Settings {
	s := Settings{
		VideoFPS:            viper.GetInt("video.fps"),
		GifFPS:              viper.GetInt("gif.fps"),
		GifMaxWidth:         viper.GetInt("gif.max_width"),
		RecordSystemAudio:   viper.GetBool("audio.system"),
		RecordMicrophone:    viper.GetBool("audio.microphone"),
		CountdownEnabled:    viper.GetBool("countdown.enabled"),
		CountdownSeconds:    viper.GetInt("countdown.seconds"),
		VideoTrimmerEnabled: viper.GetBool("trimmer.video"),
		GifTrimmerEnabled:   viper.GetBool("trimmer.gif"),
		SaveDir:             viper.GetString("save_dir"),
		ImageFormat:         viper.GetString("image.format"),
		ImageQuality:        viper.GetFloat64("image.quality"),
		ImageScalePercent:   viper.GetInt("image.scale_percent"),
	}
	return s.Clamped()
}

// Clamped returns a copy with every field forced into its valid range.
func (s Settings) Clamped() Settings {
	switch s.VideoFPS {
	case 24, 30, 60:
	default:
		clampWarn("video.fps", s.VideoFPS, 30)
		s.VideoFPS = 30
	}

	if s.GifFPS < 5 || s.GifFPS > 30 {
		clampWarn("gif.fps", s.GifFPS, 10)
		s.GifFPS = 10
	}

	if s.GifMaxWidth < 320 || s.GifMaxWidth > 1920 {
		clampWarn("gif.max_width", s.GifMaxWidth, 960)
		s.GifMaxWidth = 960
	}

	if s.CountdownSeconds < 1 || s.CountdownSeconds > 10 {
		clampWarn("countdown.seconds", s.CountdownSeconds, 3)
		s.CountdownSeconds = 3
	}

	if s.ImageFormat != "png" && s.ImageFormat != "jpeg" {
		slog.Warn("config: unknown image format, using png", "value", s.ImageFormat)
		s.ImageFormat = "png"
	}

	if s.ImageQuality < 0.1 || s.ImageQuality > 1.0 {
		slog.Warn("config: image quality out of range, using 0.9", "value", s.ImageQuality)
		s.ImageQuality = 0.9
	}

	switch s.ImageScalePercent {
	case 25, 50, 75, 100:
	default:
		clampWarn("image.scale_percent", s.ImageScalePercent, 100)
		s.ImageScalePercent = 100
	}

	if s.SaveDir == "" {
		s.SaveDir = defaultSaveDir()
	}
	return s
}

func clampWarn(key string, got, used int) {
	slog.Warn("config: value out of range, clamped",
		"key", key,
		"value", got,
		"using", used,
	)
}
