// Package gstpipe builds and drives the GStreamer pipelines behind the
// push-model producers: screen capture and the two audio taps.
package gstpipe

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// VideoConfig contains configuration for the screen-capture pipeline.
type VideoConfig struct {
	// OriginX/OriginY is the top-left corner in display coordinates.
	OriginX int
	OriginY int
	// Width/Height is the capture size in pixels.
	Width  int
	Height int
	// DisplayID selects the monitor for multi-head setups.
	DisplayID int
	// TargetFPS caps the delivery rate (videorate drops above it).
	TargetFPS float64
}

// AudioSource selects which audio device a pipeline taps.
type AudioSource int

const (
	// SourceSystem taps the system output mix (48 kHz stereo).
	SourceSystem AudioSource = iota
	// SourceMicrophone taps the default capture device (48 kHz mono).
	SourceMicrophone
)

// AudioConfig contains configuration for an audio-tap pipeline.
type AudioConfig struct {
	Source AudioSource
	// Device optionally pins a specific device (pulse source name).
	// Empty selects the platform default.
	Device string
}

// Elements holds references to pipeline elements needed for cleanup and
// callback wiring.
type Elements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
}

// CreateVideoPipeline creates the screen-capture pipeline.
//
// Pipeline structure:
//
//	ximagesrc → videoconvert → videorate → capsfilter(RGBA, framerate) → appsink
//
// The pipeline is configured but NOT started (state remains NULL). Caller
// must call pipeline.SetState(gst.StatePlaying) and wire appsink callbacks.
func CreateVideoPipeline(cfg VideoConfig) (*Elements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("ximagesrc")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create ximagesrc: %w", err)
	}
	// Crop to the capture region at the source, before any conversion.
	src.SetProperty("startx", cfg.OriginX)
	src.SetProperty("starty", cfg.OriginY)
	src.SetProperty("endx", cfg.OriginX+cfg.Width-1)
	src.SetProperty("endy", cfg.OriginY+cfg.Height-1)
	// Damage events deliver partial updates; a recorder wants whole frames.
	src.SetProperty("use-damage", false)
	src.SetProperty("show-pointer", true)
	if cfg.DisplayID > 0 {
		src.SetProperty("display-name", fmt.Sprintf(":%d", cfg.DisplayID))
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // auto-detect cores

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create videorate: %w", err)
	}
	videorate.SetProperty("drop-only", true)     // never duplicate frames
	videorate.SetProperty("skip-to-first", true) // no lead-in padding

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildVideoCaps(cfg)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // real-time, no clock sync
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)
	appsink.SetProperty("qos", true) // let upstream drop before conversion

	pipeline.AddMany(src, converter, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstpipe: failed to link capture pipeline: %w", err)
	}

	slog.Debug("gstpipe: capture pipeline created",
		"region", fmt.Sprintf("%dx%d+%d+%d", cfg.Width, cfg.Height, cfg.OriginX, cfg.OriginY),
		"target_fps", cfg.TargetFPS,
	)

	return &Elements{Pipeline: pipeline, AppSink: appsink}, nil
}

// CreateAudioPipeline creates an audio-tap pipeline.
//
// Pipeline structure:
//
//	pulsesrc → audioconvert → audioresample → capsfilter(S16LE 48k) → appsink
//
// System audio is declared 48 kHz stereo, microphone 48 kHz mono; mixing
// unlike sample rates or channel counts into one container is invalid, so
// both are normalized here rather than at mux time.
func CreateAudioPipeline(cfg AudioConfig) (*Elements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("pulsesrc")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create pulsesrc: %w", err)
	}
	if cfg.Device != "" {
		src.SetProperty("device", cfg.Device)
	}
	// Provide the clock the tap runs on; buffers carry device timestamps.
	src.SetProperty("provide-clock", true)

	converter, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create audioconvert: %w", err)
	}

	resampler, err := gst.NewElement("audioresample")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create audioresample: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildAudioCaps(cfg.Source)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("gstpipe: failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)

	pipeline.AddMany(src, converter, resampler, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, resampler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("gstpipe: failed to link audio pipeline: %w", err)
	}

	slog.Debug("gstpipe: audio pipeline created",
		"source", cfg.Source,
		"device", cfg.Device,
	)

	return &Elements{Pipeline: pipeline, AppSink: appsink}, nil
}

// Destroy sets the pipeline to NULL state and releases its resources.
// Safe to call on an already destroyed pipeline.
func Destroy(elements *Elements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("gstpipe: failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildVideoCaps builds the RGBA caps string with a framerate constraint.
//
// Format: "video/x-raw,format=RGBA,width=W,height=H,framerate=N/1"
func buildVideoCaps(cfg VideoConfig) string {
	fps := int(cfg.TargetFPS)
	if fps < 1 {
		fps = 1
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1",
		cfg.Width, cfg.Height, fps,
	)
}

// buildAudioCaps builds the PCM caps string for an audio source.
func buildAudioCaps(source AudioSource) string {
	channels := 2
	if source == SourceMicrophone {
		channels = 1
	}
	return fmt.Sprintf(
		"audio/x-raw,format=S16LE,rate=48000,channels=%d,layout=interleaved",
		channels,
	)
}

// String returns a human-readable name for the audio source.
func (s AudioSource) String() string {
	switch s {
	case SourceSystem:
		return "system"
	case SourceMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}
