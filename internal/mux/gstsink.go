package mux

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// GstBackend writes an MP4 container (H.264 video, AAC audio at 128 kbps)
// through a GStreamer pipeline:
//
//	appsrc(RGBA)  → videoconvert → x264enc → h264parse  ┐
//	appsrc(S16LE) → audioconvert → avenc_aac → aacparse ┼→ mp4mux → filesink
//	appsrc(S16LE) → audioconvert → avenc_aac → aacparse ┘
//
// Only the writer's serial loop calls into a backend, so no locking here.
type GstBackend struct {
	pipeline *gst.Pipeline
	videoSrc *app.Source
	audioSrc map[TrackKind]*app.Source
	cfg      ContainerConfig
}

const aacBitrate = 128000

// NewGstBackend creates an MP4 backend. The pipeline is built at Open time.
func NewGstBackend() *GstBackend {
	return &GstBackend{audioSrc: make(map[TrackKind]*app.Source)}
}

// Open builds and starts the mux pipeline writing to path.
func (b *GstBackend) Open(path string, cfg ContainerConfig) error {
	gst.Init(nil)
	b.cfg = cfg

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create pipeline: %w", err)
	}
	b.pipeline = pipeline

	muxer, err := gst.NewElement("mp4mux")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create mp4mux: %w", err)
	}
	// Periodic moov updates keep a crash from losing the whole recording.
	muxer.SetProperty("fragment-duration", 1000)

	sink, err := gst.NewElement("filesink")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create filesink: %w", err)
	}
	sink.SetProperty("location", path)

	pipeline.AddMany(muxer, sink)
	if err := muxer.Link(sink); err != nil {
		return fmt.Errorf("gst mux: failed to link muxer to sink: %w", err)
	}

	if err := b.buildVideoBranch(muxer); err != nil {
		return err
	}
	if cfg.SystemAudio {
		if err := b.buildAudioBranch(muxer, TrackSystemAudio, 2); err != nil {
			return err
		}
	}
	if cfg.Microphone {
		if err := b.buildAudioBranch(muxer, TrackMicrophone, 1); err != nil {
			return err
		}
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("gst mux: failed to start pipeline: %w", err)
	}

	slog.Debug("gst mux: pipeline started",
		"path", path,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"system_audio", cfg.SystemAudio,
		"microphone", cfg.Microphone,
	)
	return nil
}

// buildVideoBranch wires appsrc → videoconvert → x264enc → h264parse → mux.
func (b *GstBackend) buildVideoBranch(muxer *gst.Element) error {
	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("gst mux: failed to create video appsrc: %w", err)
	}
	fps := int(b.cfg.FPS)
	if fps < 1 {
		fps = 1
	}
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1",
		b.cfg.Width, b.cfg.Height, fps)
	src.SetProperty("caps", gst.NewCapsFromString(caps))
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", false) // units carry their own PTS

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create videoconvert: %w", err)
	}

	encoder, err := gst.NewElement("x264enc")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create x264enc: %w", err)
	}
	// Live capture: encode as it arrives, no lookahead latency.
	encoder.SetProperty("tune", "zerolatency")
	encoder.SetProperty("speed-preset", "veryfast")
	encoder.SetProperty("key-int-max", fps*2)

	parser, err := gst.NewElement("h264parse")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create h264parse: %w", err)
	}

	b.pipeline.AddMany(src.Element, converter, encoder, parser)
	if err := gst.ElementLinkMany(src.Element, converter, encoder, parser, muxer); err != nil {
		return fmt.Errorf("gst mux: failed to link video branch: %w", err)
	}

	b.videoSrc = src
	return nil
}

// buildAudioBranch wires appsrc → audioconvert → avenc_aac → aacparse → mux.
func (b *GstBackend) buildAudioBranch(muxer *gst.Element, kind TrackKind, channels int) error {
	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("gst mux: failed to create %s appsrc: %w", kind.String(), err)
	}
	caps := fmt.Sprintf("audio/x-raw,format=S16LE,rate=48000,channels=%d,layout=interleaved", channels)
	src.SetProperty("caps", gst.NewCapsFromString(caps))
	src.SetProperty("format", int(gst.FormatTime))
	src.SetProperty("is-live", true)
	src.SetProperty("do-timestamp", false)

	converter, err := gst.NewElement("audioconvert")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create audioconvert: %w", err)
	}

	encoder, err := gst.NewElement("avenc_aac")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create avenc_aac: %w", err)
	}
	encoder.SetProperty("bitrate", aacBitrate)

	parser, err := gst.NewElement("aacparse")
	if err != nil {
		return fmt.Errorf("gst mux: failed to create aacparse: %w", err)
	}

	b.pipeline.AddMany(src.Element, converter, encoder, parser)
	if err := gst.ElementLinkMany(src.Element, converter, encoder, parser, muxer); err != nil {
		return fmt.Errorf("gst mux: failed to link %s branch: %w", kind.String(), err)
	}

	b.audioSrc[kind] = src
	return nil
}

// AppendVideo pushes one raw frame into the video branch.
func (b *GstBackend) AppendVideo(pts, duration time.Duration, data []byte) error {
	if b.videoSrc == nil {
		return fmt.Errorf("gst mux: video branch not open")
	}
	return b.push(b.videoSrc, pts, duration, data)
}

// AppendAudio pushes one PCM chunk into an audio branch.
func (b *GstBackend) AppendAudio(kind TrackKind, pts time.Duration, data []byte) error {
	src, ok := b.audioSrc[kind]
	if !ok {
		return fmt.Errorf("gst mux: no %s track in container", kind.String())
	}
	return b.push(src, pts, 0, data)
}

func (b *GstBackend) push(src *app.Source, pts, duration time.Duration, data []byte) error {
	buffer := gst.NewBufferFromBytes(data)
	buffer.SetPresentationTimestamp(pts)
	if duration > 0 {
		buffer.SetDuration(duration)
	}
	if ret := src.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("gst mux: push rejected: %s", ret)
	}
	return nil
}

// Finalize sends EOS on every source, waits for the muxer to flush the
// container index, and tears the pipeline down.
//
// Success requires observing the pipeline-wide EOS message: that is the
// explicit "completed" status distinct from an error or a teardown race.
func (b *GstBackend) Finalize(ctx context.Context) error {
	if b.pipeline == nil {
		return fmt.Errorf("gst mux: pipeline not open")
	}

	if b.videoSrc != nil {
		b.videoSrc.EndStream()
	}
	for _, src := range b.audioSrc {
		src.EndStream()
	}

	bus := b.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			b.Abort()
			return fmt.Errorf("gst mux: finalize cancelled: %w", ctx.Err())
		default:
		}

		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if err := b.pipeline.SetState(gst.StateNull); err != nil {
				return fmt.Errorf("gst mux: failed to stop pipeline: %w", err)
			}
			b.pipeline = nil
			slog.Debug("gst mux: container flushed")
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			b.Abort()
			return fmt.Errorf("gst mux: pipeline error at finalize: %s", gerr.Error())
		}
	}
}

// Abort tears the pipeline down without flushing; the partial file is left
// for the writer to delete.
func (b *GstBackend) Abort() {
	if b.pipeline == nil {
		return
	}
	if err := b.pipeline.SetState(gst.StateNull); err != nil {
		slog.Warn("gst mux: failed to stop pipeline on abort", "error", err)
	}
	b.pipeline = nil
}
