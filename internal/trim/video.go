package trim

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/tobitege/tiny-clips-mac/internal/output"
)

// VideoExporter re-encodes a time range of a finished MP4 into a new file.
//
// Pipeline structure:
//
//	uridecodebin ─(video pad)→ videoconvert → x264enc → h264parse ┐
//	             ─(audio pad)→ audioconvert → avenc_aac → aacparse ┼→ mp4mux → filesink
//
// The range is selected with a flushing, accurate segment seek on the
// prerolled pipeline, so the cut is frame-accurate rather than snapped to
// the nearest keyframe.
type VideoExporter struct{}

// NewVideoExporter creates an exporter, verifying GStreamer availability
// (fail-fast).
func NewVideoExporter() (*VideoExporter, error) {
	gst.Init(nil)
	elem, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("trim: GStreamer not available: %w", err)
	}
	elem.SetState(gst.StateNull)
	return &VideoExporter{}, nil
}

// Export writes the [r.Start, r.End) range of src to a new
// "<name> (trimmed).mp4" and deletes src only after the replacement
// succeeds. Returns the new path.
//
// The range is validated against the probed source duration; an inverted
// or out-of-bounds range fails with ErrRangeInvalid and src is untouched.
func (e *VideoExporter) Export(ctx context.Context, src string, r Range) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("trim: cannot read source %s (%v): %w", src, err, output.ErrIO)
	}
	if r.Start < 0 || r.Start >= r.End {
		return "", fmt.Errorf("trim: range [%s,%s) is inverted: %w", r.Start, r.End, ErrRangeInvalid)
	}

	dest := output.TrimmedPath(src)
	p, err := buildExportPipeline(src, dest)
	if err != nil {
		return "", err
	}
	defer p.destroy()

	// Preroll in PAUSED so duration and seeking are available.
	if err := p.pipeline.SetState(gst.StatePaused); err != nil {
		return "", fmt.Errorf("trim: failed to preroll: %w", err)
	}
	if err := p.awaitPreroll(ctx); err != nil {
		os.Remove(dest)
		return "", err
	}

	duration, err := p.queryDuration()
	if err != nil {
		os.Remove(dest)
		return "", err
	}
	if err := r.Validate(duration); err != nil {
		os.Remove(dest)
		return "", err
	}

	if ok := p.pipeline.Seek(
		1.0,
		gst.FormatTime,
		gst.SeekFlagFlush|gst.SeekFlagAccurate,
		gst.SeekTypeSet, int64(r.Start),
		gst.SeekTypeSet, int64(r.End),
	); !ok {
		os.Remove(dest)
		return "", fmt.Errorf("trim: segment seek rejected for [%s,%s)", r.Start, r.End)
	}

	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("trim: failed to start export: %w", err)
	}
	if err := p.awaitEOS(ctx); err != nil {
		os.Remove(dest)
		return "", err
	}

	// Replacement succeeded: the untrimmed raw file is disposable now.
	if err := os.Remove(src); err != nil {
		slog.Warn("trim: failed to delete source after trim", "path", src, "error", err)
	}

	slog.Info("trim: video exported",
		"src", src,
		"dest", dest,
		"range", fmt.Sprintf("[%s,%s)", r.Start, r.End),
	)
	return dest, nil
}

// exportPipeline holds the trim pipeline and its linked state.
type exportPipeline struct {
	pipeline *gst.Pipeline
}

// buildExportPipeline assembles the decode → re-encode → mux graph.
func buildExportPipeline(src, dest string) (*exportPipeline, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create pipeline: %w", err)
	}

	decode, err := gst.NewElement("uridecodebin")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create uridecodebin: %w", err)
	}
	decode.SetProperty("uri", fileURI(src))

	muxer, err := gst.NewElement("mp4mux")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create mp4mux: %w", err)
	}

	sink, err := gst.NewElement("filesink")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create filesink: %w", err)
	}
	sink.SetProperty("location", dest)

	videoConvert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create videoconvert: %w", err)
	}
	videoEnc, err := gst.NewElement("x264enc")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create x264enc: %w", err)
	}
	videoEnc.SetProperty("speed-preset", "veryfast")
	videoParse, err := gst.NewElement("h264parse")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create h264parse: %w", err)
	}

	audioConvert, err := gst.NewElement("audioconvert")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create audioconvert: %w", err)
	}
	audioResample, err := gst.NewElement("audioresample")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create audioresample: %w", err)
	}
	audioEnc, err := gst.NewElement("avenc_aac")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create avenc_aac: %w", err)
	}
	audioParse, err := gst.NewElement("aacparse")
	if err != nil {
		return nil, fmt.Errorf("trim: failed to create aacparse: %w", err)
	}

	pipeline.AddMany(decode, videoConvert, videoEnc, videoParse,
		audioConvert, audioResample, audioEnc, audioParse, muxer, sink)

	if err := gst.ElementLinkMany(videoConvert, videoEnc, videoParse, muxer); err != nil {
		return nil, fmt.Errorf("trim: failed to link video branch: %w", err)
	}
	if err := gst.ElementLinkMany(audioConvert, audioResample, audioEnc, audioParse, muxer); err != nil {
		return nil, fmt.Errorf("trim: failed to link audio branch: %w", err)
	}
	if err := muxer.Link(sink); err != nil {
		return nil, fmt.Errorf("trim: failed to link muxer to sink: %w", err)
	}

	// uridecodebin exposes pads only once the source is parsed; route each
	// by media type. A source with no audio track simply never fires the
	// audio branch.
	decode.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		caps := srcPad.GetCurrentCaps()
		if caps == nil {
			return
		}
		name := caps.GetStructureAt(0).Name()

		var target *gst.Element
		switch {
		case strings.HasPrefix(name, "video/"):
			target = videoConvert
		case strings.HasPrefix(name, "audio/"):
			target = audioConvert
		default:
			return
		}

		sinkPad := target.GetStaticPad("sink")
		if sinkPad == nil || sinkPad.IsLinked() {
			return
		}
		if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
			slog.Error("trim: failed to link decoded pad",
				"media", name,
				"ret", ret,
			)
		}
	})

	return &exportPipeline{pipeline: pipeline}, nil
}

// awaitPreroll waits for the pipeline to finish its async transition to
// PAUSED.
func (p *exportPipeline) awaitPreroll(ctx context.Context) error {
	bus := p.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("trim: cancelled during preroll: %w", ctx.Err())
		default:
		}
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageAsyncDone:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("trim: preroll failed: %s", gerr.Error())
		}
	}
}

// awaitEOS waits for the export to drain to the muxer.
func (p *exportPipeline) awaitEOS(ctx context.Context) error {
	bus := p.pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("trim: cancelled during export: %w", ctx.Err())
		default:
		}
		msg := bus.TimedPop(100 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("trim: export failed: %s", gerr.Error())
		}
	}
}

// queryDuration reads the prerolled source duration.
func (p *exportPipeline) queryDuration() (time.Duration, error) {
	duration, ok := p.pipeline.QueryDuration(gst.FormatTime)
	if !ok || duration <= 0 {
		return 0, fmt.Errorf("trim: source duration unavailable")
	}
	return time.Duration(duration), nil
}

// destroy tears the pipeline down.
func (p *exportPipeline) destroy() {
	if p.pipeline != nil {
		p.pipeline.SetState(gst.StateNull)
		p.pipeline = nil
	}
}

// fileURI converts a path to the file:// form uridecodebin expects.
func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + (&url.URL{Path: abs}).EscapedPath()
}
