package gstpipe

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// VideoSample is a minimal frame struct for internal use (avoids an import
// cycle; the parent package converts it to its public Frame type).
type VideoSample struct {
	Seq       uint64
	Timestamp time.Time
	Width     int
	Height    int
	Data      []byte
	TraceID   string
}

// AudioSample is the audio counterpart of VideoSample.
type AudioSample struct {
	Seq        uint64
	Timestamp  time.Time
	DevicePTS  time.Duration // raw device-clock timestamp from the buffer
	Samples    []byte
	SampleRate int
	Channels   int
}

// VideoCallbackContext holds state needed by the video appsink callback.
type VideoCallbackContext struct {
	SampleChan    chan<- VideoSample
	FrameCounter  *uint64 // atomic sequence counter
	BytesRead     *uint64 // atomic payload counter
	FramesDropped *uint64 // atomic drop counter (channel full)
	Width         int
	Height        int
}

// OnNewVideoSample is called by GStreamer when a new frame is available.
//
// This callback:
//  1. Pulls the sample from the appsink
//  2. Maps the buffer and copies pixel data (GStreamer reuses the buffer)
//  3. Stamps the frame with the host clock at delivery time
//  4. Sends it non-blocking - drops if the channel is full
//
// A corrupted or empty sample is skipped, never delivered: a single bad
// frame must not kill the recording.
func OnNewVideoSample(sink *app.Sink, ctx *VideoCallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstpipe: failed to pull video sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstpipe: video sample has no buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstpipe: empty video buffer received")
		return gst.FlowOK
	}

	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	seq := atomic.AddUint64(ctx.FrameCounter, 1)
	atomic.AddUint64(ctx.BytesRead, uint64(len(frameData)))

	vs := VideoSample{
		Seq:       seq,
		Timestamp: time.Now(),
		Width:     ctx.Width,
		Height:    ctx.Height,
		Data:      frameData,
		TraceID:   uuid.New().String(),
	}

	select {
	case ctx.SampleChan <- vs:
	default:
		atomic.AddUint64(ctx.FramesDropped, 1)
		slog.Debug("gstpipe: dropping frame, channel full",
			"seq", vs.Seq,
			"trace_id", vs.TraceID,
		)
	}

	return gst.FlowOK
}

// AudioCallbackContext holds state needed by the audio appsink callback.
type AudioCallbackContext struct {
	SampleChan    chan<- AudioSample
	ChunkCounter  *uint64
	BytesRead     *uint64
	ChunksDropped *uint64
	SampleRate    int
	Channels      int
}

// OnNewAudioSample is called by GStreamer when a new PCM chunk is available.
//
// The chunk carries two timestamps: the raw device-clock PTS from the
// buffer, and the host clock captured here at delivery time. The producer
// decides which clock domain wins (system audio shares the capture clock,
// the microphone is converted against the host reference).
func OnNewAudioSample(sink *app.Sink, ctx *AudioCallbackContext) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("gstpipe: failed to pull audio sample, skipping chunk")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("gstpipe: audio sample has no buffer, skipping chunk")
		return gst.FlowOK
	}

	devicePTS := buffer.PresentationTimestamp()

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("gstpipe: empty audio buffer received")
		return gst.FlowOK
	}

	samples := make([]byte, len(data))
	copy(samples, data)
	buffer.Unmap()

	seq := atomic.AddUint64(ctx.ChunkCounter, 1)
	atomic.AddUint64(ctx.BytesRead, uint64(len(samples)))

	as := AudioSample{
		Seq:        seq,
		Timestamp:  time.Now(),
		DevicePTS:  devicePTS,
		Samples:    samples,
		SampleRate: ctx.SampleRate,
		Channels:   ctx.Channels,
	}

	select {
	case ctx.SampleChan <- as:
	default:
		atomic.AddUint64(ctx.ChunksDropped, 1)
		slog.Debug("gstpipe: dropping audio chunk, channel full", "seq", as.Seq)
	}

	return gst.FlowOK
}
