package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/tobitege/tiny-clips-mac/internal/capture/gstpipe"
)

// StreamProducer implements Producer with a continuous platform stream
// (push model). The platform pipeline delivers frames as they become
// available, naturally rate-limited at the source by videorate.
type StreamProducer struct {
	// Configuration
	region    Region
	targetFPS float64

	// Pipeline
	elements *gstpipe.Elements

	// Frame output
	frames chan Frame
	mu     sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	counters  counters
	cbFrames  uint64 // atomic, written by the appsink callback
	cbBytes   uint64
	cbDropped uint64
	started   time.Time

	framesClosed atomic.Bool
}

// NewStreamProducer creates a push-model producer with fail-fast validation.
//
// Returns an error if the region is invalid, FPS is out of range, or
// GStreamer is not available.
func NewStreamProducer(region Region, targetFPS float64) (*StreamProducer, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if targetFPS < 1 || targetFPS > 60 {
		return nil, fmt.Errorf("capture: invalid FPS %.1f (must be 1-60)", targetFPS)
	}
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available (%v): %w", err, ErrProducerUnavailable)
	}

	s := &StreamProducer{
		region:    region,
		targetFPS: targetFPS,
		frames:    make(chan Frame, frameChanDepth),
	}

	slog.Info("capture: stream producer created",
		"region", region.String(),
		"target_fps", targetFPS,
	)
	return s, nil
}

// Start creates the capture pipeline and begins frame delivery.
//
// This method:
//  1. Creates the GStreamer screen-capture pipeline
//  2. Wires appsink callbacks into an internal channel
//  3. Starts the pipeline and waits for it to reach PLAYING
//  4. Launches the converter and bus-monitor goroutines
//
// Frames arrive asynchronously on the returned channel; the first one is
// the session's time-zero.
func (s *StreamProducer) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil, fmt.Errorf("capture: stream producer already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = time.Now()

	width, height := s.region.PixelSize()
	elements, err := gstpipe.CreateVideoPipeline(gstpipe.VideoConfig{
		OriginX:   s.region.OriginX,
		OriginY:   s.region.OriginY,
		Width:     width,
		Height:    height,
		DisplayID: s.region.DisplayID,
		TargetFPS: s.targetFPS,
	})
	if err != nil {
		s.cancel = nil
		s.ctx = nil
		return nil, fmt.Errorf("capture: failed to create pipeline (%v): %w", err, ErrProducerUnavailable)
	}
	s.elements = elements

	internal := make(chan gstpipe.VideoSample, frameChanDepth)
	callbackCtx := &gstpipe.VideoCallbackContext{
		SampleChan:    internal,
		FrameCounter:  &s.cbFrames,
		BytesRead:     &s.cbBytes,
		FramesDropped: &s.cbDropped,
		Width:         width,
		Height:        height,
	}

	s.elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewVideoSample(sink, callbackCtx)
		},
	})

	// Converter goroutine: internal samples → public frames, latest-wins.
	localCtx := s.ctx
	convDone := make(chan struct{})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(convDone)
		for {
			select {
			case <-localCtx.Done():
				return
			case vs := <-internal:
				frame := Frame{
					Seq:       vs.Seq,
					Timestamp: vs.Timestamp,
					Width:     vs.Width,
					Height:    vs.Height,
					Data:      vs.Data,
					TraceID:   vs.TraceID,
				}
				s.counters.recordDelivery(len(frame.Data))
				if evicted := sendLatest(s.frames, frame); evicted > 0 {
					s.counters.recordDrop()
					slog.Debug("capture: evicted pending frame, consumer slow",
						"seq", frame.Seq,
						"trace_id", frame.TraceID,
					)
				}
			}
		}
	}()

	if err := s.elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("capture: failed to start pipeline (%v): %w", err, ErrProducerUnavailable)
	}

	s.wg.Add(1)
	go s.monitorBus(localCtx, s.cancel, convDone)

	slog.Info("capture: stream producer started",
		"region", s.region.String(),
		"note", "frames arrive asynchronously once pipeline reaches PLAYING",
	)
	return s.frames, nil
}

// monitorBus watches the pipeline bus for errors and EOS.
//
// Screen capture has no reconnect story: a pipeline error means the source
// is gone (display closed, permission revoked) and the recording must end.
// On a fatal message the converter is stopped and the frame channel closed;
// the session observes the close and fails the recording.
func (s *StreamProducer) monitorBus(ctx context.Context, cancel context.CancelFunc, convDone <-chan struct{}) {
	defer s.wg.Done()

	bus := s.elements.Pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				slog.Info("capture: end of stream received",
					"uptime", time.Since(s.started),
					"frames", atomic.LoadUint64(&s.cbFrames),
				)
				s.shutdownFrames(cancel, convDone)
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				category := gstpipe.Classify(gerr)
				slog.Error("capture: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"region", s.region.String(),
					"uptime", time.Since(s.started),
					"frames", atomic.LoadUint64(&s.cbFrames),
				)
				s.shutdownFrames(cancel, convDone)
				return
			}
		}
	}
}

// shutdownFrames stops the converter, then closes the public frame channel
// exactly once. The converter must be joined first: closing under a
// concurrent sendLatest would panic.
func (s *StreamProducer) shutdownFrames(cancel context.CancelFunc, convDone <-chan struct{}) {
	cancel()
	<-convDone
	if s.framesClosed.CompareAndSwap(false, true) {
		close(s.frames)
	}
}

// Stop shuts down the pipeline and closes the frame channel.
// Idempotent - safe to call multiple times.
func (s *StreamProducer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("capture: stop timeout exceeded, some goroutines may still be running")
	}

	if s.elements != nil {
		if err := gstpipe.Destroy(s.elements); err != nil {
			slog.Error("capture: failed to destroy pipeline", "error", err)
		}
		s.elements = nil
	}

	if s.framesClosed.CompareAndSwap(false, true) {
		close(s.frames)
	}

	stats := s.counters.snapshot(s.targetFPS, s.started)
	slog.Info("capture: stream producer stopped",
		"frames_captured", stats.Captured,
		"frames_dropped", stats.Dropped,
		"uptime", time.Since(s.started),
	)

	s.cancel = nil
	s.ctx = nil
	return nil
}

// Stats returns a snapshot of capture counters. Thread-safe.
func (s *StreamProducer) Stats() Stats {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return s.counters.snapshot(s.targetFPS, started)
}

// checkGStreamerAvailable verifies GStreamer works at construction time
// (fail-fast).
func checkGStreamerAvailable() error {
	gst.Init(nil)
	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}
