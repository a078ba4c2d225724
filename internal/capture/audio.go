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

// GstAudioProducer implements AudioProducer over a GStreamer audio tap.
//
// Two clock policies, selected by the source:
//   - system audio rides the same capture clock as video: chunks keep the
//     host timestamp taken at delivery, no conversion needed;
//   - microphone buffers carry a device-clock PTS that is converted to the
//     host clock against a reference captured at first delivery, falling
//     back to wall-clock now when the device PTS is unusable.
type GstAudioProducer struct {
	// Configuration
	source gstpipe.AudioSource
	device string

	// Pipeline
	elements *gstpipe.Elements

	// Chunk output
	chunks chan AudioChunk
	mu     sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	counters  counters
	cbChunks  uint64
	cbBytes   uint64
	cbDropped uint64
	started   time.Time

	chunksClosed atomic.Bool
}

// NewSystemAudioProducer creates a producer tapping the system output mix
// (48 kHz stereo).
func NewSystemAudioProducer(device string) (*GstAudioProducer, error) {
	return newAudioProducer(gstpipe.SourceSystem, device)
}

// NewMicProducer creates a producer tapping the default (or named) capture
// device (48 kHz mono).
func NewMicProducer(device string) (*GstAudioProducer, error) {
	return newAudioProducer(gstpipe.SourceMicrophone, device)
}

func newAudioProducer(source gstpipe.AudioSource, device string) (*GstAudioProducer, error) {
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("capture: GStreamer not available (%v): %w", err, ErrProducerUnavailable)
	}

	p := &GstAudioProducer{
		source: source,
		device: device,
		chunks: make(chan AudioChunk, frameChanDepth),
	}

	slog.Info("capture: audio producer created",
		"source", source.String(),
		"device", device,
	)
	return p, nil
}

// Start creates the audio pipeline and begins chunk delivery.
func (p *GstAudioProducer) Start(ctx context.Context) (<-chan AudioChunk, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil, fmt.Errorf("capture: audio producer already started")
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = time.Now()

	elements, err := gstpipe.CreateAudioPipeline(gstpipe.AudioConfig{
		Source: p.source,
		Device: p.device,
	})
	if err != nil {
		p.cancel = nil
		p.ctx = nil
		return nil, fmt.Errorf("capture: failed to create audio pipeline (%v): %w", err, ErrProducerUnavailable)
	}
	p.elements = elements

	sampleRate, channels := 48000, 2
	if p.source == gstpipe.SourceMicrophone {
		channels = 1
	}

	internal := make(chan gstpipe.AudioSample, frameChanDepth)
	callbackCtx := &gstpipe.AudioCallbackContext{
		SampleChan:    internal,
		ChunkCounter:  &p.cbChunks,
		BytesRead:     &p.cbBytes,
		ChunksDropped: &p.cbDropped,
		SampleRate:    sampleRate,
		Channels:      channels,
	}

	p.elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return gstpipe.OnNewAudioSample(sink, callbackCtx)
		},
	})

	localCtx := p.ctx
	p.wg.Add(1)
	go p.convertLoop(localCtx, internal)

	if err := p.elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("capture: failed to start audio pipeline (%v): %w", err, ErrProducerUnavailable)
	}

	slog.Info("capture: audio producer started", "source", p.source.String())
	return p.chunks, nil
}

// convertLoop turns internal samples into public chunks, applying the clock
// policy for the source.
func (p *GstAudioProducer) convertLoop(ctx context.Context, internal <-chan gstpipe.AudioSample) {
	defer p.wg.Done()

	var ref HostTimeRef
	var driftWarned bool

	for {
		select {
		case <-ctx.Done():
			return
		case as := <-internal:
			ts := as.Timestamp
			if p.source == gstpipe.SourceMicrophone {
				if !ref.Valid && as.DevicePTS > 0 {
					ref = HostTimeRef{HostTime: as.Timestamp, DevicePTS: as.DevicePTS, Valid: true}
				}
				ts = AlignDeviceTime(as.DevicePTS, ref)
				if !driftWarned && driftExceeded(ts, as.Timestamp) {
					driftWarned = true
					slog.Warn("capture: microphone clock drift exceeds tolerance",
						"aligned", ts,
						"host", as.Timestamp,
						"tolerance", DriftTolerance,
					)
				}
			}

			chunk := AudioChunk{
				Seq:        as.Seq,
				Timestamp:  ts,
				Samples:    as.Samples,
				SampleRate: as.SampleRate,
				Channels:   as.Channels,
			}
			p.counters.recordDelivery(len(chunk.Samples))
			if evicted := sendLatest(p.chunks, chunk); evicted > 0 {
				p.counters.recordDrop()
				slog.Debug("capture: evicted pending audio chunk, consumer slow", "seq", chunk.Seq)
			}
		}
	}
}

// Stop shuts down the tap and closes the chunk channel.
// Idempotent - safe to call multiple times.
func (p *GstAudioProducer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		slog.Warn("capture: audio stop timeout exceeded")
	}

	if p.elements != nil {
		if err := gstpipe.Destroy(p.elements); err != nil {
			slog.Error("capture: failed to destroy audio pipeline", "error", err)
		}
		p.elements = nil
	}

	if p.chunksClosed.CompareAndSwap(false, true) {
		close(p.chunks)
	}

	stats := p.counters.snapshot(0, p.started)
	slog.Info("capture: audio producer stopped",
		"source", p.source.String(),
		"chunks_captured", stats.Captured,
		"chunks_dropped", stats.Dropped,
	)

	p.cancel = nil
	p.ctx = nil
	return nil
}

// Stats returns a snapshot of capture counters. Thread-safe.
func (p *GstAudioProducer) Stats() Stats {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	return p.counters.snapshot(0, started)
}
