package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/kbinani/screenshot"
)

// grabFunc samples the screen region once. Production uses the platform
// screenshot library; tests inject a synthetic implementation.
type grabFunc func(rect image.Rectangle) (*image.RGBA, error)

// PollProducer implements Producer with a fixed-interval timer (pull model).
//
// Each tick actively samples the region. If sampling takes longer than the
// interval the intervening ticks are skipped (time.Ticker drops ticks on a
// slow receiver), so a slow grab never queues unbounded work.
type PollProducer struct {
	// Configuration
	region    Region
	targetFPS float64
	grab      grabFunc

	// Frame output
	frames chan Frame
	mu     sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Statistics
	counters counters
	started  time.Time

	framesClosed atomic.Bool
}

// NewPollProducer creates a pull-model producer for the given region with
// fail-fast validation.
//
// Returns an error if the region is invalid or FPS is out of range.
func NewPollProducer(region Region, targetFPS float64) (*PollProducer, error) {
	if err := region.Validate(); err != nil {
		return nil, err
	}
	if targetFPS < 1 || targetFPS > 60 {
		return nil, fmt.Errorf("capture: invalid FPS %.1f (must be 1-60)", targetFPS)
	}

	p := &PollProducer{
		region:    region,
		targetFPS: targetFPS,
		grab:      grabRegion,
		frames:    make(chan Frame, frameChanDepth),
	}

	slog.Info("capture: poll producer created",
		"region", region.String(),
		"target_fps", targetFPS,
	)
	return p, nil
}

// grabRegion samples a desktop rectangle via the platform screenshot library.
func grabRegion(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}

// desktopRect translates the region into desktop coordinates for its display.
func (p *PollProducer) desktopRect() image.Rectangle {
	if p.region.DisplayID >= 0 && p.region.DisplayID < screenshot.NumActiveDisplays() {
		origin := screenshot.GetDisplayBounds(p.region.DisplayID).Min
		return p.region.Rect().Add(origin)
	}
	return p.region.Rect()
}

// Start probes the region once (fail-fast permission check), then launches
// the sampling loop. The probe image is delivered as the first frame so the
// session can establish time-zero immediately.
func (p *PollProducer) Start(ctx context.Context) (<-chan Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return nil, fmt.Errorf("capture: poll producer already started")
	}

	rect := p.desktopRect()
	probe, err := p.grab(rect)
	if err != nil {
		return nil, fmt.Errorf("capture: region sampling failed (%v): %w", err, ErrProducerUnavailable)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = time.Now()

	p.publish(probe, p.started)

	p.wg.Add(1)
	go p.sampleLoop(rect)

	slog.Info("capture: poll producer started",
		"region", p.region.String(),
		"interval", p.interval(),
	)
	return p.frames, nil
}

func (p *PollProducer) interval() time.Duration {
	return time.Duration(float64(time.Second) / p.targetFPS)
}

// sampleLoop grabs the region on every tick until the context is cancelled.
func (p *PollProducer) sampleLoop(rect image.Rectangle) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval())
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			img, err := p.grab(rect)
			if err != nil {
				// Transient sampling failure: skip the tick rather than
				// killing the recording.
				slog.Warn("capture: sampling failed, skipping tick", "error", err)
				continue
			}
			p.publish(img, time.Now())
		}
	}
}

// publish converts the sampled image into a Frame and delivers it with the
// latest-wins policy. Zero-sized or corrupted images are silently dropped.
func (p *PollProducer) publish(img *image.RGBA, ts time.Time) {
	if img == nil || len(img.Pix) == 0 || img.Bounds().Dx() <= 0 || img.Bounds().Dy() <= 0 {
		slog.Debug("capture: dropping empty sample")
		return
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	data := img.Pix
	if img.Stride != 4*w {
		// Re-pack rows so Data is tightly packed RGBA.
		data = make([]byte, 4*w*h)
		for y := 0; y < h; y++ {
			copy(data[y*4*w:(y+1)*4*w], img.Pix[y*img.Stride:y*img.Stride+4*w])
		}
	}

	seq := p.counters.recordDelivery(len(data))
	frame := Frame{
		Seq:       seq,
		Timestamp: ts,
		Width:     w,
		Height:    h,
		Data:      data,
		TraceID:   uuid.New().String(),
	}

	if evicted := sendLatest(p.frames, frame); evicted > 0 {
		p.counters.recordDrop()
		slog.Debug("capture: evicted pending frame, consumer slow",
			"seq", frame.Seq,
			"trace_id", frame.TraceID,
		)
	}
}

// Stop shuts down the sampling loop and closes the frame channel.
// Idempotent - safe to call multiple times.
func (p *PollProducer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}

	p.cancel()
	p.wg.Wait()

	if p.framesClosed.CompareAndSwap(false, true) {
		close(p.frames)
	}

	stats := p.counters.snapshot(p.targetFPS, p.started)
	slog.Info("capture: poll producer stopped",
		"frames_captured", stats.Captured,
		"frames_dropped", stats.Dropped,
		"fps_real", fmt.Sprintf("%.2f", stats.FPSReal),
	)

	p.cancel = nil
	p.ctx = nil
	return nil
}

// Stats returns a snapshot of capture counters. Thread-safe.
func (p *PollProducer) Stats() Stats {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	return p.counters.snapshot(p.targetFPS, started)
}
