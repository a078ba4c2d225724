package session

import (
	"context"
	"errors"
	"image/gif"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tobitege/tiny-clips-mac/internal/capture"
	"github.com/tobitege/tiny-clips-mac/internal/config"
	"github.com/tobitege/tiny-clips-mac/internal/mux"
	"github.com/tobitege/tiny-clips-mac/internal/output"
)

// fakeProducer pre-seeds its channel with frames and closes it on Stop, the
// same contract the real producers honor.
type fakeProducer struct {
	frames  []capture.Frame
	ch      chan capture.Frame
	stopped atomic.Bool

	startErr error
	// selfClose closes the channel right after seeding, simulating a
	// producer that dies mid-recording without a stop request.
	selfClose bool
}

func newFakeProducer(n, w, h int) *fakeProducer {
	base := time.Now()
	interval := time.Second / 30
	frames := make([]capture.Frame, n)
	for i := range frames {
		frames[i] = capture.Frame{
			Seq:       uint64(i + 1),
			Timestamp: base.Add(time.Duration(i) * interval),
			Width:     w,
			Height:    h,
			Data:      make([]byte, 4*w*h),
		}
	}
	return &fakeProducer{frames: frames}
}

func (p *fakeProducer) Start(ctx context.Context) (<-chan capture.Frame, error) {
	if p.startErr != nil {
		return nil, p.startErr
	}
	p.ch = make(chan capture.Frame, len(p.frames)+1)
	for _, f := range p.frames {
		p.ch <- f
	}
	if p.selfClose {
		p.stopped.Store(true)
		close(p.ch)
	}
	return p.ch, nil
}

func (p *fakeProducer) Stop() error {
	if p.stopped.CompareAndSwap(false, true) && p.ch != nil {
		close(p.ch)
	}
	return nil
}

func (p *fakeProducer) Stats() capture.Stats {
	return capture.Stats{Captured: uint64(len(p.frames))}
}

// fakeAudio mirrors fakeProducer for audio chunks.
type fakeAudio struct {
	chunks  []capture.AudioChunk
	ch      chan capture.AudioChunk
	stopped atomic.Bool
}

func newFakeAudio(n int, after time.Time) *fakeAudio {
	chunks := make([]capture.AudioChunk, n)
	for i := range chunks {
		chunks[i] = capture.AudioChunk{
			Seq:        uint64(i + 1),
			Timestamp:  after.Add(time.Duration(i+1) * 20 * time.Millisecond),
			Samples:    make([]byte, 1920),
			SampleRate: 48000,
			Channels:   2,
		}
	}
	return &fakeAudio{chunks: chunks}
}

func (a *fakeAudio) Start(ctx context.Context) (<-chan capture.AudioChunk, error) {
	a.ch = make(chan capture.AudioChunk, len(a.chunks)+1)
	for _, c := range a.chunks {
		a.ch <- c
	}
	return a.ch, nil
}

func (a *fakeAudio) Stop() error {
	if a.stopped.CompareAndSwap(false, true) && a.ch != nil {
		close(a.ch)
	}
	return nil
}

func (a *fakeAudio) Stats() capture.Stats {
	return capture.Stats{Captured: uint64(len(a.chunks))}
}

// fakeBackend counts appended units without touching disk.
type fakeBackend struct {
	video     atomic.Uint64
	audio     atomic.Uint64
	finalized atomic.Bool
	aborted   atomic.Bool

	finalizeErr error
}

func (b *fakeBackend) Open(path string, cfg mux.ContainerConfig) error { return nil }

func (b *fakeBackend) AppendVideo(pts, duration time.Duration, data []byte) error {
	b.video.Add(1)
	return nil
}

func (b *fakeBackend) AppendAudio(kind mux.TrackKind, pts time.Duration, data []byte) error {
	b.audio.Add(1)
	return nil
}

func (b *fakeBackend) Finalize(ctx context.Context) error {
	b.finalized.Store(true)
	return b.finalizeErr
}

func (b *fakeBackend) Abort() { b.aborted.Store(true) }

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	return config.Settings{
		VideoFPS:    30,
		GifFPS:      10,
		GifMaxWidth: 960,
		SaveDir:     t.TempDir(),
	}.Clamped()
}

func testRegion() capture.Region {
	return capture.Region{Width: 32, Height: 24, PixelScale: 1.0}
}

func TestVideoSessionLifecycle(t *testing.T) {
	// 8 frames: at most the writer's queue depth can be pending at once, so
	// the latest-wins queue never evicts and the counts are deterministic.
	producer := newFakeProducer(8, 32, 24)
	sysAudio := newFakeAudio(5, producer.frames[0].Timestamp)
	backend := &fakeBackend{}

	settings := testSettings(t)
	settings.RecordSystemAudio = true

	s, err := New(Config{
		Region:      testRegion(),
		Kind:        output.KindVideo,
		Settings:    settings,
		Producer:    producer,
		SystemAudio: sysAudio,
		Backend:     backend,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("Expected idle, got %s", s.State())
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateActive {
		t.Errorf("Expected active, got %s", s.State())
	}

	res, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if s.State() != StateFinalized {
		t.Errorf("Expected finalized, got %s", s.State())
	}
	if res.Kind != output.KindVideo {
		t.Errorf("Expected video result, got %s", res.Kind)
	}
	if res.Frames != 8 {
		t.Errorf("Expected 8 frames, got %d", res.Frames)
	}
	if res.Duration <= 0 {
		t.Errorf("Expected positive duration, got %s", res.Duration)
	}
	if !backend.finalized.Load() {
		t.Error("Backend was never finalized")
	}
	if got := backend.video.Load(); got != 8 {
		t.Errorf("Expected 8 video units in backend, got %d", got)
	}
	if got := backend.audio.Load(); got != 5 {
		t.Errorf("Expected 5 audio units in backend, got %d", got)
	}
	if !producer.stopped.Load() || !sysAudio.stopped.Load() {
		t.Error("Producers not stopped after Stop")
	}
}

// TestStopIdempotent verifies a second Stop returns the stored result.
func TestStopIdempotent(t *testing.T) {
	producer := newFakeProducer(3, 16, 16)
	backend := &fakeBackend{}

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindVideo,
		Settings: testSettings(t),
		Producer: producer,
		Backend:  backend,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	first, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	second, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}
	if first.Path != second.Path || first.Frames != second.Frames {
		t.Errorf("Second Stop returned a different result: %+v vs %+v", first, second)
	}
}

// TestNoFirstFrameFailsStart verifies the producer deadline: a producer that
// never delivers fails the start with ErrProducerUnavailable and leaves no
// file behind.
func TestNoFirstFrameFailsStart(t *testing.T) {
	producer := &fakeProducer{} // zero frames, channel stays empty
	backend := &fakeBackend{}
	settings := testSettings(t)

	s, err := New(Config{
		Region:            testRegion(),
		Kind:              output.KindVideo,
		Settings:          settings,
		FirstFrameTimeout: 50 * time.Millisecond,
		Producer:          producer,
		Backend:           backend,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = s.Start(context.Background())
	if !errors.Is(err, ErrProducerUnavailable) {
		t.Fatalf("Expected ErrProducerUnavailable, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
	if !producer.stopped.Load() {
		t.Error("Producer not stopped after failed start")
	}

	entries, err := os.ReadDir(settings.SaveDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty save dir after failed start, found %d entries", len(entries))
	}
}

// TestProducerStartErrorFailsSession verifies a producer start error is
// surfaced and the session lands in Failed.
func TestProducerStartErrorFailsSession(t *testing.T) {
	producer := &fakeProducer{startErr: capture.ErrProducerUnavailable}

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindVideo,
		Settings: testSettings(t),
		Producer: producer,
		Backend:  &fakeBackend{},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = s.Start(context.Background())
	if !errors.Is(err, ErrProducerUnavailable) {
		t.Fatalf("Expected ErrProducerUnavailable, got %v", err)
	}
	if got := s.Err(); !errors.Is(got, ErrProducerUnavailable) {
		t.Errorf("Err() = %v, want ErrProducerUnavailable", got)
	}
}

func TestNewRejectsInvalidRegion(t *testing.T) {
	_, err := New(Config{
		Region:   capture.Region{Width: 0, Height: 100, PixelScale: 1.0},
		Kind:     output.KindVideo,
		Settings: config.Settings{},
	})
	if !errors.Is(err, ErrRegionInvalid) {
		t.Fatalf("Expected ErrRegionInvalid, got %v", err)
	}
}

func TestNewRejectsScreenshotKind(t *testing.T) {
	_, err := New(Config{
		Region: testRegion(),
		Kind:   output.KindScreenshot,
	})
	if err == nil {
		t.Fatal("Expected error for screenshot kind")
	}
}

func TestGifSessionProducesDecodableFile(t *testing.T) {
	producer := newFakeProducer(8, 32, 24)
	settings := testSettings(t)

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindGIF,
		Settings: settings,
		Producer: producer,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if res.Kind != output.KindGIF {
		t.Errorf("Expected gif result, got %s", res.Kind)
	}
	if res.Frames != 8 {
		t.Errorf("Expected 8 frames, got %d", res.Frames)
	}
	if filepath.Ext(res.Path) != ".gif" {
		t.Errorf("Expected .gif artifact, got %s", res.Path)
	}

	f, err := os.Open(res.Path)
	if err != nil {
		t.Fatalf("Artifact missing: %v", err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatalf("Artifact not a decodable GIF: %v", err)
	}
	if len(g.Image) != 8 {
		t.Errorf("Expected 8 encoded frames, got %d", len(g.Image))
	}
	if g.LoopCount != 0 {
		t.Errorf("Expected infinite loop (0), got %d", g.LoopCount)
	}

	// The buffer stays open for the trim step.
	if s.GifBuffer() == nil {
		t.Fatal("GifBuffer nil after finalize")
	}
	s.GifBuffer().Close()
}

// TestManagerSingleSession verifies the one-recording-per-process rule and
// that the slot frees once the session terminates.
func TestManagerSingleSession(t *testing.T) {
	mgr := NewManager()
	settings := testSettings(t)

	cfg := Config{
		Region:   testRegion(),
		Kind:     output.KindVideo,
		Settings: settings,
		Producer: newFakeProducer(2, 16, 16),
		Backend:  &fakeBackend{},
	}

	s, err := mgr.Begin(cfg)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if _, err := mgr.Begin(cfg); !errors.Is(err, ErrAlreadyActive) {
		t.Fatalf("Expected ErrAlreadyActive, got %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// Terminal session releases the slot.
	cfg.Producer = newFakeProducer(2, 16, 16)
	cfg.Backend = &fakeBackend{}
	if _, err := mgr.Begin(cfg); err != nil {
		t.Fatalf("Begin after finalize failed: %v", err)
	}
}

// TestProducerDeathFailsActiveSession verifies a producer dying
// mid-recording (frame channel closed with no stop request) moves the
// session to Failed on its own instead of sitting active forever, with the
// writer aborted.
func TestProducerDeathFailsActiveSession(t *testing.T) {
	producer := newFakeProducer(3, 16, 16)
	producer.selfClose = true
	backend := &fakeBackend{}

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindVideo,
		Settings: testSettings(t),
		Producer: producer,
		Backend:  backend,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for s.State() != StateFailed {
		select {
		case <-deadline:
			t.Fatalf("Session still %s after producer death", s.State())
		case <-time.After(10 * time.Millisecond):
		}
	}

	if got := s.Err(); !errors.Is(got, ErrProducerUnavailable) {
		t.Errorf("Err() = %v, want ErrProducerUnavailable", got)
	}
	if !backend.aborted.Load() {
		t.Error("Writer not aborted after producer death")
	}

	// A late user stop surfaces the stored failure.
	if _, err := s.Stop(context.Background()); !errors.Is(err, ErrProducerUnavailable) {
		t.Errorf("Stop after failure = %v, want ErrProducerUnavailable", err)
	}
}

// TestGifFinalizeFailureReleasesBuffer verifies a failed GIF finalize
// releases the frame buffer (and with it any spill directory) instead of
// leaking it.
func TestGifFinalizeFailureReleasesBuffer(t *testing.T) {
	producer := newFakeProducer(3, 16, 16)
	settings := testSettings(t)

	// A regular file where the save directory should be makes the artifact
	// path resolution fail at finalize time.
	blocked := filepath.Join(settings.SaveDir, "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	settings.SaveDir = blocked

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindGIF,
		Settings: settings,
		Producer: producer,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := s.Stop(context.Background()); err == nil {
		t.Fatal("Expected Stop to fail with an unusable save directory")
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
	if s.GifBuffer() != nil {
		t.Error("GIF buffer not released after failed finalize")
	}
}

// TestWriterFinalizeErrorTranslated verifies a backend finalize failure
// reaches the caller as ErrWriterFailed with the session Failed.
func TestWriterFinalizeErrorTranslated(t *testing.T) {
	producer := newFakeProducer(3, 16, 16)
	backend := &fakeBackend{finalizeErr: errors.New("disk full")}

	s, err := New(Config{
		Region:   testRegion(),
		Kind:     output.KindVideo,
		Settings: testSettings(t),
		Producer: producer,
		Backend:  backend,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err = s.Stop(context.Background())
	if !errors.Is(err, ErrWriterFailed) {
		t.Fatalf("Expected ErrWriterFailed, got %v", err)
	}
	if s.State() != StateFailed {
		t.Errorf("Expected failed, got %s", s.State())
	}
}
