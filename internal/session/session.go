// Package session owns the lifetime of one recording: it starts the
// producers, pumps their units into the writer (or the GIF accumulator)
// and guarantees exactly-once finalize semantics, so a partially written
// file is never handed to the user.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tobitege/tiny-clips-mac/internal/capture"
	"github.com/tobitege/tiny-clips-mac/internal/config"
	"github.com/tobitege/tiny-clips-mac/internal/gifenc"
	"github.com/tobitege/tiny-clips-mac/internal/mux"
	"github.com/tobitege/tiny-clips-mac/internal/output"
)

// defaultFirstFrameTimeout bounds the wait for the producer's first frame.
// A producer that cannot deliver within this window (permission revoked,
// device busy) fails the start.
const defaultFirstFrameTimeout = 5 * time.Second

// Config describes one recording session. Settings are snapshotted by the
// caller before construction; nothing here changes once Start runs.
type Config struct {
	Region   capture.Region
	Kind     output.Kind // KindVideo or KindGIF
	Settings config.Settings

	// FirstFrameTimeout overrides the producer start deadline (tests).
	FirstFrameTimeout time.Duration

	// Producer overrides the video producer. Nil selects the platform
	// default: the stream (push) producer for video, the polling (pull)
	// producer for GIF.
	Producer capture.Producer
	// SystemAudio / Microphone override the audio producers (tests).
	SystemAudio capture.AudioProducer
	Microphone  capture.AudioProducer
	// Backend overrides the container backend (tests).
	Backend mux.Backend
}

// Result describes a finalized recording.
type Result struct {
	// Path of the artifact in the save directory.
	Path string
	// Kind of artifact produced.
	Kind output.Kind
	// Duration covered by the capture.
	Duration time.Duration
	// Frames is the number of video units (or GIF frames) written.
	Frames uint64
	// Dropped is the number of units discarded under back-pressure.
	Dropped uint64
	// StartedAt is the session start time.
	StartedAt time.Time
}

// Session is the capture-and-encode state machine. One Session records one
// artifact; it is not reusable.
//
// Session is the sole owner of its producers and writer: no other component
// calls into them for the session's lifetime.
type Session struct {
	id  string
	cfg Config

	mu      sync.Mutex
	state   State
	failure error
	result  Result

	startedAt time.Time
	path      string

	producer capture.Producer
	sysAudio capture.AudioProducer
	mic      capture.AudioProducer

	writer *mux.Writer
	gifBuf *gifenc.Buffer

	frames <-chan capture.Frame
	sysCh  <-chan capture.AudioChunk
	micCh  <-chan capture.AudioChunk

	pumpWG sync.WaitGroup

	// onRelease frees the manager's single-session slot; set by Manager.
	onRelease func()
}

// New creates a session with fail-fast validation. No resource is
// allocated until Start.
func New(cfg Config) (*Session, error) {
	if err := cfg.Region.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind != output.KindVideo && cfg.Kind != output.KindGIF {
		return nil, fmt.Errorf("session: unsupported capture kind %s", cfg.Kind)
	}
	if cfg.FirstFrameTimeout <= 0 {
		cfg.FirstFrameTimeout = defaultFirstFrameTimeout
	}

	s := &Session{
		id:        uuid.New().String(),
		cfg:       cfg,
		state:     StateIdle,
		onRelease: func() {},
	}

	slog.Info("session: created",
		"session_id", s.id,
		"kind", cfg.Kind.String(),
		"region", cfg.Region.String(),
	)
	return s, nil
}

// State returns the current lifecycle state. Thread-safe.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error of a failed session, nil otherwise.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// GifBuffer exposes the accumulated frames of a finalized GIF session for
// the trim step. Nil for video sessions. The caller owns the buffer's
// remaining lifetime (Close releases spilled frames).
func (s *Session) GifBuffer() *gifenc.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gifBuf
}

// fps returns the configured capture rate for the session's kind.
func (s *Session) fps() float64 {
	if s.cfg.Kind == output.KindGIF {
		return float64(s.cfg.Settings.GifFPS)
	}
	return float64(s.cfg.Settings.VideoFPS)
}

// Start launches the producers and suspends the caller until the first
// frame is accepted (Active) or the start fails. It does not block any
// UI thread by design: callers run it from a coordination goroutine.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("session: start from state %s", state)
	}
	s.state = StateStarting
	s.startedAt = time.Now()
	s.mu.Unlock()

	slog.Info("session: starting",
		"session_id", s.id,
		"kind", s.cfg.Kind.String(),
		"fps", s.fps(),
	)

	if err := s.buildProducers(); err != nil {
		return s.fail(err)
	}

	// Video producer first: its first frame is time-zero.
	frames, err := s.producer.Start(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("session: producer start failed: %w", err))
	}
	s.frames = frames

	if err := s.startAudio(ctx); err != nil {
		return s.fail(err)
	}

	first, err := s.awaitFirstFrame(ctx)
	if err != nil {
		return s.fail(err)
	}

	if s.cfg.Kind == output.KindVideo {
		if err := s.openWriter(first); err != nil {
			return s.fail(err)
		}
	} else {
		if err := s.openGifBuffer(first); err != nil {
			return s.fail(err)
		}
	}

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	s.startPumps()

	slog.Info("session: active",
		"session_id", s.id,
		"time_zero", first.Timestamp,
	)
	return nil
}

// buildProducers fills in the production defaults for any producer the
// config did not inject.
func (s *Session) buildProducers() error {
	var err error
	if s.producer = s.cfg.Producer; s.producer == nil {
		if s.cfg.Kind == output.KindVideo {
			s.producer, err = capture.NewStreamProducer(s.cfg.Region, s.fps())
		} else {
			s.producer, err = capture.NewPollProducer(s.cfg.Region, s.fps())
		}
		if err != nil {
			return fmt.Errorf("session: cannot create producer: %w", err)
		}
	}

	// Audio applies to video captures only.
	if s.cfg.Kind != output.KindVideo {
		return nil
	}
	if s.sysAudio = s.cfg.SystemAudio; s.sysAudio == nil && s.cfg.Settings.RecordSystemAudio {
		s.sysAudio, err = capture.NewSystemAudioProducer("")
		if err != nil {
			return fmt.Errorf("session: cannot create system audio producer: %w", err)
		}
	}
	if s.mic = s.cfg.Microphone; s.mic == nil && s.cfg.Settings.RecordMicrophone {
		s.mic, err = capture.NewMicProducer("")
		if err != nil {
			return fmt.Errorf("session: cannot create microphone producer: %w", err)
		}
	}
	return nil
}

// startAudio starts whichever audio producers this session carries.
func (s *Session) startAudio(ctx context.Context) error {
	if s.sysAudio != nil {
		ch, err := s.sysAudio.Start(ctx)
		if err != nil {
			return fmt.Errorf("session: system audio start failed: %w", err)
		}
		s.sysCh = ch
	}
	if s.mic != nil {
		ch, err := s.mic.Start(ctx)
		if err != nil {
			return fmt.Errorf("session: microphone start failed: %w", err)
		}
		s.micCh = ch
	}
	return nil
}

// awaitFirstFrame suspends until the producer delivers its first frame,
// which establishes time-zero. A timeout means the producer cannot deliver
// (permission revoked mid-start, device gone) and the start fails.
func (s *Session) awaitFirstFrame(ctx context.Context) (capture.Frame, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return capture.Frame{}, fmt.Errorf("session: producer closed before first frame: %w", ErrProducerUnavailable)
		}
		return f, nil
	case <-ctx.Done():
		return capture.Frame{}, fmt.Errorf("session: cancelled waiting for first frame: %w", ErrProducerUnavailable)
	case <-time.After(s.cfg.FirstFrameTimeout):
		return capture.Frame{}, fmt.Errorf("session: no frame within %s: %w", s.cfg.FirstFrameTimeout, ErrProducerUnavailable)
	}
}

// openWriter resolves the artifact path, opens the container and accepts
// the first video unit.
func (s *Session) openWriter(first capture.Frame) error {
	path, err := output.ArtifactPath(s.cfg.Settings.SaveDir, s.startedAt, output.KindVideo.Ext())
	if err != nil {
		return err
	}
	s.path = path

	backend := s.cfg.Backend
	if backend == nil {
		backend = mux.NewGstBackend()
	}
	s.writer = mux.NewWriter(backend, mux.ContainerConfig{
		Width:       first.Width,
		Height:      first.Height,
		FPS:         s.fps(),
		SystemAudio: s.sysAudio != nil,
		Microphone:  s.mic != nil,
	})
	if err := s.writer.Open(path); err != nil {
		return fmt.Errorf("session: %v: %w", err, ErrWriterFailed)
	}
	s.writer.AppendFrame(first)
	return nil
}

// openGifBuffer creates the frame accumulator and buffers the first frame.
func (s *Session) openGifBuffer(first capture.Frame) error {
	buf, err := gifenc.NewBuffer(s.fps(), s.cfg.Settings.GifMaxWidth)
	if err != nil {
		return fmt.Errorf("session: cannot create gif buffer: %w", err)
	}
	s.gifBuf = buf
	return buf.Append(frameImage(first))
}

// startPumps launches the per-track pump goroutines. Each pump forwards
// units until its producer's channel closes at stop time.
func (s *Session) startPumps() {
	s.pumpWG.Add(1)
	go func() {
		defer s.pumpWG.Done()
		for f := range s.frames {
			if s.cfg.Kind == output.KindVideo {
				s.writer.AppendFrame(f)
				continue
			}
			if err := s.gifBuf.Append(frameImage(f)); err != nil {
				slog.Warn("session: dropping gif frame", "error", err, "seq", f.Seq)
			}
		}
		// The channel closing without a stop request means the producer
		// died (pipeline error, source gone).
		if s.State() == StateActive {
			slog.Warn("session: frame channel closed while active", "session_id", s.id)
			go s.failProducerLoss()
		}
	}()

	if s.sysCh != nil {
		s.pumpWG.Add(1)
		go func() {
			defer s.pumpWG.Done()
			for c := range s.sysCh {
				s.writer.AppendChunk(mux.TrackSystemAudio, c)
			}
		}()
	}
	if s.micCh != nil {
		s.pumpWG.Add(1)
		go func() {
			defer s.pumpWG.Done()
			for c := range s.micCh {
				s.writer.AppendChunk(mux.TrackMicrophone, c)
			}
		}()
	}
}

// Stop halts capture and suspends the caller until finalize completes.
//
// Producers stop in a fixed order - microphone, system audio, video - so
// nothing can feed the writer once it begins finalizing. Returns the
// finalized artifact, or the translated terminal error.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	switch s.state {
	case StateActive:
		s.state = StateStopping
	case StateFinalized:
		res := s.result
		s.mu.Unlock()
		return res, nil
	case StateFailed:
		err := s.failure
		s.mu.Unlock()
		return Result{}, err
	default:
		state := s.state
		s.mu.Unlock()
		return Result{}, fmt.Errorf("session: stop from state %s", state)
	}
	s.mu.Unlock()

	slog.Info("session: stopping", "session_id", s.id)

	s.stopProducers()
	s.pumpWG.Wait()

	if s.cfg.Kind == output.KindVideo {
		return s.finalizeVideo(ctx)
	}
	return s.finalizeGif()
}

// failProducerLoss handles a producer dying mid-recording: the frame
// channel closed with no stop request. The session cannot keep a timeline
// without its video source, so it tears down and fails instead of sitting
// active while capturing nothing.
func (s *Session) failProducerLoss() {
	s.mu.Lock()
	if s.state != StateActive {
		// A concurrent Stop won the transition; let it drive teardown.
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.stopProducers()
	s.pumpWG.Wait()

	if s.writer != nil {
		s.writer.Abort()
		s.writer = nil
	}

	s.failStop(fmt.Errorf("session: producer stopped delivering frames: %w", ErrProducerUnavailable))
}

// stopProducers tells every producer to stop emitting, in the fixed order
// microphone → system audio → video.
func (s *Session) stopProducers() {
	if s.mic != nil {
		if err := s.mic.Stop(); err != nil {
			slog.Warn("session: microphone stop failed", "error", err)
		}
	}
	if s.sysAudio != nil {
		if err := s.sysAudio.Stop(); err != nil {
			slog.Warn("session: system audio stop failed", "error", err)
		}
	}
	if s.producer != nil {
		if err := s.producer.Stop(); err != nil {
			slog.Warn("session: video producer stop failed", "error", err)
		}
	}
}

// finalizeVideo marks every track finished and flushes the container.
func (s *Session) finalizeVideo(ctx context.Context) (Result, error) {
	if s.mic != nil {
		s.writer.MarkFinished(mux.TrackMicrophone)
	}
	if s.sysAudio != nil {
		s.writer.MarkFinished(mux.TrackSystemAudio)
	}
	s.writer.MarkFinished(mux.TrackVideo)

	muxRes, err := s.writer.Finalize(ctx)
	if err != nil {
		if errors.Is(err, mux.ErrNoUnits) {
			err = fmt.Errorf("session: %w", ErrNoFramesCaptured)
		}
		return Result{}, s.failStop(err)
	}

	res := Result{
		Path:      muxRes.Path,
		Kind:      output.KindVideo,
		Duration:  muxRes.Duration,
		Frames:    muxRes.VideoUnits,
		Dropped:   muxRes.Dropped,
		StartedAt: s.startedAt,
	}
	return s.finish(res)
}

// finalizeGif encodes the accumulated frames into the artifact.
func (s *Session) finalizeGif() (Result, error) {
	if s.gifBuf == nil || s.gifBuf.Len() == 0 {
		return Result{}, s.failStop(fmt.Errorf("session: %w", ErrNoFramesCaptured))
	}

	path, err := output.ArtifactPath(s.cfg.Settings.SaveDir, s.startedAt, output.KindGIF.Ext())
	if err != nil {
		return Result{}, s.failStop(err)
	}

	f, err := os.Create(path)
	if err != nil {
		return Result{}, s.failStop(fmt.Errorf("session: cannot create %s (%v): %w", path, err, ErrWriterFailed))
	}
	encErr := s.gifBuf.Encode(f)
	if cerr := f.Close(); encErr == nil {
		encErr = cerr
	}
	if encErr != nil {
		os.Remove(path)
		return Result{}, s.failStop(fmt.Errorf("session: gif encode failed (%v): %w", encErr, ErrWriterFailed))
	}

	s.path = path
	frames := uint64(s.gifBuf.Len())
	stats := s.producer.Stats()
	res := Result{
		Path:      path,
		Kind:      output.KindGIF,
		Duration:  time.Duration(float64(frames) / s.fps() * float64(time.Second)),
		Frames:    frames,
		Dropped:   stats.Dropped,
		StartedAt: s.startedAt,
	}
	return s.finish(res)
}

// finish records the terminal success state.
func (s *Session) finish(res Result) (Result, error) {
	s.mu.Lock()
	s.state = StateFinalized
	s.result = res
	s.mu.Unlock()
	s.onRelease()

	slog.Info("session: finalized",
		"session_id", s.id,
		"path", res.Path,
		"duration", res.Duration,
		"frames", res.Frames,
		"dropped", res.Dropped,
	)
	return res, nil
}

// failStop records a terminal failure reached from Stopping. Producers are
// already stopped; writer cleanup (partial-file deletion) has happened in
// the layer that failed. The GIF buffer, if any, is released here so its
// spill directory never outlives a failed session.
func (s *Session) failStop(err error) error {
	s.mu.Lock()
	if s.gifBuf != nil {
		s.gifBuf.Close()
		s.gifBuf = nil
	}
	s.state = StateFailed
	s.failure = err
	s.mu.Unlock()
	s.onRelease()

	slog.Error("session: failed", "session_id", s.id, "error", err)
	return err
}

// fail records a terminal failure reached from Starting and releases every
// resource allocated so far: producers stopped, queues drained, the
// provisional writer aborted and its partial file deleted.
func (s *Session) fail(err error) error {
	s.stopProducers()
	s.pumpWG.Wait()

	if s.writer != nil {
		s.writer.Abort()
		s.writer = nil
	}
	if s.gifBuf != nil {
		s.gifBuf.Close()
		s.gifBuf = nil
	}

	s.mu.Lock()
	s.state = StateFailed
	s.failure = err
	s.mu.Unlock()
	s.onRelease()

	slog.Error("session: start failed", "session_id", s.id, "error", err)
	return err
}

// frameImage wraps a captured frame's pixels as an image without copying.
// The frame was transferred to the session, so the buffer is ours to keep.
func frameImage(f capture.Frame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
