// Package mux multiplexes timestamped video and audio units into a playable
// container file.
//
// One Writer owns one container. A dedicated serial goroutine is the only
// code that touches container state (open/append/finalize); producers hand
// units over through bounded per-track queues and never block on the
// container, no matter how slow the disk is.
package mux

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tobitege/tiny-clips-mac/internal/capture"
)

// Result describes a finalized container.
type Result struct {
	// Path of the playable artifact.
	Path string
	// Duration covered by the video track.
	Duration time.Duration
	// VideoUnits is the number of video frames written.
	VideoUnits uint64
	// AudioUnits is the number of audio chunks written per track.
	AudioUnits map[TrackKind]uint64
	// Dropped is the number of units discarded under back-pressure or for
	// violating per-track timestamp monotonicity.
	Dropped uint64
}

// Writer accepts timestamped units in arrival order and drives a Backend
// from its serial loop.
//
// Writing rule: the first accepted video unit defines the session time
// origin; every unit on every track is stamped relative to it. Units that
// arrive before the origin exists, or after finalize begins, are dropped.
type Writer struct {
	backend Backend
	cfg     ContainerConfig
	path    string

	tracks map[TrackKind]*track

	// origin is the UnixNano of the first accepted video frame; 0 = unset.
	// Written once by AppendFrame, read by the audio append paths.
	origin atomic.Int64

	// finalizing flips when Finalize begins; appends observed after that
	// are dropped (stop order upstream makes this a rare race, not a flow).
	finalizing atomic.Bool

	// Serial loop lifecycle.
	loopWG  sync.WaitGroup
	stopCh  chan struct{}
	loopErr error // backend append error, read after loopWG.Wait

	dropped atomic.Uint64

	// Exactly-once finalize.
	finalizeOnce sync.Once
	result       Result
	finalErr     error

	opened bool
	mu     sync.Mutex
}

// NewWriter creates a Writer over the given backend. The container is not
// opened until Open.
func NewWriter(backend Backend, cfg ContainerConfig) *Writer {
	tracks := map[TrackKind]*track{
		TrackVideo: newTrack(TrackVideo),
	}
	if cfg.SystemAudio {
		tracks[TrackSystemAudio] = newTrack(TrackSystemAudio)
	}
	if cfg.Microphone {
		tracks[TrackMicrophone] = newTrack(TrackMicrophone)
	}
	return &Writer{
		backend: backend,
		cfg:     cfg,
		tracks:  tracks,
		stopCh:  make(chan struct{}),
	}
}

// Open creates the container file and starts the serial loop.
func (w *Writer) Open(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.opened {
		return fmt.Errorf("mux: writer already open")
	}
	if err := w.backend.Open(path, w.cfg); err != nil {
		return fmt.Errorf("mux: failed to open container: %w", err)
	}
	w.path = path
	w.opened = true

	w.loopWG.Add(1)
	go w.serialLoop()

	slog.Info("mux: container opened",
		"path", path,
		"tracks", len(w.tracks),
	)
	return nil
}

// AppendFrame offers a video frame to the writer. The first accepted frame
// pins the session time origin. Returns false if the frame was dropped.
func (w *Writer) AppendFrame(f capture.Frame) bool {
	if w.finalizing.Load() {
		w.dropped.Add(1)
		return false
	}

	ts := f.Timestamp.UnixNano()
	if !w.origin.CompareAndSwap(0, ts) {
		// Origin already pinned; frames stamped before it are dropped.
		if ts < w.origin.Load() {
			w.dropped.Add(1)
			return false
		}
	}

	pts := time.Duration(ts - w.origin.Load())
	u := unit{
		pts:      pts,
		duration: w.frameInterval(),
		data:     f.Data,
	}
	if evicted := w.tracks[TrackVideo].enqueue(u); evicted > 0 {
		w.dropped.Add(uint64(evicted))
		slog.Debug("mux: evicted pending video unit, writer slow",
			"pts", pts,
			"trace_id", f.TraceID,
		)
	}
	return true
}

// AppendChunk offers an audio chunk to the writer. Chunks delivered before
// the video origin exists are dropped: there is no timeline to place them
// on yet. Returns false if the chunk was dropped.
func (w *Writer) AppendChunk(kind TrackKind, c capture.AudioChunk) bool {
	t, ok := w.tracks[kind]
	if !ok || w.finalizing.Load() {
		w.dropped.Add(1)
		return false
	}

	origin := w.origin.Load()
	if origin == 0 {
		w.dropped.Add(1)
		return false
	}
	pts := time.Duration(c.Timestamp.UnixNano() - origin)
	if pts < 0 {
		w.dropped.Add(1)
		return false
	}

	u := unit{pts: pts, duration: c.Duration(), data: c.Samples}
	if evicted := t.enqueue(u); evicted > 0 {
		w.dropped.Add(uint64(evicted))
		slog.Debug("mux: evicted pending audio unit, writer slow",
			"track", kind.String(),
			"pts", pts,
		)
	}
	return true
}

// MarkFinished marks a track as done; no further units are expected on it.
// Finalize is only valid once every track is finished.
func (w *Writer) MarkFinished(kind TrackKind) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.tracks[kind]; ok {
		t.finished = true
		slog.Debug("mux: track finished", "track", kind.String())
	}
}

// serialLoop is the only goroutine that touches backend state. It consumes
// the per-track queues until finalize is signalled, then drains what is
// still pending and exits.
//
// Within a track, units reach the backend in the exact order they were
// accepted - never reordered. Across tracks only relative timestamps
// matter; the container interleaves by PTS.
func (w *Writer) serialLoop() {
	defer w.loopWG.Done()

	video := w.tracks[TrackVideo]
	sys := w.tracks[TrackSystemAudio] // nil when track absent
	mic := w.tracks[TrackMicrophone]

	var sysQ, micQ chan unit
	if sys != nil {
		sysQ = sys.queue
	}
	if mic != nil {
		micQ = mic.queue
	}

	for {
		select {
		case <-w.stopCh:
			w.drain(video, sys, mic)
			return
		case u := <-video.queue:
			w.write(video, u)
		case u := <-sysQ:
			w.write(sys, u)
		case u := <-micQ:
			w.write(mic, u)
		}
	}
}

// write appends one unit to the container, enforcing the per-track
// monotonicity invariant.
func (w *Writer) write(t *track, u unit) {
	if !t.admit(u) {
		t.dropped++
		w.dropped.Add(1)
		slog.Debug("mux: dropped non-monotonic unit",
			"track", t.kind.String(),
			"pts", u.pts,
		)
		return
	}
	var err error
	if t.kind == TrackVideo {
		err = w.backend.AppendVideo(u.pts, u.duration, u.data)
	} else {
		err = w.backend.AppendAudio(t.kind, u.pts, u.data)
	}
	if err != nil {
		// First backend error sticks; subsequent units still drain so the
		// producers are never blocked, they just go nowhere.
		if w.loopErr == nil {
			w.loopErr = err
			slog.Error("mux: backend append failed",
				"track", t.kind.String(),
				"error", err,
			)
		}
		return
	}
	t.accepted++
}

// drain flushes whatever is still queued at finalize time, in track order.
func (w *Writer) drain(tracks ...*track) {
	for _, t := range tracks {
		if t == nil {
			continue
		}
		for {
			select {
			case u := <-t.queue:
				w.write(t, u)
			default:
				goto next
			}
		}
	next:
	}
}

// frameInterval returns the nominal duration of one video frame.
func (w *Writer) frameInterval() time.Duration {
	if w.cfg.FPS <= 0 {
		return time.Second / 30
	}
	return time.Duration(float64(time.Second) / w.cfg.FPS)
}

// Finalize flushes every track and closes the container.
//
// Valid only after every track has been marked finished. Idempotent: a
// second call returns the result of the first without re-running the
// encode. On failure the partial file is deleted, never exposed.
func (w *Writer) Finalize(ctx context.Context) (Result, error) {
	w.finalizeOnce.Do(func() {
		w.result, w.finalErr = w.finalize(ctx)
	})
	return w.result, w.finalErr
}

func (w *Writer) finalize(ctx context.Context) (Result, error) {
	w.mu.Lock()
	for kind, t := range w.tracks {
		if !t.finished {
			w.mu.Unlock()
			return Result{}, fmt.Errorf("mux: finalize before track %s finished", kind.String())
		}
	}
	opened := w.opened
	w.mu.Unlock()

	if !opened {
		return Result{}, fmt.Errorf("mux: finalize on unopened writer")
	}

	w.finalizing.Store(true)
	close(w.stopCh)
	w.loopWG.Wait()

	if w.loopErr != nil {
		w.backend.Abort()
		w.removePartial()
		return Result{}, fmt.Errorf("mux: append failed (%v): %w", w.loopErr, ErrWriterFailed)
	}

	video := w.tracks[TrackVideo]
	if video.accepted == 0 {
		w.backend.Abort()
		w.removePartial()
		return Result{}, fmt.Errorf("mux: %w", ErrNoUnits)
	}

	if err := w.backend.Finalize(ctx); err != nil {
		w.removePartial()
		return Result{}, fmt.Errorf("mux: finalize failed (%v): %w", err, ErrWriterFailed)
	}

	audio := make(map[TrackKind]uint64)
	var droppedTracks uint64
	for kind, t := range w.tracks {
		droppedTracks += t.dropped
		if kind != TrackVideo {
			audio[kind] = t.accepted
		}
	}

	res := Result{
		Path:       w.path,
		Duration:   video.lastPTS + w.frameInterval(),
		VideoUnits: video.accepted,
		AudioUnits: audio,
		Dropped:    w.dropped.Load(),
	}

	slog.Info("mux: container finalized",
		"path", res.Path,
		"duration", res.Duration,
		"video_units", res.VideoUnits,
		"dropped", res.Dropped,
	)
	return res, nil
}

// Abort tears the writer down on a failed session: the serial loop is
// stopped, the backend discarded and the partial file deleted. Safe to call
// instead of Finalize, never after it.
func (w *Writer) Abort() {
	w.mu.Lock()
	opened := w.opened
	w.mu.Unlock()
	if !opened {
		return
	}

	w.finalizing.Store(true)
	w.finalizeOnce.Do(func() {
		close(w.stopCh)
		w.loopWG.Wait()
		w.backend.Abort()
		w.removePartial()
		w.finalErr = fmt.Errorf("mux: writer aborted: %w", ErrWriterFailed)
	})
}

// removePartial deletes the partially written file; a broken artifact must
// never reach the user's save directory.
func (w *Writer) removePartial() {
	if w.path == "" {
		return
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("mux: failed to remove partial file", "path", w.path, "error", err)
	} else {
		slog.Debug("mux: partial file removed", "path", w.path)
	}
}
