package mux

import (
	"context"
	"time"
)

// ContainerConfig describes the container the backend opens.
type ContainerConfig struct {
	// Width/Height of the video track in pixels.
	Width  int
	Height int
	// FPS is the nominal video frame rate.
	FPS float64
	// SystemAudio/Microphone enable the respective AAC tracks.
	SystemAudio bool
	Microphone  bool
}

// Backend is the container writer the mux Writer drives. Exactly one
// goroutine (the writer's serial loop) calls into a Backend; implementations
// need no internal locking.
//
// The production backend multiplexes an MP4 (H.264 + AAC) via GStreamer;
// tests substitute an in-memory fake.
type Backend interface {
	// Open creates the container file and its tracks.
	Open(path string, cfg ContainerConfig) error

	// AppendVideo appends one raw RGBA frame at the given presentation
	// timestamp (relative to the session origin).
	AppendVideo(pts, duration time.Duration, data []byte) error

	// AppendAudio appends one PCM chunk to the given audio track.
	AppendAudio(kind TrackKind, pts time.Duration, data []byte) error

	// Finalize marks every track finished, flushes the container to disk
	// and closes it. Only called once. An error means the file is not
	// playable and must be discarded by the caller.
	Finalize(ctx context.Context) error

	// Abort tears the container down without finalizing; the partial
	// file is left for the caller to delete. Never returns an error:
	// abort is best-effort cleanup on a path that already failed.
	Abort()
}
