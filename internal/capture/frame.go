package capture

import "time"

// Frame represents a single captured video frame with metadata.
//
// Ownership: a Frame is transferred, never shared. The producer hands it to
// the session, the session hands it to the writer; whoever holds it may read
// Data, nobody mutates it after publication.
type Frame struct {
	// Seq is the monotonic sequence number assigned by the producer.
	Seq uint64
	// Timestamp is the host-clock capture time. All producers (video,
	// system audio, microphone) stamp on this one clock domain so the
	// writer can interleave tracks by relative timestamp alone.
	Timestamp time.Time
	// Width in pixels.
	Width int
	// Height in pixels.
	Height int
	// Data contains the raw pixel bytes (RGBA, 4 bytes per pixel).
	Data []byte
	// TraceID is a unique identifier for debug tracing.
	TraceID string
}

// AudioChunk represents a buffer of interleaved PCM samples with metadata.
//
// Timestamp is expressed on the same host clock as Frame.Timestamp; the
// microphone producer converts its device clock before publishing (see
// AlignDeviceTime).
type AudioChunk struct {
	// Seq is the monotonic sequence number assigned by the producer.
	Seq uint64
	// Timestamp is the presentation time on the shared host clock.
	Timestamp time.Time
	// Samples contains interleaved signed 16-bit little-endian PCM.
	Samples []byte
	// SampleRate in Hz (48000 for both capture sources).
	SampleRate int
	// Channels is the interleaved channel count (2 system, 1 microphone).
	Channels int
}

// Duration returns the play time covered by the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	frames := len(c.Samples) / (2 * c.Channels) // 2 bytes per sample
	return time.Duration(frames) * time.Second / time.Duration(c.SampleRate)
}
