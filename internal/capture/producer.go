package capture

import "context"

// Producer is the contract for video frame acquisition.
//
// Two interchangeable strategies implement it: StreamProducer (push model,
// platform stream callbacks deliver frames as they become available) and
// PollProducer (pull model, a fixed-interval timer samples the region).
// The session state machine does not care which one it owns.
//
// Implementations must guarantee:
//   - Start() returns quickly; frames arrive asynchronously
//   - Start() returns a channel that stays open until Stop()
//   - delivered timestamps are strictly increasing
//   - back-pressure drops frames, it never blocks the capture path
//   - Stop() is idempotent and releases all platform resources, even if
//     no frame was ever delivered
//   - Stats() is safe from any goroutine
type Producer interface {
	// Start begins capture and returns a read-only channel of frames.
	Start(ctx context.Context) (<-chan Frame, error)

	// Stop shuts the producer down and closes the frame channel.
	Stop() error

	// Stats returns a snapshot of capture counters.
	Stats() Stats
}

// AudioProducer is the contract for audio sample acquisition (system tap or
// microphone). Same lifecycle guarantees as Producer.
type AudioProducer interface {
	// Start begins capture and returns a read-only channel of chunks.
	Start(ctx context.Context) (<-chan AudioChunk, error)

	// Stop shuts the producer down and closes the chunk channel.
	Stop() error

	// Stats returns a snapshot of capture counters.
	Stats() Stats
}

// frameChanDepth bounds the pending-frame queue between a producer and its
// consumer. Latest wins: when full, the oldest pending frame is evicted.
const frameChanDepth = 8
