package mux

import (
	"time"
)

// TrackKind identifies one of the container tracks.
type TrackKind int

const (
	// TrackVideo is the single H.264 video track.
	TrackVideo TrackKind = iota
	// TrackSystemAudio is the system-mix AAC track (stereo).
	TrackSystemAudio
	// TrackMicrophone is the microphone AAC track (mono).
	TrackMicrophone
)

// String returns a human-readable track name.
func (k TrackKind) String() string {
	switch k {
	case TrackVideo:
		return "video"
	case TrackSystemAudio:
		return "system-audio"
	case TrackMicrophone:
		return "microphone"
	default:
		return "unknown"
	}
}

// unit is one timestamped payload queued for a track. PTS is relative to
// the session time origin (the first accepted video frame).
type unit struct {
	pts      time.Duration
	duration time.Duration
	data     []byte
}

// trackQueueDepth bounds each per-track queue. Latest wins: a full queue
// evicts its oldest pending unit rather than blocking the capture path.
const trackQueueDepth = 8

// track owns one bounded single-producer/single-consumer queue plus the
// per-track bookkeeping the writer goroutine maintains.
type track struct {
	kind     TrackKind
	queue    chan unit
	accepted uint64
	dropped  uint64
	lastPTS  time.Duration
	hasUnits bool
	finished bool
}

func newTrack(kind TrackKind) *track {
	return &track{
		kind:    kind,
		queue:   make(chan unit, trackQueueDepth),
		lastPTS: -1,
	}
}

// enqueue offers a unit to the track without blocking. When the queue is
// full the oldest pending unit is evicted (latest-wins back-pressure).
// Returns the number of evicted units.
func (t *track) enqueue(u unit) (evicted int) {
	for {
		select {
		case t.queue <- u:
			return evicted
		default:
		}
		select {
		case <-t.queue:
			evicted++
		default:
		}
	}
}

// admit checks the monotonicity invariant before a unit reaches the
// container: within one track, presentation timestamps never decrease.
// A late unit is dropped, never reordered.
func (t *track) admit(u unit) bool {
	if t.hasUnits && u.pts <= t.lastPTS {
		return false
	}
	t.lastPTS = u.pts
	t.hasUnits = true
	return true
}
