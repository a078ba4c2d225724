package capture

import (
	"sync/atomic"
	"time"
)

// Stats is a snapshot of producer counters.
type Stats struct {
	// Captured is the total number of units delivered downstream.
	Captured uint64
	// Dropped is the total number of units discarded under back-pressure.
	Dropped uint64
	// DropRate is the percentage of units dropped (0-100).
	DropRate float64
	// FPSTarget is the configured target rate.
	FPSTarget float64
	// FPSReal is the measured delivery rate since start.
	FPSReal float64
	// LatencyMS is the time since the last delivered unit in milliseconds.
	LatencyMS int64
	// BytesRead is the total payload bytes delivered.
	BytesRead uint64
}

// counters holds the atomic state behind Stats snapshots. Shared by all
// producer implementations.
type counters struct {
	captured  atomic.Uint64
	dropped   atomic.Uint64
	bytesRead atomic.Uint64
	lastUnit  atomic.Int64 // UnixNano of last delivery, 0 = none yet
}

func (c *counters) recordDelivery(payloadBytes int) uint64 {
	seq := c.captured.Add(1)
	c.bytesRead.Add(uint64(payloadBytes))
	c.lastUnit.Store(time.Now().UnixNano())
	return seq
}

func (c *counters) recordDrop() {
	c.dropped.Add(1)
}

// snapshot builds a Stats value from the counters.
func (c *counters) snapshot(targetFPS float64, started time.Time) Stats {
	captured := c.captured.Load()
	dropped := c.dropped.Load()

	var fpsReal float64
	if !started.IsZero() {
		if uptime := time.Since(started).Seconds(); uptime > 0 {
			fpsReal = float64(captured) / uptime
		}
	}

	var dropRate float64
	if total := captured + dropped; total > 0 {
		dropRate = float64(dropped) / float64(total) * 100.0
	}

	var latencyMS int64
	if last := c.lastUnit.Load(); last > 0 {
		latencyMS = time.Since(time.Unix(0, last)).Milliseconds()
	}

	return Stats{
		Captured:  captured,
		Dropped:   dropped,
		DropRate:  dropRate,
		FPSTarget: targetFPS,
		FPSReal:   fpsReal,
		LatencyMS: latencyMS,
		BytesRead: c.bytesRead.Load(),
	}
}
