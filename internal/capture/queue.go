package capture

// sendLatest delivers v on ch without ever blocking the capture path.
//
// When the channel is full the oldest pending element is evicted so the
// newest frame always survives (latest-wins, bounded memory). Returns the
// number of evicted elements (0 or 1 in the single-producer case).
//
// Screen capture is best-effort, not lossless: a consumer that falls behind
// sees occasional gaps, never a blocked producer.
func sendLatest[T any](ch chan T, v T) (evicted int) {
	for {
		select {
		case ch <- v:
			return evicted
		default:
		}
		// Full: evict the oldest pending element and retry. The second
		// select catches the race where the consumer drained the channel
		// between our two operations.
		select {
		case <-ch:
			evicted++
		default:
		}
	}
}
