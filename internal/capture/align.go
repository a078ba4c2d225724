package capture

import "time"

// HostTimeRef anchors a device audio clock to the shared host clock. The
// reference is captured at buffer-delivery time: the host clock reading and
// the device PTS observed in the same instant.
type HostTimeRef struct {
	HostTime  time.Time
	DevicePTS time.Duration
	Valid     bool
}

// AlignDeviceTime converts a device-clock timestamp to the shared host
// clock using the captured reference.
//
// If the reference is unavailable the conversion falls back to wall-clock
// "now" at the moment of conversion - drift is accepted rather than failing
// the recording.
func AlignDeviceTime(devicePTS time.Duration, ref HostTimeRef) time.Time {
	if !ref.Valid {
		return time.Now()
	}
	return ref.HostTime.Add(devicePTS - ref.DevicePTS)
}

// DriftTolerance is the accepted divergence between the microphone clock
// and the shared capture clock before desync is flagged. One frame interval
// at 30 fps: a desync below this is invisible in the muxed output.
const DriftTolerance = 33 * time.Millisecond

// driftExceeded reports whether an aligned timestamp has diverged from the
// host clock beyond tolerance.
func driftExceeded(aligned, host time.Time) bool {
	d := host.Sub(aligned)
	if d < 0 {
		d = -d
	}
	return d > DriftTolerance
}
