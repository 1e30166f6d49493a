// Package timestamp provides conversions between time.Time and the
// snapshot wire format: floating-point seconds since the Unix epoch.
//
// The controller firmware and every historical snapshot file use
// float seconds, so the persistence layer must keep that representation.
// In-process code uses time.Time; conversion happens only at the
// snapshot boundary.
//
// Zero Value Semantics:
//   - A wire value of 0 means "not set"
//   - Seconds(time.Time{}) returns 0; FromSeconds(0) returns the zero time
package timestamp

import "time"

// Seconds converts a time.Time to float seconds since epoch.
// Returns 0 for the zero time.
func Seconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromSeconds converts float epoch seconds to time.Time.
// Returns the zero time if the value is 0.
func FromSeconds(s float64) time.Time {
	if s == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(s*float64(time.Second)))
}

// IsZero reports whether a wire timestamp is unset.
func IsZero(s float64) bool {
	return s == 0
}

// Between returns the duration between two wire timestamps.
// Returns 0 if either is unset.
func Between(start, end float64) time.Duration {
	if start == 0 || end == 0 {
		return 0
	}
	return FromSeconds(end).Sub(FromSeconds(start))
}

// Format renders a wire timestamp as a local-time display string.
// Presentation-layer concern only; the wire format stays numeric.
// Returns empty string for unset values.
func Format(s float64) string {
	if s == 0 {
		return ""
	}
	return FromSeconds(s).Local().Format("2006-01-02 15:04:05")
}
