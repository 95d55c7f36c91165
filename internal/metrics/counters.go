// Package metrics holds the small set of counters SPEC_FULL.md §4.13 names
// explicitly (dropped frames, degraded-pipeline signals, overload
// rejections, booking conflicts). No metrics client library is introduced:
// the spec's Non-goals bound metrics to exactly these counters, so plain
// atomics surfaced on the health endpoint are the whole of it.
package metrics

import "sync/atomic"

// Counter is a monotonically increasing count, safe for concurrent use.
type Counter struct {
	v atomic.Uint64
}

// Add increments the counter by delta.
func (c *Counter) Add(delta uint64) { c.v.Add(delta) }

// Load returns the current count.
func (c *Counter) Load() uint64 { return c.v.Load() }

// Registry is the fixed set of platform counters surfaced on /health.
type Registry struct {
	DroppedFrames      Counter
	DegradedSignals    Counter
	OverloadRejections Counter
	BookingConflicts   Counter
}

// Snapshot returns the current counter values as a plain map for JSON
// embedding in the health response.
func (r *Registry) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"dropped_frames":      r.DroppedFrames.Load(),
		"degraded_signals":    r.DegradedSignals.Load(),
		"overload_rejections": r.OverloadRejections.Load(),
		"booking_conflicts":   r.BookingConflicts.Load(),
	}
}
