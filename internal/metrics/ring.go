package metrics

import "time"

// latencyRing keeps the most recent latencies, overwriting the oldest once
// full. It is not safe for concurrent use; Aggregator guards it.
type latencyRing struct {
	data     []time.Duration
	writePos int
	count    int
}

func newLatencyRing(size int) *latencyRing {
	return &latencyRing{data: make([]time.Duration, size)}
}

func (r *latencyRing) add(d time.Duration) {
	r.data[r.writePos] = d
	r.writePos = (r.writePos + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// snapshot returns the buffered latencies, oldest first
func (r *latencyRing) snapshot() []time.Duration {
	out := make([]time.Duration, r.count)
	if r.count < len(r.data) {
		copy(out, r.data[:r.count])
		return out
	}
	n := copy(out, r.data[r.writePos:])
	copy(out[n:], r.data[:r.writePos])
	return out
}
