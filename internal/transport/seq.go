package transport

import "sync/atomic"

// seqCounter assigns strictly monotonic sequence numbers to outbound events
// for one chat_id. It resets to 0 immediately after a resume_boundary is
// emitted, so live events following a resume start at 1 again (spec.md
// §4.6, §4.9 step 5).
type seqCounter struct {
	n atomic.Uint64
}

// next returns the next sequence number, starting at 1.
func (c *seqCounter) next() uint64 {
	return c.n.Add(1)
}

// reset zeroes the counter; the next call to next() returns 1.
func (c *seqCounter) reset() {
	c.n.Store(0)
}

// current reports the last-assigned sequence number without advancing it.
func (c *seqCounter) current() uint64 {
	return c.n.Load()
}
