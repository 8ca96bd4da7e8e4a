// Package handoff stages captured audio in two slice buffers whose roles
// swap on every tick: one is filled by the capture side while the other
// is held stable for the consumer.
package handoff

import (
	"sync"
	"sync/atomic"
)

// DoubleBuffer is a ping-pong pair of audio slices.
//
// Writers per field:
//   - capture side: the contents of the capture buffer (Write)
//   - tick side: the role flip and the ready cell (Swap, Signal)
//   - consumer: clears the ready cell (Take, under mu)
//
// mu is held only for a role flip or a single copy, never across pitch
// detection.
type DoubleBuffer struct {
	mu      sync.Mutex
	bufs    [2][]float32
	fill    [2]int
	capture int // index of the buffer being filled

	ready    atomic.Uint64 // tick sequence of the unread slice, 0 = none
	overruns atomic.Uint64
	dropped  atomic.Uint64
	slices   atomic.Uint64
}

// New allocates both buffers for sliceLen samples each
func New(sliceLen int) *DoubleBuffer {
	return &DoubleBuffer{
		bufs: [2][]float32{
			make([]float32, sliceLen),
			make([]float32, sliceLen),
		},
	}
}

// SliceLen returns the capacity of one slice in samples
func (d *DoubleBuffer) SliceLen() int {
	return len(d.bufs[0])
}

// Write appends samples to the capture buffer. Samples that do not fit
// in the current slice are discarded and counted in Dropped.
func (d *DoubleBuffer) Write(samples []float32) int {
	d.mu.Lock()
	buf := d.bufs[d.capture]
	n := copy(buf[d.fill[d.capture]:], samples)
	d.fill[d.capture] += n
	d.mu.Unlock()

	if n < len(samples) {
		d.dropped.Add(uint64(len(samples) - n))
	}
	return n
}

// Swap makes the capture buffer the ready one and starts filling the other.
// A slice still unread is about to be overwritten, so it is withdrawn and
// counted as an overrun. The tick waits on mu for at most one capture chunk
// copy or one slice copy in Take.
func (d *DoubleBuffer) Swap() {
	d.mu.Lock()
	if d.ready.Swap(0) != 0 {
		d.overruns.Add(1)
	}
	d.capture ^= 1
	d.fill[d.capture] = 0
	d.mu.Unlock()
}

// Signal publishes the ready slice under seq. If the previous slice was
// never taken it is lost and counted as an overrun; the tick does not wait.
func (d *DoubleBuffer) Signal(seq uint64) {
	if seq == 0 {
		seq = 1
	}
	if prev := d.ready.Swap(seq); prev != 0 {
		d.overruns.Add(1)
	}
	d.slices.Add(1)
}

// Pending reports whether a slice is waiting to be taken
func (d *DoubleBuffer) Pending() bool {
	return d.ready.Load() != 0
}

// Take reads and clears the ready cell and copies the ready slice into
// dst. ok is false when no slice is pending. The cell is cleared under mu
// so a tick cannot flip roles between the read and the copy.
func (d *DoubleBuffer) Take(dst []float32) (n int, seq uint64, ok bool) {
	if !d.Pending() {
		return 0, 0, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	seq = d.ready.Swap(0)
	if seq == 0 {
		return 0, 0, false
	}
	r := d.capture ^ 1
	n = copy(dst, d.bufs[r][:d.fill[r]])
	return n, seq, true
}

// Discard clears the ready cell without copying. Used while counting in.
func (d *DoubleBuffer) Discard() (seq uint64, ok bool) {
	seq = d.ready.Swap(0)
	return seq, seq != 0
}

// Overruns counts slices overwritten before the consumer took them
func (d *DoubleBuffer) Overruns() uint64 {
	return d.overruns.Load()
}

// Dropped counts captured samples that did not fit in a slice
func (d *DoubleBuffer) Dropped() uint64 {
	return d.dropped.Load()
}

// Slices counts signaled slices since the last Reset
func (d *DoubleBuffer) Slices() uint64 {
	return d.slices.Load()
}

// Reset zeroes both buffers and all counters. Not safe against a running
// tick source.
func (d *DoubleBuffer) Reset() {
	d.mu.Lock()
	for i := range d.bufs {
		clear(d.bufs[i])
		d.fill[i] = 0
	}
	d.capture = 0
	d.mu.Unlock()

	d.ready.Store(0)
	d.overruns.Store(0)
	d.dropped.Store(0)
	d.slices.Store(0)
}
