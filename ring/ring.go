// Package ring holds the note history used for one-slice lookback
package ring

import (
	"github.com/pkg/errors"
)

// DefaultSize is the note buffer size of the recording device
const DefaultSize = 128

// ErrCapacity is returned for sizes that are not a power of two >= 2
var ErrCapacity = errors.New("ring size must be a power of two >= 2")

// Note is one segmented observation
type Note struct {
	Number      int
	Loudness    float64
	Provisional bool // the next slice may still extend this note
}

// Ring is a fixed-size circular buffer indexed by a running counter.
// Slot idx & mask is overwritten every len(notes) pushes.
type Ring struct {
	notes []Note
	mask  int
}

// New allocates a ring. The size is validated here, never at runtime.
func New(size int) (*Ring, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, errors.Wrapf(ErrCapacity, "got %d", size)
	}
	return &Ring{
		notes: make([]Note, size),
		mask:  size - 1,
	}, nil
}

// Size returns the capacity
func (r *Ring) Size() int {
	return len(r.notes)
}

// Put stores n at the slot for running index idx
func (r *Ring) Put(idx int, n Note) {
	r.notes[idx&r.mask] = n
}

// At returns the note stored for running index idx
func (r *Ring) At(idx int) Note {
	return r.notes[idx&r.mask]
}

// Settle marks the note at idx as decided
func (r *Ring) Settle(idx int) {
	r.notes[idx&r.mask].Provisional = false
}

// Reset empties the ring
func (r *Ring) Reset() {
	clear(r.notes)
}
