package metronome

import (
	"sync/atomic"
)

// Handoff is the audio side of a tick: swap buffers first, signal last.
type Handoff interface {
	Swap()
	Signal(seq uint64)
}

// Snapshot is a consistent view of the metronome published by the tick
// context. It is decoded from a single atomic word, so the polling side
// never observes a half-updated wrap.
type Snapshot struct {
	Flags
	Sixteenth int
	Beat      int
	Tick      uint32 // ticks since Reset, wraps at 2^32
}

const (
	bitQuarter = 1 << iota
	bitEighth
	bitMeasure
	bitActive
)

func pack(c Counters, f Flags, tick uint64) uint64 {
	var w uint64
	if f.Quarter {
		w |= bitQuarter
	}
	if f.Eighth {
		w |= bitEighth
	}
	if f.Measure {
		w |= bitMeasure
	}
	if f.Active {
		w |= bitActive
	}
	w |= uint64(uint8(c.Sixteenth)) << 8
	w |= uint64(uint8(c.Beat)) << 16
	w |= uint64(uint32(tick)) << 32
	return w
}

func unpack(w uint64) Snapshot {
	return Snapshot{
		Flags: Flags{
			Quarter: w&bitQuarter != 0,
			Eighth:  w&bitEighth != 0,
			Measure: w&bitMeasure != 0,
			Active:  w&bitActive != 0,
		},
		Sixteenth: int(uint8(w >> 8)),
		Beat:      int(uint8(w >> 16)),
		Tick:      uint32(w >> 32),
	}
}

// Metronome converts a periodic tick into musical time.
//
// Tick runs in the tick context and is the only writer of every field
// except state, which it publishes atomically. Reset must not race Tick.
type Metronome struct {
	beats    int
	counters Counters
	active   bool
	tick     uint64
	handoff  Handoff

	state atomic.Uint64
}

// New creates a metronome for the given measure length. h may be nil
// when only the counters are needed.
func New(beatsPerMeasure int, h Handoff) *Metronome {
	m := &Metronome{beats: beatsPerMeasure, handoff: h}
	m.Reset()
	return m
}

// Reset returns the counters to their session start position and clears
// all flags, including Active.
func (m *Metronome) Reset() {
	m.counters = Start(m.beats)
	m.active = false
	m.tick = 0
	m.state.Store(pack(m.counters, Flags{}, 0))
}

// BeatsPerMeasure returns the configured measure length
func (m *Metronome) BeatsPerMeasure() int {
	return m.beats
}

// Tick is the tick handler. O(1), no allocation, never blocks on the
// consumer.
func (m *Metronome) Tick() {
	if m.handoff != nil {
		m.handoff.Swap()
	}

	// Replacing the published word clears last tick's pulses
	c, f := m.counters.Advance(m.beats)
	if f.Active {
		m.active = true
	}
	f.Active = m.active
	m.counters = c
	m.tick++
	m.state.Store(pack(c, f, m.tick))

	if m.handoff != nil {
		m.handoff.Signal(m.tick)
	}
}

// Snapshot returns the flags and position published by the last tick
func (m *Metronome) Snapshot() Snapshot {
	return unpack(m.state.Load())
}
