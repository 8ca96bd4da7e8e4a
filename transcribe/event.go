package transcribe

import (
	"fmt"

	"go-scribe/pitch"
)

// Quantization constants
const (
	SixteenthRhythm = 0.25 // rhythm units per slice
	OnsetRatio      = 1.05 // loudness increase that re-articulates a note
	FixedVelocity   = 64
)

// Event is one transcribed note. Rhythm is its length in quarter notes,
// always a positive multiple of SixteenthRhythm.
type Event struct {
	Note     uint8   `json:"note"`
	Velocity uint8   `json:"velocity"`
	Rhythm   float64 `json:"rhythm"`
}

// Sixteenths returns the length in slices
func (e Event) Sixteenths() int {
	return int(e.Rhythm/SixteenthRhythm + 0.5)
}

// IsRest reports whether the event is silence
func (e Event) IsRest() bool {
	return e.Note == pitch.Rest
}

func (e Event) String() string {
	return fmt.Sprintf("%s vel=%d len=%.2f", pitch.NoteName(int(e.Note)), e.Velocity, e.Rhythm)
}

// Sink appends events into a caller-owned slice and never writes past it.
// The last slot is reserved for the final flush.
type Sink struct {
	events []Event
	n      int
}

// NewSink wraps out; its length is the event ceiling
func NewSink(out []Event) *Sink {
	return &Sink{events: out}
}

// Append stores e and reports whether there was room
func (s *Sink) Append(e Event) bool {
	if s.n >= len(s.events) {
		return false
	}
	s.events[s.n] = e
	s.n++
	return true
}

// Len returns the number of events written
func (s *Sink) Len() int {
	return s.n
}

// Cap returns the ceiling
func (s *Sink) Cap() int {
	return len(s.events)
}

// Full reports whether only the flush slot remains
func (s *Sink) Full() bool {
	return s.n >= len(s.events)-1
}

// Events returns the written prefix of the caller's slice
func (s *Sink) Events() []Event {
	return s.events[:s.n]
}

// Reset forgets the written events
func (s *Sink) Reset() {
	s.n = 0
}
