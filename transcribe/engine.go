// Package transcribe turns per-slice pitch estimates into quantized note
// events. Segmentation looks back exactly one slice: a note is extended
// while its pitch holds and no onset is heard, and finalized otherwise.
package transcribe

import (
	"go-scribe/pitch"
	"go-scribe/ring"
)

// Engine is the segmentation state of one session. It is owned by the
// polling loop and never touched by the tick context.
type Engine struct {
	notes  *ring.Ring
	sink   *Sink
	count  int
	rhythm float64
}

// NewEngine creates an engine that records history in notes and emits into sink
func NewEngine(notes *ring.Ring, sink *Sink) *Engine {
	e := &Engine{notes: notes, sink: sink}
	e.Reset()
	return e
}

// Reset starts a new transcription
func (e *Engine) Reset() {
	e.notes.Reset()
	e.sink.Reset()
	e.count = 0
	e.rhythm = SixteenthRhythm
}

// Count returns the number of slices pushed
func (e *Engine) Count() int {
	return e.count
}

// Pending returns the note still accumulating and its length so far
func (e *Engine) Pending() (note int, rhythm float64, ok bool) {
	if e.count == 0 {
		return 0, 0, false
	}
	return e.notes.At(e.count - 1).Number, e.rhythm, true
}

// Push adds one slice. It returns the finalized event, if any.
func (e *Engine) Push(est pitch.Estimate) (Event, bool) {
	cur := ring.Note{Number: est.Note, Loudness: est.Loudness, Provisional: true}
	e.notes.Put(e.count, cur)

	var (
		out     Event
		emitted bool
	)
	if e.count > 0 {
		prev := e.notes.At(e.count - 1)
		e.notes.Settle(e.count - 1)

		if cur.Number != prev.Number || cur.Loudness > OnsetRatio*prev.Loudness {
			out = e.event(prev.Number)
			emitted = e.sink.Append(out)
			e.rhythm = SixteenthRhythm
		} else {
			e.rhythm += SixteenthRhythm
		}
	}
	e.count++
	return out, emitted
}

// Flush finalizes the pending note. Every session that processed at least
// one slice yields an event here.
func (e *Engine) Flush() (Event, bool) {
	if e.count == 0 {
		return Event{}, false
	}
	e.notes.Settle(e.count - 1)
	out := e.event(e.notes.At(e.count - 1).Number)
	if !e.sink.Append(out) {
		return out, false
	}
	return out, true
}

func (e *Engine) event(note int) Event {
	return Event{
		Note:     clampNote(note),
		Velocity: FixedVelocity,
		Rhythm:   e.rhythm,
	}
}

func clampNote(n int) uint8 {
	if n < 0 {
		return 0
	}
	if n > 127 {
		return 127
	}
	return uint8(n)
}
