package metronome

import (
	"time"

	"github.com/pkg/errors"
)

// SixteenthsPerBeat is fixed: the grid is always sixteenth notes of a quarter beat
const SixteenthsPerBeat = 4

// RTTClock is the frequency of the device's real-time timer counter
const RTTClock = 32768

// ErrInvalidTempo is returned for a zero bpm
var ErrInvalidTempo = errors.New("tempo must be positive")

// TickPeriod returns the duration of one sixteenth note at bpm
func TickPeriod(bpm uint) (time.Duration, error) {
	if bpm == 0 {
		return 0, ErrInvalidTempo
	}
	return time.Minute / time.Duration(bpm) / SixteenthsPerBeat, nil
}

// RTTCount is the 32768 Hz timer reload value for one sixteenth
func RTTCount(bpm uint) uint32 {
	if bpm == 0 {
		return 0
	}
	return uint32(RTTClock * 15 / bpm)
}

// Flags are the transient boundary pulses of one tick.
// Quarter, Eighth and Measure are valid only until the next tick.
type Flags struct {
	Quarter bool // "one beat"
	Eighth  bool // "up beat"
	Measure bool // downbeat of a new measure
	Active  bool // metronome running, latched
}

// Counters hold the position inside the measure.
// Sixteenth runs 1..4, Beat runs 1..beatsPerMeasure.
type Counters struct {
	Sixteenth int
	Beat      int
}

// Start returns the counters for a fresh session, positioned so that
// the first tick lands on a downbeat.
func Start(beatsPerMeasure int) Counters {
	return Counters{Sixteenth: SixteenthsPerBeat, Beat: beatsPerMeasure}
}

// Advance performs one tick transition and returns the new counters
// together with the boundary flags raised by it.
func (c Counters) Advance(beatsPerMeasure int) (Counters, Flags) {
	var f Flags

	if c.Sixteenth == SixteenthsPerBeat {
		f.Quarter = true
		f.Active = true
		c.Sixteenth = 1
		if c.Beat >= beatsPerMeasure {
			f.Measure = true
			c.Beat = 1
		} else {
			c.Beat++
		}
		return c, f
	}

	// Halfway between quarters: the "and" of the beat
	if c.Sixteenth == 2 {
		f.Eighth = true
		f.Active = true
	}
	c.Sixteenth++
	return c, f
}
