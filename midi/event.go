package midi

import (
	"math"
	"sort"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-scribe/transcribe"
)

// DefaultPPQ is the resolution used for export and playback
const DefaultPPQ = 960

// Ticks converts a rhythm in quarter notes to MIDI ticks
func Ticks(rhythm float64, ppq uint16) uint32 {
	if rhythm <= 0 {
		return 0
	}
	return uint32(math.Round(rhythm * float64(ppq)))
}

// Timed is a message at an absolute tick
type Timed struct {
	Tick uint32
	Msg  gomidi.Message
}

// Timeline lays out events back to back on channel (0-15). Rests only move
// the clock. Note offs sort before note ons on the same tick so repeated
// pitches retrigger.
func Timeline(events []transcribe.Event, channel uint8, ppq uint16) []Timed {
	var out []Timed
	var tick uint32
	for _, ev := range events {
		length := Ticks(ev.Rhythm, ppq)
		if !ev.IsRest() && length > 0 {
			out = append(out,
				Timed{Tick: tick, Msg: gomidi.NoteOn(channel, ev.Note, ev.Velocity)},
				Timed{Tick: tick + length, Msg: gomidi.NoteOff(channel, ev.Note)},
			)
		}
		tick += length
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tick != out[j].Tick {
			return out[i].Tick < out[j].Tick
		}
		return isNoteOff(out[i].Msg) && !isNoteOff(out[j].Msg)
	})
	return out
}

// Length returns the total duration of events in ticks
func Length(events []transcribe.Event, ppq uint16) uint32 {
	var total uint32
	for _, ev := range events {
		total += Ticks(ev.Rhythm, ppq)
	}
	return total
}

func isNoteOff(msg gomidi.Message) bool {
	var ch, key uint8
	return msg.GetNoteEnd(&ch, &key)
}

// Channel converts a 1-16 channel to the 0-15 wire value
func Channel(oneBased uint8) uint8 {
	if oneBased < 1 {
		return 0
	}
	if oneBased > 16 {
		return 15
	}
	return oneBased - 1
}
