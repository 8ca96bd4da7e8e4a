package pitch

import (
	"fmt"
	"math"
)

// Rest is the note number reported for slices without a detectable pitch
const Rest = 0

// A4 reference
const (
	A4Note      = 69
	A4Frequency = 440.0
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// FrequencyToNote rounds a frequency to the nearest MIDI note number,
// clamped to 1..127. Non-positive frequencies are a Rest.
func FrequencyToNote(freq float64) int {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return Rest
	}
	n := int(math.Round(A4Note + 12*math.Log2(freq/A4Frequency)))
	if n < 1 {
		return 1
	}
	if n > 127 {
		return 127
	}
	return n
}

// NoteToFrequency returns the equal-tempered frequency of a MIDI note
func NoteToFrequency(note int) float64 {
	return A4Frequency * math.Pow(2, float64(note-A4Note)/12)
}

// NoteName returns names like "C4" or "A#3"; Rest is "rest" and anything
// outside the MIDI range is "?"
func NoteName(note int) string {
	if note == Rest {
		return "rest"
	}
	if note < 0 || note > 127 {
		return "?"
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}
