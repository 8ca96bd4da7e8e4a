package capture

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// DemoScale is C major from C4 to C5
var DemoScale = []float64{261.63, 293.66, 329.63, 349.23, 392.00, 440.00, 493.88, 523.25}

const toneAmplitude = 0.5

// Tone plays each frequency for one note length, then ends. A zero
// frequency is a rest.
type Tone struct {
	rate    beep.SampleRate
	freqs   []float64
	noteLen int

	note  int
	pos   int
	phase float64
}

// NewTone creates a tone sequence streamer
func NewTone(rate beep.SampleRate, freqs []float64, noteLen time.Duration) *Tone {
	return &Tone{
		rate:    rate,
		freqs:   freqs,
		noteLen: rate.N(noteLen),
	}
}

func (t *Tone) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) && t.note < len(t.freqs) {
		freq := t.freqs[t.note]

		var val float64
		if freq > 0 {
			val = toneAmplitude * math.Sin(2*math.Pi*t.phase)
			t.phase += freq / float64(t.rate)
			t.phase -= math.Floor(t.phase)
		}
		samples[n][0] = val
		samples[n][1] = val
		n++

		t.pos++
		if t.pos >= t.noteLen {
			t.pos = 0
			t.note++
		}
	}
	return n, n > 0
}

func (t *Tone) Err() error { return nil }

// Len returns the total number of samples
func (t *Tone) Len() int {
	return t.noteLen * len(t.freqs)
}
