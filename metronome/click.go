package metronome

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

const (
	clickLength  = 30 * time.Millisecond
	clickFreq    = 1000.0
	accentFreq   = 1500.0
	clickVolume  = 0.3
	clickDecayDB = 6.0 // decay constant in e-folds over the click length
)

// ClickTrack is an audible metronome. It follows the published snapshot
// and starts a short click on every quarter, accented on the downbeat.
type ClickTrack struct {
	snap     func() Snapshot
	rate     beep.SampleRate
	lastTick uint32

	freq   float64
	phase  float64
	pos    int
	length int
}

// NewClickTrack creates a click streamer that reads from snap
func NewClickTrack(snap func() Snapshot, rate beep.SampleRate) *ClickTrack {
	return &ClickTrack{
		snap:   snap,
		rate:   rate,
		length: rate.N(clickLength),
		pos:    rate.N(clickLength),
	}
}

func (c *ClickTrack) Stream(samples [][2]float64) (n int, ok bool) {
	s := c.snap()
	if s.Tick != c.lastTick {
		c.lastTick = s.Tick
		if s.Active && s.Quarter {
			c.freq = clickFreq
			if s.Measure {
				c.freq = accentFreq
			}
			c.phase = 0
			c.pos = 0
		}
	}

	for i := range samples {
		var val float64
		if c.pos < c.length {
			env := math.Exp(-clickDecayDB * float64(c.pos) / float64(c.length))
			val = clickVolume * env * math.Sin(2*math.Pi*c.phase)
			c.phase += c.freq / float64(c.rate)
			c.phase -= math.Floor(c.phase)
			c.pos++
		}
		samples[i][0] = val
		samples[i][1] = val
	}
	return len(samples), true
}

func (c *ClickTrack) Err() error { return nil }
