package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"

	"go-scribe/metronome"
)

// playClicks opens the speaker and plays a click track following snap.
// The returned func stops playback and releases the device.
func playClicks(snap func() metronome.Snapshot, rate beep.SampleRate) (func(), error) {
	if err := speaker.Init(rate, rate.N(10*time.Millisecond)); err != nil {
		return nil, err
	}
	speaker.Play(metronome.NewClickTrack(snap, rate))
	return func() {
		speaker.Clear()
		speaker.Close()
	}, nil
}
