package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scribe/pitch"
	"go-scribe/ring"
)

func newEngine(t *testing.T, capacity int) (*Engine, *Sink) {
	t.Helper()
	r, err := ring.New(ring.DefaultSize)
	require.NoError(t, err)
	sink := NewSink(make([]Event, capacity))
	return NewEngine(r, sink), sink
}

func push(e *Engine, ests ...pitch.Estimate) {
	for _, est := range ests {
		e.Push(est)
	}
}

func est(note int, loud float64) pitch.Estimate {
	return pitch.Estimate{Note: note, Loudness: loud}
}

func TestSustainedNoteMerges(t *testing.T) {
	e, sink := newEngine(t, 16)
	push(e, est(60, 1.0), est(60, 1.0), est(60, 0.9), est(60, 0.9), est(60, 0.8))
	assert.Zero(t, sink.Len(), "nothing finalized while sustaining")

	_, ok := e.Flush()
	require.True(t, ok)
	require.Equal(t, 1, sink.Len())
	assert.Equal(t, Event{Note: 60, Velocity: 64, Rhythm: 1.25}, sink.Events()[0])
}

func TestPitchChangeSplits(t *testing.T) {
	e, sink := newEngine(t, 16)
	push(e, est(60, 1.0))

	ev, ok := e.Push(est(64, 1.0))
	require.True(t, ok)
	assert.Equal(t, Event{Note: 60, Velocity: 64, Rhythm: 0.25}, ev)

	push(e, est(64, 1.0))
	note, rhythm, pending := e.Pending()
	require.True(t, pending)
	assert.Equal(t, 64, note)
	assert.Equal(t, 0.5, rhythm)

	e.Flush()
	assert.Equal(t, []Event{
		{Note: 60, Velocity: 64, Rhythm: 0.25},
		{Note: 64, Velocity: 64, Rhythm: 0.5},
	}, sink.Events())
}

func TestLoudnessOnsetSplits(t *testing.T) {
	e, sink := newEngine(t, 16)
	push(e, est(60, 1.0))

	ev, ok := e.Push(est(60, 1.06))
	require.True(t, ok)
	assert.Equal(t, uint8(60), ev.Note)
	assert.Equal(t, 0.25, ev.Rhythm)
	assert.Equal(t, 1, sink.Len())
}

func TestLoudnessBelowThresholdSustains(t *testing.T) {
	e, sink := newEngine(t, 16)
	push(e, est(60, 1.0), est(60, 1.04))
	assert.Zero(t, sink.Len())

	_, rhythm, _ := e.Pending()
	assert.Equal(t, 0.5, rhythm)
}

func TestSingleSliceFlush(t *testing.T) {
	e, sink := newEngine(t, 4)
	push(e, est(67, 0.3))
	_, ok := e.Flush()
	require.True(t, ok)
	assert.Equal(t, []Event{{Note: 67, Velocity: 64, Rhythm: 0.25}}, sink.Events())
}

func TestFlushWithoutSlices(t *testing.T) {
	e, sink := newEngine(t, 4)
	_, ok := e.Flush()
	assert.False(t, ok)
	assert.Zero(t, sink.Len())
}

func TestRestsSegmentLikeNotes(t *testing.T) {
	e, sink := newEngine(t, 8)
	push(e, est(pitch.Rest, 0), est(pitch.Rest, 0), est(62, 0.5))
	e.Flush()

	events := sink.Events()
	require.Len(t, events, 2)
	assert.True(t, events[0].IsRest())
	assert.Equal(t, 2, events[0].Sixteenths())
	assert.Equal(t, uint8(62), events[1].Note)
}

func TestProvisionalSettledByNextSlice(t *testing.T) {
	r, err := ring.New(4)
	require.NoError(t, err)
	e := NewEngine(r, NewSink(make([]Event, 4)))

	e.Push(est(60, 1))
	assert.True(t, r.At(0).Provisional)

	e.Push(est(60, 1))
	assert.False(t, r.At(0).Provisional)
	assert.True(t, r.At(1).Provisional)

	e.Flush()
	assert.False(t, r.At(1).Provisional)
}

func TestSinkCeiling(t *testing.T) {
	const ceiling = 5
	e, sink := newEngine(t, ceiling)

	note := 40
	for !sink.Full() {
		e.Push(est(note, 1))
		note++
	}
	assert.Equal(t, ceiling-1, sink.Len())

	_, ok := e.Flush()
	require.True(t, ok)
	assert.Equal(t, ceiling, sink.Len())

	_, ok = e.Push(est(99, 1))
	assert.False(t, ok, "sink never grows past its slice")
	assert.Equal(t, ceiling, sink.Len())
}

func TestResetStartsOver(t *testing.T) {
	e, sink := newEngine(t, 8)
	push(e, est(60, 1), est(62, 1))
	e.Reset()

	assert.Zero(t, e.Count())
	assert.Zero(t, sink.Len())
	_, _, ok := e.Pending()
	assert.False(t, ok)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "C4 vel=64 len=0.50", Event{Note: 60, Velocity: 64, Rhythm: 0.5}.String())
}
