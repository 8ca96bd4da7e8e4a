package tui

import (
	"sync/atomic"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scribe/metronome"
	"go-scribe/recorder"
	"go-scribe/stopinput"
	"go-scribe/theme"
	"go-scribe/transcribe"
)

func newTestModel(t *testing.T) (Model, *stopinput.Gesture, *atomic.Int32) {
	t.Helper()
	key := stopinput.NewGesture("key", 0)
	var stops atomic.Int32
	require.NoError(t, key.Enable(func() { stops.Add(1) }))

	snap := metronome.Snapshot{Flags: metronome.Flags{Quarter: true, Active: true}, Beat: 2, Sixteenth: 1}
	p := recorder.Params{BPM: 100, TimeSignature: metronome.ThreeFour, Title: "etude"}
	m := NewModel(theme.Default(), p, NewFeed(), key, func() (metronome.Snapshot, bool) { return snap, true })
	return m, key, &stops
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestViewShowsTake(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = update(m, StateMsg(recorder.PreRoll))
	m = update(m, refreshMsg{})

	view := m.View()
	assert.Contains(t, view, "PRE-ROLL")
	assert.Contains(t, view, "100bpm")
	assert.Contains(t, view, "3/4")
	assert.Contains(t, view, "etude")
	assert.Contains(t, view, "count-in 2/3")
	assert.Contains(t, view, "no notes yet")
}

func TestEventsListed(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = update(m, StateMsg(recorder.Transcribing))
	m = update(m, EventMsg(transcribe.Event{Note: 60, Velocity: 64, Rhythm: 0.5}))
	m = update(m, EventMsg(transcribe.Event{Note: 0, Velocity: 64, Rhythm: 0.25}))

	view := m.View()
	assert.Contains(t, view, "C4")
	assert.Contains(t, view, "rest")
	assert.Contains(t, view, "events: 2")
	assert.NotContains(t, view, "count-in")
}

func TestEventListScrolls(t *testing.T) {
	m, _, _ := newTestModel(t)
	for i := 0; i < eventRows+5; i++ {
		m = update(m, EventMsg(transcribe.Event{Note: uint8(40 + i), Velocity: 64, Rhythm: 0.25}))
	}
	assert.Len(t, m.events, eventRows)
	assert.Equal(t, eventRows+5, m.total)
	assert.Equal(t, uint8(40+eventRows+4), m.events[eventRows-1].Note)
}

func TestStopKeyTriggersGesture(t *testing.T) {
	m, _, stops := newTestModel(t)
	m = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Equal(t, int32(1), stops.Load())
	assert.True(t, m.stopping)

	next, cmd := m.Update(DoneMsg{Result: recorder.Result{Count: 3, Slices: 12}})
	m = next.(Model)
	require.NotNil(t, cmd)
	assert.True(t, m.quitting)

	res, err := m.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
}

func TestCeilingSummaryStaysOpen(t *testing.T) {
	m, _, stops := newTestModel(t)
	m = update(m, DoneMsg{Result: recorder.Result{Count: 4, CeilingHit: true}})

	assert.False(t, m.quitting)
	assert.Contains(t, m.View(), "event limit reached")
	assert.Contains(t, m.View(), "q:quit")

	m = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	assert.True(t, m.quitting)
	assert.Zero(t, stops.Load())
}

func TestFeedNeverBlocks(t *testing.T) {
	f := NewFeed()
	for i := 0; i < 1000; i++ {
		f.OnEvent(transcribe.Event{Note: 60})
	}
	assert.Len(t, f.ch, cap(f.ch))
}
