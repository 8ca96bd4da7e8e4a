package recorder

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-scribe/metronome"
	"go-scribe/pitch"
	"go-scribe/transcribe"
)

// lockstepTicks fires ticks from the test goroutine and waits for the
// polling loop to finish each slice before firing the next.
type lockstepTicks struct {
	r        *Recorder
	startErr error

	started   chan struct{}
	onTick    func()
	fired     uint64
	stopped   atomic.Bool
	starts    atomic.Int32
	stopCalls atomic.Int32
	snaps     []metronome.Snapshot
}

func newLockstep() *lockstepTicks {
	return &lockstepTicks{started: make(chan struct{}, 1)}
}

func (l *lockstepTicks) Start(period time.Duration, onTick func()) error {
	if l.startErr != nil {
		return l.startErr
	}
	l.onTick = onTick
	l.fired = 0
	l.snaps = nil
	l.stopped.Store(false)
	l.starts.Add(1)
	l.started <- struct{}{}
	return nil
}

func (l *lockstepTicks) Stop() error {
	l.stopped.Store(true)
	l.stopCalls.Add(1)
	return nil
}

func (l *lockstepTicks) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-l.started:
	case <-time.After(2 * time.Second):
		t.Fatal("tick source never started")
	}
}

func (l *lockstepTicks) fire(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if l.stopped.Load() {
			return
		}
		l.onTick()
		l.fired++
		if s, ok := l.r.Snapshot(); ok {
			l.snaps = append(l.snaps, s)
		}

		deadline := time.Now().Add(2 * time.Second)
		for l.r.Consumed() < l.fired && !l.stopped.Load() {
			if time.Now().After(deadline) {
				t.Fatalf("slice %d never consumed", l.fired)
			}
			runtime.Gosched()
		}
	}
}

// tick fires one tick without waiting for the slice to be consumed
func (l *lockstepTicks) tick() {
	l.onTick()
	l.fired++
}

func (l *lockstepTicks) waitConsumed(t *testing.T, n uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for l.r.Consumed() < n {
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d slices consumed", l.r.Consumed(), n)
		}
		runtime.Gosched()
	}
}

type scriptDetector struct {
	script []pitch.Estimate
	calls  atomic.Int32
	closed atomic.Bool
}

func (d *scriptDetector) Estimate(slice []float32) (pitch.Estimate, error) {
	i := int(d.calls.Add(1)) - 1
	if len(d.script) == 0 {
		return pitch.Estimate{}, nil
	}
	if i >= len(d.script) {
		i = len(d.script) - 1
	}
	return d.script[i], nil
}

func (d *scriptDetector) Close() error {
	d.closed.Store(true)
	return nil
}

type fakeStop struct {
	mu       sync.Mutex
	stop     func()
	enabled  int
	disabled int
}

func (f *fakeStop) Enable(stop func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop = stop
	f.enabled++
	return nil
}

func (f *fakeStop) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stop = nil
	f.disabled++
	return nil
}

func (f *fakeStop) press() {
	f.mu.Lock()
	stop := f.stop
	f.mu.Unlock()
	if stop != nil {
		stop()
	}
}

type fakeCapture struct {
	started atomic.Int32
	stopped atomic.Int32
}

func (c *fakeCapture) Start(w SampleWriter) error {
	c.started.Add(1)
	w.Write([]float32{0, 0, 0, 0})
	return nil
}

func (c *fakeCapture) Stop() error {
	c.stopped.Add(1)
	return nil
}

type rig struct {
	rec     *Recorder
	ticks   *lockstepTicks
	det     *scriptDetector
	stop    *fakeStop
	capture *fakeCapture
	opened  atomic.Int32
}

func newRig(script ...pitch.Estimate) *rig {
	g := &rig{
		ticks:   newLockstep(),
		det:     &scriptDetector{script: script},
		stop:    &fakeStop{},
		capture: &fakeCapture{},
	}
	g.rec = New(g.ticks, func(bufferSize, sampleRate int) (pitch.Detector, error) {
		g.opened.Add(1)
		return g.det, nil
	})
	g.rec.SetStopInput(g.stop)
	g.rec.SetCapture(g.capture)
	g.rec.SetSampleRate(8000)
	g.ticks.r = g.rec
	return g
}

type outcome struct {
	res Result
	err error
}

func (g *rig) start(out []transcribe.Event, p Params) <-chan outcome {
	ch := make(chan outcome, 1)
	go func() {
		res, err := g.rec.Record(context.Background(), out, p)
		ch <- outcome{res, err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan outcome) outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("take never finished")
		return outcome{}
	}
}

func params(sig metronome.TimeSignature) Params {
	return Params{BPM: 120, TimeSignature: sig, Title: "test"}
}

func preRoll(t *testing.T, sig metronome.TimeSignature) int {
	beats, err := sig.BeatsPerMeasure()
	require.NoError(t, err)
	return 4*beats + 1
}

func est(note int, loud float64) pitch.Estimate {
	return pitch.Estimate{Note: note, Loudness: loud}
}

func TestPreRollLength(t *testing.T) {
	for _, sig := range metronome.Signatures {
		g := newRig(est(60, 1))
		ch := g.start(make([]transcribe.Event, 8), params(sig))
		g.ticks.waitStarted(t)

		n := preRoll(t, sig)
		g.ticks.fire(t, n)
		assert.Zero(t, g.det.calls.Load(), "%s: no slice transcribed during count-in", sig)

		g.ticks.fire(t, 1)
		assert.Equal(t, int32(1), g.det.calls.Load(), "%s", sig)

		g.rec.RequestStop()
		o := wait(t, ch)
		require.NoError(t, o.err)
		assert.Equal(t, uint64(n+1), o.res.Ticks)
	}
}

func TestFirstTranscribedSliceStartsOnDownbeat(t *testing.T) {
	g := newRig(est(60, 1))
	ch := g.start(make([]transcribe.Event, 8), params(metronome.ThreeFour))
	g.ticks.waitStarted(t)

	n := preRoll(t, metronome.ThreeFour)
	g.ticks.fire(t, n+1)
	g.rec.RequestStop()
	wait(t, ch)

	// The slice handed over at tick n+1 was captured from tick n on
	downbeat := g.ticks.snaps[n-1]
	assert.True(t, downbeat.Measure)
	assert.True(t, downbeat.Quarter)
}

func TestSustainedNoteThroughSession(t *testing.T) {
	g := newRig(est(60, 1.0), est(60, 1.0), est(60, 1.0), est(60, 0.9), est(60, 0.9))
	out := make([]transcribe.Event, 8)
	ch := g.start(out, params(metronome.TwoFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, preRoll(t, metronome.TwoFour)+5)
	g.rec.RequestStop()
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.Equal(t, 1, o.res.Count)
	assert.Equal(t, transcribe.Event{Note: 60, Velocity: 64, Rhythm: 1.25}, out[0])
	assert.Equal(t, 5, o.res.Slices)
	assert.False(t, o.res.CeilingHit)
}

func TestSingleSliceTake(t *testing.T) {
	g := newRig(est(72, 0.4))
	out := make([]transcribe.Event, 8)
	ch := g.start(out, params(metronome.FourFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, preRoll(t, metronome.FourFour)+1)
	g.rec.RequestStop()
	o := wait(t, ch)

	require.NoError(t, o.err)
	require.Equal(t, 1, o.res.Count)
	assert.Equal(t, 0.25, out[0].Rhythm)
	assert.Equal(t, uint8(72), out[0].Note)
}

func TestCeilingStop(t *testing.T) {
	const ceiling = 4
	var script []pitch.Estimate
	for i := 0; i < 3*ceiling; i++ {
		script = append(script, est(40+i, 1))
	}
	g := newRig(script...)

	var emitted []transcribe.Event
	g.rec.SetOnEvent(func(e transcribe.Event) { emitted = append(emitted, e) })

	backing := make([]transcribe.Event, ceiling+1)
	out := backing[:ceiling]
	ch := g.start(out, params(metronome.FourFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, preRoll(t, metronome.FourFour)+3*ceiling)
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.True(t, o.res.CeilingHit)
	assert.Equal(t, ceiling, o.res.Count)
	assert.Equal(t, transcribe.Event{}, backing[ceiling], "never writes past the caller's slice")
	assert.Equal(t, o.res.Events, emitted)

	// Last event is the flushed pending note
	assert.Equal(t, uint8(40+ceiling-1), out[ceiling-1].Note)
	assert.Equal(t, 0.25, out[ceiling-1].Rhythm)
	assert.Equal(t, int32(1), g.ticks.stopCalls.Load())
}

func TestOneEventTake(t *testing.T) {
	g := newRig(est(67, 1), est(69, 1))
	out := make([]transcribe.Event, 1)
	ch := g.start(out, params(metronome.FourFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, preRoll(t, metronome.FourFour)+2)
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.True(t, o.res.CeilingHit)
	require.Equal(t, 1, o.res.Count)
	assert.Equal(t, transcribe.Event{Note: 67, Velocity: 64, Rhythm: 0.25}, out[0])
	assert.Equal(t, 1, o.res.Slices)
}

func TestOutOfRangeNoteFromDetector(t *testing.T) {
	g := newRig(est(-1, 1), est(60, 1))
	out := make([]transcribe.Event, 8)
	ch := g.start(out, params(metronome.TwoFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, preRoll(t, metronome.TwoFour)+2)
	g.rec.RequestStop()
	o := wait(t, ch)

	require.NoError(t, o.err)
	require.Equal(t, 2, o.res.Count)
	assert.Equal(t, uint8(pitch.Rest), out[0].Note)
	assert.Equal(t, uint8(60), out[1].Note)
}

// heldDetector blocks its first Estimate until release is closed
type heldDetector struct {
	scriptDetector
	entered chan struct{}
	release chan struct{}
}

func (d *heldDetector) Estimate(slice []float32) (pitch.Estimate, error) {
	if d.calls.Load() == 0 {
		d.entered <- struct{}{}
		<-d.release
	}
	return d.scriptDetector.Estimate(slice)
}

func TestOverrunReportedInResult(t *testing.T) {
	g := newRig()
	det := &heldDetector{
		scriptDetector: scriptDetector{script: []pitch.Estimate{est(60, 1), est(64, 1)}},
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	g.rec.detectors = func(int, int) (pitch.Detector, error) { return det, nil }

	out := make([]transcribe.Event, 8)
	ch := g.start(out, params(metronome.FourFour))
	g.ticks.waitStarted(t)

	n := preRoll(t, metronome.FourFour)
	g.ticks.fire(t, n)

	// First slice is taken and stuck in the detector
	g.ticks.tick()
	select {
	case <-det.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first slice never reached the detector")
	}

	// The second slice is published, then overwritten by the third
	g.ticks.tick()
	g.ticks.tick()
	close(det.release)
	g.ticks.waitConsumed(t, uint64(n+2))

	g.rec.RequestStop()
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.Equal(t, uint64(1), o.res.Overruns)
	assert.Equal(t, uint64(n+3), o.res.Ticks)
	assert.Equal(t, 2, o.res.Slices, "one of three slices skipped")
	assert.Equal(t, int32(2), det.calls.Load())
	require.Equal(t, 2, o.res.Count)
	assert.Equal(t, uint8(60), out[0].Note)
	assert.Equal(t, uint8(64), out[1].Note)
}

func TestResourcesReleasedOnNormalStop(t *testing.T) {
	g := newRig(est(60, 1))
	var states []State
	var mu sync.Mutex
	g.rec.SetOnState(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	ch := g.start(make([]transcribe.Event, 8), params(metronome.TwoFour))
	g.ticks.waitStarted(t)
	g.ticks.fire(t, preRoll(t, metronome.TwoFour)+2)
	g.stop.press()
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.Equal(t, 1, g.stop.enabled)
	assert.Equal(t, 1, g.stop.disabled)
	assert.True(t, g.det.closed.Load())
	assert.Equal(t, int32(1), g.capture.started.Load())
	assert.Equal(t, int32(1), g.capture.stopped.Load())
	assert.Equal(t, int32(1), g.ticks.stopCalls.Load())
	assert.Equal(t, Idle, g.rec.State())
	assert.False(t, g.rec.Recording())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{PreRoll, Transcribing, Finalizing, Idle}, states)
}

func TestStopDuringPreRoll(t *testing.T) {
	g := newRig(est(60, 1))
	ch := g.start(make([]transcribe.Event, 8), params(metronome.FourFour))
	g.ticks.waitStarted(t)

	g.ticks.fire(t, 3)
	g.rec.RequestStop()
	o := wait(t, ch)

	require.NoError(t, o.err)
	assert.Zero(t, o.res.Count)
	assert.Zero(t, g.det.calls.Load())
	assert.True(t, g.det.closed.Load())
	assert.Equal(t, 1, g.stop.disabled)
}

func TestUnknownTimeSignatureFailsFast(t *testing.T) {
	g := newRig()
	_, err := g.rec.Record(context.Background(), make([]transcribe.Event, 8), params("5/4"))

	assert.ErrorIs(t, err, metronome.ErrUnknownTimeSignature)
	assert.Zero(t, g.stop.enabled)
	assert.Zero(t, g.opened.Load())
	assert.Zero(t, g.ticks.starts.Load())
	assert.Equal(t, Idle, g.rec.State())
}

func TestInvalidParams(t *testing.T) {
	g := newRig()

	p := params(metronome.FourFour)
	p.BPM = 0
	_, err := g.rec.Record(context.Background(), make([]transcribe.Event, 8), p)
	assert.ErrorIs(t, err, metronome.ErrInvalidTempo)

	_, err = g.rec.Record(context.Background(), nil, params(metronome.FourFour))
	assert.ErrorIs(t, err, ErrNoEventSpace)

	g.rec.SetRingSize(100)
	_, err = g.rec.Record(context.Background(), make([]transcribe.Event, 8), params(metronome.FourFour))
	assert.Error(t, err)

	assert.Zero(t, g.stop.enabled)
}

func TestDetectorFailureReleasesStopInput(t *testing.T) {
	g := newRig()
	boom := errors.New("out of memory")
	g.rec.detectors = func(int, int) (pitch.Detector, error) { return nil, boom }

	_, err := g.rec.Record(context.Background(), make([]transcribe.Event, 8), params(metronome.FourFour))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, g.stop.enabled)
	assert.Equal(t, 1, g.stop.disabled)
	assert.Zero(t, g.capture.started.Load())
	assert.Zero(t, g.ticks.starts.Load())
	assert.False(t, g.rec.Recording())
}

func TestTickSourceFailureReleasesEverything(t *testing.T) {
	g := newRig()
	g.ticks.startErr = errors.New("timer busy")

	_, err := g.rec.Record(context.Background(), make([]transcribe.Event, 8), params(metronome.FourFour))
	assert.Error(t, err)
	assert.True(t, g.det.closed.Load())
	assert.Equal(t, int32(1), g.capture.stopped.Load())
	assert.Equal(t, 1, g.stop.disabled)
	assert.Zero(t, g.ticks.stopCalls.Load())
}

func TestBusy(t *testing.T) {
	g := newRig(est(60, 1))
	ch := g.start(make([]transcribe.Event, 8), params(metronome.FourFour))
	g.ticks.waitStarted(t)

	_, err := g.rec.Record(context.Background(), make([]transcribe.Event, 8), params(metronome.FourFour))
	assert.ErrorIs(t, err, ErrBusy)

	g.rec.RequestStop()
	wait(t, ch)
}

func TestContextCancelStops(t *testing.T) {
	g := newRig(est(60, 1))
	ctx, cancel := context.WithCancel(context.Background())

	ch := make(chan outcome, 1)
	go func() {
		res, err := g.rec.Record(ctx, make([]transcribe.Event, 8), params(metronome.FourFour))
		ch <- outcome{res, err}
	}()
	g.ticks.waitStarted(t)
	cancel()

	o := wait(t, ch)
	assert.NoError(t, o.err)
	assert.Zero(t, o.res.Count)
}

func TestSequentialTakesAreIdentical(t *testing.T) {
	script := []pitch.Estimate{est(60, 1), est(60, 1), est(62, 1), est(62, 1.2), est(64, 1)}
	g := newRig(script...)
	p := params(metronome.SixEight)
	n := preRoll(t, metronome.SixEight) + len(script)

	run := func() (Result, []metronome.Snapshot, []transcribe.Event) {
		g.det.calls.Store(0)
		out := make([]transcribe.Event, 16)
		ch := g.start(out, p)
		g.ticks.waitStarted(t)
		g.ticks.fire(t, n)
		g.rec.RequestStop()
		o := wait(t, ch)
		require.NoError(t, o.err)
		return o.res, append([]metronome.Snapshot(nil), g.ticks.snaps...), out[:o.res.Count]
	}

	res1, snaps1, ev1 := run()
	res2, snaps2, ev2 := run()

	require.Len(t, snaps1, n)
	assert.Equal(t, snaps1, snaps2)
	assert.Equal(t, ev1, ev2)
	assert.NotEqual(t, res1.SessionID, res2.SessionID)
	assert.Equal(t, []transcribe.Event{
		{Note: 60, Velocity: 64, Rhythm: 0.5},
		{Note: 62, Velocity: 64, Rhythm: 0.25},
		{Note: 62, Velocity: 64, Rhythm: 0.25},
		{Note: 64, Velocity: 64, Rhythm: 0.25},
	}, ev1)
}

func TestSliceLen(t *testing.T) {
	n, err := SliceLen(120, 48000)
	require.NoError(t, err)
	assert.Equal(t, 6000, n)

	_, err = SliceLen(0, 48000)
	assert.Error(t, err)
}

func TestClockSource(t *testing.T) {
	c := NewClockSource()
	assert.ErrorIs(t, c.Start(0, func() {}), ErrTickPeriod)

	var ticks atomic.Int32
	require.NoError(t, c.Start(2*time.Millisecond, func() { ticks.Add(1) }))
	assert.Error(t, c.Start(2*time.Millisecond, func() {}), "already running")

	time.Sleep(40 * time.Millisecond)
	require.NoError(t, c.Stop())
	after := ticks.Load()
	assert.Greater(t, after, int32(0))

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")
	assert.NoError(t, c.Stop())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pre-roll", PreRoll.String())
	assert.Equal(t, "unknown", State(9).String())
}
