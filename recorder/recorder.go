// Package recorder runs one transcription take: count-in, slice-by-slice
// transcription and orderly teardown of the tick source, capture, pitch
// detector and stop input.
package recorder

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-scribe/debug"
	"go-scribe/handoff"
	"go-scribe/metronome"
	"go-scribe/pitch"
	"go-scribe/ring"
	"go-scribe/transcribe"
)

// State of the session controller
type State int32

const (
	Idle State = iota
	PreRoll
	Transcribing
	Finalizing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PreRoll:
		return "pre-roll"
	case Transcribing:
		return "transcribing"
	case Finalizing:
		return "finalizing"
	}
	return "unknown"
}

var (
	ErrBusy         = errors.New("recorder: take already running")
	ErrNoEventSpace = errors.New("recorder: event slice is empty")
	ErrNoDetector   = errors.New("recorder: no pitch detector")
)

// DefaultSampleRate is the recording device's codec rate
const DefaultSampleRate = 46503

// Params describe one take
type Params struct {
	BPM           uint                    `json:"bpm"`
	Instrument    uint8                   `json:"instrument"`
	TimeSignature metronome.TimeSignature `json:"timeSignature"`
	KeySignature  string                  `json:"keySignature,omitempty"`
	Title         string                  `json:"title,omitempty"`
}

// Result summarizes a finished take
type Result struct {
	SessionID  uuid.UUID          `json:"sessionId"`
	Params     Params             `json:"params"`
	StartedAt  time.Time          `json:"startedAt"`
	Count      int                `json:"count"`
	Events     []transcribe.Event `json:"events"`
	Slices     int                `json:"slices"`   // slices transcribed
	Ticks      uint64             `json:"ticks"`    // ticks signaled, count-in included
	Overruns   uint64             `json:"overruns"` // slices lost to a slow consumer
	Dropped    uint64             `json:"dropped"`  // capture samples beyond a slice
	CeilingHit bool               `json:"ceilingHit"`
	Errors     int                `json:"detectorErrors,omitempty"`
}

// Recorder is the session controller. One take at a time.
type Recorder struct {
	ticks      TickSource
	detectors  pitch.Factory
	stop       StopInput
	capture    Capture
	sampleRate int
	ringSize   int

	onState func(State)
	onEvent func(transcribe.Event)

	state     atomic.Int32
	recording atomic.Bool
	consumed  atomic.Uint64
	metro     atomic.Pointer[metronome.Metronome]
}

// New creates a recorder driven by ticks that opens detectors per take
func New(ticks TickSource, detectors pitch.Factory) *Recorder {
	return &Recorder{
		ticks:      ticks,
		detectors:  detectors,
		sampleRate: DefaultSampleRate,
		ringSize:   ring.DefaultSize,
	}
}

// SetStopInput sets the external stop gesture source
func (r *Recorder) SetStopInput(s StopInput) {
	r.stop = s
}

// SetCapture sets the audio acquisition
func (r *Recorder) SetCapture(c Capture) {
	r.capture = c
}

// SetSampleRate sets the capture rate used to size slices
func (r *Recorder) SetSampleRate(rate int) {
	r.sampleRate = rate
}

// SetRingSize sets the note history capacity (power of two)
func (r *Recorder) SetRingSize(n int) {
	r.ringSize = n
}

// SetOnState registers a callback for state transitions
func (r *Recorder) SetOnState(f func(State)) {
	r.onState = f
}

// SetOnEvent registers a callback for every finalized event. It runs on
// the polling loop and eats into the slice budget.
func (r *Recorder) SetOnEvent(f func(transcribe.Event)) {
	r.onEvent = f
}

// State returns the current controller state
func (r *Recorder) State() State {
	return State(r.state.Load())
}

// Recording reports whether a take is running and has not been asked to stop
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// RequestStop ends the current take at the next poll
func (r *Recorder) RequestStop() {
	r.recording.Store(false)
}

// Consumed counts slices fully handled by the polling loop, count-in included
func (r *Recorder) Consumed() uint64 {
	return r.consumed.Load()
}

// Snapshot returns the metronome state of the current or last take
func (r *Recorder) Snapshot() (metronome.Snapshot, bool) {
	m := r.metro.Load()
	if m == nil {
		return metronome.Snapshot{}, false
	}
	return m.Snapshot(), true
}

func (r *Recorder) setState(s State) {
	r.state.Store(int32(s))
	if r.onState != nil {
		r.onState(s)
	}
}

// SliceLen returns the number of samples in one sixteenth at bpm
func SliceLen(bpm uint, sampleRate int) (int, error) {
	period, err := metronome.TickPeriod(bpm)
	if err != nil {
		return 0, err
	}
	n := int(period.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return n, nil
}

// Record runs one take and blocks until it is finalized. out is owned by
// the caller; its length is the event ceiling and it is never written past.
func (r *Recorder) Record(ctx context.Context, out []transcribe.Event, p Params) (Result, error) {
	if r.detectors == nil {
		return Result{}, ErrNoDetector
	}
	if !r.state.CompareAndSwap(int32(Idle), int32(PreRoll)) {
		return Result{}, ErrBusy
	}
	defer r.setState(Idle)

	// Configuration errors fail before anything is acquired
	beats, err := p.TimeSignature.BeatsPerMeasure()
	if err != nil {
		return Result{}, err
	}
	period, err := metronome.TickPeriod(p.BPM)
	if err != nil {
		return Result{}, err
	}
	if len(out) == 0 {
		return Result{}, ErrNoEventSpace
	}
	if r.sampleRate <= 0 {
		return Result{}, errors.Wrapf(pitch.ErrSampleRate, "%d", r.sampleRate)
	}
	notes, err := ring.New(r.ringSize)
	if err != nil {
		return Result{}, err
	}
	sliceLen, _ := SliceLen(p.BPM, r.sampleRate)

	buffers := handoff.New(sliceLen)
	metro := metronome.New(beats, buffers)
	sink := transcribe.NewSink(out)
	engine := transcribe.NewEngine(notes, sink)

	res := Result{
		SessionID: uuid.New(),
		Params:    p,
		StartedAt: time.Now(),
	}
	r.metro.Store(metro)
	r.consumed.Store(0)
	r.recording.Store(true)
	r.setState(PreRoll)

	debug.Log("session", "start id=%s bpm=%d sig=%s period=%s rtt=%d slice=%d title=%q",
		res.SessionID, p.BPM, p.TimeSignature, period, metronome.RTTCount(p.BPM), sliceLen, p.Title)

	// Acquired resources, released in reverse on every exit path
	var held []func()
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
		held = nil
	}
	defer release()
	defer r.recording.Store(false)

	if r.stop != nil {
		if err := r.stop.Enable(r.RequestStop); err != nil {
			return res, errors.Wrap(err, "enable stop input")
		}
		held = append(held, func() {
			if err := r.stop.Disable(); err != nil {
				debug.Log("session", "disable stop input: %v", err)
			}
		})
	}

	det, err := r.detectors(sliceLen, r.sampleRate)
	if err != nil {
		return res, errors.Wrap(err, "open pitch detector")
	}
	held = append(held, func() {
		if err := det.Close(); err != nil {
			debug.Log("session", "close detector: %v", err)
		}
	})

	if r.capture != nil {
		if err := r.capture.Start(buffers); err != nil {
			return res, errors.Wrap(err, "start capture")
		}
		held = append(held, func() {
			if err := r.capture.Stop(); err != nil {
				debug.Log("session", "stop capture: %v", err)
			}
		})
	}

	if err := r.ticks.Start(period, metro.Tick); err != nil {
		return res, errors.Wrap(err, "start tick source")
	}
	held = append(held, func() {
		if err := r.ticks.Stop(); err != nil {
			debug.Log("session", "stop tick source: %v", err)
		}
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.RequestStop()
		case <-done:
		}
	}()

	// The polling loop spins on the ready cell between slices; its worst
	// case wake-up latency is one tick period.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if r.countIn(buffers, 4*beats+1) {
		r.setState(Transcribing)
		debug.Log("session", "count-in done, transcribing")
		r.transcribe(buffers, det, engine, sink, &res)
	}

	r.setState(Finalizing)
	r.recording.Store(false)
	release()

	if ev, ok := engine.Flush(); ok {
		r.emit(ev)
	}

	res.Count = sink.Len()
	res.Events = sink.Events()
	res.Slices = engine.Count()
	res.Ticks = buffers.Slices()
	res.Overruns = buffers.Overruns()
	res.Dropped = buffers.Dropped()

	debug.Log("session", "done id=%s events=%d slices=%d overruns=%d dropped=%d ceiling=%v",
		res.SessionID, res.Count, res.Slices, res.Overruns, res.Dropped, res.CeilingHit)

	// A cancelled context is a stop gesture, not a failure
	return res, nil
}

// countIn discards n slices. It returns false if the take was stopped
// before the count-in finished.
func (r *Recorder) countIn(buffers *handoff.DoubleBuffer, n int) bool {
	for i := 0; i < n; {
		if !r.recording.Load() {
			return false
		}
		if _, ok := buffers.Discard(); ok {
			r.consumed.Add(1)
			i++
			continue
		}
		runtime.Gosched()
	}
	return r.recording.Load()
}

func (r *Recorder) transcribe(buffers *handoff.DoubleBuffer, det pitch.Detector, engine *transcribe.Engine, sink *transcribe.Sink, res *Result) {
	slice := make([]float32, buffers.SliceLen())
	var overruns uint64

	for r.recording.Load() {
		// The first slice never emits, so a one-event take still gets it
		if sink.Full() && engine.Count() > 0 {
			res.CeilingHit = true
			debug.Log("session", "event ceiling %d reached", sink.Cap())
			return
		}

		n, seq, ok := buffers.Take(slice)
		if !ok {
			runtime.Gosched()
			continue
		}

		est, err := det.Estimate(slice[:n])
		if err != nil {
			// Keep the grid: a failed slice counts as a rest
			res.Errors++
			debug.Log("pitch", "slice %d: %v", seq, err)
			est = pitch.Estimate{Note: pitch.Rest}
		}
		debug.LogEvery(16, "pitch", "slice %d note=%s loud=%.3f conf=%.2f",
			seq, pitch.NoteName(est.Note), est.Loudness, est.Confidence)

		if ev, emitted := engine.Push(est); emitted {
			r.emit(ev)
		}
		r.consumed.Add(1)

		if o := buffers.Overruns(); o != overruns {
			debug.Warn("handoff", "slice budget exceeded: %d slices lost so far", o)
			overruns = o
		}
	}
}

func (r *Recorder) emit(ev transcribe.Event) {
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}
