// Package stopinput provides the ways a take can be ended from outside the
// recorder: a key press, a serial footswitch, an HTTP remote or an OS
// signal. Every input is debounced and fires at most once per Enable.
package stopinput

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bep/debounce"
	"github.com/pkg/errors"

	"go-scribe/debug"
)

// ErrEnabled is returned by Enable on an input that is already armed
var ErrEnabled = errors.New("stop input already enabled")

// DefaultDebounce matches the footswitch contact bounce
const DefaultDebounce = 100 * time.Millisecond

// Gesture is the debounced, once-per-take trigger shared by all inputs.
// On its own it serves as the key gesture for the TUI.
type Gesture struct {
	name     string
	debounce func(func())

	mu    sync.Mutex
	stop  func()
	fired bool

	presses atomic.Uint64
}

// NewGesture creates a gesture. A zero debounce fires on the first press.
func NewGesture(name string, after time.Duration) *Gesture {
	g := &Gesture{name: name}
	if after > 0 {
		g.debounce = debounce.New(after)
	}
	return g
}

func (g *Gesture) Enable(stop func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		return errors.Wrap(ErrEnabled, g.name)
	}
	g.stop = stop
	g.fired = false
	debug.Log("stop", "%s enabled", g.name)
	return nil
}

func (g *Gesture) Disable() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stop = nil
	return nil
}

// Enabled reports whether a take is listening to this input
func (g *Gesture) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop != nil
}

// Presses counts raw presses, bounces included
func (g *Gesture) Presses() uint64 {
	return g.presses.Load()
}

// Trigger registers one press
func (g *Gesture) Trigger() {
	g.presses.Add(1)
	if g.debounce != nil {
		g.debounce(g.fire)
		return
	}
	g.fire()
}

func (g *Gesture) fire() {
	g.mu.Lock()
	if g.stop == nil || g.fired {
		g.mu.Unlock()
		return
	}
	g.fired = true
	stop := g.stop
	g.mu.Unlock()

	debug.Log("stop", "%s pressed", g.name)
	stop()
}

// Name identifies the input in logs
func (g *Gesture) Name() string {
	return g.name
}
