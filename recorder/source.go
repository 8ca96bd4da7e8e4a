package recorder

import (
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TickSource is the periodic timer that drives the metronome. Start must
// align to one period boundary and discard it before delivering ticks.
// onTick runs in the tick context and must not be called concurrently
// with itself.
type TickSource interface {
	Start(period time.Duration, onTick func()) error
	Stop() error
}

// StopInput ends a take from outside the recorder (touch, footswitch,
// remote). It calls stop once per gesture while enabled.
type StopInput interface {
	Enable(stop func()) error
	Disable() error
}

// SampleWriter receives captured samples
type SampleWriter interface {
	Write(samples []float32) int
}

// Capture is continuous audio acquisition into the double buffer
type Capture interface {
	Start(w SampleWriter) error
	Stop() error
}

// ErrTickPeriod is returned by ClockSource for a non-positive period
var ErrTickPeriod = errors.New("tick period must be positive")

// ClockSource is a TickSource backed by a time.Ticker. The tick goroutine
// is locked to its OS thread for the whole take.
type ClockSource struct {
	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewClockSource creates an idle clock
func NewClockSource() *ClockSource {
	return &ClockSource{}
}

func (c *ClockSource) Start(period time.Duration, onTick func()) error {
	if period <= 0 {
		return ErrTickPeriod
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker != nil {
		return errors.New("clock already running")
	}

	ticker := time.NewTicker(period)
	// First boundary only aligns the clock
	<-ticker.C

	c.ticker = ticker
	c.done = make(chan struct{})
	c.wg.Add(1)
	go c.run(ticker, c.done, onTick)
	return nil
}

func (c *ClockSource) run(ticker *time.Ticker, done <-chan struct{}, onTick func()) {
	defer c.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			onTick()
		}
	}
}

func (c *ClockSource) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return nil
	}
	close(c.done)
	c.wg.Wait()
	c.ticker.Stop()
	c.ticker = nil
	return nil
}
