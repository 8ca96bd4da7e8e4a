package stopinput

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Signal ends the take on SIGINT or SIGTERM
type Signal struct {
	*Gesture
	signals []os.Signal

	mu   sync.Mutex
	ch   chan os.Signal
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSignal listens for sigs, or SIGINT and SIGTERM when none are given
func NewSignal(sigs ...os.Signal) *Signal {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &Signal{
		Gesture: NewGesture("signal", 0),
		signals: sigs,
	}
}

func (s *Signal) Enable(stop func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Gesture.Enable(stop); err != nil {
		return err
	}

	s.ch = make(chan os.Signal, 1)
	s.done = make(chan struct{})
	signal.Notify(s.ch, s.signals...)

	s.wg.Add(1)
	go func(ch <-chan os.Signal, done <-chan struct{}) {
		defer s.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-ch:
				s.Trigger()
			}
		}
	}(s.ch, s.done)
	return nil
}

func (s *Signal) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gesture.Disable()
	if s.ch == nil {
		return nil
	}
	signal.Stop(s.ch)
	close(s.done)
	s.wg.Wait()
	s.ch = nil
	return nil
}
