package stopinput

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"

	"go-scribe/debug"
)

const serialPoll = 100 * time.Millisecond

type footswitchPort interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Serial is a footswitch on a serial line. Any byte received while enabled
// counts as a press.
type Serial struct {
	*Gesture
	device string
	baud   int
	open   func(device string, mode *serial.Mode) (footswitchPort, error)

	mu   sync.Mutex
	port footswitchPort
	done chan struct{}
	wg   sync.WaitGroup
}

// NewSerial creates a footswitch input for device
func NewSerial(device string, baud int, after time.Duration) *Serial {
	return &Serial{
		Gesture: NewGesture("serial "+device, after),
		device:  device,
		baud:    baud,
		open: func(device string, mode *serial.Mode) (footswitchPort, error) {
			return serial.Open(device, mode)
		},
	}
}

func (s *Serial) Enable(stop func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != nil {
		return errors.Wrap(ErrEnabled, s.device)
	}

	port, err := s.open(s.device, &serial.Mode{BaudRate: s.baud})
	if err != nil {
		return errors.Wrapf(err, "open %s", s.device)
	}
	if err := port.SetReadTimeout(serialPoll); err != nil {
		port.Close()
		return errors.Wrapf(err, "configure %s", s.device)
	}
	if err := s.Gesture.Enable(stop); err != nil {
		port.Close()
		return err
	}
	debug.Log("stop", "serial port opened device=%s baud=%d", s.device, s.baud)

	s.port = port
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.listen(port, s.done)
	return nil
}

func (s *Serial) listen(port footswitchPort, done <-chan struct{}) {
	defer s.wg.Done()
	buf := make([]byte, 16)
	for {
		select {
		case <-done:
			return
		default:
		}
		n, err := port.Read(buf)
		if err != nil {
			select {
			case <-done:
			default:
				debug.Warn("stop", "serial read %s: %v", s.device, err)
			}
			return
		}
		if n > 0 {
			s.Trigger()
		}
	}
}

func (s *Serial) Disable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gesture.Disable()
	if s.port == nil {
		return nil
	}
	close(s.done)
	err := s.port.Close()
	s.wg.Wait()
	s.port = nil
	return err
}

// SerialPorts lists the serial devices present on this machine
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
