package stopinput

import (
	"time"

	"github.com/pkg/errors"

	"go-scribe/config"
	"go-scribe/recorder"
)

// Multi arms several inputs as one; the first gesture wins
type Multi []recorder.StopInput

func (m Multi) Enable(stop func()) error {
	for i, in := range m {
		if err := in.Enable(stop); err != nil {
			for j := i - 1; j >= 0; j-- {
				m[j].Disable()
			}
			return err
		}
	}
	return nil
}

func (m Multi) Disable() error {
	var first error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Disable(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Inputs are the configured stop inputs of one run
type Inputs struct {
	Key    *Gesture
	Signal *Signal
	Serial *Serial
	HTTP   *HTTP
}

// FromConfig builds the key and signal gestures plus any serial or HTTP
// input named in cfg
func FromConfig(cfg config.StopInputConfig) (*Inputs, error) {
	if cfg.DebounceMS < 0 {
		return nil, errors.Errorf("stopInput.debounceMs %d is negative", cfg.DebounceMS)
	}
	after := time.Duration(cfg.DebounceMS) * time.Millisecond

	in := &Inputs{
		Key:    NewGesture("key", 0),
		Signal: NewSignal(),
	}
	if cfg.SerialDevice != "" {
		in.Serial = NewSerial(cfg.SerialDevice, cfg.SerialBaud, after)
	}
	if cfg.HTTPAddr != "" {
		in.HTTP = NewHTTP(cfg.HTTPAddr, after)
	}
	return in, nil
}

// All returns the armed set as one StopInput
func (in *Inputs) All() Multi {
	m := Multi{in.Key, in.Signal}
	if in.Serial != nil {
		m = append(m, in.Serial)
	}
	if in.HTTP != nil {
		m = append(m, in.HTTP)
	}
	return m
}
