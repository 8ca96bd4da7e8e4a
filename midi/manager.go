package midi

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/smf"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-scribe/debug"
	"go-scribe/transcribe"
)

// ErrPortScanTimeout is returned when the driver does not answer
var ErrPortScanTimeout = errors.New("midi port scan timed out")

const scanTimeout = 3 * time.Second

// OutPorts lists output port names. The scan runs with a timeout because
// CoreMIDI can hang.
func OutPorts() ([]string, error) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()

	select {
	case outs := <-ch:
		names := make([]string, len(outs))
		for i, p := range outs {
			names[i] = p.String()
		}
		return names, nil
	case <-time.After(scanTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return nil, ErrPortScanTimeout
	}
}

// Sender sends one message
type Sender func(msg gomidi.Message) error

// OpenOutput finds an output port whose name contains name (case
// insensitive); an empty name picks the first port.
func OpenOutput(name string) (Sender, string, error) {
	outs := gomidi.GetOutPorts()
	if len(outs) == 0 {
		return nil, "", errors.New("no midi output ports")
	}

	var port drivers.Out
	if name == "" {
		port = outs[0]
	} else {
		want := strings.ToLower(name)
		for _, p := range outs {
			if strings.Contains(strings.ToLower(p.String()), want) {
				port = p
				break
			}
		}
	}
	if port == nil {
		return nil, "", errors.Errorf("no midi output matching %q", name)
	}

	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, "", errors.Wrapf(err, "open %s", port.String())
	}
	debug.Log("midi", "output %s", port.String())
	return send, port.String(), nil
}

// Close releases the MIDI driver
func Close() {
	gomidi.CloseDriver()
}

// Player sends a take to an output in real time
type Player struct {
	send    Sender
	channel uint8
	ppq     uint16
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewPlayer plays on channel (0-15) through send
func NewPlayer(send Sender, channel uint8, ppq uint16) *Player {
	if ppq == 0 {
		ppq = DefaultPPQ
	}
	return &Player{send: send, channel: channel, ppq: ppq, sleep: sleepCtx}
}

// Play blocks until the take has played or ctx is cancelled. A cancelled
// take ends with all notes off.
func (p *Player) Play(ctx context.Context, events []transcribe.Event, bpm uint, program uint8) error {
	if bpm == 0 {
		return errors.New("play: tempo must be positive")
	}
	ticks := smf.MetricTicks(p.ppq)

	if err := p.send(gomidi.ProgramChange(p.channel, program)); err != nil {
		return errors.Wrap(err, "program change")
	}

	var last uint32
	for _, t := range Timeline(events, p.channel, p.ppq) {
		if t.Tick > last {
			if err := p.sleep(ctx, ticks.Duration(float64(bpm), t.Tick-last)); err != nil {
				p.allOff()
				return nil
			}
			last = t.Tick
		}
		if err := p.send(t.Msg); err != nil {
			p.allOff()
			return errors.Wrap(err, "send")
		}
	}

	// Let trailing rests run out
	if end := Length(events, p.ppq); end > last {
		if err := p.sleep(ctx, ticks.Duration(float64(bpm), end-last)); err != nil {
			p.allOff()
		}
	}
	return nil
}

func (p *Player) allOff() {
	// All Notes Off
	p.send(gomidi.ControlChange(p.channel, 123, 0))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
