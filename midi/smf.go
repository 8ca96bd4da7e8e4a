package midi

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-scribe/recorder"
)

// ExportOptions control SMF output
type ExportOptions struct {
	Channel uint8 // 0-15
	PPQ     uint16
}

// Export writes a take as a format 1 standard MIDI file: a conductor track
// with title, tempo, meter and key, then one note track.
func Export(w io.Writer, take recorder.Result, opt ExportOptions) error {
	if opt.PPQ == 0 {
		opt.PPQ = DefaultPPQ
	}
	if take.Params.BPM == 0 {
		return errors.New("export: take has no tempo")
	}

	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(opt.PPQ)

	var conductor smf.Track
	title := take.Params.Title
	if title == "" {
		title = take.SessionID.String()
	}
	conductor.Add(0, smf.MetaTrackSequenceName(title))
	num, denom := take.Params.TimeSignature.Meter()
	conductor.Add(0, smf.MetaMeter(num, denom))
	conductor.Add(0, smf.MetaTempo(float64(take.Params.BPM)))
	if take.Params.KeySignature != "" {
		key, err := KeySignature(take.Params.KeySignature)
		if err != nil {
			return err
		}
		conductor.Add(0, key)
	}
	conductor.Close(0)
	if err := sm.Add(conductor); err != nil {
		return errors.Wrap(err, "add conductor track")
	}

	var notes smf.Track
	notes.Add(0, gomidi.ProgramChange(opt.Channel, take.Params.Instrument))
	var last uint32
	for _, t := range Timeline(take.Events, opt.Channel, opt.PPQ) {
		notes.Add(t.Tick-last, t.Msg)
		last = t.Tick
	}
	// Trailing rests still count toward the length
	notes.Close(Length(take.Events, opt.PPQ) - last)
	if err := sm.Add(notes); err != nil {
		return errors.Wrap(err, "add note track")
	}

	_, err := sm.WriteTo(w)
	return errors.Wrap(err, "write smf")
}

// ExportFile writes the take to path
func ExportFile(path string, take recorder.Result, opt ExportOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Export(f, take, opt); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var sharpKeys = map[string]int8{
	"c": 0, "g": 1, "d": 2, "a": 3, "e": 4, "b": 5, "f#": 6, "c#": 7,
	"f": -1, "bb": -2, "eb": -3, "ab": -4, "db": -5, "gb": -6, "cb": -7,
}

var minorKeys = map[string]int8{
	"a": 0, "e": 1, "b": 2, "f#": 3, "c#": 4, "g#": 5, "d#": 6, "a#": 7,
	"d": -1, "g": -2, "c": -3, "f": -4, "bb": -5, "eb": -6, "ab": -7,
}

// KeySignature builds the key signature meta event for names like "G",
// "Bb", "F#m" or "c# minor"
func KeySignature(name string) ([]byte, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimSuffix(s, "major")
	s = strings.TrimSuffix(s, "maj")

	minor := false
	for _, suffix := range []string{"minor", "min", "m"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			minor = true
			break
		}
	}

	table := sharpKeys
	if minor {
		table = minorKeys
	}
	sf, ok := table[s]
	if !ok {
		return nil, errors.Errorf("unknown key signature %q", name)
	}

	var mi byte
	if minor {
		mi = 1
	}
	return []byte{0xFF, 0x59, 0x02, byte(sf), mi}, nil
}
