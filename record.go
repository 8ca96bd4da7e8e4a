package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gopxl/beep"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"go-scribe/capture"
	"go-scribe/config"
	"go-scribe/debug"
	"go-scribe/metronome"
	"go-scribe/midi"
	"go-scribe/pitch"
	"go-scribe/recorder"
	"go-scribe/stopinput"
	"go-scribe/theme"
	"go-scribe/transcribe"
	"go-scribe/tui"
)

const clickRate = beep.SampleRate(44100)

type recordFlags struct {
	bpm        uint
	signature  string
	key        string
	instrument uint8
	title      string
	source     string
	wav        string
	serial     string
	httpAddr   string
	maxEvents  int
	noClick    bool
	noTUI      bool
	noSave     bool
	out        string
}

var rf recordFlags

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Count in one measure and transcribe until stopped",
	RunE:  runRecord,
}

func init() {
	f := recordCmd.Flags()
	f.UintVar(&rf.bpm, "bpm", 0, "tempo in beats per minute")
	f.StringVar(&rf.signature, "sig", "", "time signature: 2/4, 3/4, 4/4 or 6/8")
	f.StringVar(&rf.key, "key", "", "key signature for export, e.g. G or F#m")
	f.Uint8Var(&rf.instrument, "instrument", 0, "General MIDI program for playback and export")
	f.StringVar(&rf.title, "title", "", "take title")
	f.StringVar(&rf.source, "source", "", "audio source: microphone, wav or tone")
	f.StringVar(&rf.wav, "wav", "", "WAV file to transcribe (implies --source wav)")
	f.StringVar(&rf.serial, "serial", "", "serial footswitch device")
	f.StringVar(&rf.httpAddr, "http", "", "address for the remote stop endpoint, e.g. :8090")
	f.IntVar(&rf.maxEvents, "max-events", 0, "event limit for the take")
	f.BoolVar(&rf.noClick, "no-click", false, "disable the audible click")
	f.BoolVar(&rf.noTUI, "no-tui", false, "plain output even on a terminal")
	f.BoolVar(&rf.noSave, "no-save", false, "do not save the take")
	f.StringVarP(&rf.out, "out", "o", "", "also export the take to this .mid file")
	rootCmd.AddCommand(recordCmd)
}

// applyRecordFlags overrides config values with the flags that were set
func applyRecordFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("bpm") {
		c.Recording.BPM = rf.bpm
	}
	if flags.Changed("sig") {
		c.Recording.TimeSignature = rf.signature
	}
	if flags.Changed("key") {
		c.Recording.KeySignature = rf.key
	}
	if flags.Changed("instrument") {
		c.Recording.Instrument = rf.instrument
	}
	if flags.Changed("source") {
		c.Audio.Source = config.AudioSource(rf.source)
	}
	if rf.wav != "" {
		c.Audio.Source = config.SourceWAV
		c.Audio.WAVPath = rf.wav
	}
	if flags.Changed("serial") {
		c.StopInput.SerialDevice = rf.serial
	}
	if flags.Changed("http") {
		c.StopInput.HTTPAddr = rf.httpAddr
	}
	if flags.Changed("max-events") {
		c.Recording.MaxEvents = rf.maxEvents
	}
	if rf.noClick {
		c.UI.Click = false
	}
}

func runRecord(cmd *cobra.Command, args []string) error {
	applyRecordFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	sig, err := metronome.ParseTimeSignature(cfg.Recording.TimeSignature)
	if err != nil {
		return err
	}
	params := recorder.Params{
		BPM:           cfg.Recording.BPM,
		Instrument:    cfg.Recording.Instrument,
		TimeSignature: sig,
		KeySignature:  cfg.Recording.KeySignature,
		Title:         rf.title,
	}

	src, err := capture.FromConfig(cfg.Audio)
	if err != nil {
		return err
	}
	inputs, err := stopinput.FromConfig(cfg.StopInput)
	if err != nil {
		return err
	}

	rec := recorder.New(recorder.NewClockSource(), pitch.NewYINFactory())
	rec.SetCapture(src)
	rec.SetSampleRate(cfg.Audio.SampleRate)
	rec.SetRingSize(cfg.Recording.RingSize)
	rec.SetStopInput(inputs.All())

	out := make([]transcribe.Event, cfg.Recording.MaxEvents)
	var total atomic.Int64
	if inputs.HTTP != nil {
		inputs.HTTP.SetStatus(func() stopinput.Status {
			st := stopinput.Status{Recording: rec.Recording(), State: rec.State().String(), Events: int(total.Load())}
			if s, ok := rec.Snapshot(); ok {
				st.Beat, st.Sixteenth = s.Beat, s.Sixteenth
			}
			return st
		})
	}

	if cfg.UI.Click {
		stopClick, err := playClicks(func() metronome.Snapshot {
			s, _ := rec.Snapshot()
			return s
		}, clickRate)
		if err != nil {
			// No audio device is not fatal, the TUI still shows the beat
			debug.Warn("main", "click disabled: %v", err)
		} else {
			defer stopClick()
		}
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// A WAV take ends with the file
	if s, ok := src.(*capture.StreamSource); ok && cfg.Audio.Source == config.SourceWAV {
		go func() {
			select {
			case <-s.Ended():
				// Let the last slice reach the ready buffer
				period, _ := metronome.TickPeriod(params.BPM)
				time.Sleep(2 * period)
				rec.RequestStop()
			case <-ctx.Done():
			}
		}()
	}

	var res recorder.Result
	interactive := !rf.noTUI && term.IsTerminal(int(os.Stdout.Fd()))
	if interactive {
		res, err = recordTUI(ctx, rec, inputs, out, params, &total)
	} else {
		res, err = recordPlain(ctx, rec, out, params, &total)
	}
	if err != nil {
		return err
	}

	fmt.Printf("%d events, %d slices, %d overruns", res.Count, res.Slices, res.Overruns)
	if res.CeilingHit {
		fmt.Print(" (event limit reached)")
	}
	fmt.Println()

	if !rf.noSave && res.Count > 0 {
		dir, err := recorder.TakesDir()
		if err != nil {
			return err
		}
		path, err := recorder.SaveTake(dir, res)
		if err != nil {
			return errors.Wrap(err, "save take")
		}
		fmt.Printf("saved %s\n", path)
	}
	if rf.out != "" {
		opt := midi.ExportOptions{Channel: midi.Channel(cfg.MIDI.Channel), PPQ: cfg.MIDI.PPQ}
		if err := midi.ExportFile(rf.out, res, opt); err != nil {
			return err
		}
		fmt.Printf("exported %s\n", rf.out)
	}
	return nil
}

func recordTUI(ctx context.Context, rec *recorder.Recorder, inputs *stopinput.Inputs, out []transcribe.Event, p recorder.Params, total *atomic.Int64) (recorder.Result, error) {
	palette, err := theme.Load(cfg.UI.Palette)
	if err != nil {
		return recorder.Result{}, err
	}

	feed := tui.NewFeed()
	rec.SetOnState(feed.OnState)
	rec.SetOnEvent(func(ev transcribe.Event) {
		total.Add(1)
		feed.OnEvent(ev)
	})

	m := tui.NewModel(theme.New(palette), p, feed, inputs.Key, rec.Snapshot)
	prog := tea.NewProgram(m, tea.WithAltScreen())

	// Quitting the screen always ends the take
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	var res recorder.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		res, err = rec.Record(gctx, out, p)
		feed.Done(res, err)
		return err
	})
	g.Go(func() error {
		_, err := prog.Run()
		quit()
		return err
	})
	return res, g.Wait()
}

func recordPlain(ctx context.Context, rec *recorder.Recorder, out []transcribe.Event, p recorder.Params, total *atomic.Int64) (recorder.Result, error) {
	events := make(chan transcribe.Event, 256)
	rec.SetOnState(func(s recorder.State) {
		fmt.Printf("[%s]\n", s)
	})
	rec.SetOnEvent(func(ev transcribe.Event) {
		total.Add(1)
		select {
		case events <- ev:
		default:
		}
	})

	var res recorder.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		var err error
		res, err = rec.Record(gctx, out, p)
		return err
	})
	g.Go(func() error {
		for ev := range events {
			fmt.Println(ev)
		}
		return nil
	})
	fmt.Printf("counting in %d beats at %d bpm, Ctrl-C to stop\n", mustBeats(p.TimeSignature), p.BPM)
	return res, g.Wait()
}

func mustBeats(sig metronome.TimeSignature) int {
	b, _ := sig.BeatsPerMeasure()
	return b
}
