package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"go-scribe/midi"
	"go-scribe/recorder"
)

var (
	playPort    string
	exportPath  string
	exportPPQ   uint16
	exportChan  uint8
	listVerbose bool
)

var playCmd = &cobra.Command{
	Use:   "play [take]",
	Short: "Play a saved take to a MIDI output (latest take by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		take, err := loadTake(args)
		if err != nil {
			return err
		}

		port := cfg.MIDI.OutputPort
		if cmd.Flags().Changed("port") {
			port = playPort
		}
		send, name, err := midi.OpenOutput(port)
		if err != nil {
			return err
		}
		defer midi.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fmt.Printf("playing %s (%d events, %d bpm) on %s\n", takeLabel(take), take.Count, take.Params.BPM, name)
		player := midi.NewPlayer(send, midi.Channel(cfg.MIDI.Channel), cfg.MIDI.PPQ)
		return player.Play(ctx, take.Events, take.Params.BPM, take.Params.Instrument)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [take]",
	Short: "Write a saved take as a standard MIDI file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		take, err := loadTake(args)
		if err != nil {
			return err
		}

		path := exportPath
		if path == "" {
			path = takeLabel(take) + ".mid"
		}
		opt := midi.ExportOptions{Channel: midi.Channel(cfg.MIDI.Channel), PPQ: cfg.MIDI.PPQ}
		if cmd.Flags().Changed("ppq") {
			opt.PPQ = exportPPQ
		}
		if cmd.Flags().Changed("channel") {
			opt.Channel = midi.Channel(exportChan)
		}
		if err := midi.ExportFile(path, take, opt); err != nil {
			return err
		}
		fmt.Printf("exported %s\n", path)
		return nil
	},
}

var takesCmd = &cobra.Command{
	Use:   "takes",
	Short: "List saved takes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := recorder.TakesDir()
		if err != nil {
			return err
		}
		takes, err := recorder.ListTakes(dir)
		if err != nil {
			return err
		}
		if len(takes) == 0 {
			fmt.Println("no takes yet")
			return nil
		}
		for _, t := range takes {
			id := t.ID.String()
			if !listVerbose {
				id = id[:8]
			}
			fmt.Printf("%s  %s  %4d events  %s\n", id, t.StartedAt.Local().Format("2006-01-02 15:04"), t.EventCount, t.Title)
		}
		return nil
	},
}

func init() {
	playCmd.Flags().StringVar(&playPort, "port", "", "output port name (substring match)")
	exportCmd.Flags().StringVarP(&exportPath, "out", "o", "", "output file (default <title>.mid)")
	exportCmd.Flags().Uint16Var(&exportPPQ, "ppq", 960, "ticks per quarter note")
	exportCmd.Flags().Uint8Var(&exportChan, "channel", 1, "MIDI channel 1-16")
	takesCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "show full take ids")
	rootCmd.AddCommand(playCmd, exportCmd, takesCmd)
}

func loadTake(args []string) (recorder.Result, error) {
	dir, err := recorder.TakesDir()
	if err != nil {
		return recorder.Result{}, err
	}
	if len(args) == 0 {
		return recorder.LatestTake(dir)
	}
	return recorder.LoadTake(dir, args[0])
}

func takeLabel(take recorder.Result) string {
	if take.Params.Title == "" {
		return take.SessionID.String()[:8]
	}
	return strings.Map(func(r rune) rune {
		if r == filepath.Separator || r == ' ' {
			return '_'
		}
		return r
	}, take.Params.Title)
}
