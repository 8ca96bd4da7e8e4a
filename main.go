package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-scribe/config"
	"go-scribe/debug"
)

var (
	configPath string
	debugLog   bool
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "go-scribe",
	Short: "Sing or play a line, get MIDI",
	Long: `go-scribe listens to a monophonic instrument on a metronome grid and
transcribes it to quantized MIDI notes, one pitch estimate per sixteenth.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if debugLog {
			if err := debug.Enable(); err != nil {
				return err
			}
			debug.Log("main", "config loaded")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		debug.Disable()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/go-scribe/config.json)")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "write a debug log to ~/.config/go-scribe/debug.log")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
