package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-scribe/midi"
	"go-scribe/stopinput"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI outputs and serial devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("=== MIDI Output Ports ===")
		outs, err := midi.OutPorts()
		if err != nil {
			fmt.Printf("  %v\n", err)
			fmt.Println("  Fix: sudo killall coreaudiod midiserver")
		}
		for i, name := range outs {
			fmt.Printf("  %d: %s\n", i, name)
		}
		defer midi.Close()

		fmt.Println("\n=== Serial Ports ===")
		serials, err := stopinput.SerialPorts()
		if err != nil {
			return err
		}
		if len(serials) == 0 {
			fmt.Println("  (none)")
		}
		for _, name := range serials {
			fmt.Printf("  %s\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
