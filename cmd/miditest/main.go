package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gopxl/beep"

	"go-scribe/capture"
	"go-scribe/midi"
	"go-scribe/pitch"
	"go-scribe/stopinput"
	"go-scribe/transcribe"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "scale":
		playScale(arg(2))
	case "detect":
		detectTone()
	case "footswitch":
		watchFootswitch(arg(2))
	case "poll":
		pollDevices()
	default:
		usage()
	}
}

func arg(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func usage() {
	fmt.Println("Hardware Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list               - List MIDI outputs and serial ports")
	fmt.Println("  scale [port]       - Play a C major scale")
	fmt.Println("  detect             - Run the pitch detector over a test scale")
	fmt.Println("  footswitch <dev>   - Print footswitch presses")
	fmt.Println("  poll               - Poll for device changes")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")
	outs, err := midi.OutPorts()
	if err != nil {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p)
	}

	fmt.Println("\n=== Serial Ports ===")
	serials, err := stopinput.SerialPorts()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, p := range serials {
		fmt.Printf("  %s\n", p)
	}
}

func playScale(port string) {
	send, name, err := midi.OpenOutput(port)
	if err != nil {
		fmt.Printf("Error opening port: %v\n", err)
		return
	}
	defer midi.Close()
	fmt.Printf("Using output: %s\n", name)

	var events []transcribe.Event
	for _, f := range capture.DemoScale {
		events = append(events, transcribe.Event{Note: uint8(pitch.FrequencyToNote(f)), Rhythm: 0.5})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := midi.NewPlayer(send, 0, midi.DefaultPPQ).Play(ctx, events, 120, 0); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Done!")
}

func detectTone() {
	const (
		rate  = 44100
		slice = 2048
	)
	det, err := pitch.NewYIN(slice, rate)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer det.Close()

	tone := capture.NewTone(beep.SampleRate(rate), capture.DemoScale, 250*time.Millisecond)
	buf := make([][2]float64, slice)
	mono := make([]float32, slice)
	for {
		n, ok := tone.Stream(buf)
		if !ok || n < slice {
			break
		}
		for i := range buf {
			mono[i] = float32(buf[i][0])
		}
		est, err := det.Estimate(mono)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("  %-4s %7.2f Hz  conf %.2f  rms %.3f\n",
			pitch.NoteName(est.Note), est.Frequency, est.Confidence, est.Loudness)
	}
}

func watchFootswitch(dev string) {
	if dev == "" {
		fmt.Println("usage: miditest footswitch <device>")
		return
	}
	fmt.Printf("Watching %s. Ctrl+C to exit.\n", dev)

	sw := stopinput.NewSerial(dev, 9600, stopinput.DefaultDebounce)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for ctx.Err() == nil {
		pressed := make(chan struct{})
		if err := sw.Enable(func() { close(pressed) }); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		select {
		case <-pressed:
			fmt.Printf("[%s] press %d\n", time.Now().Format("15:04:05"), sw.Presses())
		case <-ctx.Done():
		}
		sw.Disable()
	}
}

func pollDevices() {
	fmt.Println("Polling for device changes every 2 seconds...")
	fmt.Println("Connect/disconnect a footswitch or synth to test. Ctrl+C to exit.")

	lastOut := ""
	lastSerial := ""

	for {
		outs, _ := midi.OutPorts()
		serials, _ := stopinput.SerialPorts()

		currentOut := strings.Join(outs, ",")
		currentSerial := strings.Join(serials, ",")

		if currentOut != lastOut || currentSerial != lastSerial {
			fmt.Printf("\n[%s] Device change detected!\n", time.Now().Format("15:04:05"))
			fmt.Printf("  MIDI outputs: %v\n", outs)
			fmt.Printf("  Serial ports: %v\n", serials)

			lastOut = currentOut
			lastSerial = currentSerial
		}

		time.Sleep(2 * time.Second)
	}
}
