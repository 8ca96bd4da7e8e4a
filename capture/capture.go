// Package capture feeds audio into a take. Sources are beep streamers
// (WAV files, synthetic tones) paced in real time, or the live microphone
// when built with the portaudio tag.
package capture

import (
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
	"github.com/pkg/errors"

	"go-scribe/config"
	"go-scribe/debug"
	"go-scribe/recorder"
)

// ErrRunning is returned when Start is called twice
var ErrRunning = errors.New("capture already running")

// StreamSource pulls fixed-size chunks from a beep streamer, mixes them to
// mono and writes them to the double buffer, one chunk per chunk duration.
type StreamSource struct {
	name     string
	streamer beep.Streamer
	closer   func() error
	rate     beep.SampleRate
	chunk    int
	realtime bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	ended   chan struct{}
	endOnce sync.Once
	wg      sync.WaitGroup
}

// NewStreamSource wraps s, which must already produce samples at rate
func NewStreamSource(name string, s beep.Streamer, rate beep.SampleRate, chunk int) *StreamSource {
	if chunk < 1 {
		chunk = 1
	}
	return &StreamSource{
		name:     name,
		streamer: s,
		rate:     rate,
		chunk:    chunk,
		realtime: true,
		ended:    make(chan struct{}),
	}
}

// SetRealtime turns pacing off for offline transcription and tests
func (s *StreamSource) SetRealtime(on bool) {
	s.realtime = on
}

// Ended is closed when the streamer runs out of samples
func (s *StreamSource) Ended() <-chan struct{} {
	return s.ended
}

// SampleRate returns the rate written to the buffer
func (s *StreamSource) SampleRate() beep.SampleRate {
	return s.rate
}

func (s *StreamSource) Start(w recorder.SampleWriter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrRunning
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(w, s.stop)
	debug.Log("capture", "%s started rate=%d chunk=%d", s.name, s.rate, s.chunk)
	return nil
}

func (s *StreamSource) run(w recorder.SampleWriter, stop <-chan struct{}) {
	defer s.wg.Done()

	stereo := make([][2]float64, s.chunk)
	mono := make([]float32, s.chunk)

	var tick <-chan time.Time
	if s.realtime {
		ticker := time.NewTicker(s.rate.D(s.chunk))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-stop:
				return
			case <-tick:
			}
		} else {
			select {
			case <-stop:
				return
			default:
			}
		}

		n, ok := s.streamer.Stream(stereo)
		for i := 0; i < n; i++ {
			mono[i] = float32((stereo[i][0] + stereo[i][1]) / 2)
		}
		if n > 0 {
			w.Write(mono[:n])
		}
		if !ok || n < len(stereo) {
			if err := s.streamer.Err(); err != nil {
				debug.Warn("capture", "%s: %v", s.name, err)
			}
			debug.Log("capture", "%s ended", s.name)
			s.endOnce.Do(func() { close(s.ended) })
			return
		}
	}
}

func (s *StreamSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	close(s.stop)
	s.wg.Wait()
	s.running = false

	if s.closer != nil {
		err := s.closer()
		s.closer = nil
		return err
	}
	return nil
}

// OpenWAV decodes path and resamples it to rate. The file is closed by Stop.
func OpenWAV(path string, rate beep.SampleRate, chunk int) (*StreamSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open wav")
	}
	streamer, format, err := wav.Decode(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "decode %s", path)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, streamer)
	}
	debug.Log("capture", "wav %s: %d Hz, %d ch, %d samples", path, format.SampleRate, format.NumChannels, streamer.Len())

	src := NewStreamSource("wav", s, rate, chunk)
	src.closer = streamer.Close
	return src, nil
}

// FromConfig builds the capture source selected in cfg
func FromConfig(cfg config.AudioConfig) (recorder.Capture, error) {
	rate := beep.SampleRate(cfg.SampleRate)
	switch cfg.Source {
	case config.SourceWAV:
		return OpenWAV(cfg.WAVPath, rate, cfg.ChunkSize)
	case config.SourceTone:
		return NewStreamSource("tone", NewTone(rate, DemoScale, 500*time.Millisecond), rate, cfg.ChunkSize), nil
	case config.SourceMicrophone:
		return NewMicrophone(cfg.SampleRate, cfg.ChunkSize)
	}
	return nil, errors.Errorf("unknown audio source %q", cfg.Source)
}
