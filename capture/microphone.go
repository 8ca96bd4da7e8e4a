//go:build portaudio

package capture

import (
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/pkg/errors"

	"go-scribe/debug"
	"go-scribe/recorder"
)

// Microphone captures the default input device through PortAudio
type Microphone struct {
	rate  int
	chunk int

	mu     sync.Mutex
	stream *portaudio.Stream
	buffer []float32
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewMicrophone prepares a mono input at rate, read chunk frames at a time
func NewMicrophone(rate, chunk int) (*Microphone, error) {
	if rate <= 0 || chunk <= 0 {
		return nil, errors.Errorf("microphone: bad rate %d or chunk %d", rate, chunk)
	}
	return &Microphone{rate: rate, chunk: chunk}, nil
}

func (m *Microphone) Start(w recorder.SampleWriter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return ErrRunning
	}

	if err := portaudio.Initialize(); err != nil {
		return errors.Wrap(err, "portaudio init")
	}

	buffer := make([]float32, m.chunk)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.rate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return errors.Wrap(err, "open input stream")
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return errors.Wrap(err, "start input stream")
	}

	m.stream = stream
	m.buffer = buffer
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.run(w, m.stop)
	debug.Log("capture", "microphone started rate=%d chunk=%d", m.rate, m.chunk)
	return nil
}

func (m *Microphone) run(w recorder.SampleWriter, stop <-chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := m.stream.Read(); err != nil {
			// Input overflow loses samples but the stream keeps running
			if err == portaudio.InputOverflowed {
				debug.LogEvery(64, "capture", "input overflow")
				continue
			}
			debug.Warn("capture", "microphone read: %v", err)
			return
		}
		w.Write(m.buffer)
	}
}

func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream == nil {
		return nil
	}

	close(m.stop)
	var err error
	if stopErr := m.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	m.wg.Wait()
	if closeErr := m.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	portaudio.Terminate()
	m.stream = nil
	return err
}
