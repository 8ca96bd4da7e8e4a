//go:build !portaudio

package capture

import "github.com/pkg/errors"

// ErrNoMicrophone is returned when the binary was built without PortAudio
var ErrNoMicrophone = errors.New("microphone capture needs a build with -tags portaudio")

// NewMicrophone always fails without the portaudio build tag
func NewMicrophone(rate, chunk int) (*StreamSource, error) {
	return nil, ErrNoMicrophone
}
