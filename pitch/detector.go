// Package pitch estimates the fundamental of one audio slice.
package pitch

import (
	"math"

	"github.com/pkg/errors"
)

// Estimate is the result for one slice
type Estimate struct {
	Note       int     // MIDI note number, Rest if unvoiced
	Loudness   float64 // RMS energy of the slice
	Frequency  float64 // Hz, 0 if unvoiced
	Confidence float64 // 0..1
}

// Detector is owned by one recording session and must finish Estimate
// within one tick period.
type Detector interface {
	Estimate(slice []float32) (Estimate, error)
	Close() error
}

// Factory creates a detector for slices of bufferSize samples
type Factory func(bufferSize, sampleRate int) (Detector, error)

var (
	ErrBufferSize = errors.New("pitch: buffer too small")
	ErrSampleRate = errors.New("pitch: invalid sample rate")
	ErrClosed     = errors.New("pitch: detector closed")
)

// RMS returns the root mean square of the slice
func RMS(slice []float32) float64 {
	if len(slice) == 0 {
		return 0
	}
	var sum float64
	for _, s := range slice {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(slice)))
}
