package pitch

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/pkg/errors"
)

// YIN defaults
const (
	DefaultThreshold = 0.15
	DefaultMinFreq   = 60.0
	DefaultMaxFreq   = 1500.0
	DefaultSilence   = 0.01 // RMS below this is a rest
	minBufferSize    = 64
)

// YIN is a fast YIN detector: the difference function is computed from an
// FFT cross-correlation instead of the O(N*W) direct sum.
type YIN struct {
	sampleRate int
	bufferSize int
	window     int
	padded     int

	Threshold float64
	MinFreq   float64
	MaxFreq   float64
	Silence   float64

	x     []float64
	head  []float64
	diff  []float64
	cmndf []float64

	closed bool
}

// NewYIN allocates a detector for slices of up to bufferSize samples
func NewYIN(bufferSize, sampleRate int) (*YIN, error) {
	if bufferSize < minBufferSize {
		return nil, errors.Wrapf(ErrBufferSize, "%d < %d", bufferSize, minBufferSize)
	}
	if sampleRate <= 0 {
		return nil, errors.Wrapf(ErrSampleRate, "%d", sampleRate)
	}

	padded := 1
	for padded < bufferSize {
		padded <<= 1
	}
	window := bufferSize / 2

	return &YIN{
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		window:     window,
		padded:     padded,
		Threshold:  DefaultThreshold,
		MinFreq:    DefaultMinFreq,
		MaxFreq:    DefaultMaxFreq,
		Silence:    DefaultSilence,
		x:          make([]float64, padded),
		head:       make([]float64, padded),
		diff:       make([]float64, window),
		cmndf:      make([]float64, window),
	}, nil
}

// NewYINFactory adapts NewYIN to a Factory
func NewYINFactory() Factory {
	return func(bufferSize, sampleRate int) (Detector, error) {
		return NewYIN(bufferSize, sampleRate)
	}
}

// Estimate detects the fundamental of slice. Slices shorter than the
// configured buffer are analyzed as-is; longer ones are truncated.
func (y *YIN) Estimate(slice []float32) (Estimate, error) {
	if y.closed {
		return Estimate{}, ErrClosed
	}
	if len(slice) > y.bufferSize {
		slice = slice[:y.bufferSize]
	}

	est := Estimate{Note: Rest, Loudness: RMS(slice)}
	if len(slice) < minBufferSize || est.Loudness < y.Silence {
		return est, nil
	}

	tau, conf := y.period(slice)
	if tau <= 0 {
		return est, nil
	}

	est.Frequency = float64(y.sampleRate) / tau
	est.Confidence = conf
	est.Note = FrequencyToNote(est.Frequency)
	return est, nil
}

// period returns the interpolated lag of the fundamental, or 0
func (y *YIN) period(slice []float32) (float64, float64) {
	n := len(slice)
	w := n / 2

	clear(y.x)
	clear(y.head)
	for i, s := range slice {
		y.x[i] = float64(s)
	}
	copy(y.head, y.x[:w])

	// cross(tau) = sum_j x[j] * x[j+tau], j < w
	a := fft.FFTReal(y.x)
	b := fft.FFTReal(y.head)
	for i := range a {
		a[i] *= cmplx.Conj(b[i])
	}
	cross := fft.IFFT(a)

	// Sliding energy of x[tau : tau+w]
	var e0 float64
	for j := 0; j < w; j++ {
		e0 += y.x[j] * y.x[j]
	}
	energy := e0

	diff := y.diff[:w]
	for tau := 0; tau < w; tau++ {
		if tau > 0 {
			out := y.x[tau-1]
			in := y.x[tau+w-1]
			energy += in*in - out*out
		}
		d := e0 + energy - 2*real(cross[tau])
		if d < 0 {
			d = 0
		}
		diff[tau] = d
	}

	cmndf := y.cmndf[:w]
	cmndf[0] = 1
	var running float64
	for tau := 1; tau < w; tau++ {
		running += diff[tau]
		if running == 0 {
			cmndf[tau] = 1
			continue
		}
		cmndf[tau] = diff[tau] * float64(tau) / running
	}

	minTau := int(float64(y.sampleRate) / y.MaxFreq)
	if minTau < 2 {
		minTau = 2
	}
	maxTau := int(float64(y.sampleRate) / y.MinFreq)
	if maxTau > w-1 {
		maxTau = w - 1
	}

	for tau := minTau; tau < maxTau; tau++ {
		if cmndf[tau] >= y.Threshold {
			continue
		}
		for tau+1 < maxTau && cmndf[tau+1] < cmndf[tau] {
			tau++
		}
		return parabolic(cmndf, tau), 1 - cmndf[tau]
	}
	return 0, 0
}

// parabolic refines a minimum at tau using its neighbours
func parabolic(v []float64, tau int) float64 {
	if tau <= 0 || tau >= len(v)-1 {
		return float64(tau)
	}
	s0, s1, s2 := v[tau-1], v[tau], v[tau+1]
	den := 2 * (2*s1 - s2 - s0)
	if den == 0 || math.IsNaN(den) {
		return float64(tau)
	}
	return float64(tau) + (s2-s0)/den
}

// Close releases the detector. Further Estimate calls fail.
func (y *YIN) Close() error {
	y.closed = true
	y.x, y.head, y.diff, y.cmndf = nil, nil, nil, nil
	return nil
}
