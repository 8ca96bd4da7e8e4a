package metronome

import (
	"strings"

	"github.com/pkg/errors"
)

// TimeSignature is one of the meters the recorder can count in
type TimeSignature string

const (
	TwoFour   TimeSignature = "2/4"
	ThreeFour TimeSignature = "3/4"
	FourFour  TimeSignature = "4/4"
	SixEight  TimeSignature = "6/8"
)

// ErrUnknownTimeSignature is returned for any meter outside the supported set
var ErrUnknownTimeSignature = errors.New("unknown time signature")

// Signatures lists the supported meters in display order
var Signatures = []TimeSignature{TwoFour, ThreeFour, FourFour, SixEight}

// ParseTimeSignature accepts "4/4", "44", "four_four" style spellings
func ParseTimeSignature(s string) (TimeSignature, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(norm)

	switch norm {
	case "2/4", "24", "twofour":
		return TwoFour, nil
	case "3/4", "34", "threefour":
		return ThreeFour, nil
	case "4/4", "44", "fourfour", "c":
		return FourFour, nil
	case "6/8", "68", "sixeight":
		return SixEight, nil
	}
	return "", errors.Wrapf(ErrUnknownTimeSignature, "%q", s)
}

// BeatsPerMeasure returns the number of counted beats in one measure
func (ts TimeSignature) BeatsPerMeasure() (int, error) {
	switch ts {
	case TwoFour:
		return 2, nil
	case ThreeFour:
		return 3, nil
	case FourFour:
		return 4, nil
	case SixEight:
		return 6, nil
	}
	return 0, errors.Wrapf(ErrUnknownTimeSignature, "%q", string(ts))
}

// Meter returns numerator and denominator for MIDI meta events
func (ts TimeSignature) Meter() (num, denom uint8) {
	switch ts {
	case TwoFour:
		return 2, 4
	case ThreeFour:
		return 3, 4
	case SixEight:
		return 6, 8
	}
	return 4, 4
}

func (ts TimeSignature) String() string {
	return string(ts)
}
