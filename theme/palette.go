package theme

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// RGB is one palette entry
type RGB [3]uint8

// Palette is a color ramp read low to high: the low end backs the screen,
// the high end marks what is happening now
type Palette struct {
	Name   string
	Colors []RGB
}

// DefaultPalette is a purple to yellow ramp
func DefaultPalette() *Palette {
	return &Palette{
		Name: "scribe",
		Colors: []RGB{
			{0x1a, 0x0b, 0x2e},
			{0x3b, 0x1a, 0x5a},
			{0x7a, 0x2a, 0x8c},
			{0xc0, 0x4c, 0xb0},
			{0xf0, 0x5a, 0x7e},
			{0xff, 0x8c, 0x42},
			{0xff, 0xd8, 0x4a},
		},
	}
}

// Load reads a GIMP palette, or returns the built-in one for an empty path
func Load(path string) (*Palette, error) {
	if path == "" {
		return DefaultPalette(), nil
	}
	return LoadGPL(path)
}

// LoadGPL reads a GIMP .gpl file
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open palette")
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

// ParseGPL reads GIMP palette text. Each color line starts with three
// components 0-255; a trailing color name is ignored.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case strings.HasPrefix(line, "Name:"):
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		case line == "", line[0] == '#', strings.HasPrefix(line, "GIMP"), strings.HasPrefix(line, "Columns"):
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, errors.Errorf("line %d: want R G B, got %q", lineNo, line)
		}
		var c RGB
		for i := range c {
			v, err := strconv.Atoi(fields[i])
			if err != nil || v < 0 || v > 255 {
				return nil, errors.Errorf("line %d: bad component %q", lineNo, fields[i])
			}
			c[i] = uint8(v)
		}
		p.Colors = append(p.Colors, c)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.Colors) == 0 {
		return nil, errors.New("no colors in palette")
	}
	return p, nil
}

// Lookup blends the two entries around norm (0-1, clamped)
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	switch {
	case norm <= 0 || last == 0:
		return p.Colors[0]
	case norm >= 1:
		return p.Colors[last]
	}

	pos := norm * float64(last)
	i := int(pos)
	frac := pos - float64(i)
	c0, c1 := p.Colors[i], p.Colors[i+1]

	return RGB{
		lerp(c0[0], c1[0], frac),
		lerp(c0[1], c1[1], frac),
		lerp(c0[2], c1[2], frac),
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a)*(1-t) + float64(b)*t)
}
