package theme

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Beat indicator
	Beat     rune // ○ beat not yet reached
	BeatNow  rune // ● current beat
	Downbeat rune // ◉ current beat on the measure
	Sixteen  rune // · sixteenth subdivision

	// Take state
	Recording rune // ● transcribing
	CountIn   rune // ◌ counting in
	Idle      rune // ■ stopped

	Rest rune // - rest in the event list
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Beat:     '○',
			BeatNow:  '●',
			Downbeat: '◉',
			Sixteen:  '·',

			Recording: '●',
			CountIn:   '◌',
			Idle:      '■',

			Rest: '-',
		},
	}
}

// Default returns the theme with the built-in palette
func Default() *Theme {
	return New(DefaultPalette())
}

// Color roles mapped to palette positions (0-1)
const (
	RoleBG      = 0.0 // deep purple
	RoleSurface = 0.1 // dark purple
	RoleMuted   = 0.2 // purple-magenta
	RoleFG      = 0.4 // pink-purple (readable)
	RoleAccent  = 0.5 // vivid magenta
	RoleCursor  = 0.6 // rose pink
	RoleActive  = 0.7 // soft red
	RoleWarning = 0.8 // orange
	RoleSuccess = 1.0 // bright yellow
)

// Style helpers

func (t *Theme) BG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleBG))
}

func (t *Theme) FG() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleFG))
}

func (t *Theme) Accent() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleAccent))
}

func (t *Theme) Muted() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted))
}

func (t *Theme) Active() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleActive))
}

func (t *Theme) Warning() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleWarning))
}

func (t *Theme) Success() lipgloss.Color {
	return rgbToLipgloss(t.Palette.Lookup(RoleSuccess))
}

// NoteColor spreads MIDI notes over the palette so pitch reads at a glance
func (t *Theme) NoteColor(note uint8) lipgloss.Color {
	if note == 0 {
		return t.Muted()
	}
	return rgbToLipgloss(t.Palette.Lookup(RoleMuted + (1-RoleMuted)*float64(note)/127))
}

func rgbToLipgloss(c RGB) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2]))
}
