package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// AudioSource selects where capture samples come from
type AudioSource string

const (
	SourceMicrophone AudioSource = "microphone"
	SourceWAV        AudioSource = "wav"
	SourceTone       AudioSource = "tone"
)

// RecordingConfig holds the defaults for a new take
type RecordingConfig struct {
	BPM           uint   `json:"bpm"`
	TimeSignature string `json:"timeSignature"`
	KeySignature  string `json:"keySignature,omitempty"`
	Instrument    uint8  `json:"instrument"` // General MIDI program
	MaxEvents     int    `json:"maxEvents"`
	RingSize      int    `json:"ringSize"`
}

// AudioConfig describes the capture side
type AudioConfig struct {
	SampleRate int         `json:"sampleRate"`
	Source     AudioSource `json:"source"`
	WAVPath    string      `json:"wavPath,omitempty"`
	ChunkSize  int         `json:"chunkSize"` // samples per capture write
}

// MIDIConfig defines playback and export
type MIDIConfig struct {
	OutputPort string `json:"outputPort,omitempty"`
	Channel    uint8  `json:"channel"` // 1-16
	PPQ        uint16 `json:"ppq"`
}

// StopInputConfig defines the extra ways to end a take
type StopInputConfig struct {
	SerialDevice string `json:"serialDevice,omitempty"`
	SerialBaud   int    `json:"serialBaud,omitempty"`
	HTTPAddr     string `json:"httpAddr,omitempty"`
	DebounceMS   int    `json:"debounceMs"`
}

// UIConfig stores UI preferences
type UIConfig struct {
	Palette string `json:"palette,omitempty"` // GIMP .gpl file, built-in if empty
	Click   bool   `json:"click"`
}

// Config is the main configuration structure
type Config struct {
	Recording RecordingConfig `json:"recording"`
	Audio     AudioConfig     `json:"audio"`
	MIDI      MIDIConfig      `json:"midi"`
	StopInput StopInputConfig `json:"stopInput"`
	UI        UIConfig        `json:"ui,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			BPM:           120,
			TimeSignature: "4/4",
			KeySignature:  "C",
			Instrument:    0,
			MaxEvents:     1000,
			RingSize:      128,
		},
		Audio: AudioConfig{
			SampleRate: 46503,
			Source:     SourceMicrophone,
			ChunkSize:  256,
		},
		MIDI: MIDIConfig{
			Channel: 1,
			PPQ:     960,
		},
		StopInput: StopInputConfig{
			SerialBaud: 9600,
			DebounceMS: 100,
		},
		UI: UIConfig{
			Click: true,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-scribe"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults; a missing file yields defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrap(err, "read config")
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config to path, creating its directory
func (c *Config) SaveFile(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects values that cannot start a recording
func (c *Config) Validate() error {
	if c.Recording.BPM == 0 {
		return errors.New("recording.bpm must be positive")
	}
	if c.Recording.MaxEvents < 1 {
		return errors.New("recording.maxEvents must be at least 1")
	}
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sampleRate must be positive")
	}
	if c.Audio.ChunkSize <= 0 {
		return errors.New("audio.chunkSize must be positive")
	}
	if c.MIDI.Channel < 1 || c.MIDI.Channel > 16 {
		return errors.Errorf("midi.channel %d out of range 1-16", c.MIDI.Channel)
	}
	switch c.Audio.Source {
	case SourceMicrophone, SourceTone:
	case SourceWAV:
		if c.Audio.WAVPath == "" {
			return errors.New("audio.wavPath required for wav source")
		}
	default:
		return errors.Errorf("unknown audio.source %q", c.Audio.Source)
	}
	return nil
}
