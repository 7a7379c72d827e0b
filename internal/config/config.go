// Package config loads the hardware setup: the serial link, the MIDI control
// surface and the channel table.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ikukishev/rama-light-generator/internal/show"
)

const (
	DefaultBaud       = 115200
	DefaultBaseNote   = 36 // C2, first pad on most controllers
	DefaultFlash      = 150 * time.Millisecond
	DefaultFlashLevel = 1.0
)

// Config holds everything read from the configuration file.
type Config struct {
	Serial   Serial
	MIDI     MIDI
	Channels []show.Channel

	// Warnings lists defects that were repaired or skipped while loading.
	Warnings []error
}

type Serial struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// MIDI configures the optional control surface. Note BaseNote+i flashes
// channel i.
type MIDI struct {
	Enabled    bool          `yaml:"enabled"`
	Preferred  []string      `yaml:"preferred"`
	Excluded   []string      `yaml:"excluded"`
	BaseNote   int           `yaml:"base_note"`
	Flash      time.Duration `yaml:"flash"`
	FlashLevel float64       `yaml:"flash_level"`
}

type rawConfig struct {
	Serial   Serial       `yaml:"serial"`
	MIDI     MIDI         `yaml:"midi"`
	Channels []rawChannel `yaml:"channels"`
}

// rawChannel keeps every field as a node so one bad value degrades only that
// field or channel.
type rawChannel struct {
	ID            yaml.Node `yaml:"id"`
	Label         yaml.Node `yaml:"label"`
	Unit          yaml.Node `yaml:"unit"`
	Circuit       yaml.Node `yaml:"circuit"`
	Voltage       yaml.Node `yaml:"voltage"`
	SpectrumIndex yaml.Node `yaml:"spectrum_index"`
	Gain          yaml.Node `yaml:"gain"`
	Fade          yaml.Node `yaml:"fade"`
	Color         yaml.Node `yaml:"color"`
}

// Load reads path and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document and applies environment overrides.
// Only a document that is not valid YAML of the expected shape is an error.
func Parse(data []byte) (*Config, error) {
	raw := rawConfig{
		Serial: Serial{Baud: DefaultBaud},
		MIDI:   MIDI{BaseNote: DefaultBaseNote, Flash: DefaultFlash, FlashLevel: DefaultFlashLevel},
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{Serial: raw.Serial, MIDI: raw.MIDI}
	if cfg.Serial.Baud <= 0 {
		cfg.warn("serial baud %d is invalid, using %d", cfg.Serial.Baud, DefaultBaud)
		cfg.Serial.Baud = DefaultBaud
	}
	cfg.checkMIDI()

	seen := make(map[uuid.UUID]bool, len(raw.Channels))
	for i, rc := range raw.Channels {
		c, ok := cfg.channel(i, rc)
		if !ok {
			continue
		}
		if seen[c.ID] {
			id := uuid.New()
			cfg.warn("channel %d (%s): duplicate id %s, using %s", i, c.Label, c.ID, id)
			c.ID = id
		}
		seen[c.ID] = true
		cfg.Channels = append(cfg.Channels, c)
	}

	cfg.Serial.Port = envStr("RAMA_SERIAL_PORT", cfg.Serial.Port)
	cfg.Serial.Baud = envInt("RAMA_SERIAL_BAUD", cfg.Serial.Baud)
	return cfg, nil
}

// Show builds a show over the configured channels.
func (c *Config) Show() *show.Show {
	return show.New(c.Channels)
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Errorf("config: "+format, args...))
}

func (c *Config) checkMIDI() {
	m := &c.MIDI
	if m.BaseNote < 0 || m.BaseNote > 127 {
		c.warn("midi base_note %d out of range 0-127, using %d", m.BaseNote, DefaultBaseNote)
		m.BaseNote = DefaultBaseNote
	}
	if m.Flash <= 0 {
		c.warn("midi flash %v is invalid, using %v", m.Flash, DefaultFlash)
		m.Flash = DefaultFlash
	}
	if m.FlashLevel <= 0 || m.FlashLevel > 1 {
		c.warn("midi flash_level %v out of range (0,1], using %v", m.FlashLevel, DefaultFlashLevel)
		m.FlashLevel = DefaultFlashLevel
	}
}

// channel converts one entry. Bad tuning values fall back to defaults; bad
// addressing drops the entry.
func (c *Config) channel(i int, rc rawChannel) (show.Channel, bool) {
	ch := show.Channel{
		SpectrumIndex: show.DefaultSpectrumIndex,
		Gain:          show.DefaultGain,
		Fade:          show.DefaultFade,
	}

	if present(rc.Label) {
		if err := rc.Label.Decode(&ch.Label); err != nil {
			c.warn("channel %d: label is not a string", i)
		}
	}
	name := ch.Label
	if name == "" {
		name = "#" + strconv.Itoa(i)
	}

	ch.ID = uuid.New()
	if present(rc.ID) {
		var (
			s  string
			id uuid.UUID
		)
		err := rc.ID.Decode(&s)
		if err == nil {
			id, err = uuid.Parse(s)
		}
		if err != nil {
			c.warn("channel %s: bad id %q, using %s", name, rc.ID.Value, ch.ID)
		} else {
			ch.ID = id
		}
	}

	if err := decodeRequired(rc.Unit, &ch.Unit); err != nil {
		c.warn("channel %s dropped: unit: %v", name, err)
		return ch, false
	}
	if err := decodeRequired(rc.Circuit, &ch.Circuit); err != nil {
		c.warn("channel %s dropped: circuit: %v", name, err)
		return ch, false
	}
	if err := decodeRequired(rc.Voltage, &ch.Voltage); err != nil {
		c.warn("channel %s dropped: voltage: %v", name, err)
		return ch, false
	}
	if err := ch.Validate(); err != nil {
		c.warn("channel %s dropped: %v", name, err)
		return ch, false
	}

	if present(rc.SpectrumIndex) {
		var idx int
		if err := rc.SpectrumIndex.Decode(&idx); err != nil || idx < 0 {
			c.warn("channel %s: bad spectrum_index %q, using %d", name, rc.SpectrumIndex.Value, show.DefaultSpectrumIndex)
		} else {
			ch.SpectrumIndex = idx
		}
	}
	if present(rc.Gain) {
		if v, ok := decodeNonNegative(rc.Gain); ok {
			ch.Gain = v
		} else {
			c.warn("channel %s: bad gain %q, using %v", name, rc.Gain.Value, show.DefaultGain)
		}
	}
	if present(rc.Fade) {
		if v, ok := decodeNonNegative(rc.Fade); ok {
			ch.Fade = v
		} else {
			c.warn("channel %s: bad fade %q, using %v", name, rc.Fade.Value, show.DefaultFade)
		}
	}
	if present(rc.Color) {
		if err := rc.Color.Decode(&ch.Color); err != nil {
			c.warn("channel %s: color is not a string", name)
		}
	}
	return ch, true
}

// ---- node helpers ----

func present(n yaml.Node) bool {
	return n.Kind != 0 && n.Tag != "!!null"
}

func decodeRequired(n yaml.Node, dst any) error {
	if !present(n) {
		return fmt.Errorf("missing")
	}
	return n.Decode(dst)
}

func decodeNonNegative(n yaml.Node) (float64, bool) {
	var v float64
	if err := n.Decode(&v); err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// ---- environment ----

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
