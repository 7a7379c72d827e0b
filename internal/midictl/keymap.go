package midictl

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gitlab.com/gomidi/midi/v2"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName renders a MIDI key as e.g. "C2".
func NoteName(key int) string {
	if key < 0 {
		return fmt.Sprintf("?%d", key)
	}
	return fmt.Sprintf("%s%d", noteNames[key%12], key/12-1)
}

// Keymap assigns consecutive keys, starting at a base note, to channels.
type Keymap struct {
	Base     int
	Channels []uuid.UUID
}

// Channel returns the channel assigned to key.
func (k Keymap) Channel(key int) (uuid.UUID, bool) {
	i := key - k.Base
	if i < 0 || i >= len(k.Channels) {
		return uuid.Nil, false
	}
	return k.Channels[i], true
}

// Flasher is what a pad press acts on; *engine.Session satisfies it.
type Flasher interface {
	Flash(channel uuid.UUID, level float64, d time.Duration) error
}

// Controller turns note-on messages into flashes on whatever session the
// target function returns at the time of the press.
type Controller struct {
	Keys     Keymap
	Level    float64 // at full velocity
	Duration time.Duration
	Target   func() Flasher
	Logger   *slog.Logger
}

// HandleMessage is the Watcher's message handler.
func (c *Controller) HandleMessage(msg midi.Message) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var ch, key, vel uint8
	if !msg.GetNoteStart(&ch, &key, &vel) {
		logger.Debug("midictl: unhandled message", "msg", msg.String())
		return
	}
	id, ok := c.Keys.Channel(int(key))
	if !ok {
		logger.Debug("midictl: unmapped key", "key", NoteName(int(key)))
		return
	}
	target := c.Target()
	if target == nil {
		logger.Debug("midictl: no session for key", "key", NoteName(int(key)))
		return
	}

	level := c.Level * float64(vel) / 127
	if err := target.Flash(id, level, c.Duration); err != nil {
		logger.Warn("midictl: flash failed", "key", NoteName(int(key)), "err", err)
		return
	}
	logger.Debug("midictl: flash", "key", NoteName(int(key)), "ch", ch, "channel", id, "level", level)
}
