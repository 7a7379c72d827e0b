// Package show holds the channel table of a light show and the per-song
// overrides and effects layered on top of it.
package show

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/effect"
	"github.com/ikukishev/rama-light-generator/internal/lor"
)

// Defaults used when a channel or override leaves a tuning value unset.
const (
	DefaultSpectrumIndex = 2
	DefaultGain          = 1.0
	DefaultFade          = 1.0
)

var (
	ErrUnknownChannel  = errors.New("show: unknown channel")
	ErrDuplicateEffect = errors.New("show: duplicate effect id")
)

// Channel is one output circuit and its default tuning.
type Channel struct {
	ID            uuid.UUID
	Label         string
	Unit          int
	Circuit       int // 1-16
	Voltage       float64
	SpectrumIndex int
	Gain          float64
	Fade          float64 // seconds
	Color         string  // #rrggbb
}

// Address returns where the channel lives on the controller network.
func (c Channel) Address() lor.Address {
	return lor.Address{Unit: uint8(c.Unit), Circuit: uint8(c.Circuit), Voltage: c.Voltage}
}

// Validate checks the addressing fields. Tuning fields are never invalid; the
// loaders substitute defaults for them.
func (c Channel) Validate() error {
	switch {
	case c.Unit < 1 || c.Unit > 0xFF:
		return fmt.Errorf("show: channel %q: unit %d out of range 1-255", c.Label, c.Unit)
	case c.Circuit < 1 || c.Circuit > 16:
		return fmt.Errorf("show: channel %q: circuit %d out of range 1-16", c.Label, c.Circuit)
	case !(c.Voltage > 0):
		return fmt.Errorf("show: channel %q: voltage must be positive, got %v", c.Label, c.Voltage)
	}
	return nil
}

// Override replaces a channel's defaults for one song. Nil fields fall back
// to the channel.
type Override struct {
	SpectrumIndex *int
	Gain          *float64
	Fade          *float64
	MinimumLevel  float64
	Effects       []*effect.Effect
}

// Params is the tuning actually in force for a channel.
type Params struct {
	SpectrumIndex int
	Gain          float64
	Fade          float64
	MinimumLevel  float64
}

// Show is the channel table plus an arena of overrides keyed by channel id.
//
// Mutators are meant for the single owner of the show between playback
// sessions; the engine only reads.
type Show struct {
	Channels  []Channel
	overrides map[uuid.UUID]*Override
}

func New(channels []Channel) *Show {
	return &Show{
		Channels:  channels,
		overrides: make(map[uuid.UUID]*Override),
	}
}

// Channel looks a channel up by id.
func (s *Show) Channel(id uuid.UUID) (Channel, bool) {
	i := s.index(id)
	if i < 0 {
		return Channel{}, false
	}
	return s.Channels[i], true
}

func (s *Show) index(id uuid.UUID) int {
	return slices.IndexFunc(s.Channels, func(c Channel) bool { return c.ID == id })
}

// Override returns the override of a channel, or nil. The result must not be
// modified.
func (s *Show) Override(id uuid.UUID) *Override {
	return s.overrides[id]
}

// SetOverride replaces the override of a channel.
func (s *Show) SetOverride(id uuid.UUID, o Override) error {
	if s.index(id) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, id)
	}
	s.overrides[id] = &o
	return nil
}

// ClearOverrides drops every override, as when switching songs.
func (s *Show) ClearOverrides() {
	clear(s.overrides)
}

// AddEffect appends an effect to a channel's override, creating an empty
// override when the channel has none.
func (s *Show) AddEffect(channelID uuid.UUID, e *effect.Effect) error {
	if s.index(channelID) < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channelID)
	}
	o := s.overrides[channelID]
	if o == nil {
		o = &Override{}
		s.overrides[channelID] = o
	}
	for _, have := range o.Effects {
		if have.ID == e.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateEffect, e.ID)
		}
	}
	o.Effects = append(o.Effects, e)
	return nil
}

// RemoveEffect deletes an effect from a channel and reports whether it was
// there.
func (s *Show) RemoveEffect(channelID, effectID uuid.UUID) bool {
	o := s.overrides[channelID]
	if o == nil {
		return false
	}
	n := len(o.Effects)
	o.Effects = slices.DeleteFunc(o.Effects, func(e *effect.Effect) bool { return e.ID == effectID })
	return len(o.Effects) != n
}

// Resolve merges a channel's defaults with its override.
func (s *Show) Resolve(c Channel) Params {
	p := Params{
		SpectrumIndex: c.SpectrumIndex,
		Gain:          c.Gain,
		Fade:          c.Fade,
	}
	o := s.overrides[c.ID]
	if o == nil {
		return p
	}
	if o.SpectrumIndex != nil {
		p.SpectrumIndex = *o.SpectrumIndex
	}
	if o.Gain != nil {
		p.Gain = *o.Gain
	}
	if o.Fade != nil {
		p.Fade = *o.Fade
	}
	p.MinimumLevel = o.MinimumLevel
	return p
}

// Effects returns the effects of a channel in their stored order.
func (s *Show) Effects(id uuid.UUID) []*effect.Effect {
	if o := s.overrides[id]; o != nil {
		return o.Effects
	}
	return nil
}
