// Package effect implements time-bounded intensity generators that override
// the spectrum-driven level of a channel while they are active.
package effect

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/envelope"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

// ErrUnknownKind is returned for an effect type name with no generator.
var ErrUnknownKind = errors.New("effect: unknown kind")

// Kind selects the generator variant of an Effect.
type Kind int

const (
	Constant Kind = iota + 1
	Ramp
	Wave
	MaxLevel
	SpectrumBar
)

// kindNames are the persisted type names.
var kindNames = map[Kind]string{
	Constant:    "Intensity",
	Ramp:        "Fade",
	Wave:        "Wave",
	MaxLevel:    "MaxLevel",
	SpectrumBar: "SpectrumBar",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a persisted type name back to its Kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

type ConstantParams struct {
	Intensity float64
}

type RampParams struct {
	StartIntensity float64
	EndIntensity   float64
}

// WaveParams describe amplitudeShift + gain*sin(waveLength*t + phaseShift),
// t in seconds since the effect started.
type WaveParams struct {
	PhaseShift     float64
	WaveLength     float64
	Gain           float64
	AmplitudeShift float64
}

type MaxLevelParams struct {
	Gain float64
	Fade float64
}

type SpectrumBarParams struct {
	Index     int
	Gain      float64
	Fade      float64
	Threshold float64
}

// Effect is one effect instance on a channel's timeline. Only the parameter
// block matching Kind is meaningful.
//
// MaxLevel and SpectrumBar keep their own envelope between calls; that state
// belongs to the instance and is cleared by Reset and dropped by Clone.
type Effect struct {
	ID       uuid.UUID
	Kind     Kind
	Label    string
	Start    int64 // ms
	Duration int64 // ms

	Constant    ConstantParams
	Ramp        RampParams
	Wave        WaveParams
	MaxLevel    MaxLevelParams
	SpectrumBar SpectrumBarParams

	level    float64
	position uint64
}

func newEffect(kind Kind, start, duration int64) *Effect {
	return &Effect{
		ID:       uuid.New(),
		Kind:     kind,
		Label:    kind.String(),
		Start:    start,
		Duration: duration,
	}
}

func NewConstant(start, duration int64, p ConstantParams) *Effect {
	e := newEffect(Constant, start, duration)
	e.Constant = p
	return e
}

func NewRamp(start, duration int64, p RampParams) *Effect {
	e := newEffect(Ramp, start, duration)
	e.Ramp = p
	return e
}

func NewWave(start, duration int64, p WaveParams) *Effect {
	e := newEffect(Wave, start, duration)
	e.Wave = p
	return e
}

func NewMaxLevel(start, duration int64, p MaxLevelParams) *Effect {
	e := newEffect(MaxLevel, start, duration)
	e.MaxLevel = p
	return e
}

func NewSpectrumBar(start, duration int64, p SpectrumBarParams) *Effect {
	e := newEffect(SpectrumBar, start, duration)
	e.SpectrumBar = p
	return e
}

// Active reports whether position lies in [Start, Start+Duration].
func (e *Effect) Active(position uint64) bool {
	pos := int64(position)
	return pos >= e.Start && pos <= e.Start+e.Duration
}

// End returns the last active position.
func (e *Effect) End() int64 {
	return e.Start + e.Duration
}

// Value computes the effect's intensity for a frame. Callers evaluate it only
// while the effect is Active.
func (e *Effect) Value(f spectrum.Frame) float64 {
	switch e.Kind {
	case Constant:
		return envelope.Clamp(e.Constant.Intensity)
	case Ramp:
		return e.rampValue(f.Position)
	case Wave:
		return e.waveValue(f.Position)
	case MaxLevel:
		candidate := envelope.Clamp(f.Peak() * e.MaxLevel.Gain)
		return e.follow(f.Position, e.MaxLevel.Fade, candidate, 0)
	case SpectrumBar:
		p := e.SpectrumBar
		candidate := envelope.Clamp(f.Bin(p.Index) * p.Gain)
		return e.follow(f.Position, p.Fade, candidate, p.Threshold)
	default:
		return 0
	}
}

// Reset clears the private envelope state.
func (e *Effect) Reset() {
	e.level = 0
	e.position = 0
}

// Clone returns a copy with fresh envelope state.
func (e *Effect) Clone() *Effect {
	c := *e
	c.Reset()
	return &c
}

func (e *Effect) rampValue(position uint64) float64 {
	y0, y1 := e.Ramp.StartIntensity, e.Ramp.EndIntensity
	if e.Duration <= 0 {
		return envelope.Clamp(y1)
	}
	x0 := float64(e.Start)
	x1 := float64(e.End())
	y := y0 + (float64(position)-x0)*(y1-y0)/(x1-x0)
	return envelope.Clamp(y)
}

func (e *Effect) waveValue(position uint64) float64 {
	dt := int64(position) - e.Start
	if dt < 0 {
		dt = 0
	}
	p := e.Wave
	y := p.AmplitudeShift + p.Gain*math.Sin(p.WaveLength*float64(dt)/1000+p.PhaseShift)
	return envelope.Clamp(y)
}

// follow runs the instance's own envelope; a position behind the last one
// counts as no elapsed time.
func (e *Effect) follow(position uint64, fade, candidate, minimum float64) float64 {
	var dt int64
	if position > e.position {
		dt = int64(position - e.position)
	}
	e.position = position
	e.level = envelope.DecayThenRise(e.level, dt, fade, candidate, minimum)
	return e.level
}
