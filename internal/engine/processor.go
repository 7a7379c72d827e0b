package engine

import (
	"time"

	"github.com/ikukishev/rama-light-generator/internal/effect"
	"github.com/ikukishev/rama-light-generator/internal/envelope"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

// Processor turns the frames of one timeline into the intensity of one
// channel. It owns the channel's envelope and private copies of its effects;
// the live engine and the exporter both run channels through it.
type Processor struct {
	Channel show.Channel
	Params  show.Params

	effects []*effect.Effect
	flashes []*effect.Effect
	pending []flash

	level    float64
	position uint64
	bins     int
	started  bool
}

type flash struct {
	level    float64
	duration time.Duration
}

// NewProcessor resolves c against the overrides of s and clones its effects.
func NewProcessor(s *show.Show, c show.Channel) *Processor {
	p := &Processor{
		Channel: c,
		Params:  s.Resolve(c),
	}
	for _, e := range s.Effects(c.ID) {
		p.effects = append(p.effects, e.Clone())
	}
	return p
}

// Level returns the intensity produced by the last Step.
func (p *Processor) Level() float64 { return p.level }

// Flash queues a constant effect that starts at the next frame.
func (p *Processor) Flash(level float64, d time.Duration) {
	p.pending = append(p.pending, flash{level: level, duration: d})
}

// Step advances the channel to f and returns its intensity in [0,1].
//
// A frame behind the previous one, or with a different bin count, starts the
// channel over from zero instead of decaying across the gap.
func (p *Processor) Step(f spectrum.Frame) float64 {
	var dt int64
	if !p.started || f.Position < p.position || len(f.Bins) != p.bins {
		p.restart(f)
	} else {
		dt = int64(f.Position - p.position)
	}

	for _, fl := range p.pending {
		p.flashes = append(p.flashes, effect.NewConstant(int64(f.Position), fl.duration.Milliseconds(),
			effect.ConstantParams{Intensity: fl.level}))
	}
	p.pending = p.pending[:0]

	if v, ok := p.effectLevel(f); ok {
		p.level = envelope.Clamp(v)
	} else {
		candidate := f.Bin(p.Params.SpectrumIndex) * p.Params.Gain
		p.level = envelope.DecayThenRise(p.level, dt, p.Params.Fade, candidate, p.Params.MinimumLevel)
	}
	p.position = f.Position
	return p.level
}

// effectLevel is the highest value among the effects active at f.
func (p *Processor) effectLevel(f spectrum.Frame) (float64, bool) {
	var (
		best   float64
		active bool
	)
	eval := func(e *effect.Effect) {
		if !e.Active(f.Position) {
			return
		}
		v := e.Value(f)
		if !active || v > best {
			best = v
		}
		active = true
	}
	for _, e := range p.effects {
		eval(e)
	}

	n := 0
	for _, e := range p.flashes {
		eval(e)
		if int64(f.Position) <= e.End() {
			p.flashes[n] = e
			n++
		}
	}
	clear(p.flashes[n:])
	p.flashes = p.flashes[:n]

	return best, active
}

func (p *Processor) restart(f spectrum.Frame) {
	p.level = 0
	p.position = f.Position
	p.bins = len(f.Bins)
	p.started = true
	p.flashes = nil
	for _, e := range p.effects {
		e.Reset()
	}
}
