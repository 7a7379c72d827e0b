// Package engine composites spectrum frames, channel tuning and effects into
// per-channel intensities and hands them to the controller link.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/lor"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

var ErrSessionEnded = errors.New("engine: session ended")

// Sink receives every computed intensity. *lor.Link satisfies it.
type Sink interface {
	SetIntensity(addr lor.Address, intensity float64)
}

// Output is the intensity of one channel for one frame.
type Output struct {
	Channel   uuid.UUID
	Address   lor.Address
	Intensity float64
}

// Engine owns at most one live session at a time.
type Engine struct {
	mu     sync.Mutex
	sink   Sink
	logger *slog.Logger
	active *Session
}

// New returns an engine writing to sink. A nil sink discards output; a nil
// logger means slog.Default().
func New(sink Sink, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{sink: sink, logger: logger}
}

// StartSession ends the current session, if any, and starts playing s.
// Channels with invalid addressing are left out of the session.
//
// The show must not be modified while the session runs.
func (e *Engine) StartSession(s *show.Show) *Session {
	sess := &Session{
		engine: e,
		byID:   make(map[uuid.UUID]*Processor, len(s.Channels)),
	}
	for _, c := range s.Channels {
		if err := c.Validate(); err != nil {
			e.logger.Warn("engine: channel skipped", "channel", c.Label, "err", err)
			continue
		}
		p := NewProcessor(s, c)
		sess.procs = append(sess.procs, p)
		sess.byID[c.ID] = p
	}

	e.mu.Lock()
	prev := e.active
	e.active = sess
	e.mu.Unlock()

	if prev != nil {
		prev.end()
		e.logger.Info("engine: session replaced")
	}
	e.logger.Info("engine: session started", "channels", len(sess.procs))
	return sess
}

// Active returns the live session or nil.
func (e *Engine) Active() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Session is one playback timeline. Feed must be called from a single
// goroutine; Flash and End may be called from any.
type Session struct {
	engine *Engine
	procs  []*Processor
	byID   map[uuid.UUID]*Processor

	mu      sync.Mutex
	ended   bool
	flashes []pendingFlash
}

type pendingFlash struct {
	proc *Processor
	flash
}

// Feed processes one frame for every channel, sends the results to the
// engine's sink and returns them in channel order.
func (s *Session) Feed(f spectrum.Frame) ([]Output, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, ErrSessionEnded
	}
	for _, pf := range s.flashes {
		pf.proc.Flash(pf.level, pf.duration)
	}
	s.flashes = s.flashes[:0]
	s.mu.Unlock()

	out := make([]Output, len(s.procs))
	for i, p := range s.procs {
		out[i] = Output{
			Channel:   p.Channel.ID,
			Address:   p.Channel.Address(),
			Intensity: p.Step(f),
		}
	}
	if sink := s.engine.sink; sink != nil {
		for _, o := range out {
			sink.SetIntensity(o.Address, o.Intensity)
		}
	}
	return out, nil
}

// Flash lights a channel at level for d, starting with the next frame. It
// takes precedence like any other effect.
func (s *Session) Flash(channel uuid.UUID, level float64, d time.Duration) error {
	p, ok := s.byID[channel]
	if !ok {
		return fmt.Errorf("engine: flash: %w: %s", show.ErrUnknownChannel, channel)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrSessionEnded
	}
	s.flashes = append(s.flashes, pendingFlash{proc: p, flash: flash{level: level, duration: d}})
	return nil
}

// End stops the session. None of its channel or effect state carries over
// into a later session.
func (s *Session) End() {
	e := s.engine
	e.mu.Lock()
	if e.active == s {
		e.active = nil
	}
	e.mu.Unlock()
	if s.end() {
		e.logger.Info("engine: session ended")
	}
}

func (s *Session) end() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	s.ended = true
	s.flashes = nil
	return true
}
