package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/effect"
	"github.com/ikukishev/rama-light-generator/internal/lor"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

type write struct {
	addr      lor.Address
	intensity float64
}

type fakeSink struct{ writes []write }

func (s *fakeSink) SetIntensity(addr lor.Address, intensity float64) {
	s.writes = append(s.writes, write{addr, intensity})
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-6 }

func frame(pos uint64, bins ...float32) spectrum.Frame {
	return spectrum.Frame{Position: pos, Bins: bins}
}

func channel(label string, circuit int) show.Channel {
	return show.Channel{
		ID: uuid.New(), Label: label, Unit: 1, Circuit: circuit, Voltage: 220,
		SpectrumIndex: 0, Gain: 1, Fade: 1,
	}
}

// single starts a session over a one-channel show and returns the level of
// that channel for each frame.
func single(t *testing.T, s *show.Show, frames ...spectrum.Frame) []float64 {
	t.Helper()
	sess := New(nil, nil).StartSession(s)
	defer sess.End()
	var levels []float64
	for _, f := range frames {
		out, err := sess.Feed(f)
		if err != nil {
			t.Fatal(err)
		}
		levels = append(levels, out[0].Intensity)
	}
	return levels
}

func TestAttackAndEncode(t *testing.T) {
	c := channel("roof", 1)
	c.Gain, c.Fade = 2, 2.5
	sink := &fakeSink{}
	sess := New(sink, nil).StartSession(show.New([]show.Channel{c}))

	if _, err := sess.Feed(frame(0, 0)); err != nil {
		t.Fatal(err)
	}
	out, err := sess.Feed(frame(100, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if out[0].Intensity != 1 {
		t.Fatalf("intensity = %v, want 1", out[0].Intensity)
	}
	if got := lor.EncodeIntensity(out[0].Intensity, c.Address())[3]; got != lor.IntensityFull {
		t.Errorf("encoded %#x, want %#x", got, lor.IntensityFull)
	}

	out, _ = sess.Feed(frame(2600, 0))
	if !near(out[0].Intensity, 0) {
		t.Errorf("after one fade constant = %v, want 0", out[0].Intensity)
	}

	if len(sink.writes) != 3 {
		t.Fatalf("sink got %d writes, want 3", len(sink.writes))
	}
	if sink.writes[1] != (write{c.Address(), 1}) {
		t.Errorf("sink write = %+v", sink.writes[1])
	}
}

func TestDecayIsMonotonic(t *testing.T) {
	s := show.New([]show.Channel{channel("a", 1)})
	frames := []spectrum.Frame{frame(0, 1)}
	for pos := uint64(40); pos <= 1400; pos += 40 {
		frames = append(frames, frame(pos, 0))
	}
	levels := single(t, s, frames...)
	for i := 1; i < len(levels); i++ {
		if levels[i] > levels[i-1] || levels[i] < 0 {
			t.Fatalf("level %d = %v after %v", i, levels[i], levels[i-1])
		}
	}
	if last := levels[len(levels)-1]; last != 0 {
		t.Errorf("final level = %v, want 0", last)
	}
}

func TestMinimumLevelNeverRaises(t *testing.T) {
	c := channel("a", 1)
	s := show.New([]show.Channel{c})
	if err := s.SetOverride(c.ID, show.Override{MinimumLevel: 0.5}); err != nil {
		t.Fatal(err)
	}
	levels := single(t, s,
		frame(0, 0.9),
		frame(800, 0.4), // decayed to 0.1; 0.4 is above it but under the minimum
		frame(900, 0.6),
	)
	if !near(levels[0], 0.9) {
		t.Errorf("attack = %v, want 0.9", levels[0])
	}
	if !near(levels[1], 0.1) {
		t.Errorf("sub-minimum candidate gave %v, want decayed 0.1", levels[1])
	}
	if !near(levels[2], 0.6) {
		t.Errorf("candidate above minimum gave %v, want 0.6", levels[2])
	}
}

func TestOverrideSelectsBinAndGain(t *testing.T) {
	c := channel("a", 1)
	s := show.New([]show.Channel{c})
	idx, gain := 2, 0.5
	if err := s.SetOverride(c.ID, show.Override{SpectrumIndex: &idx, Gain: &gain}); err != nil {
		t.Fatal(err)
	}
	levels := single(t, s, frame(0, 1, 1, 0.8))
	if !near(levels[0], 0.4) {
		t.Errorf("got %v, want 0.8*0.5", levels[0])
	}
}

func TestOutOfRangeBinIsSilence(t *testing.T) {
	c := channel("a", 1)
	c.SpectrumIndex = 10
	levels := single(t, show.New([]show.Channel{c}), frame(0, 1, 1))
	if levels[0] != 0 {
		t.Errorf("got %v, want 0", levels[0])
	}
}

func TestEffectsTakeMaximum(t *testing.T) {
	for _, order := range [][]float64{{0.3, 0.8}, {0.8, 0.3}} {
		c := channel("a", 1)
		s := show.New([]show.Channel{c})
		for _, v := range order {
			if err := s.AddEffect(c.ID, effect.NewConstant(0, 1000, effect.ConstantParams{Intensity: v})); err != nil {
				t.Fatal(err)
			}
		}
		levels := single(t, s, frame(0, 1), frame(500, 0))
		for i, l := range levels {
			if l != 0.8 {
				t.Errorf("order %v frame %d: got %v, want 0.8", order, i, l)
			}
		}
	}
}

func TestEffectReplacesSpectrumThenDecays(t *testing.T) {
	c := channel("a", 1)
	s := show.New([]show.Channel{c})
	if err := s.AddEffect(c.ID, effect.NewConstant(100, 100, effect.ConstantParams{Intensity: 0.2})); err != nil {
		t.Fatal(err)
	}
	levels := single(t, s,
		frame(0, 0.5),
		frame(100, 1), // effect holds the level down despite a full bin
		frame(200, 1), // last active position
		frame(300, 0), // spectrum path again, decaying from the effect's value
	)
	want := []float64{0.5, 0.2, 0.2, 0.1}
	for i := range want {
		if !near(levels[i], want[i]) {
			t.Errorf("frame %d = %v, want %v", i, levels[i], want[i])
		}
	}
}

func TestBackwardsPositionResets(t *testing.T) {
	s := show.New([]show.Channel{channel("a", 1)})
	levels := single(t, s, frame(1000, 1), frame(500, 0), frame(600, 0))
	if levels[1] != 0 {
		t.Errorf("after seek back = %v, want fresh 0", levels[1])
	}
	if levels[2] != 0 {
		t.Errorf("after seek = %v, want 0", levels[2])
	}
}

func TestBinCountChangeResets(t *testing.T) {
	s := show.New([]show.Channel{channel("a", 1)})
	levels := single(t, s, frame(100, 1, 0, 0), frame(110, 0, 0, 0, 0))
	if levels[1] != 0 {
		t.Errorf("after bin count change = %v, want 0", levels[1])
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := New(nil, nil)
	s := show.New([]show.Channel{channel("a", 1)})

	first := e.StartSession(s)
	if e.Active() != first {
		t.Fatal("first session not active")
	}
	second := e.StartSession(s)
	if _, err := first.Feed(frame(0, 1)); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("feeding replaced session: got %v, want ErrSessionEnded", err)
	}
	if _, err := second.Feed(frame(0, 1)); err != nil {
		t.Errorf("feeding live session: %v", err)
	}

	second.End()
	second.End()
	if e.Active() != nil {
		t.Error("ended session still active")
	}
	if _, err := second.Feed(frame(10, 1)); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("got %v, want ErrSessionEnded", err)
	}
	if err := second.Flash(s.Channels[0].ID, 1, time.Second); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("flash on ended session: got %v, want ErrSessionEnded", err)
	}
}

func TestSessionsDoNotShareEffectState(t *testing.T) {
	c := channel("a", 1)
	s := show.New([]show.Channel{c})
	ml := effect.NewMaxLevel(0, 10_000, effect.MaxLevelParams{Gain: 1, Fade: 10})
	if err := s.AddEffect(c.ID, ml); err != nil {
		t.Fatal(err)
	}

	if got := single(t, s, frame(0, 1)); got[0] != 1 {
		t.Fatalf("first session = %v, want 1", got[0])
	}
	if got := single(t, s, frame(0, 0)); got[0] != 0 {
		t.Errorf("second session started at %v, want 0", got[0])
	}
	if got := ml.Value(frame(0, 0)); got != 0 {
		t.Errorf("show's own effect instance was driven to %v", got)
	}
}

func TestFlash(t *testing.T) {
	c := channel("a", 1)
	sess := New(nil, nil).StartSession(show.New([]show.Channel{c}))

	feed := func(pos uint64) float64 {
		t.Helper()
		out, err := sess.Feed(frame(pos, 0))
		if err != nil {
			t.Fatal(err)
		}
		return out[0].Intensity
	}

	if got := feed(0); got != 0 {
		t.Fatalf("start = %v", got)
	}
	if err := sess.Flash(c.ID, 1, 100*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := feed(50); got != 1 {
		t.Errorf("flash start = %v, want 1", got)
	}
	if got := feed(150); got != 1 {
		t.Errorf("flash end = %v, want 1", got)
	}
	if got := feed(160); !near(got, 0.99) {
		t.Errorf("after flash = %v, want 0.99", got)
	}

	if err := sess.Flash(uuid.New(), 1, time.Second); !errors.Is(err, show.ErrUnknownChannel) {
		t.Errorf("unknown channel: got %v", err)
	}
}

func TestInvalidChannelSkipped(t *testing.T) {
	good := channel("good", 2)
	bad := channel("bad", 17)
	sess := New(nil, nil).StartSession(show.New([]show.Channel{bad, good}))
	out, err := sess.Feed(frame(0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Channel != good.ID {
		t.Errorf("outputs = %+v, want only the valid channel", out)
	}
}
