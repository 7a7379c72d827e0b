package export

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/effect"
	"github.com/ikukishev/rama-light-generator/internal/engine"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

func frame(pos uint64, bins ...float32) spectrum.Frame {
	return spectrum.Frame{Position: pos, Bins: bins}
}

func testChannel() show.Channel {
	return show.Channel{
		ID: uuid.New(), Label: "roof", Unit: 2, Circuit: 3, Voltage: 220,
		SpectrumIndex: 0, Gain: 1, Fade: 1, Color: "#102030",
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		level, voltage float64
		want           uint
	}{
		{0, 220, 0},
		{1, 220, 100},
		{0.5, 220, 50},
		{1, 110, 50},
		{1, 300, 100},
		{0.257, 220, 25},
		// voltage ratio taken before the product
		{0.572, 50, 12},
		{0.99, 60, 26},
		{0.44, 75, 14},
	}
	for _, tt := range tests {
		if got := Percent(tt.level, tt.voltage); got != tt.want {
			t.Errorf("Percent(%v, %v) = %d, want %d", tt.level, tt.voltage, got, tt.want)
		}
	}
}

func TestChannelSegments(t *testing.T) {
	c := testChannel()
	s := show.New([]show.Channel{c})
	frames := []spectrum.Frame{
		frame(200, 0.5),
		frame(300, 0),
		frame(500, 0),
		frame(505, 0), // same centisecond as the previous frame
		frame(700, 0),
	}
	got := Channel(s, c, frames)
	want := []Segment{
		{0, 20, 0},
		{20, 30, 50},
		{30, 50, 40},
		{50, 70, 19},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d segments %+v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestChannelMatchesEngine(t *testing.T) {
	c := testChannel()
	c.Gain, c.Fade = 2, 0.7
	s := show.New([]show.Channel{c})
	if err := s.SetOverride(c.ID, show.Override{MinimumLevel: 0.3}); err != nil {
		t.Fatal(err)
	}
	if err := s.AddEffect(c.ID, effect.NewSpectrumBar(400, 300, effect.SpectrumBarParams{Index: 1, Gain: 1, Fade: 0.2})); err != nil {
		t.Fatal(err)
	}

	var frames []spectrum.Frame
	for i := range 40 {
		frames = append(frames, frame(uint64(i*50), float32(i%7)/10, float32(i%3)/3))
	}

	sess := engine.New(nil, nil).StartSession(s)
	defer sess.End()
	segs := Channel(s, c, frames)
	for i, f := range frames[:len(frames)-1] {
		out, err := sess.Feed(f)
		if err != nil {
			t.Fatal(err)
		}
		if want := Percent(out[0].Intensity, c.Voltage); segs[i].Percent != want {
			t.Errorf("segment %d = %d%%, live engine gives %d%%", i, segs[i].Percent, want)
		}
	}
}

func TestChannelEmptyHistory(t *testing.T) {
	c := testChannel()
	if got := Channel(show.New([]show.Channel{c}), c, nil); got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestShowSkipsInvalidChannels(t *testing.T) {
	good, bad := testChannel(), testChannel()
	bad.Voltage = 0
	tracks := Show(show.New([]show.Channel{bad, good}), []spectrum.Frame{frame(0, 1), frame(100, 1)})
	if len(tracks) != 1 || tracks[0].Channel.ID != good.ID {
		t.Fatalf("tracks = %+v", tracks)
	}
}

func TestWriteLMS(t *testing.T) {
	c := testChannel()
	s := show.New([]show.Channel{c})
	frames := []spectrum.Frame{frame(0, 1), frame(100, 0), frame(250, 0)}

	var buf bytes.Buffer
	doc := Document{Author: "ops", MusicFile: "song.mp3", CreatedAt: time.Date(2024, 12, 24, 18, 5, 9, 0, time.UTC)}
	if err := WriteLMS(&buf, doc, Show(s, frames), frames); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, xml.Header) {
		t.Errorf("missing xml header: %q", out[:40])
	}

	var seq lmsSequence
	if err := xml.Unmarshal(buf.Bytes(), &seq); err != nil {
		t.Fatal(err)
	}
	if seq.SaveFileVersion != 14 || seq.CreatedAt != "24/12/2024 6:5:9 pm" || seq.MusicFilename != "song.mp3" {
		t.Errorf("sequence attrs = %+v", seq)
	}
	if len(seq.Channels) != 1 {
		t.Fatalf("got %d channels", len(seq.Channels))
	}
	ch := seq.Channels[0]
	if ch.Name != "roof" || ch.Unit != 2 || ch.Circuit != 3 || ch.Centiseconds != 25 || ch.DeviceType != "LOR" {
		t.Errorf("channel = %+v", ch)
	}
	if ch.Color != 0x302010 {
		t.Errorf("color = %#x, want 0x302010", ch.Color)
	}
	want := []lmsEffect{
		{"intensity", 0, 10, 100},
		{"intensity", 10, 25, 90},
	}
	if len(ch.Effects) != len(want) {
		t.Fatalf("effects = %+v", ch.Effects)
	}
	for i := range want {
		if ch.Effects[i] != want[i] {
			t.Errorf("effect %d = %+v, want %+v", i, ch.Effects[i], want[i])
		}
	}

	grid := seq.TimingGrids[0]
	if grid.Type != "freeform" || len(grid.Timings) != 3 || grid.Timings[2].Centisecond != 25 {
		t.Errorf("timing grid = %+v", grid)
	}
	if tr := seq.Tracks[0]; tr.TotalCentiseconds != 25 || len(tr.Channels) != 1 {
		t.Errorf("track = %+v", tr)
	}
	if !strings.Contains(out, "<loopLevels></loopLevels>") {
		t.Error("track is missing loopLevels")
	}
}

func TestBGR(t *testing.T) {
	tests := map[string]uint32{
		"#ff0000": 0x0000ff,
		"#00ff00": 0x00ff00,
		"#0000FF": 0xff0000,
		"red":     0,
		"#12345":  0,
		"#zzzzzz": 0,
	}
	for in, want := range tests {
		if got := bgr(in); got != want {
			t.Errorf("bgr(%q) = %#x, want %#x", in, got, want)
		}
	}
}
