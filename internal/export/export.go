// Package export renders a recorded spectrum history into static per-channel
// intensity curves, the offline counterpart of the live engine.
package export

import (
	"github.com/ikukishev/rama-light-generator/internal/engine"
	"github.com/ikukishev/rama-light-generator/internal/lor"
	"github.com/ikukishev/rama-light-generator/internal/show"
	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

// Segment holds one intensity between two centisecond marks.
type Segment struct {
	StartCentisecond uint64
	EndCentisecond   uint64
	Percent          uint // 0-100
}

// Track is the exported curve of one channel.
type Track struct {
	Channel  show.Channel
	Segments []Segment
}

// Percent scales an intensity against the reference voltage the way the
// controller does, as a whole percentage. The voltage ratio is formed first,
// as in EncodeIntensity, so truncation lands on the same whole percent.
func Percent(level, voltage float64) uint {
	p := (100 * level) * (voltage / lor.ReferenceVoltage)
	switch {
	case p <= 0:
		return 0
	case p >= 100:
		return 100
	}
	return uint(p)
}

// Channel walks frames through the same processor the live engine uses and
// returns the channel's curve. The level computed at frame i is held until
// frame i+1; a history that starts after zero is preceded by a dark segment.
// Frames that fall inside the same centisecond still advance the envelope
// but produce no segment of their own.
func Channel(s *show.Show, c show.Channel, frames []spectrum.Frame) []Segment {
	if len(frames) == 0 {
		return nil
	}

	var segs []Segment
	if first := spectrum.Centisecond(frames[0].Position); first > 0 {
		segs = append(segs, Segment{StartCentisecond: 0, EndCentisecond: first})
	}

	p := engine.NewProcessor(s, c)
	for i := 0; i+1 < len(frames); i++ {
		level := p.Step(frames[i])
		start := spectrum.Centisecond(frames[i].Position)
		end := spectrum.Centisecond(frames[i+1].Position)
		if end <= start {
			continue
		}
		segs = append(segs, Segment{
			StartCentisecond: start,
			EndCentisecond:   end,
			Percent:          Percent(level, c.Voltage),
		})
	}
	return segs
}

// Show exports every channel of s with valid addressing, in channel order.
func Show(s *show.Show, frames []spectrum.Frame) []Track {
	var tracks []Track
	for _, c := range s.Channels {
		if c.Validate() != nil {
			continue
		}
		tracks = append(tracks, Track{Channel: c, Segments: Channel(s, c, frames)})
	}
	return tracks
}
