package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/ikukishev/rama-light-generator/internal/spectrum"
)

const lmsSaveFileVersion = 14

// Document carries the sequence-level fields of an .lms file.
type Document struct {
	Author    string
	MusicFile string
	CreatedAt time.Time
}

type lmsSequence struct {
	XMLName         xml.Name        `xml:"sequence"`
	SaveFileVersion int             `xml:"saveFileVersion,attr"`
	Author          string          `xml:"author,attr,omitempty"`
	CreatedAt       string          `xml:"createdAt,attr"`
	MusicFilename   string          `xml:"musicFilename,attr,omitempty"`
	VideoUsage      int             `xml:"videoUsage,attr"`
	Channels        []lmsChannel    `xml:"channels>channel"`
	TimingGrids     []lmsTimingGrid `xml:"timingGrids>timingGrid"`
	Tracks          []lmsTrack      `xml:"tracks>track"`
}

type lmsChannel struct {
	Name         string      `xml:"name,attr"`
	Color        uint32      `xml:"color,attr"`
	Centiseconds uint64      `xml:"centiseconds,attr"`
	DeviceType   string      `xml:"deviceType,attr"`
	Unit         int         `xml:"unit,attr"`
	Circuit      int         `xml:"circuit,attr"`
	SavedIndex   int         `xml:"savedIndex,attr"`
	Effects      []lmsEffect `xml:"effect"`
}

type lmsEffect struct {
	Type             string `xml:"type,attr"`
	StartCentisecond uint64 `xml:"startCentisecond,attr"`
	EndCentisecond   uint64 `xml:"endCentisecond,attr"`
	Intensity        uint   `xml:"intensity,attr"`
}

type lmsTimingGrid struct {
	SaveID  int         `xml:"saveID,attr"`
	Type    string      `xml:"type,attr"`
	Timings []lmsTiming `xml:"timing"`
}

type lmsTiming struct {
	Centisecond uint64 `xml:"centisecond,attr"`
}

type lmsTrack struct {
	TotalCentiseconds uint64            `xml:"totalCentiseconds,attr"`
	TimingGrid        int               `xml:"timingGrid,attr"`
	Channels          []lmsTrackChannel `xml:"channels>channel"`
	LoopLevels        struct{}          `xml:"loopLevels"`
}

type lmsTrackChannel struct {
	SavedIndex int `xml:"savedIndex,attr"`
}

// WriteLMS writes tracks as a Light-O-Rama sequence with one freeform timing
// grid placed on the frame positions.
func WriteLMS(w io.Writer, doc Document, tracks []Track, frames []spectrum.Frame) error {
	var total uint64
	if n := len(frames); n > 0 {
		total = spectrum.Centisecond(frames[n-1].Position)
	}

	seq := lmsSequence{
		SaveFileVersion: lmsSaveFileVersion,
		Author:          doc.Author,
		CreatedAt:       doc.CreatedAt.Format("02/01/2006 3:4:5 pm"),
		MusicFilename:   doc.MusicFile,
		VideoUsage:      2,
		TimingGrids:     []lmsTimingGrid{{SaveID: 0, Type: "freeform", Timings: timings(frames)}},
	}
	track := lmsTrack{TotalCentiseconds: total}
	for i, t := range tracks {
		ch := lmsChannel{
			Name:         t.Channel.Label,
			Color:        bgr(t.Channel.Color),
			Centiseconds: total,
			DeviceType:   "LOR",
			Unit:         t.Channel.Unit,
			Circuit:      t.Channel.Circuit,
			SavedIndex:   i,
		}
		for _, s := range t.Segments {
			ch.Effects = append(ch.Effects, lmsEffect{
				Type:             "intensity",
				StartCentisecond: s.StartCentisecond,
				EndCentisecond:   s.EndCentisecond,
				Intensity:        s.Percent,
			})
		}
		seq.Channels = append(seq.Channels, ch)
		track.Channels = append(track.Channels, lmsTrackChannel{SavedIndex: i})
	}
	seq.Tracks = []lmsTrack{track}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("export: lms: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(seq); err != nil {
		return fmt.Errorf("export: lms: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("export: lms: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func timings(frames []spectrum.Frame) []lmsTiming {
	var out []lmsTiming
	for _, f := range frames {
		cs := spectrum.Centisecond(f.Position)
		if n := len(out); n > 0 && out[n-1].Centisecond >= cs {
			continue
		}
		out = append(out, lmsTiming{Centisecond: cs})
	}
	return out
}

// bgr turns "#rrggbb" into the 0xBBGGRR value .lms files store. Anything
// unparseable is black.
func bgr(color string) uint32 {
	hex, ok := strings.CutPrefix(color, "#")
	if !ok || len(hex) != 6 {
		return 0
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0
	}
	r, g, b := uint32(v>>16)&0xFF, uint32(v>>8)&0xFF, uint32(v)&0xFF
	return b<<16 | g<<8 | r
}
