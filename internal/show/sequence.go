package show

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/ikukishev/rama-light-generator/internal/effect"
	"github.com/ikukishev/rama-light-generator/internal/envelope"
)

// sequenceFile is the on-disk form of the per-song overrides:
//
//	{"channels":[{"id":..., "gain":..., "effects":[...]}]}
type sequenceFile struct {
	Channels []sequenceChannel `json:"channels"`
}

type sequenceChannel struct {
	ID            string            `json:"id"`
	SpectrumIndex *int              `json:"spectrumIndex,omitempty"`
	Gain          *float64          `json:"gain,omitempty"`
	Fade          *float64          `json:"fade,omitempty"`
	MinimumLevel  float64           `json:"minimumLevel"`
	Effects       []json.RawMessage `json:"effects,omitempty"`
}

// ReadSequence replaces the overrides of s with the ones in r.
//
// Only unreadable input is an error. Entries for unknown channels, bad tuning
// values and malformed effects are skipped and returned as warnings; the rest
// of the sequence still applies.
func (s *Show) ReadSequence(r io.Reader) (warnings []error, err error) {
	var f sequenceFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("show: sequence: %w", err)
	}

	s.ClearOverrides()
	for i, sc := range f.Channels {
		id, err := uuid.Parse(sc.ID)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("show: sequence channel %d: bad id %q: %w", i, sc.ID, err))
			continue
		}
		if s.index(id) < 0 {
			warnings = append(warnings, fmt.Errorf("show: sequence channel %d: %w: %s", i, ErrUnknownChannel, id))
			continue
		}

		o := Override{MinimumLevel: envelope.Clamp(sc.MinimumLevel)}
		if o.MinimumLevel != sc.MinimumLevel {
			warnings = append(warnings, fmt.Errorf("show: sequence channel %s: minimumLevel %v clamped to %v", id, sc.MinimumLevel, o.MinimumLevel))
		}
		if sc.SpectrumIndex != nil {
			if *sc.SpectrumIndex < 0 {
				warnings = append(warnings, fmt.Errorf("show: sequence channel %s: negative spectrumIndex ignored", id))
			} else {
				o.SpectrumIndex = sc.SpectrumIndex
			}
		}
		if sc.Gain != nil {
			if *sc.Gain < 0 {
				warnings = append(warnings, fmt.Errorf("show: sequence channel %s: negative gain ignored", id))
			} else {
				o.Gain = sc.Gain
			}
		}
		if sc.Fade != nil {
			if *sc.Fade < 0 {
				warnings = append(warnings, fmt.Errorf("show: sequence channel %s: negative fade ignored", id))
			} else {
				o.Fade = sc.Fade
			}
		}

		effects, err := effect.DecodeList(sc.Effects)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("show: sequence channel %s: %w", id, err))
		}
		o.Effects = effects
		s.overrides[id] = &o
	}
	return warnings, nil
}

// WriteSequence writes the overrides of s in channel order.
func (s *Show) WriteSequence(w io.Writer) error {
	f := sequenceFile{Channels: []sequenceChannel{}}
	for _, c := range s.Channels {
		o := s.overrides[c.ID]
		if o == nil {
			continue
		}
		sc := sequenceChannel{
			ID:            c.ID.String(),
			SpectrumIndex: o.SpectrumIndex,
			Gain:          o.Gain,
			Fade:          o.Fade,
			MinimumLevel:  o.MinimumLevel,
		}
		for _, e := range o.Effects {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("show: sequence channel %s: %w", c.ID, err)
			}
			sc.Effects = append(sc.Effects, raw)
		}
		f.Channels = append(f.Channels, sc)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("show: sequence: %w", err)
	}
	return nil
}

// LoadSequence reads a sequence file from disk into s.
func (s *Show) LoadSequence(path string) ([]error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("show: open sequence: %w", err)
	}
	defer f.Close()
	return s.ReadSequence(f)
}

// SaveSequence writes the overrides of s to path.
func (s *Show) SaveSequence(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("show: create sequence: %w", err)
	}
	if err := s.WriteSequence(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
