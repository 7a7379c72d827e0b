package effect

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
)

const defaultDuration = 100 // ms

// Parameter keys of the persisted record.
const (
	keyIntensity      = "intensityValue"
	keyStartIntensity = "startIntensityValue"
	keyEndIntensity   = "endIntensityValue"
	keyPhaseShift     = "phaseShift"
	keyWaveLength     = "waveLength"
	keyWaveGain       = "waveGain"
	keyAmplitudeShift = "waveAmplitudeShift"
	keyGain           = "gainValue"
	keyFade           = "fadeValue"
	keyThreshold      = "thresholdValue"
	keyBarIndex       = "spectrumBarIndex"
)

// record is the persisted shape of an Effect. "uuid" is the key older
// sequence files used for the id.
type record struct {
	Type          string             `json:"type"`
	ID            string             `json:"id,omitempty"`
	UUID          string             `json:"uuid,omitempty"`
	Label         string             `json:"label"`
	Duration      *int64             `json:"duration"`
	StartPosition *int64             `json:"startPosition"`
	Parameters    map[string]float64 `json:"parameters"`
}

// MarshalJSON writes the {type, id, label, duration, startPosition,
// parameters} record.
func (e *Effect) MarshalJSON() ([]byte, error) {
	params, err := e.parameters()
	if err != nil {
		return nil, err
	}
	start, dur := e.Start, e.Duration
	return json.Marshal(record{
		Type:          e.Kind.String(),
		ID:            e.ID.String(),
		Label:         e.Label,
		Duration:      &dur,
		StartPosition: &start,
		Parameters:    params,
	})
}

// UnmarshalJSON reads a record. Any missing or malformed field fails the
// whole effect.
func (e *Effect) UnmarshalJSON(b []byte) error {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("effect: %w", err)
	}

	kind, err := ParseKind(r.Type)
	if err != nil {
		return err
	}

	idText := r.ID
	if idText == "" {
		idText = r.UUID
	}
	id, err := uuid.Parse(idText)
	if err != nil {
		return fmt.Errorf("effect: %s: bad id %q: %w", kind, idText, err)
	}

	out := Effect{
		ID:       id,
		Kind:     kind,
		Label:    r.Label,
		Duration: defaultDuration,
	}
	if r.StartPosition != nil {
		out.Start = *r.StartPosition
	}
	if r.Duration != nil {
		out.Duration = *r.Duration
	}
	if out.Start < 0 || out.Duration < 0 {
		return fmt.Errorf("effect: %s %s: negative start or duration", kind, id)
	}
	if err := out.setParameters(params(r.Parameters)); err != nil {
		return fmt.Errorf("effect: %s %s: %w", kind, id, err)
	}

	*e = out
	return nil
}

// DecodeList decodes effect records in order. Malformed records and repeated
// ids are skipped; the returned error joins what was wrong with them and does
// not invalidate the effects that did load.
func DecodeList(raws []json.RawMessage) ([]*Effect, error) {
	var (
		effects []*Effect
		errs    []error
		seen    = make(map[uuid.UUID]bool, len(raws))
	)
	for i, raw := range raws {
		e := new(Effect)
		if err := e.UnmarshalJSON(raw); err != nil {
			errs = append(errs, fmt.Errorf("effect %d: %w", i, err))
			continue
		}
		if seen[e.ID] {
			errs = append(errs, fmt.Errorf("effect %d: duplicate id %s", i, e.ID))
			continue
		}
		seen[e.ID] = true
		effects = append(effects, e)
	}
	return effects, errors.Join(errs...)
}

func (e *Effect) parameters() (map[string]float64, error) {
	switch e.Kind {
	case Constant:
		return map[string]float64{keyIntensity: e.Constant.Intensity}, nil
	case Ramp:
		return map[string]float64{
			keyStartIntensity: e.Ramp.StartIntensity,
			keyEndIntensity:   e.Ramp.EndIntensity,
		}, nil
	case Wave:
		return map[string]float64{
			keyPhaseShift:     e.Wave.PhaseShift,
			keyWaveLength:     e.Wave.WaveLength,
			keyWaveGain:       e.Wave.Gain,
			keyAmplitudeShift: e.Wave.AmplitudeShift,
		}, nil
	case MaxLevel:
		return map[string]float64{
			keyGain: e.MaxLevel.Gain,
			keyFade: e.MaxLevel.Fade,
		}, nil
	case SpectrumBar:
		return map[string]float64{
			keyGain:      e.SpectrumBar.Gain,
			keyFade:      e.SpectrumBar.Fade,
			keyThreshold: e.SpectrumBar.Threshold,
			keyBarIndex:  float64(e.SpectrumBar.Index),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(e.Kind))
	}
}

type params map[string]float64

func (p params) get(key string, dst *float64) error {
	v, ok := p[key]
	if !ok {
		return fmt.Errorf("missing parameter %q", key)
	}
	*dst = v
	return nil
}

func (e *Effect) setParameters(p params) error {
	switch e.Kind {
	case Constant:
		return p.get(keyIntensity, &e.Constant.Intensity)
	case Ramp:
		return errors.Join(
			p.get(keyStartIntensity, &e.Ramp.StartIntensity),
			p.get(keyEndIntensity, &e.Ramp.EndIntensity),
		)
	case Wave:
		return errors.Join(
			p.get(keyPhaseShift, &e.Wave.PhaseShift),
			p.get(keyWaveLength, &e.Wave.WaveLength),
			p.get(keyWaveGain, &e.Wave.Gain),
			p.get(keyAmplitudeShift, &e.Wave.AmplitudeShift),
		)
	case MaxLevel:
		return errors.Join(
			p.get(keyGain, &e.MaxLevel.Gain),
			p.get(keyFade, &e.MaxLevel.Fade),
		)
	case SpectrumBar:
		var idx float64
		err := errors.Join(
			p.get(keyGain, &e.SpectrumBar.Gain),
			p.get(keyFade, &e.SpectrumBar.Fade),
			p.get(keyThreshold, &e.SpectrumBar.Threshold),
			p.get(keyBarIndex, &idx),
		)
		if err != nil {
			return err
		}
		if idx < 0 || idx != math.Trunc(idx) {
			return fmt.Errorf("parameter %q must be a non-negative integer", keyBarIndex)
		}
		e.SpectrumBar.Index = int(idx)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(e.Kind))
	}
}
