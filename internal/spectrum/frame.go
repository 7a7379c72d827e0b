// Package spectrum carries the timestamped FFT snapshots that drive the
// lights, plus the recorded-history file format used for replay and export.
package spectrum

// Frame is one spectrum snapshot at a playback position.
type Frame struct {
	Position uint64    `json:"position"` // ms
	Bins     []float32 `json:"bins"`
}

// Bin returns bins[i], or 0 when i is out of range.
func (f Frame) Bin(i int) float64 {
	if i < 0 || i >= len(f.Bins) {
		return 0
	}
	return float64(f.Bins[i])
}

// Peak returns the largest bin value, or 0 for an empty frame.
func (f Frame) Peak() float64 {
	var peak float32
	for _, b := range f.Bins {
		if b > peak {
			peak = b
		}
	}
	return float64(peak)
}

// Centisecond converts a millisecond position to the centisecond grid used
// by sequence files.
func Centisecond(ms uint64) uint64 {
	return ms / 10
}
