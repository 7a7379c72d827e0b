// Package envelope holds the fast-attack / linear-release model shared by the
// live compositor, the spectrum-following effects and the batch exporter.
package envelope

// MinFade is the shortest decay time constant in seconds.
const MinFade = 0.1

// Reduction returns how much a level falls over dtMs milliseconds with the
// given fade time: a full-scale level reaches zero after 1000*fade ms.
func Reduction(dtMs int64, fade float64) float64 {
	if fade < MinFade {
		fade = MinFade
	}
	return float64(dtMs) / (1000 * fade)
}

// DecayThenRise decays level by dtMs and then lets candidate raise it.
//
// The candidate only wins when it is above both the decayed level and
// minimum; it is capped at 1. The result is clamped to [0,1].
func DecayThenRise(level float64, dtMs int64, fade, candidate, minimum float64) float64 {
	level -= Reduction(dtMs, fade)
	if candidate > level && candidate > minimum {
		level = min(candidate, 1)
	}
	return Clamp(level)
}

// Clamp limits v to [0,1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
