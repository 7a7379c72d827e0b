package spectrum

import (
	"context"
	"time"
)

// Replay delivers frames to fn one at a time, paced so that each frame
// arrives when its position is due relative to the first one. A position
// that jumps backwards (seek or loop) restarts the clock from that frame.
// Replay blocks until every frame is delivered or ctx is cancelled.
func Replay(ctx context.Context, frames []Frame, fn func(Frame)) error {
	if len(frames) == 0 {
		return nil
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	start := time.Now()
	base := frames[0].Position
	prev := base
	for _, f := range frames {
		if f.Position < prev {
			start = time.Now()
			base = f.Position
		}
		prev = f.Position
		due := start.Add(time.Duration(f.Position-base) * time.Millisecond)
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		fn(f)
	}
	return nil
}
