package simulator

import (
	"context"
	"math/rand"
	"time"

	"lineout-go/internal/types"
)

// MaxBound caps the sample upper bound so values stay within uint16.
const MaxBound = 1 << 16

// Generate builds the frame for tick: samples are uniform in [0, tick).
// A tick below 1 is treated as 1.
func Generate(rng *rand.Rand, tick, rows, cols int) *types.Frame {
	bound := tick
	if bound < 1 {
		bound = 1
	}
	if bound > MaxBound {
		bound = MaxBound
	}

	frame := types.NewFrame(rows, cols)
	frame.Seq = uint64(tick)
	if bound == 1 {
		return frame
	}
	for i := range frame.Data {
		frame.Data[i] = uint16(rng.Intn(bound))
	}
	return frame
}

// Stream emits one frame per period, starting at tick 1. The channel is
// unbuffered, so a slow consumer slows the stream down: tick advances once
// per delivered frame, and periods missed while blocked are merged by the
// ticker rather than skipped over.
func Stream(ctx context.Context, rows, cols int, period time.Duration, seed int64) <-chan *types.Frame {
	out := make(chan *types.Frame)
	go func() {
		defer close(out)

		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		tick := 1
		for {
			frame := Generate(rng, tick, rows, cols)
			frame.Timestamp = time.Now()
			select {
			case <-ctx.Done():
				return
			case out <- frame:
			}
			tick++

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}
