// Package gate is the single-slot handoff between the frame receiver and the
// render loop.
//
// The receiver calls TryAcquire for every message. Only when it succeeds does
// it decode and Deliver the frame. The render loop takes the frame from
// Frames and calls Release once it is done, which is the only way the next
// frame can be accepted. At most one frame is ever owned by the render stage;
// frames arriving while it is busy are dropped, never queued, and the
// receiver never blocks.
package gate

import (
	"sync"
	"sync/atomic"

	"lineout-go/internal/types"
)

type Stats struct {
	Accepted uint64 `json:"accepted_total"`
	Skipped  uint64 `json:"skipped_total"`
	Released uint64 `json:"released_total"`
}

type Gate struct {
	token chan struct{}
	ready chan *types.Frame

	closeOnce sync.Once

	accepted atomic.Uint64
	skipped  atomic.Uint64
	released atomic.Uint64
}

func New() *Gate {
	return &Gate{
		token: make(chan struct{}, 1),
		ready: make(chan *types.Frame, 1),
	}
}

// TryAcquire takes the slot if it is free. It never blocks.
func (g *Gate) TryAcquire() bool {
	select {
	case g.token <- struct{}{}:
		g.accepted.Add(1)
		return true
	default:
		g.skipped.Add(1)
		return false
	}
}

// Deliver hands an owned frame to the render loop. The caller must hold the
// slot; the handoff channel is then always empty, so this does not block.
func (g *Gate) Deliver(frame *types.Frame) {
	g.ready <- frame
}

// Release frees the slot. Releasing a free slot is a no-op.
func (g *Gate) Release() {
	select {
	case <-g.token:
		g.released.Add(1)
	default:
	}
}

// Busy reports whether a frame currently owns the slot.
func (g *Gate) Busy() bool {
	return len(g.token) == 1
}

func (g *Gate) Frames() <-chan *types.Frame {
	return g.ready
}

// Close ends the render loop's range over Frames. Only the receiver, after
// its last Deliver, may call it.
func (g *Gate) Close() {
	g.closeOnce.Do(func() { close(g.ready) })
}

func (g *Gate) Stats() Stats {
	return Stats{
		Accepted: g.accepted.Load(),
		Skipped:  g.skipped.Load(),
		Released: g.released.Load(),
	}
}
