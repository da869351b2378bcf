package gate

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lineout-go/internal/types"
)

func TestSecondFrameDroppedWhileRendering(t *testing.T) {
	g := New()
	if !g.TryAcquire() {
		t.Fatalf("first acquire failed")
	}
	g.Deliver(&types.Frame{Seq: 1})

	frame := <-g.Frames()
	if frame.Seq != 1 {
		t.Fatalf("unexpected frame %d", frame.Seq)
	}

	// Still rendering: the slot stays taken after the frame left the channel.
	if g.TryAcquire() {
		t.Fatalf("acquire succeeded while frame in flight")
	}
	if !g.Busy() {
		t.Fatalf("gate not busy during render")
	}

	g.Release()
	if !g.TryAcquire() {
		t.Fatalf("acquire failed after release")
	}

	stats := g.Stats()
	if stats.Accepted != 2 || stats.Skipped != 1 || stats.Released != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := New()
	g.Release()
	g.Release()
	if g.Stats().Released != 0 {
		t.Fatalf("released a free slot")
	}
	if !g.TryAcquire() {
		t.Fatalf("acquire failed")
	}
}

func TestAtMostOneFrameInFlight(t *testing.T) {
	g := New()
	var inFlight, maxInFlight atomic.Int32
	var rendered atomic.Int32

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range g.Frames() {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(200 * time.Microsecond)
			rendered.Add(1)
			inFlight.Add(-1)
			g.Release()
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			if g.TryAcquire() {
				g.Deliver(&types.Frame{Seq: uint64(i)})
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("receiver blocked on the gate")
	}

	// Let the last accepted frame finish before closing.
	deadline := time.Now().Add(time.Second)
	for g.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.Close()
	wg.Wait()

	if maxInFlight.Load() != 1 {
		t.Fatalf("max frames in flight = %d", maxInFlight.Load())
	}
	stats := g.Stats()
	if stats.Accepted+stats.Skipped != 2000 {
		t.Fatalf("accounting mismatch: %#v", stats)
	}
	if uint64(rendered.Load()) != stats.Accepted {
		t.Fatalf("rendered %d, accepted %d", rendered.Load(), stats.Accepted)
	}
	if stats.Skipped == 0 {
		t.Fatalf("expected drops under load")
	}
}
