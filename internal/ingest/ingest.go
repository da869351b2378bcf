package ingest

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"lineout-go/internal/codec"
	"lineout-go/internal/gate"
)

type Source interface {
	Recv() ([]byte, error)
}

type RawRecorder interface {
	Record(payload []byte) error
}

type Stats struct {
	Received       uint64 `json:"received_total"`
	RecvErrors     uint64 `json:"recv_errors_total"`
	DecodeFailures uint64 `json:"decode_failures_total"`
	DecodeCount    uint64 `json:"decode_total"`
	DecodeNanos    uint64 `json:"decode_nanos_total"`
	RecordErrors   uint64 `json:"record_errors_total"`
	StreamRestarts uint64 `json:"stream_restarts_total"`
	StreamID       string `json:"stream_id"`
}

// Receiver pulls messages from a Source and offers them to the gate. A
// message is decoded only after the gate accepted it.
type Receiver struct {
	src      Source
	codec    codec.Codec
	gate     *gate.Gate
	recorder RawRecorder
	logEvery uint64

	received       atomic.Uint64
	recvErrors     atomic.Uint64
	decodeFailures atomic.Uint64
	decodeCount    atomic.Uint64
	decodeNanos    atomic.Uint64
	recordErrors   atomic.Uint64
	streamRestarts atomic.Uint64
	logCounter     atomic.Uint64

	mu       sync.Mutex
	streamID string
}

func NewReceiver(src Source, c codec.Codec, g *gate.Gate, logEvery int) *Receiver {
	if logEvery < 1 {
		logEvery = 1
	}
	return &Receiver{
		src:      src,
		codec:    c,
		gate:     g,
		logEvery: uint64(logEvery),
	}
}

// WithRecorder records every received message, including skipped ones.
func (r *Receiver) WithRecorder(recorder RawRecorder) *Receiver {
	r.recorder = recorder
	return r
}

// Run receives until ctx is done, then closes the gate.
func (r *Receiver) Run(ctx context.Context) {
	defer r.gate.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := r.src.Recv()
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			r.recvErrors.Add(1)
			r.logEveryN("ingest recv error: %v", err)
			if ctx.Err() != nil {
				return
			}
			continue
		}
		r.Handle(msg)
	}
}

// Handle processes one message. It reports whether the frame was delivered
// to the render loop.
func (r *Receiver) Handle(msg []byte) bool {
	r.received.Add(1)
	if r.recorder != nil {
		if err := r.recorder.Record(msg); err != nil {
			r.recordErrors.Add(1)
			r.logEveryN("raw log record failed: %v", err)
		}
	}

	if !r.gate.TryAcquire() {
		r.logEveryN("skip frame")
		return false
	}

	start := time.Now()
	frame, err := r.codec.Decode(msg)
	r.decodeCount.Add(1)
	r.decodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		r.gate.Release()
		r.decodeFailures.Add(1)
		r.logEveryN("ingest decode dropped frame (%d bytes): %v", len(msg), err)
		return false
	}

	r.trackStream(frame.StreamID, frame.Seq)
	r.gate.Deliver(frame)
	return true
}

func (r *Receiver) trackStream(streamID string, seq uint64) {
	if streamID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streamID == streamID {
		return
	}
	if r.streamID != "" {
		r.streamRestarts.Add(1)
		log.Printf("producer stream changed from %s to %s at seq %d", r.streamID, streamID, seq)
	} else {
		log.Printf("receiving stream %s from seq %d", streamID, seq)
	}
	r.streamID = streamID
}

func (r *Receiver) Stats() Stats {
	r.mu.Lock()
	streamID := r.streamID
	r.mu.Unlock()
	return Stats{
		Received:       r.received.Load(),
		RecvErrors:     r.recvErrors.Load(),
		DecodeFailures: r.decodeFailures.Load(),
		DecodeCount:    r.decodeCount.Load(),
		DecodeNanos:    r.decodeNanos.Load(),
		RecordErrors:   r.recordErrors.Load(),
		StreamRestarts: r.streamRestarts.Load(),
		StreamID:       streamID,
	}
}

func (r *Receiver) logEveryN(format string, args ...any) {
	n := r.logCounter.Add(1)
	if r.logEvery == 1 || n%r.logEvery == 1 {
		log.Printf(format, args...)
	}
}
