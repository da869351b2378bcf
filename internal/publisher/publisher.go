package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"lineout-go/internal/codec"
	"lineout-go/internal/types"
)

type Sender interface {
	Send(msg []byte) error
}

type Stats struct {
	Sent        uint64 `json:"sent_total"`
	Dropped     uint64 `json:"dropped_total"`
	Errors      uint64 `json:"errors_total"`
	EncodeNanos uint64 `json:"encode_nanos_total"`
	SendNanos   uint64 `json:"send_nanos_total"`
}

// Publisher encodes frames and hands them to a non-blocking sender. A frame
// that cannot be sent immediately is dropped; there is no retry.
type Publisher struct {
	sender   Sender
	codec    codec.Codec
	streamID string
	logEvery uint64

	sent        atomic.Uint64
	dropped     atomic.Uint64
	errors      atomic.Uint64
	encodeNanos atomic.Uint64
	sendNanos   atomic.Uint64

	// Set to false in tests to skip the startup pause.
	settleOnRun bool
}

func New(sender Sender, c codec.Codec, streamID string, logEvery int) *Publisher {
	if logEvery < 1 {
		logEvery = 1
	}
	return &Publisher{
		sender:      sender,
		codec:       c,
		streamID:    streamID,
		logEvery:    uint64(logEvery),
		settleOnRun: true,
	}
}

// Publish encodes and sends one frame. It returns ErrWouldBlock when the
// frame was dropped because the send buffer is full.
func (p *Publisher) Publish(frame *types.Frame) error {
	frame.StreamID = p.streamID

	start := time.Now()
	msg, err := p.codec.Encode(frame)
	p.encodeNanos.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		p.errors.Add(1)
		return fmt.Errorf("encode frame %d: %w", frame.Seq, err)
	}

	start = time.Now()
	err = p.sender.Send(msg)
	p.sendNanos.Add(uint64(time.Since(start).Nanoseconds()))
	switch {
	case err == nil:
		p.sent.Add(1)
		return nil
	case errors.Is(err, ErrWouldBlock):
		p.dropped.Add(1)
		return err
	default:
		p.errors.Add(1)
		return fmt.Errorf("send frame %d: %w", frame.Seq, err)
	}
}

// Run publishes frames until ctx is done or frames is closed. Send failures
// are logged and never stop the loop.
func (p *Publisher) Run(ctx context.Context, frames <-chan *types.Frame) {
	if p.settleOnRun {
		settle()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			err := p.Publish(frame)
			switch {
			case err == nil:
			case errors.Is(err, ErrWouldBlock):
				if n := p.dropped.Load(); p.shouldLog(n) {
					log.Printf("send buffer full, dropped frame %d (%d dropped)", frame.Seq, n)
				}
			default:
				if n := p.errors.Load(); p.shouldLog(n) {
					log.Printf("publish error: %v (%d errors)", err, n)
				}
			}
		}
	}
}

// shouldLog reports whether the nth occurrence should be logged: the first,
// then every logEvery-th after it.
func (p *Publisher) shouldLog(n uint64) bool {
	return p.logEvery == 1 || n%p.logEvery == 1
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Sent:        p.sent.Load(),
		Dropped:     p.dropped.Load(),
		Errors:      p.errors.Load(),
		EncodeNanos: p.encodeNanos.Load(),
		SendNanos:   p.sendNanos.Load(),
	}
}

// LogStats prints a stats line every interval until ctx is done.
func (p *Publisher) LogStats(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			attempts := s.Sent + s.Dropped
			var meanSend time.Duration
			if attempts > 0 {
				meanSend = time.Duration(s.SendNanos / attempts)
			}
			log.Printf("publish stats: sent=%d dropped=%d errors=%d mean_send=%v", s.Sent, s.Dropped, s.Errors, meanSend)
		}
	}
}
