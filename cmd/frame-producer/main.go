package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"lineout-go/internal/codec"
	"lineout-go/internal/config"
	"lineout-go/internal/discovery"
	"lineout-go/internal/publisher"
	"lineout-go/internal/simulator"
)

func main() {
	defaults := config.DefaultProducer()
	if path := config.PathFromArgs(os.Args[1:]); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		defaults = file.Producer
	}

	var (
		_           = flag.String("config", "", "YAML config file; flags override its values")
		endpoint    = flag.String("endpoint", defaults.Endpoint, "ZMQ PUB bind endpoint")
		rows        = flag.Int("rows", defaults.Rows, "Frame height in pixels")
		cols        = flag.Int("cols", defaults.Cols, "Frame width in pixels")
		period      = flag.Duration("period", defaults.Period, "Interval between frames")
		encoding    = flag.String("encoding", defaults.Encoding, "Wire encoding: raw, cbor or msgpack")
		sendHWM     = flag.Int("send-hwm", defaults.SendHWM, "ZMQ send high-water mark (messages)")
		logEvery    = flag.Int("log-every", defaults.LogEvery, "Log every Nth dropped frame or send error")
		statsEvery  = flag.Duration("stats-every", defaults.StatsEvery, "Interval between stats log lines (0 disables)")
		advertise   = flag.Bool("advertise", defaults.Advertise, "Advertise the endpoint via mDNS")
		serviceName = flag.String("service-name", defaults.ServiceName, "mDNS instance name")
		seed        = flag.Int64("seed", defaults.Seed, "Random seed (0 uses the clock)")
	)
	flag.Parse()

	cfg := config.ProducerConfig{
		Endpoint:    *endpoint,
		Rows:        *rows,
		Cols:        *cols,
		Period:      *period,
		Encoding:    *encoding,
		SendHWM:     *sendHWM,
		LogEvery:    *logEvery,
		StatsEvery:  *statsEvery,
		Advertise:   *advertise,
		ServiceName: *serviceName,
		Seed:        *seed,
	}
	if cfg.Rows < 1 || cfg.Cols < 1 {
		log.Fatalf("invalid frame shape %dx%d", cfg.Rows, cfg.Cols)
	}
	if cfg.Period <= 0 {
		log.Fatalf("period must be positive, got %v", cfg.Period)
	}

	enc, err := codec.ParseEncoding(cfg.Encoding)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sock, err := publisher.Bind(cfg.Endpoint, cfg.SendHWM)
	if err != nil {
		log.Fatalf("failed to bind %s: %v", cfg.Endpoint, err)
	}
	defer sock.Close()

	if cfg.Advertise {
		port, err := discovery.EndpointPort(cfg.Endpoint)
		if err != nil {
			log.Fatalf("cannot advertise: %v", err)
		}
		adv, err := discovery.Advertise(cfg.ServiceName, port, "encoding="+string(enc))
		if err != nil {
			log.Printf("mDNS advertise failed: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	streamID := uuid.NewString()
	pub := publisher.New(sock, codec.New(enc, cfg.Rows, cfg.Cols), streamID, cfg.LogEvery)
	log.Printf("publishing %dx%d frames every %v on %s (encoding=%s stream=%s)",
		cfg.Rows, cfg.Cols, cfg.Period, cfg.Endpoint, enc, streamID)

	go pub.LogStats(ctx, cfg.StatsEvery)
	pub.Run(ctx, simulator.Stream(ctx, cfg.Rows, cfg.Cols, cfg.Period, cfg.Seed))

	s := pub.Stats()
	log.Printf("producer stopped: sent=%d dropped=%d errors=%d", s.Sent, s.Dropped, s.Errors)
}
