package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"lineout-go/internal/codec"
	"lineout-go/internal/config"
	"lineout-go/internal/discovery"
	"lineout-go/internal/gate"
	"lineout-go/internal/ingest"
	"lineout-go/internal/output"
	"lineout-go/internal/plot"
	"lineout-go/internal/processing"
	"lineout-go/internal/server"
	"lineout-go/internal/tui"
)

type metrics struct {
	framesBroadcast atomic.Uint64
	broadcastDrops  atomic.Uint64
	exportOK        atomic.Uint64
	exportError     atomic.Uint64
	settingsChanges atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_broadcast_total":  m.framesBroadcast.Load(),
		"broadcast_dropped_total": m.broadcastDrops.Load(),
		"export_ok_total":         m.exportOK.Load(),
		"export_err_total":        m.exportError.Load(),
		"settings_changes_total":  m.settingsChanges.Load(),
	}
}

func main() {
	defaults := config.DefaultViewer()
	if path := config.PathFromArgs(os.Args[1:]); path != "" {
		file, err := config.LoadFile(path)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		defaults = file.Viewer
	}

	var (
		_            = flag.String("config", "", "YAML config file; flags override its values")
		port         = flag.Int("port", defaults.Port, "HTTP port for the web UI")
		endpoint     = flag.String("endpoint", defaults.Endpoint, "ZMQ endpoint of the frame producer")
		rows         = flag.Int("rows", defaults.Rows, "Frame height for raw encoding")
		cols         = flag.Int("cols", defaults.Cols, "Frame width for raw encoding")
		encoding     = flag.String("encoding", defaults.Encoding, "Wire encoding: raw, cbor or msgpack")
		recvTimeout  = flag.Duration("recv-timeout", defaults.RecvTimeout, "ZMQ receive timeout")
		recvHWM      = flag.Int("recv-hwm", defaults.RecvHWM, "ZMQ receive high-water mark (messages)")
		imageWidth   = flag.Int("image-width", defaults.ImageWidth, "Heatmap width in pixels (0 keeps frame width, -1 disables)")
		outputDir    = flag.String("output-dir", defaults.OutputDir, "Directory for lineout exports")
		rawLog       = flag.Bool("raw-log", defaults.RawLog, "Write every received message to disk")
		rawLogDir    = flag.String("raw-log-dir", defaults.RawLogDir, "Directory for raw message logs")
		logEvery     = flag.Int("log-every", defaults.LogEvery, "Log every Nth skipped frame or receive error")
		discover     = flag.Bool("discover", defaults.Discover, "Find the producer via mDNS")
		discoverWait = flag.Duration("discover-wait", defaults.DiscoverWait, "How long to browse for a producer")
		tuiEnabled   = flag.Bool("tui", defaults.TUI, "Show the terminal console")
		logFile      = flag.String("log-file", defaults.LogFile, "Log file used while the terminal console runs")
		angle        = flag.Float64("angle", defaults.Settings.Angle, "Initial rotation angle in degrees")
		fit          = flag.Bool("fit", defaults.Settings.Fit, "Enable the Gaussian fit")
		peakPos      = flag.Int("peak-pos", defaults.Settings.PeakPos, "Initial fit peak position (column)")
		fitWidth     = flag.Int("fit-width", defaults.Settings.FitWidth, "Initial fit half-width (columns)")
	)
	flag.Parse()

	cfg := config.ViewerConfig{
		Port:         *port,
		Endpoint:     *endpoint,
		Rows:         *rows,
		Cols:         *cols,
		Encoding:     *encoding,
		RecvTimeout:  *recvTimeout,
		RecvHWM:      *recvHWM,
		ImageWidth:   *imageWidth,
		OutputDir:    *outputDir,
		RawLog:       *rawLog,
		RawLogDir:    *rawLogDir,
		LogEvery:     *logEvery,
		Discover:     *discover,
		DiscoverWait: *discoverWait,
		TUI:          *tuiEnabled,
		LogFile:      *logFile,
		Settings: config.Settings{
			Angle:    *angle,
			Fit:      *fit,
			PeakPos:  *peakPos,
			FitWidth: *fitWidth,
		},
	}
	if cfg.Rows < 1 || cfg.Cols < 1 {
		log.Fatalf("invalid frame shape %dx%d", cfg.Rows, cfg.Cols)
	}
	if cfg.RecvTimeout <= 0 {
		cfg.RecvTimeout = defaults.RecvTimeout
	}

	if cfg.TUI {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	enc, err := codec.ParseEncoding(cfg.Encoding)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg.Encoding = string(enc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Discover {
		producer, err := discovery.Lookup(ctx, cfg.DiscoverWait)
		if err != nil {
			log.Printf("discovery: %v; using %s", err, cfg.Endpoint)
		} else {
			cfg.Endpoint = producer.Endpoint()
		}
	}

	sock, err := ingest.Connect(cfg.Endpoint, cfg.RecvHWM, cfg.RecvTimeout)
	if err != nil {
		log.Fatalf("failed to connect %s: %v", cfg.Endpoint, err)
	}

	frameGate := gate.New()
	receiver := ingest.NewReceiver(sock, codec.New(enc, cfg.Rows, cfg.Cols), frameGate, cfg.LogEvery)

	var rawWriter *output.RawLogWriter
	if cfg.RawLog {
		rawWriter, err = output.NewRawLogWriter(cfg.RawLogDir, "raw")
		if err != nil {
			log.Fatalf("failed to start raw log: %v", err)
		}
		receiver.WithRecorder(rawWriter)
		log.Printf("recording raw messages to %s", rawWriter.Path())
	}

	var metrics metrics
	uiMessages := make(chan any, 16)
	publish := func(message any) bool {
		select {
		case uiMessages <- message:
			return true
		default:
			metrics.broadcastDrops.Add(1)
			return false
		}
	}

	settings := config.NewSettingsStore(cfg.Settings, cfg.Cols)
	settings.OnChange(func(s config.Settings) {
		metrics.settingsChanges.Add(1)
		log.Printf("settings changed: angle=%.1f fit=%v peak_pos=%d fit_width=%d", s.Angle, s.Fit, s.PeakPos, s.FitWidth)
		publish(server.SettingsMessage(s, settings.Cols()))
	})

	var latestMu sync.Mutex
	var latest *processing.View
	latestView := func() *processing.View {
		latestMu.Lock()
		defer latestMu.Unlock()
		return latest
	}

	renderer := processing.NewRenderer(cfg.ImageWidth)

	var console *tui.Console
	if cfg.TUI {
		console = tui.New(settings, cfg.Endpoint, stop)
	}

	emit := func(view *processing.View) {
		if view.Frame.Cols != settings.Cols() {
			log.Printf("frame width %d differs from %d, adjusting settings limits", view.Frame.Cols, settings.Cols())
			publish(server.SettingsMessage(settings.SetCols(view.Frame.Cols), view.Frame.Cols))
		}

		latestMu.Lock()
		latest = view
		latestMu.Unlock()

		if publish(view.UIFrame()) {
			metrics.framesBroadcast.Add(1)
		}
		if console != nil {
			ingestStats := receiver.Stats()
			console.Update(tui.Status{
				Endpoint:     cfg.Endpoint,
				Received:     ingestStats.Received,
				Rendered:     renderer.Stats().Rendered,
				Skipped:      frameGate.Stats().Skipped,
				DecodeErrors: ingestStats.DecodeFailures,
				Seq:          view.Frame.Seq,
				Min:          view.Min,
				Max:          view.Max,
				Title:        plot.Title(view.Fit),
				Lineout:      view.Lineout,
				RenderMs:     float64(view.Duration.Microseconds()) / 1000,
			})
		}
	}

	receiverDone := make(chan struct{})
	go func() {
		defer close(receiverDone)
		receiver.Run(ctx)
	}()

	renderDone := make(chan struct{})
	go func() {
		defer close(renderDone)
		renderer.Run(frameGate, settings.Get, emit)
	}()

	statusFn := func() map[string]any {
		payload := metrics.snapshot()
		ingestStats := receiver.Stats()
		gateStats := frameGate.Stats()
		renderStats := renderer.Stats()
		payload["received_total"] = ingestStats.Received
		payload["recv_errors_total"] = ingestStats.RecvErrors
		payload["decode_failures_total"] = ingestStats.DecodeFailures
		payload["decode_total"] = ingestStats.DecodeCount
		payload["decode_nanos_total"] = ingestStats.DecodeNanos
		payload["raw_log_errors_total"] = ingestStats.RecordErrors
		payload["stream_restarts_total"] = ingestStats.StreamRestarts
		payload["gate_accepted_total"] = gateStats.Accepted
		payload["gate_skipped_total"] = gateStats.Skipped
		payload["gate_released_total"] = gateStats.Released
		payload["rendered_total"] = renderStats.Rendered
		payload["render_nanos_total"] = renderStats.RenderNanos
		payload["fit_total"] = renderStats.FitAttempts
		payload["fit_failures_total"] = renderStats.FitFailures
		payload["heatmap_errors_total"] = renderStats.HeatmapError

		status := map[string]any{
			"endpoint":  cfg.Endpoint,
			"encoding":  cfg.Encoding,
			"stream_id": ingestStats.StreamID,
			"busy":      frameGate.Busy(),
			"settings":  settings.Get(),
			"metrics":   payload,
		}
		if view := latestView(); view != nil {
			status["last_frame"] = view.Rendered.Format(time.RFC3339)
			status["last_seq"] = view.Frame.Seq
		}
		return status
	}

	exportFn := func() (string, error) {
		view := latestView()
		if view == nil {
			metrics.exportError.Add(1)
			return "", errors.New("no frame rendered yet")
		}
		path, err := output.WriteLineout(cfg.OutputDir, view)
		if err != nil {
			metrics.exportError.Add(1)
			log.Printf("lineout export failed: %v", err)
			return "", err
		}
		metrics.exportOK.Add(1)
		log.Printf("wrote lineout export %s", path)
		return path, nil
	}

	hooks := server.Hooks{
		Status:   statusFn,
		Latest:   latestView,
		Settings: settings,
		Export:   exportFn,
	}

	log.Printf("subscribed to %s (encoding=%s, raw shape %dx%d)", cfg.Endpoint, cfg.Encoding, cfg.Rows, cfg.Cols)
	log.Printf("Starting web UI at http://localhost:%d\n", cfg.Port)

	if console != nil {
		go func() {
			if err := server.Run(ctx, cfg, uiMessages, hooks); err != nil {
				log.Printf("server stopped: %v", err)
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			console.Stop()
		}()
		if err := console.Run(); err != nil {
			log.Printf("console stopped: %v", err)
		}
		stop()
	} else if err := server.Run(ctx, cfg, uiMessages, hooks); err != nil {
		log.Printf("server stopped: %v", err)
	}

	stop()
	<-receiverDone
	<-renderDone
	if err := sock.Close(); err != nil {
		log.Printf("socket close failed: %v", err)
	}
	if rawWriter != nil {
		if err := rawWriter.Close(); err != nil {
			log.Printf("raw log close failed: %v", err)
		}
	}
	s := receiver.Stats()
	log.Printf("viewer stopped: received=%d skipped=%d rendered=%d decode_failures=%d",
		s.Received, frameGate.Stats().Skipped, renderer.Stats().Rendered, s.DecodeFailures)
}
