package processing

import (
	"encoding/base64"
	"log"
	"sync/atomic"
	"time"

	"lineout-go/internal/config"
	"lineout-go/internal/gate"
	"lineout-go/internal/types"
)

// View is everything one render produces.
type View struct {
	Frame    *types.Frame
	Settings config.Settings
	Min      uint16
	Max      uint16
	Lineout  []float64
	Fit      *FitResult
	Heatmap  []byte
	Rendered time.Time
	Duration time.Duration
}

type RenderStats struct {
	Rendered     uint64 `json:"rendered_total"`
	RenderNanos  uint64 `json:"render_nanos_total"`
	FitAttempts  uint64 `json:"fit_total"`
	FitFailures  uint64 `json:"fit_failures_total"`
	HeatmapError uint64 `json:"heatmap_errors_total"`
}

type Renderer struct {
	imageWidth int

	rendered     atomic.Uint64
	renderNanos  atomic.Uint64
	fitAttempts  atomic.Uint64
	fitFailures  atomic.Uint64
	heatmapError atomic.Uint64
}

func NewRenderer(imageWidth int) *Renderer {
	return &Renderer{imageWidth: imageWidth}
}

// Render draws one frame. Peak position and fit width are bounded by the
// frame's own width, which may differ from the configured one.
func (r *Renderer) Render(frame *types.Frame, settings config.Settings) *View {
	start := time.Now()
	settings = settings.Clamp(frame.Cols)

	displayed := frame
	if settings.Angle != 0 {
		displayed = Rotate(frame, settings.Angle)
	}

	minVal, maxVal := Bounds(displayed)
	view := &View{
		Frame:    displayed,
		Settings: settings,
		Min:      minVal,
		Max:      maxVal,
		Lineout:  Lineout(displayed),
	}

	if settings.Fit {
		r.fitAttempts.Add(1)
		fit := FitGaussian(view.Lineout, settings.PeakPos, settings.FitWidth)
		if !fit.OK {
			r.fitFailures.Add(1)
			log.Printf("fit failed on frame %d: %s", frame.Seq, fit.Reason)
		}
		view.Fit = &fit
	}

	if r.imageWidth >= 0 {
		img, err := HeatmapPNG(displayed, minVal, maxVal, r.imageWidth)
		if err != nil {
			r.heatmapError.Add(1)
			log.Printf("heatmap encode failed on frame %d: %v", frame.Seq, err)
		}
		view.Heatmap = img
	}

	view.Rendered = time.Now()
	view.Duration = view.Rendered.Sub(start)
	r.rendered.Add(1)
	r.renderNanos.Add(uint64(view.Duration.Nanoseconds()))
	return view
}

// Run renders every frame delivered through g and releases the gate after
// emit returns. It exits when the gate is closed.
func (r *Renderer) Run(g *gate.Gate, settings func() config.Settings, emit func(*View)) {
	for frame := range g.Frames() {
		view := r.Render(frame, settings())
		if emit != nil {
			emit(view)
		}
		g.Release()
	}
}

func (r *Renderer) Stats() RenderStats {
	return RenderStats{
		Rendered:     r.rendered.Load(),
		RenderNanos:  r.renderNanos.Load(),
		FitAttempts:  r.fitAttempts.Load(),
		FitFailures:  r.fitFailures.Load(),
		HeatmapError: r.heatmapError.Load(),
	}
}

// UIFrame converts the view to the websocket payload.
func (v *View) UIFrame() types.UIFrame {
	msg := types.UIFrame{
		Type:      "frame",
		StreamID:  v.Frame.StreamID,
		Seq:       v.Frame.Seq,
		Rows:      v.Frame.Rows,
		Cols:      v.Frame.Cols,
		Angle:     v.Settings.Angle,
		Min:       v.Min,
		Max:       v.Max,
		Lineout:   v.Lineout,
		RenderMs:  float64(v.Duration.Microseconds()) / 1000,
		Timestamp: v.Rendered.Format(time.RFC3339Nano),
	}
	if len(v.Heatmap) > 0 {
		msg.Image = "data:image/png;base64," + base64.StdEncoding.EncodeToString(v.Heatmap)
	}
	if v.Fit != nil {
		fit := &types.FitSnapshot{OK: v.Fit.OK, Reason: v.Fit.Reason}
		if v.Fit.OK {
			fit.Amplitude = v.Fit.Params.Amplitude
			fit.Baseline = v.Fit.Params.Baseline
			fit.Center = v.Fit.Params.Center
			fit.Sigma = v.Fit.Params.Sigma
			fit.FWHM = v.Fit.FWHM
			fit.X = v.Fit.X
			fit.Y = v.Fit.Curve
		}
		msg.Fit = fit
	}
	return msg
}
