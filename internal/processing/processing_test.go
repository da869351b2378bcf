package processing

import (
	"bytes"
	"image/png"
	"math"
	"math/rand"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"

	"lineout-go/internal/config"
	"lineout-go/internal/gate"
	"lineout-go/internal/types"
)

func randomFrame(rows, cols, bound int, seed int64) *types.Frame {
	rng := rand.New(rand.NewSource(seed))
	frame := types.NewFrame(rows, cols)
	for i := range frame.Data {
		frame.Data[i] = uint16(rng.Intn(bound))
	}
	return frame
}

func frameSum(frame *types.Frame) float64 {
	var sum float64
	for _, v := range frame.Data {
		sum += float64(v)
	}
	return sum
}

func TestLineoutColumnSums(t *testing.T) {
	frame := types.NewFrame(2, 3)
	copy(frame.Data, []uint16{1, 2, 3, 10, 20, 30})
	got := Lineout(frame)
	want := []float64{11, 22, 33}
	if !floats.Equal(got, want) {
		t.Fatalf("lineout mismatch: got %v want %v", got, want)
	}
}

func TestLineoutFullFrame(t *testing.T) {
	frame := randomFrame(512, 2048, 50, 1)
	lineout := Lineout(frame)
	if len(lineout) != 2048 {
		t.Fatalf("unexpected lineout length: %d", len(lineout))
	}
	if floats.Sum(lineout) != frameSum(frame) {
		t.Fatalf("lineout sum %v != frame sum %v", floats.Sum(lineout), frameSum(frame))
	}
}

func TestBounds(t *testing.T) {
	frame := types.NewFrame(1, 4)
	copy(frame.Data, []uint16{7, 3, 65535, 9})
	minVal, maxVal := Bounds(frame)
	if minVal != 3 || maxVal != 65535 {
		t.Fatalf("unexpected bounds %d..%d", minVal, maxVal)
	}
}

func TestRotateZerosStaysZero(t *testing.T) {
	frame := types.NewFrame(32, 64)
	for _, angle := range []float64{0.1, 12.5, 45, 90, -33, 180} {
		out := Rotate(frame, angle)
		if out.Rows != frame.Rows || out.Cols != frame.Cols {
			t.Fatalf("angle %v changed shape to %dx%d", angle, out.Rows, out.Cols)
		}
		for i, v := range out.Data {
			if v != 0 {
				t.Fatalf("angle %v: sample %d = %d", angle, i, v)
			}
		}
	}
}

func TestRotate180ReversesFrame(t *testing.T) {
	frame := randomFrame(5, 7, 1000, 2)
	out := Rotate(frame, 180)
	for r := 0; r < frame.Rows; r++ {
		for c := 0; c < frame.Cols; c++ {
			want := frame.At(frame.Rows-1-r, frame.Cols-1-c)
			if got := out.At(r, c); got != want {
				t.Fatalf("(%d,%d) = %d, want %d", r, c, got, want)
			}
		}
	}
}

func TestRotate90Square(t *testing.T) {
	frame := randomFrame(4, 4, 1000, 3)
	out := Rotate(frame, 90)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			want := frame.At(c, 3-r)
			if got := out.At(r, c); got != want {
				t.Fatalf("(%d,%d) = %d, want %d", r, c, got, want)
			}
		}
	}
}

func TestRotateSmallAnglePreservesSum(t *testing.T) {
	// A smooth blob well inside the frame keeps its mass under rotation.
	frame := types.NewFrame(64, 64)
	for r := 0; r < 64; r++ {
		for c := 0; c < 64; c++ {
			dr, dc := float64(r)-31.5, float64(c)-31.5
			frame.Data[r*64+c] = uint16(1000 * math.Exp(-(dr*dr+dc*dc)/(2*36)))
		}
	}
	out := Rotate(frame, 17)
	before, after := frameSum(frame), floats.Sum(Lineout(out))
	if rel := math.Abs(after-before) / before; rel > 0.01 {
		t.Fatalf("sum changed by %.4f (before %v after %v)", rel, before, after)
	}
}

func gaussianLineout(n int, p FitParams) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = Gaussian(float64(i), p)
	}
	return out
}

func TestFitRecoversKnownGaussian(t *testing.T) {
	truth := FitParams{Amplitude: 50, Baseline: 10, Center: 1024, Sigma: 5}
	lineout := gaussianLineout(2048, truth)

	fit := FitGaussian(lineout, 1024, 100)
	if !fit.OK {
		t.Fatalf("fit failed: %s", fit.Reason)
	}
	got := fit.Params
	if math.Abs(got.Amplitude-50) > 1e-4 || math.Abs(got.Baseline-10) > 1e-4 ||
		math.Abs(got.Center-1024) > 1e-4 || math.Abs(math.Abs(got.Sigma)-5) > 1e-4 {
		t.Fatalf("unexpected params: %+v", got)
	}
	if math.Abs(fit.FWHM-11.774) > 1e-3 {
		t.Fatalf("unexpected FWHM: %v", fit.FWHM)
	}
	if fit.Start != 924 || fit.End != 1124 || len(fit.Curve) != 200 || len(fit.X) != 200 {
		t.Fatalf("unexpected window [%d,%d) curve=%d", fit.Start, fit.End, len(fit.Curve))
	}
}

func TestFitWindowClamped(t *testing.T) {
	start, end := FitWindow(2048, 10, 100)
	if start != 0 || end != 110 {
		t.Fatalf("unexpected window [%d,%d)", start, end)
	}
	start, end = FitWindow(2048, 2040, 100)
	if start != 1940 || end != 2048 {
		t.Fatalf("unexpected window [%d,%d)", start, end)
	}
}

func TestFitOutOfBoundsDoesNotPanic(t *testing.T) {
	truth := FitParams{Amplitude: 50, Baseline: 10, Center: 2040, Sigma: 5}
	lineout := gaussianLineout(2048, truth)
	fit := FitGaussian(lineout, 2040, 100)
	if fit.End != 2048 {
		t.Fatalf("window not clamped: [%d,%d)", fit.Start, fit.End)
	}
	if fit.OK && math.Abs(fit.Params.Center-2040) > 0.1 {
		t.Fatalf("unexpected center: %+v", fit.Params)
	}
}

func TestFitEmptyWindowFails(t *testing.T) {
	fit := FitGaussian(make([]float64, 2048), 0, 0)
	if fit.OK {
		t.Fatalf("expected failure for empty window")
	}
	if fit.Reason == "" {
		t.Fatalf("missing failure reason")
	}
}

func TestFitNonFiniteFails(t *testing.T) {
	lineout := make([]float64, 64)
	lineout[30] = math.NaN()
	if fit := FitGaussian(lineout, 32, 10); fit.OK {
		t.Fatalf("expected failure for NaN input")
	}
}

func TestHotColorEnds(t *testing.T) {
	if c := HotColor(1); c.R != 255 || c.G != 255 || c.B != 255 {
		t.Fatalf("top of colormap not white: %#v", c)
	}
	if c := HotColor(0); c.G != 0 || c.B != 0 || c.R > 20 {
		t.Fatalf("bottom of colormap not near black: %#v", c)
	}
}

func TestHeatmapPNGScales(t *testing.T) {
	frame := randomFrame(16, 64, 100, 4)
	minVal, maxVal := Bounds(frame)
	data, err := HeatmapPNG(frame, minVal, maxVal, 32)
	if err != nil {
		t.Fatalf("HeatmapPNG error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 8 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestRenderBoundsMatchDisplayedData(t *testing.T) {
	frame := randomFrame(32, 64, 500, 5)
	r := NewRenderer(-1)

	view := r.Render(frame, config.Settings{Angle: 30})
	minVal, maxVal := Bounds(view.Frame)
	if view.Min != minVal || view.Max != maxVal {
		t.Fatalf("bounds %d..%d do not match displayed %d..%d", view.Min, view.Max, minVal, maxVal)
	}
	if view.Frame == frame {
		t.Fatalf("rotation did not copy the frame")
	}
	if !floats.Equal(view.Lineout, Lineout(view.Frame)) {
		t.Fatalf("lineout not computed from displayed frame")
	}

	view = r.Render(frame, config.Settings{})
	if view.Frame != frame {
		t.Fatalf("zero angle should display the frame unmodified")
	}
	if view.Fit != nil {
		t.Fatalf("fit ran while disabled")
	}
}

func TestRenderClampsSettingsToFrameWidth(t *testing.T) {
	r := NewRenderer(-1)
	frame := randomFrame(4, 16, 10, 3)
	view := r.Render(frame, config.Settings{Fit: true, PeakPos: 5000, FitWidth: 900})
	if view.Settings.PeakPos != 16 || view.Settings.FitWidth != 16 {
		t.Fatalf("settings not bounded by frame width: %#v", view.Settings)
	}
	if view.Fit == nil || view.Fit.Start != 0 || view.Fit.End != 16 {
		t.Fatalf("unexpected fit window: %#v", view.Fit)
	}
}

func TestRenderFitFailureIsReported(t *testing.T) {
	r := NewRenderer(-1)
	view := r.Render(types.NewFrame(4, 8), config.Settings{Fit: true, PeakPos: 0, FitWidth: 1})
	if view.Fit == nil || view.Fit.OK {
		t.Fatalf("expected failed fit, got %#v", view.Fit)
	}
	msg := view.UIFrame()
	if msg.Fit == nil || msg.Fit.OK || msg.Fit.Reason == "" {
		t.Fatalf("failure reason not propagated: %#v", msg.Fit)
	}
	if r.Stats().FitFailures != 1 {
		t.Fatalf("fit failure not counted")
	}
}

func TestRunReleasesAfterEmit(t *testing.T) {
	g := gate.New()
	r := NewRenderer(-1)
	emitted := make(chan bool, 1)

	done := make(chan struct{})
	go func() {
		r.Run(g, func() config.Settings { return config.Settings{} }, func(v *View) {
			emitted <- g.Busy()
		})
		close(done)
	}()

	if !g.TryAcquire() {
		t.Fatalf("acquire failed")
	}
	g.Deliver(types.NewFrame(2, 2))

	select {
	case busy := <-emitted:
		if !busy {
			t.Fatalf("gate released before emit")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame not rendered")
	}

	deadline := time.Now().Add(time.Second)
	for g.Busy() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.Busy() {
		t.Fatalf("gate not released after render")
	}
	g.Close()
	<-done
}
