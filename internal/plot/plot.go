// Package plot draws the lineout chart served as /lineout.png.
package plot

import (
	"bytes"
	"fmt"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	"gonum.org/v1/gonum/floats"

	"lineout-go/internal/processing"
)

const (
	DefaultWidth  = 1024
	DefaultHeight = 320
)

func lineStyle(col drawing.Color, dashed bool) chart.Style {
	style := chart.Style{
		StrokeColor: col,
		StrokeWidth: 1.2,
	}
	if dashed {
		style.StrokeWidth = 1.4
		style.StrokeDashArray = []float64{6, 4}
	}
	return style
}

// Title is the chart heading: the FWHM for a converged fit, the reason for a
// failed one and empty without a fit.
func Title(fit *processing.FitResult) string {
	switch {
	case fit == nil:
		return ""
	case fit.OK:
		return fmt.Sprintf("Line width = %.2f Pixel (FWHM)", fit.FWHM)
	default:
		return "Fit failed: " + fit.Reason
	}
}

// LineoutPNG renders the view's lineout and, when present, the fitted curve.
func LineoutPNG(view *processing.View, width, height int) ([]byte, error) {
	if view == nil || len(view.Lineout) < 2 {
		return nil, fmt.Errorf("lineout needs at least 2 points")
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	xs := make([]float64, len(view.Lineout))
	for i := range xs {
		xs[i] = float64(i)
	}
	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "lineout",
			XValues: xs,
			YValues: view.Lineout,
			Style:   lineStyle(chart.ColorBlue, false),
		},
	}

	lo, hi := floats.Min(view.Lineout), floats.Max(view.Lineout)
	if fit := view.Fit; fit != nil && fit.OK && len(fit.X) >= 2 {
		series = append(series, chart.ContinuousSeries{
			Name:    "fit",
			XValues: fit.X,
			YValues: fit.Curve,
			Style:   lineStyle(chart.ColorRed, true),
		})
		lo = min(lo, floats.Min(fit.Curve))
		hi = max(hi, floats.Max(fit.Curve))
	}
	if hi <= lo {
		lo, hi = lo-1, hi+1
	}

	graph := chart.Chart{
		Title:  Title(view.Fit),
		Width:  width,
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 30, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.XAxis{
			Name:  "Pixel",
			Range: &chart.ContinuousRange{Min: 0, Max: float64(len(view.Lineout))},
		},
		YAxis: chart.YAxis{
			Name:  "Sum",
			Range: &chart.ContinuousRange{Min: lo, Max: hi},
		},
		Series: series,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
