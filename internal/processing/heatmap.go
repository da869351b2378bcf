package processing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"lineout-go/internal/types"
)

// Breakpoints of the "hot" colormap: black through red and yellow to white.
const (
	hotRedEnd   = 0.365079
	hotGreenEnd = 0.746032
	hotRedStart = 0.0416
)

func HotColor(t float64) color.RGBA {
	if math.IsNaN(t) || t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	r := hotRedStart + (1-hotRedStart)*unit(t/hotRedEnd)
	g := unit((t - hotRedEnd) / (hotGreenEnd - hotRedEnd))
	b := unit((t - hotGreenEnd) / (1 - hotGreenEnd))
	return color.RGBA{R: uint8(r*255 + 0.5), G: uint8(g*255 + 0.5), B: uint8(b*255 + 0.5), A: 255}
}

func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Heatmap colors frame between minVal and maxVal with row 0 at the bottom.
func Heatmap(frame *types.Frame, minVal, maxVal uint16) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, frame.Cols, frame.Rows))
	span := float64(maxVal) - float64(minVal)

	var lut [1 << 16]color.RGBA
	var filled [1 << 16]bool
	for r := 0; r < frame.Rows; r++ {
		y := frame.Rows - 1 - r
		row := frame.Data[r*frame.Cols : (r+1)*frame.Cols]
		for c, v := range row {
			if !filled[v] {
				t := 0.0
				if span > 0 {
					t = (float64(v) - float64(minVal)) / span
				}
				lut[v] = HotColor(t)
				filled[v] = true
			}
			img.SetRGBA(c, y, lut[v])
		}
	}
	return img
}

// HeatmapPNG renders the heatmap scaled to width pixels (height follows the
// frame aspect ratio) and PNG-encodes it. A width of 0 keeps the frame size.
func HeatmapPNG(frame *types.Frame, minVal, maxVal uint16, width int) ([]byte, error) {
	src := Heatmap(frame, minVal, maxVal)
	var img image.Image = src
	if width > 0 && width != frame.Cols {
		height := width * frame.Rows / frame.Cols
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, width, height))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
		img = dst
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
