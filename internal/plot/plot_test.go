package plot

import (
	"bytes"
	"image/png"
	"strings"
	"testing"

	"lineout-go/internal/processing"
)

func TestTitle(t *testing.T) {
	if got := Title(nil); got != "" {
		t.Fatalf("unexpected title: %q", got)
	}
	ok := &processing.FitResult{OK: true, FWHM: 11.774}
	if got := Title(ok); got != "Line width = 11.77 Pixel (FWHM)" {
		t.Fatalf("unexpected title: %q", got)
	}
	bad := &processing.FitResult{Reason: "window too small"}
	if got := Title(bad); !strings.Contains(got, "window too small") {
		t.Fatalf("unexpected title: %q", got)
	}
}

func TestLineoutPNGFlatLineout(t *testing.T) {
	view := &processing.View{Lineout: make([]float64, 64)}
	data, err := LineoutPNG(view, 320, 200)
	if err != nil {
		t.Fatalf("LineoutPNG error: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 200 {
		t.Fatalf("unexpected size %v", b)
	}
}

func TestLineoutPNGRejectsShortLineout(t *testing.T) {
	if _, err := LineoutPNG(&processing.View{Lineout: []float64{1}}, 0, 0); err == nil {
		t.Fatalf("expected error")
	}
}
