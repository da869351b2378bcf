package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lineout-go/internal/processing"
)

// WriteLineout writes the view's lineout as CSV, with the fitted curve in a
// third column inside the fit window. It returns the file path.
func WriteLineout(outputDir string, view *processing.View) (string, error) {
	if view == nil || view.Frame == nil {
		return "", fmt.Errorf("no frame rendered yet")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", err
	}

	timestamp := view.Rendered.Format("20060102_150405")
	if view.Rendered.IsZero() {
		timestamp = time.Now().Format("20060102_150405")
	}
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_lineout_%d.csv", timestamp, view.Frame.Seq))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	w := bufio.NewWriter(f)

	fit := view.Fit
	if fit != nil && fit.OK {
		_, _ = fmt.Fprintf(w, "# fit amplitude=%.6f baseline=%.6f center=%.6f sigma=%.6f fwhm=%.6f\n",
			fit.Params.Amplitude, fit.Params.Baseline, fit.Params.Center, fit.Params.Sigma, fit.FWHM)
	} else if fit != nil {
		_, _ = fmt.Fprintf(w, "# fit failed: %s\n", fit.Reason)
	}
	_, _ = fmt.Fprintf(w, "# seq=%d angle=%.3f min=%d max=%d\n", view.Frame.Seq, view.Settings.Angle, view.Min, view.Max)
	_, _ = fmt.Fprintln(w, "column, sum, fit")
	for col, sum := range view.Lineout {
		if fit != nil && fit.OK && col >= fit.Start && col < fit.End {
			_, _ = fmt.Fprintf(w, "%d, %.6f, %.6f\n", col, sum, fit.Curve[col-fit.Start])
			continue
		}
		_, _ = fmt.Fprintf(w, "%d, %.6f,\n", col, sum)
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		return "", err
	}
	return filename, f.Close()
}
