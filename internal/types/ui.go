package types

// FitSnapshot is the fit outcome as sent to UI clients.
type FitSnapshot struct {
	OK        bool      `json:"ok"`
	Reason    string    `json:"reason,omitempty"`
	Amplitude float64   `json:"amplitude,omitempty"`
	Baseline  float64   `json:"baseline,omitempty"`
	Center    float64   `json:"center,omitempty"`
	Sigma     float64   `json:"sigma,omitempty"`
	FWHM      float64   `json:"fwhm,omitempty"`
	X         []float64 `json:"x,omitempty"`
	Y         []float64 `json:"y,omitempty"`
}

type UIFrame struct {
	Type      string       `json:"type"`
	StreamID  string       `json:"stream_id"`
	Seq       uint64       `json:"seq"`
	Rows      int          `json:"rows"`
	Cols      int          `json:"cols"`
	Angle     float64      `json:"angle"`
	Min       uint16       `json:"min"`
	Max       uint16       `json:"max"`
	Lineout   []float64    `json:"lineout"`
	Fit       *FitSnapshot `json:"fit,omitempty"`
	Image     string       `json:"image,omitempty"`
	RenderMs  float64      `json:"render_ms"`
	Timestamp string       `json:"timestamp"`
}
