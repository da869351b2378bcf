package processing

import (
	"math"

	"lineout-go/internal/types"
)

// Quadratic B-spline pole.
var splinePole = math.Sqrt(8) - 3

const edgeTolerance = 1e-9

// Rotate returns a copy of frame rotated by angle degrees about the image
// center. The output keeps the input shape, samples falling outside the
// input are 0, and values are interpolated with a quadratic B-spline.
func Rotate(frame *types.Frame, angle float64) *types.Frame {
	rows, cols := frame.Rows, frame.Cols
	out := types.NewFrame(rows, cols)
	out.StreamID = frame.StreamID
	out.Seq = frame.Seq
	out.Timestamp = frame.Timestamp

	coeffs := splineCoefficients(frame)
	sin, cos := sincosDegrees(angle)
	centerR := float64(rows-1) / 2
	centerC := float64(cols-1) / 2
	maxR := float64(rows - 1)
	maxC := float64(cols - 1)

	for r := 0; r < rows; r++ {
		dr := float64(r) - centerR
		for c := 0; c < cols; c++ {
			dc := float64(c) - centerC
			inR := cos*dr + sin*dc + centerR
			inC := -sin*dr + cos*dc + centerC
			if inR < -edgeTolerance || inR > maxR+edgeTolerance || inC < -edgeTolerance || inC > maxC+edgeTolerance {
				continue
			}
			v := evalSpline(coeffs, rows, cols, inR, inC)
			out.Data[r*cols+c] = toUint16(v)
		}
	}
	return out
}

func sincosDegrees(angle float64) (float64, float64) {
	// Exact values on the axes avoid a ring of rounding error at 90° steps.
	if q := angle / 90; q == math.Trunc(q) {
		switch int(math.Mod(q, 4)+4) % 4 {
		case 0:
			return 0, 1
		case 1:
			return 1, 0
		case 2:
			return 0, -1
		case 3:
			return -1, 0
		}
	}
	return math.Sincos(angle * math.Pi / 180)
}

func toUint16(v float64) uint16 {
	v = math.Round(v)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}

func splineCoefficients(frame *types.Frame) []float64 {
	rows, cols := frame.Rows, frame.Cols
	coeffs := make([]float64, len(frame.Data))
	for i, v := range frame.Data {
		coeffs[i] = float64(v)
	}
	for r := 0; r < rows; r++ {
		prefilter(coeffs[r*cols : (r+1)*cols])
	}
	column := make([]float64, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			column[r] = coeffs[r*cols+c]
		}
		prefilter(column)
		for r := 0; r < rows; r++ {
			coeffs[r*cols+c] = column[r]
		}
	}
	return coeffs
}

// prefilter converts samples to interpolating spline coefficients in place,
// assuming mirror-symmetric extension at both ends.
func prefilter(c []float64) {
	n := len(c)
	if n < 2 {
		return
	}
	z := splinePole
	lambda := (1 - z) * (1 - 1/z)
	for i := range c {
		c[i] *= lambda
	}
	c[0] = causalInit(c, z)
	for i := 1; i < n; i++ {
		c[i] += z * c[i-1]
	}
	c[n-1] = (z / (z*z - 1)) * (z*c[n-2] + c[n-1])
	for i := n - 2; i >= 0; i-- {
		c[i] = z * (c[i+1] - c[i])
	}
}

func causalInit(c []float64, z float64) float64 {
	n := len(c)
	horizon := int(math.Ceil(math.Log(1e-12) / math.Log(math.Abs(z))))
	if horizon < n {
		zn := z
		sum := c[0]
		for k := 1; k < horizon; k++ {
			sum += zn * c[k]
			zn *= z
		}
		return sum
	}
	zn := z
	iz := 1 / z
	z2n := math.Pow(z, float64(n-1))
	sum := c[0] + z2n*c[n-1]
	z2n *= z2n * iz
	for k := 1; k < n-1; k++ {
		sum += (zn + z2n) * c[k]
		zn *= z
		z2n *= iz
	}
	return sum / (1 - zn*zn)
}

func evalSpline(coeffs []float64, rows, cols int, y, x float64) float64 {
	ry := math.Round(y)
	rx := math.Round(x)
	wy := quadWeights(y - ry)
	wx := quadWeights(x - rx)
	iy := int(ry) - 1
	ix := int(rx) - 1

	var sum float64
	for j := 0; j < 3; j++ {
		row := mirror(iy+j, rows) * cols
		var rowSum float64
		for i := 0; i < 3; i++ {
			rowSum += wx[i] * coeffs[row+mirror(ix+i, cols)]
		}
		sum += wy[j] * rowSum
	}
	return sum
}

// quadWeights returns the B-spline weights for nodes at -1, 0, +1 relative to
// the nearest node, t being the offset from it in [-0.5, 0.5].
func quadWeights(t float64) [3]float64 {
	return [3]float64{
		0.5 * (0.5 - t) * (0.5 - t),
		0.75 - t*t,
		0.5 * (0.5 + t) * (0.5 + t),
	}
}

func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
