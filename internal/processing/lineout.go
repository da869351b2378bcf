package processing

import "lineout-go/internal/types"

// Lineout sums every column over all rows.
func Lineout(frame *types.Frame) []float64 {
	out := make([]float64, frame.Cols)
	for r := 0; r < frame.Rows; r++ {
		row := frame.Data[r*frame.Cols : (r+1)*frame.Cols]
		for c, v := range row {
			out[c] += float64(v)
		}
	}
	return out
}

// Bounds returns the exact minimum and maximum sample.
func Bounds(frame *types.Frame) (uint16, uint16) {
	if len(frame.Data) == 0 {
		return 0, 0
	}
	minVal, maxVal := frame.Data[0], frame.Data[0]
	for _, v := range frame.Data[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	return minVal, maxVal
}
