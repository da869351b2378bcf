package types

import "time"

// Frame is one detector image. Data is row-major and owned by whoever holds
// the frame; it is never modified after decode.
type Frame struct {
	StreamID  string    `json:"stream_id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Rows      int       `json:"rows"`
	Cols      int       `json:"cols"`
	Data      []uint16  `json:"-"`
}

func NewFrame(rows, cols int) *Frame {
	return &Frame{
		Rows: rows,
		Cols: cols,
		Data: make([]uint16, rows*cols),
	}
}

func (f *Frame) At(row, col int) uint16 {
	return f.Data[row*f.Cols+col]
}

func (f *Frame) Valid() bool {
	return f != nil && f.Rows > 0 && f.Cols > 0 && len(f.Data) == f.Rows*f.Cols
}
