package codec

import (
	"encoding/binary"
	"fmt"

	"lineout-go/internal/types"
)

const bytesPerSample = 2

func EncodeRaw(frame *types.Frame) []byte {
	return uint16ToBytes(frame.Data)
}

// DecodeRaw reinterprets msg as a rows x cols frame. The byte length must
// match exactly.
func DecodeRaw(msg []byte, rows, cols int) (*types.Frame, error) {
	want := rows * cols * bytesPerSample
	if rows <= 0 || cols <= 0 || len(msg) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d for %dx%d", ErrShapeMismatch, len(msg), want, rows, cols)
	}
	return &types.Frame{
		Rows: rows,
		Cols: cols,
		Data: bytesToUint16(msg),
	}, nil
}

func bytesToUint16(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := 0; i < len(out); i++ {
		out[i] = binary.LittleEndian.Uint16(data[i*2 : i*2+2])
	}
	return out
}

func uint16ToBytes(values []uint16) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], v)
	}
	return out
}
