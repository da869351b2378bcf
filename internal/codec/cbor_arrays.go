package codec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// RFC 8746 tags.
const (
	tagMultiDimArray = 40
	tagUint8         = 64
	tagUint16LE      = 69
)

func encodeMultiDimUint16(values []uint16, rows, cols int) cbor.Tag {
	return cbor.Tag{
		Number: tagMultiDimArray,
		Content: []any{
			[]any{rows, cols},
			cbor.Tag{
				Number:  tagUint16LE,
				Content: uint16ToBytes(values),
			},
		},
	}
}

func decodeMultiDimArray(value any) (int, int, []uint16, error) {
	tag, ok := value.(cbor.Tag)
	if !ok || tag.Number != tagMultiDimArray {
		return 0, 0, nil, fmt.Errorf("expected multidim tag 40")
	}

	items, ok := tag.Content.([]any)
	if !ok || len(items) != 2 {
		return 0, 0, nil, fmt.Errorf("invalid multidim array content")
	}

	dimsRaw, ok := items[0].([]any)
	if !ok || len(dimsRaw) != 2 {
		return 0, 0, nil, fmt.Errorf("invalid multidim dimensions")
	}

	rows, err := toInt(dimsRaw[0])
	if err != nil {
		return 0, 0, nil, err
	}
	cols, err := toInt(dimsRaw[1])
	if err != nil {
		return 0, 0, nil, err
	}

	flat, err := decodeTypedArray(items[1])
	if err != nil {
		return 0, 0, nil, err
	}
	if rows <= 0 || cols <= 0 || rows*cols != len(flat) {
		return 0, 0, nil, fmt.Errorf("%w: %d samples for %dx%d", ErrShapeMismatch, len(flat), rows, cols)
	}
	return rows, cols, flat, nil
}

func decodeTypedArray(value any) ([]uint16, error) {
	tag, ok := value.(cbor.Tag)
	if !ok {
		return nil, fmt.Errorf("expected typed array tag")
	}

	dataBytes, ok := tag.Content.([]byte)
	if !ok {
		return nil, fmt.Errorf("unsupported typed array content %T", tag.Content)
	}

	switch tag.Number {
	case tagUint8:
		out := make([]uint16, len(dataBytes))
		for i, b := range dataBytes {
			out[i] = uint16(b)
		}
		return out, nil
	case tagUint16LE:
		if len(dataBytes)%2 != 0 {
			return nil, errors.New("odd byte count for uint16 array")
		}
		return bytesToUint16(dataBytes), nil
	default:
		return nil, fmt.Errorf("unsupported typed array tag %d", tag.Number)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported int type %T", v)
	}
}

func toUint64(v any) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("unsupported uint type %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", v)
	}
}
