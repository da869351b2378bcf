package codec

import (
	"fmt"
	"math"
	"time"

	"github.com/fxamacker/cbor/v2"

	"lineout-go/internal/types"
)

// Message layout:
// { "type": "image", "version": 1, "stream_id": <str>, "seq": <uint>,
//   "timestamp": <float seconds>, "data": tag40([rows, cols], tag69(bytes)) }
func encodeCBOR(frame *types.Frame) ([]byte, error) {
	payload := map[string]any{
		"type":      messageTypeImage,
		"version":   Version,
		"stream_id": frame.StreamID,
		"seq":       frame.Seq,
		"timestamp": unixSeconds(frame.Timestamp),
		"data":      encodeMultiDimUint16(frame.Data, frame.Rows, frame.Cols),
	}
	return cbor.Marshal(payload)
}

func decodeCBOR(msg []byte) (*types.Frame, error) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		return nil, fmt.Errorf("cbor decode: %w", err)
	}

	msgType, _ := payload["type"].(string)
	if msgType != messageTypeImage {
		return nil, fmt.Errorf("%w: type %q", ErrNotImage, msgType)
	}
	version, err := toInt(payload["version"])
	if err != nil {
		return nil, fmt.Errorf("invalid version: %w", err)
	}
	if err := checkVersion(version); err != nil {
		return nil, err
	}
	seq, err := toUint64(payload["seq"])
	if err != nil {
		return nil, fmt.Errorf("invalid seq: %w", err)
	}
	ts, err := toFloat(payload["timestamp"])
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp: %w", err)
	}
	streamID, _ := payload["stream_id"].(string)

	rows, cols, data, err := decodeMultiDimArray(payload["data"])
	if err != nil {
		return nil, err
	}

	return &types.Frame{
		StreamID:  streamID,
		Seq:       seq,
		Timestamp: fromUnixSeconds(ts),
		Rows:      rows,
		Cols:      cols,
		Data:      data,
	}, nil
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(v float64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}
