package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"lineout-go/internal/types"
)

const dtypeUint16LE = "<u2"

type envelope struct {
	Type      string  `msgpack:"type"`
	Version   int     `msgpack:"version"`
	StreamID  string  `msgpack:"stream_id"`
	Seq       uint64  `msgpack:"seq"`
	Timestamp float64 `msgpack:"timestamp"`
	Rows      int     `msgpack:"rows"`
	Cols      int     `msgpack:"cols"`
	Dtype     string  `msgpack:"dtype"`
	Data      []byte  `msgpack:"data"`
}

func encodeMsgPack(frame *types.Frame) ([]byte, error) {
	return msgpack.Marshal(&envelope{
		Type:      messageTypeImage,
		Version:   Version,
		StreamID:  frame.StreamID,
		Seq:       frame.Seq,
		Timestamp: unixSeconds(frame.Timestamp),
		Rows:      frame.Rows,
		Cols:      frame.Cols,
		Dtype:     dtypeUint16LE,
		Data:      uint16ToBytes(frame.Data),
	})
}

func decodeMsgPack(msg []byte) (*types.Frame, error) {
	var env envelope
	if err := msgpack.Unmarshal(msg, &env); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	if env.Type != messageTypeImage {
		return nil, fmt.Errorf("%w: type %q", ErrNotImage, env.Type)
	}
	if err := checkVersion(env.Version); err != nil {
		return nil, err
	}
	if env.Dtype != dtypeUint16LE {
		return nil, fmt.Errorf("unsupported dtype %q", env.Dtype)
	}
	frame, err := DecodeRaw(env.Data, env.Rows, env.Cols)
	if err != nil {
		return nil, err
	}
	frame.StreamID = env.StreamID
	frame.Seq = env.Seq
	frame.Timestamp = fromUnixSeconds(env.Timestamp)
	return frame, nil
}
