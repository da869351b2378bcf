// Package codec converts frames to and from wire messages.
//
// Three encodings are supported. raw is a bare little-endian sample buffer
// whose shape both sides must agree on out of band. cbor and msgpack carry a
// versioned header with the shape, so a mismatch is detected per message.
package codec

import (
	"fmt"
	"strings"

	"lineout-go/internal/types"
)

type Encoding string

const (
	Raw     Encoding = "raw"
	CBOR    Encoding = "cbor"
	MsgPack Encoding = "msgpack"
)

// Version is the header version written by Encode and the only one Decode
// accepts.
const Version = 1

const messageTypeImage = "image"

var (
	ErrShapeMismatch      = &codecError{"frame shape mismatch"}
	ErrUnsupportedVersion = &codecError{"unsupported header version"}
	ErrNotImage           = &codecError{"message is not an image"}
)

type codecError struct {
	msg string
}

func (e *codecError) Error() string {
	return e.msg
}

func ParseEncoding(value string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(value))) {
	case Raw:
		return Raw, nil
	case CBOR, "":
		return CBOR, nil
	case MsgPack, "msgp":
		return MsgPack, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", value)
	}
}

// Codec encodes and decodes frames. Rows and Cols are only consulted for raw
// messages, which carry no header.
type Codec struct {
	Encoding Encoding
	Rows     int
	Cols     int
}

func New(encoding Encoding, rows, cols int) Codec {
	return Codec{Encoding: encoding, Rows: rows, Cols: cols}
}

func (c Codec) Encode(frame *types.Frame) ([]byte, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: %d samples for %dx%d", ErrShapeMismatch, len(frame.Data), frame.Rows, frame.Cols)
	}
	switch c.Encoding {
	case Raw:
		return EncodeRaw(frame), nil
	case CBOR:
		return encodeCBOR(frame)
	case MsgPack:
		return encodeMsgPack(frame)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", c.Encoding)
	}
}

func (c Codec) Decode(msg []byte) (*types.Frame, error) {
	switch c.Encoding {
	case Raw:
		return DecodeRaw(msg, c.Rows, c.Cols)
	case CBOR:
		return decodeCBOR(msg)
	case MsgPack:
		return decodeMsgPack(msg)
	default:
		return nil, fmt.Errorf("unsupported encoding %q", c.Encoding)
	}
}

func checkVersion(version int) error {
	if version != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	return nil
}
