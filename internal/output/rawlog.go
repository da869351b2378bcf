package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// A raw log is the 8-byte magic followed by records:
//
//	offset 0   uint64 LE  receive time, UnixNano
//	offset 8   uint32 LE  payload length n
//	offset 12  n bytes    the message exactly as received off the socket
//
// Payloads are stored before gating and decoding, so skipped frames and
// frames that fail to decode are in the log too. The encoding is not
// recorded; readers must be told which one the producer used.
const rawLogMagic = "LINEOUT1"

const recordHeaderSize = 12

// RawLogWriter appends records to one file per viewer run. It is safe for
// concurrent use.
type RawLogWriter struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewRawLogWriter creates outputDir/<timestamp>_<prefix>.bin and writes the
// magic.
func NewRawLogWriter(outputDir string, prefix string) (*RawLogWriter, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	filename := filepath.Join(outputDir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 4*1024*1024)
	if _, err := w.WriteString(rawLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RawLogWriter{
		f:    f,
		w:    w,
		path: filename,
	}, nil
}

func (r *RawLogWriter) Path() string {
	return r.path
}

// Record appends one message and flushes, so a crashed viewer leaves at most
// a truncated final record. RawLogReader treats that as the end of the log.
func (r *RawLogWriter) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := r.w.Write(payload); err != nil {
		return err
	}
	return r.w.Flush()
}

// Close flushes and closes the file. Record fails after Close.
func (r *RawLogWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		_ = r.f.Close()
		r.w = nil
		return err
	}
	err := r.f.Close()
	r.w = nil
	return err
}

type RawRecord struct {
	Timestamp time.Time
	Payload   []byte
}

type RawLogReader struct {
	r io.Reader
}

// NewRawLogReader checks the magic and positions r at the first record.
func NewRawLogReader(r io.Reader) (*RawLogReader, error) {
	header := make([]byte, len(rawLogMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(header) != rawLogMagic {
		return nil, fmt.Errorf("unexpected rawlog magic %q", string(header))
	}
	return &RawLogReader{r: bufio.NewReaderSize(r, 4*1024*1024)}, nil
}

// Next returns io.EOF after the last complete record, including when the
// final record is truncated.
func (r *RawLogReader) Next() (RawRecord, error) {
	var meta [recordHeaderSize]byte
	if _, err := io.ReadFull(r.r, meta[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return RawRecord{}, io.EOF
		}
		return RawRecord{}, err
	}
	ts := int64(binary.LittleEndian.Uint64(meta[:8]))
	size := binary.LittleEndian.Uint32(meta[8:12])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return RawRecord{}, io.EOF
		}
		return RawRecord{}, fmt.Errorf("read payload: %w", err)
	}
	return RawRecord{Timestamp: time.Unix(0, ts), Payload: payload}, nil
}
