package output

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"lineout-go/internal/processing"
	"lineout-go/internal/types"
)

func TestRawLogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewRawLogWriter(dir, "raw")
	if err != nil {
		t.Fatalf("NewRawLogWriter error: %v", err)
	}
	payloads := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{7}, 1000)}
	for _, p := range payloads {
		if err := w.Record(p); err != nil {
			t.Fatalf("Record error: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := w.Record([]byte("late")); err == nil {
		t.Fatalf("expected error after close")
	}

	f, err := os.Open(w.Path())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	r, err := NewRawLogReader(f)
	if err != nil {
		t.Fatalf("NewRawLogReader error: %v", err)
	}
	for i, want := range payloads {
		rec, err := r.Next()
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(rec.Payload, want) {
			t.Fatalf("record %d payload mismatch", i)
		}
		if time.Since(rec.Timestamp) > time.Minute {
			t.Fatalf("record %d timestamp %v", i, rec.Timestamp)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestRawLogRecordLayout(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(rawLogMagic)
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Unix(1700000000, 5).UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], 3)
	buf.Write(header[:])
	buf.WriteString("abc")
	// A second record cut short inside its payload.
	binary.LittleEndian.PutUint32(header[8:12], 10)
	buf.Write(header[:])
	buf.WriteString("xy")

	r, err := NewRawLogReader(&buf)
	if err != nil {
		t.Fatalf("NewRawLogReader error: %v", err)
	}
	rec, err := r.Next()
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if string(rec.Payload) != "abc" || !rec.Timestamp.Equal(time.Unix(1700000000, 5)) {
		t.Fatalf("unexpected record: %q at %v", rec.Payload, rec.Timestamp)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF for truncated record, got %v", err)
	}
}

func TestRawLogReaderRejectsMagic(t *testing.T) {
	if _, err := NewRawLogReader(strings.NewReader("STXMRAW1")); err == nil {
		t.Fatalf("expected magic error")
	}
}

func TestWriteLineoutWithFit(t *testing.T) {
	frame := types.NewFrame(1, 4)
	frame.Seq = 9
	view := &processing.View{
		Frame:    frame,
		Lineout:  []float64{1, 2, 3, 4},
		Rendered: time.Now(),
		Fit: &processing.FitResult{
			OK:    true,
			FWHM:  2.5,
			Start: 1,
			End:   3,
			Curve: []float64{2.1, 2.9},
		},
	}
	path, err := WriteLineout(t.TempDir(), view)
	if err != nil {
		t.Fatalf("WriteLineout error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "fwhm=2.500000") {
		t.Fatalf("missing fit header:\n%s", text)
	}
	if !strings.Contains(text, "1, 2.000000, 2.100000\n") || !strings.Contains(text, "3, 4.000000,\n") {
		t.Fatalf("unexpected rows:\n%s", text)
	}
}

func TestWriteLineoutNoFrame(t *testing.T) {
	if _, err := WriteLineout(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error")
	}
}
