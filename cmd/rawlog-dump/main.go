package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"

	"lineout-go/internal/codec"
	"lineout-go/internal/config"
	"lineout-go/internal/output"
	"lineout-go/internal/processing"
)

type summary struct {
	Record    int     `json:"record"`
	Timestamp string  `json:"timestamp"`
	Size      int     `json:"size"`
	StreamID  string  `json:"stream_id,omitempty"`
	Seq       uint64  `json:"seq"`
	Rows      int     `json:"rows"`
	Cols      int     `json:"cols"`
	Min       uint16  `json:"min"`
	Max       uint16  `json:"max"`
	Sum       float64 `json:"sum"`
}

func main() {
	var (
		path     = flag.String("path", "", "Path to rawlog .bin file")
		limit    = flag.Int("limit", 1, "Number of records to dump (0 dumps all)")
		encoding = flag.String("encoding", config.DefaultEncoding, "Wire encoding of the recorded messages")
		rows     = flag.Int("rows", config.DefaultRows, "Frame height for raw encoding")
		cols     = flag.Int("cols", config.DefaultCols, "Frame width for raw encoding")
		asJSON   = flag.Bool("json", false, "Print one JSON object per record")
	)
	flag.Parse()

	if *path == "" {
		log.Fatal("path is required")
	}
	enc, err := codec.ParseEncoding(*encoding)
	if err != nil {
		log.Fatalf("%v", err)
	}
	dec := codec.New(enc, *rows, *cols)

	f, err := os.Open(*path)
	if err != nil {
		log.Fatalf("open rawlog: %v", err)
	}
	defer f.Close()

	reader, err := output.NewRawLogReader(f)
	if err != nil {
		log.Fatalf("%v", err)
	}

	for count := 0; *limit <= 0 || count < *limit; count++ {
		record, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Fatalf("record %d: %v", count, err)
		}

		frame, err := dec.Decode(record.Payload)
		if err != nil {
			log.Printf("record %d: decode error: %v", count, err)
			continue
		}

		minVal, maxVal := processing.Bounds(frame)
		s := summary{
			Record:    count,
			Timestamp: record.Timestamp.Format(time.RFC3339Nano),
			Size:      len(record.Payload),
			StreamID:  frame.StreamID,
			Seq:       frame.Seq,
			Rows:      frame.Rows,
			Cols:      frame.Cols,
			Min:       minVal,
			Max:       maxVal,
			Sum:       floats.Sum(processing.Lineout(frame)),
		}
		if *asJSON {
			data, err := json.Marshal(s)
			if err != nil {
				log.Printf("record %d: JSON encode error: %v", count, err)
				continue
			}
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("record %d timestamp=%s size=%d seq=%d shape=%dx%d min=%d max=%d sum=%.0f\n",
			s.Record, s.Timestamp, s.Size, s.Seq, s.Rows, s.Cols, s.Min, s.Max, s.Sum)
	}
}
