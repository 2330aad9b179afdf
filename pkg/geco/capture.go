// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CaptureRecord is one recorded frame. Captures are a stream of CBOR
// maps with integer keys.
type CaptureRecord struct {
	UnixNano int64  `cbor:"1,keyasint"`
	Raw      []byte `cbor:"2,keyasint"`
}

// Time returns the capture timestamp
func (r CaptureRecord) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// CaptureWriter appends frames to a capture stream.
type CaptureWriter struct {
	enc *cbor.Encoder
}

// NewCaptureWriter creates a writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// WriteMessage records the raw bytes of msg with its timestamp.
func (w *CaptureWriter) WriteMessage(msg *Message) error {
	return w.enc.Encode(CaptureRecord{UnixNano: msg.Timestamp.UnixNano(), Raw: msg.Raw})
}

// CaptureReader reads records back from a capture stream.
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *CaptureReader) Next() (CaptureRecord, error) {
	var rec CaptureRecord
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return rec, io.EOF
		}
		return rec, fmt.Errorf("decode capture record: %w", err)
	}
	return rec, nil
}

// Replay feeds every recorded frame through codec as if read from the bus
// and returns the number of records processed. Messages carry the time
// they were recorded.
func Replay(r io.Reader, codec *Codec) (int, error) {
	cr := NewCaptureReader(r)
	n := 0
	for {
		rec, err := cr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := replayRecord(codec, rec); err != nil {
			return n, fmt.Errorf("record %d: %w", n+1, err)
		}
		n++
	}
}

func replayRecord(codec *Codec, rec CaptureRecord) error {
	for rest := rec.Raw; len(rest) > 0; {
		msg, err := codec.ParseFrame(rest, false)
		if err != nil {
			return err
		}
		msg.Timestamp = rec.Time()
		if err := codec.dispatch(msg); err != nil {
			return err
		}
		rest = rest[msg.Len():]
	}
	return nil
}
