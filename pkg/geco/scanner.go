// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"bytes"
)

// maxScanBuffer bounds the bytes a Scanner holds while waiting for a frame
// to complete.
const maxScanBuffer = 4096

// Scanner extracts frames from an unsynchronised byte stream, such as a
// bus tap that may start mid-frame. Bytes that cannot start a valid frame
// are skipped one at a time until the next start byte.
type Scanner struct {
	codec *Codec
	buf   []byte
	lost  bool // resynchronising since the last reported error

	// OnError, if set, is told about the first frame error of every
	// resynchronisation run. Failed start bytes found while hunting for
	// the next frame are not reported again.
	OnError func(err error)

	Frames  uint64 // frames handed to the handler
	Skipped uint64 // bytes discarded while resynchronising
}

// NewScanner creates a scanner feeding frames into codec.
func NewScanner(codec *Codec) *Scanner {
	return &Scanner{codec: codec}
}

// Feed appends chunk and processes every complete frame. Handler errors
// are returned after the frame has been consumed, so it is never handed
// over twice; framing errors only cost resynchronisation.
func (s *Scanner) Feed(chunk []byte) error {
	s.buf = append(s.buf, chunk...)
	defer s.bound()
	for {
		s.sync()
		if len(s.buf) < HardHeaderSize {
			return nil
		}
		msg, err := s.codec.ParseFrame(s.buf, true)
		if err != nil {
			if !s.lost && s.OnError != nil {
				s.OnError(err)
			}
			s.lost = true
			s.drop(1)
			continue
		}
		if msg == nil {
			return nil // wait for the rest of the frame
		}
		msg.detach()
		s.consume(msg.Len())
		s.lost = false
		s.Frames++
		if err := s.codec.dispatch(msg); err != nil {
			return err
		}
	}
}

// Buffered returns the number of bytes waiting for more input
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// sync drops bytes ahead of the next start byte.
func (s *Scanner) sync() {
	i := bytes.IndexByte(s.buf, StartByte)
	if i < 0 {
		s.drop(len(s.buf))
		return
	}
	s.drop(i)
}

func (s *Scanner) bound() {
	if len(s.buf) > maxScanBuffer {
		s.drop(len(s.buf) - maxScanBuffer)
	}
}

func (s *Scanner) drop(n int) {
	s.Skipped += uint64(n)
	s.consume(n)
}

func (s *Scanner) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}
