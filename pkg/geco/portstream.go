// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"bytes"
	"io"
	"time"
)

// Port is a byte port with a settable read timeout, such as a serial port
// from go.bug.st/serial. A Read that times out returns 0 bytes and no error.
type Port interface {
	io.ReadWriter
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
}

// PortStream implements Stream on top of a Port.
type PortStream struct {
	port Port
	buf  []byte
}

// NewPortStream wraps port as a Stream
func NewPortStream(port Port) *PortStream {
	return &PortStream{port: port, buf: make([]byte, 256)}
}

// FlushInput discards buffered input
func (p *PortStream) FlushInput() error {
	return p.port.ResetInputBuffer()
}

// Write writes all of b to the port
func (p *PortStream) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Read collects up to max bytes until the timeout elapses.
func (p *PortStream) Read(max int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, max)
	deadline := time.Now().Add(timeout)
	for len(out) < max {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := p.port.SetReadTimeout(remaining); err != nil {
			return out, err
		}
		chunk := p.buf
		if want := max - len(out); want < len(chunk) {
			chunk = chunk[:want]
		}
		n, err := p.port.Read(chunk)
		out = append(out, chunk[:n]...)
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// ReadUntil reads one byte at a time so that nothing past the marker is
// consumed.
func (p *PortStream) ReadUntil(marker []byte, max int, timeout time.Duration) ([]byte, error) {
	out := make([]byte, 0, max)
	deadline := time.Now().Add(timeout)
	one := p.buf[:1]
	for len(out) < max {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := p.port.SetReadTimeout(remaining); err != nil {
			return out, err
		}
		n, err := p.port.Read(one)
		if n == 1 {
			out = append(out, one[0])
			if bytes.HasSuffix(out, marker) {
				break
			}
		}
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}
