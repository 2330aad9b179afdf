// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"errors"
	"fmt"
	"time"
)

// MessageHandler is invoked once per parsed and validated frame. A non-nil
// error stops processing and is returned to the caller unchanged.
type MessageHandler func(c *Codec, msg *Message) error

// Codec splits byte buffers into frames for one controller/device pair.
type Codec struct {
	ids     Addresses
	profile *Profile
	handler MessageHandler
}

// NewCodec creates a codec for the given bus ids. The profile may be nil
// when register decoding is not needed; the handler may be nil.
func NewCodec(ids Addresses, profile *Profile, handler MessageHandler) (*Codec, error) {
	if err := ids.Validate(); err != nil {
		return nil, err
	}
	return &Codec{ids: ids, profile: profile, handler: handler}, nil
}

// Addresses returns the bus ids the codec validates against
func (c *Codec) Addresses() Addresses {
	return c.ids
}

// Profile returns the device profile (may be nil)
func (c *Codec) Profile() *Profile {
	return c.profile
}

// ParseFrame parses and validates the frame at the head of buf without
// invoking the handler. If allowPartial is set and the declared payload
// runs past the end of buf, it returns a nil message and no error.
func (c *Codec) ParseFrame(buf []byte, allowPartial bool) (*Message, error) {
	h, err := ParseHardHeader(buf)
	if err != nil {
		return nil, err
	}
	if err := ValidateHardHeader(h, c.ids); err != nil {
		return nil, err
	}

	end := HardHeaderSize + int(h.PayloadLength)
	if end > len(buf) {
		if allowPartial {
			return nil, nil
		}
		end = len(buf)
	}

	sh, err := ParseSoftHeader(buf[HardHeaderSize:end], int(h.PayloadLength))
	if err != nil {
		return nil, err
	}
	if err := ValidateSoftHeader(h, sh, c.ids); err != nil {
		return nil, err
	}

	return &Message{
		Hard:      h,
		Soft:      sh,
		Raw:       buf[:end],
		Timestamp: time.Now(),
	}, nil
}

// ProcessOne handles the frame at the head of buf and returns the number
// of bytes consumed together with the rest of the buffer. In partial mode
// an incomplete frame consumes nothing and buf is returned unchanged.
func (c *Codec) ProcessOne(buf []byte, allowPartial bool) (int, []byte, error) {
	msg, err := c.ParseFrame(buf, allowPartial)
	if err != nil {
		return 0, buf, err
	}
	if msg == nil {
		return 0, buf, nil
	}
	if err := c.dispatch(msg); err != nil {
		return 0, buf, err
	}
	n := msg.Len()
	return n, buf[n:], nil
}

func (c *Codec) dispatch(msg *Message) error {
	if c.handler == nil {
		return nil
	}
	return c.handler(c, msg)
}

// ProcessAll handles frames until the buffer is exhausted. In partial mode
// it stops once fewer than a hard header's worth of bytes remain, or when
// the last frame is incomplete, and returns the unconsumed tail. Frame
// errors carry the offset of the failing frame within buf.
func (c *Codec) ProcessAll(buf []byte, allowPartial bool) ([]byte, error) {
	minLen := 0
	if allowPartial {
		minLen = HardHeaderSize
	}
	offset := 0
	for len(buf) > minLen {
		msg, err := c.ParseFrame(buf, allowPartial)
		if err != nil {
			var fe *FrameError
			if errors.As(err, &fe) {
				fe.Offset = offset
			}
			return buf, err
		}
		if msg == nil {
			if allowPartial {
				return buf, nil
			}
			return buf, &FrameError{Kind: ErrStuckConsumption, Offset: offset, Detail: fmt.Sprintf("%d bytes left", len(buf))}
		}
		if err := c.dispatch(msg); err != nil {
			return buf, err
		}
		n := msg.Len()
		offset += n
		buf = buf[n:]
	}
	return buf, nil
}

// Decode interprets the register data of msg with the codec's profile.
func (c *Codec) Decode(msg *Message, includeUnknown bool) (Readings, error) {
	if c.profile == nil {
		return nil, frameErr(ErrInvalidProfile, "codec has no device profile")
	}
	return c.profile.Schema.Decode(msg.Soft.Data, msg.Soft.RegisterStart, int(msg.Soft.RegisterCount), includeUnknown)
}
