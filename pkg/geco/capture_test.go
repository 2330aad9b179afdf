// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package geco

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapture_WriteRead(t *testing.T) {
	c, rec := newTestCodec(t, nil)
	_, err := c.ProcessAll(concat(unhex(t, frameReadStatus), unhex(t, frameTempResponse)), false)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)
	for _, m := range rec.msgs {
		require.NoError(t, w.WriteMessage(m))
	}

	r := NewCaptureReader(&buf)
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, unhex(t, frameReadStatus), first.Raw)
	assert.True(t, first.Time().Equal(rec.msgs[0].Timestamp.Round(0)))

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, unhex(t, frameTempResponse), second.Raw)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReplay(t *testing.T) {
	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, f := range []string{frameMarkerRead, frameTempResponse, frameWriteAck} {
		require.NoError(t, w.WriteMessage(&Message{Raw: unhex(t, f), Timestamp: ts}))
	}

	c, rec := newTestCodec(t, mustProfile(t, "pcwu"))
	n, err := Replay(&buf, c)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, rec.msgs, 3)
	assert.True(t, rec.msgs[1].CarriesRegisters(c.Addresses()))
	assert.True(t, ts.Equal(rec.msgs[0].Timestamp), "recorded time restored")
}

func TestReplay_CorruptRecord(t *testing.T) {
	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)
	bad := unhex(t, frameWriteAck)
	bad[len(bad)-1] ^= 0xFF
	require.NoError(t, w.WriteMessage(&Message{Raw: unhex(t, frameReadStatus)}))
	require.NoError(t, w.WriteMessage(&Message{Raw: bad}))

	c, _ := newTestCodec(t, nil)
	n, err := Replay(&buf, c)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrInvalidSoftChecksum)
	assert.ErrorContains(t, err, "record 2")
}

func TestCaptureReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCaptureWriter(&buf).WriteMessage(&Message{Raw: unhex(t, frameWriteAck)}))
	data := buf.Bytes()[:buf.Len()-3]

	_, err := NewCaptureReader(bytes.NewReader(data)).Next()
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}
