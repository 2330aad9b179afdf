// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/gecostat/pkg/geco"
)

// Read response for T1/T2 (registers 128-131) from device 2 to controller 1
const tempResponse = "69 01 02 84 00 00 10 01 01 00 02 00 50 80 00 04 80 00 d7 00 e0 ff c6 3f"

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// frameCollector records every frame handed to a codec
type frameCollector struct {
	msgs []*geco.Message
}

func (fc *frameCollector) handle(_ *geco.Codec, msg *geco.Message) error {
	fc.msgs = append(fc.msgs, msg)
	return nil
}

func newCollectingSession(t *testing.T, link geco.Stream) (*geco.Session, *frameCollector) {
	t.Helper()
	fc := &frameCollector{}
	codec, err := geco.NewCodec(geco.DefaultAddresses(), nil, fc.handle)
	require.NoError(t, err)
	session := geco.NewSession(link, codec)
	session.ReadTimeout = 300 * time.Millisecond
	return session, fc
}

// ============================================================
// URL parsing
// ============================================================

func TestParseLinkURL(t *testing.T) {
	tests := []struct {
		raw     string
		scheme  string
		address string
	}{
		{"serial:///dev/ttyUSB0", schemeSerial, "/dev/ttyUSB0"},
		{"serial://COM3", schemeSerial, "COM3"},
		{"/dev/ttyAMA0", schemeSerial, "/dev/ttyAMA0"},
		{"COM4", schemeSerial, "COM4"},
		{"tcp://10.0.0.5:8899", schemeTCP, "10.0.0.5:8899"},
		{"ws://slate.local/geco", schemeWS, "ws://slate.local/geco"},
		{"wss://slate.local/geco", schemeWSS, "wss://slate.local/geco"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			ep, err := parseLinkURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, ep.scheme)
			assert.Equal(t, tt.address, ep.address)
		})
	}
}

func TestParseLinkURL_Errors(t *testing.T) {
	for _, raw := range []string{"", "serial://", "tcp://converter", "http://host/path", "udp://host:1"} {
		t.Run(raw, func(t *testing.T) {
			_, err := parseLinkURL(raw)
			assert.Error(t, err)
		})
	}
}

// ============================================================
// TCP link
// ============================================================

func TestTCPLink_Exchange(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	request := geco.BuildReadRequest(geco.DefaultAddresses(), 128, 4)
	response := hexBytes(t, tempResponse)
	received := make(chan []byte, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, len(request))
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		received <- buf
		conn.Write(response)
		io.Copy(io.Discard, conn)
	}()

	link, err := OpenTCPLink(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer link.Close()

	session, fc := newCollectingSession(t, link)
	require.NoError(t, session.ReadRegisters(128, 4))

	assert.Equal(t, request, <-received)
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, uint8(geco.FncReadResponse), fc.msgs[0].Soft.Function)
	assert.Equal(t, uint16(128), fc.msgs[0].Soft.RegisterStart)
}

func TestTCPLink_NoResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	link, err := OpenTCPLink(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	defer link.Close()

	session, _ := newCollectingSession(t, link)
	assert.ErrorIs(t, session.ReadRegisters(128, 4), geco.ErrNoResponse)
}

func TestNetPort_ResetInputBuffer(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	written := make(chan struct{})
	go func() {
		server.Write([]byte{0x01, 0x02, 0x03})
		close(written)
	}()

	// pipe writes complete only once a drain has consumed them
	port := &netPort{conn: client, timeout: 50 * time.Millisecond}
	assert.Eventually(t, func() bool {
		assert.NoError(t, port.ResetInputBuffer())
		select {
		case <-written:
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	buf := make([]byte, 8)
	n, err := port.Read(buf)
	require.NoError(t, err, "timeout reads as zero bytes")
	assert.Zero(t, n)
}

func TestOpenTCPLink_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = OpenTCPLink(context.Background(), addr)
	assert.ErrorContains(t, err, "TCP connection failed")
}

// ============================================================
// WebSocket link
// ============================================================

func newWSServer(t *testing.T, handle func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketLink_Exchange(t *testing.T) {
	response := hexBytes(t, tempResponse)
	received := make(chan []byte, 1)

	url := newWSServer(t, func(conn *websocket.Conn) {
		_, req, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- req
		// Text frames carry no bus bytes and are skipped
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))
		conn.WriteMessage(websocket.BinaryMessage, response[:10])
		conn.WriteMessage(websocket.BinaryMessage, response[10:])
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	link, err := OpenWebSocketLink(context.Background(), url, "", "", false)
	require.NoError(t, err)
	defer link.Close()

	session, fc := newCollectingSession(t, link)
	require.NoError(t, session.ReadRegisters(128, 4))

	assert.Equal(t, geco.BuildReadRequest(geco.DefaultAddresses(), 128, 4), <-received)
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, response, fc.msgs[0].Raw)
}

func TestWebSocketLink_Closed(t *testing.T) {
	url := newWSServer(t, func(conn *websocket.Conn) {})

	link, err := OpenWebSocketLink(context.Background(), url, "", "", false)
	require.NoError(t, err)
	defer link.Close()

	_, err = link.Read(16, 2*time.Second)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestWebSocketLink_BasicAuth(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		http.Error(w, "denied", http.StatusUnauthorized)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, err := OpenWebSocketLink(context.Background(), url, "admin", "secret", false)
	assert.ErrorContains(t, err, "HTTP 401")
	assert.Equal(t, "Basic YWRtaW46c2VjcmV0", <-auth)
}

func TestWSPort_ResetInputBuffer(t *testing.T) {
	p := &wsPort{data: make(chan []byte, 4), done: make(chan struct{}), quit: make(chan struct{}), timeout: 10 * time.Millisecond}
	p.pending = []byte{0x01}
	p.data <- []byte{0x02, 0x03}
	p.data <- []byte{0x04}

	require.NoError(t, p.ResetInputBuffer())

	n, err := p.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Zero(t, n)
}
