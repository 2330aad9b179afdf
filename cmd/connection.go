// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/gecostat/internal/bridge"
	"github.com/Thermoquad/gecostat/internal/config"
	"github.com/Thermoquad/gecostat/pkg/geco"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// Link schemes
const (
	schemeSerial = "serial"
	schemeTCP    = "tcp"
	schemeWS     = "ws"
	schemeWSS    = "wss"
)

// drainTimeout bounds each read while discarding stale input
const drainTimeout = 20 * time.Millisecond

// portLink is a Link over any geco.Port
type portLink struct {
	*geco.PortStream
	port io.Closer
}

func newPortLink(port interface {
	geco.Port
	io.Closer
}) *portLink {
	return &portLink{PortStream: geco.NewPortStream(port), port: port}
}

func (l *portLink) Close() error {
	return l.port.Close()
}

// endpoint is a parsed link URL
type endpoint struct {
	scheme  string
	address string // device path, host:port or the full ws URL
}

// parseLinkURL accepts serial://, tcp://, ws:// and wss:// URLs. A bare
// path such as /dev/ttyUSB0 or COM3 is taken as a serial port.
func parseLinkURL(raw string) (endpoint, error) {
	if raw == "" {
		return endpoint{}, fmt.Errorf("no link configured (use --url or link.url)")
	}
	if !strings.Contains(raw, "://") {
		return endpoint{scheme: schemeSerial, address: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case schemeSerial:
		// serial:///dev/ttyUSB0 has an empty host, serial://COM3 has no path
		path := u.Host + u.Path
		if path == "" {
			return endpoint{}, fmt.Errorf("serial URL %q has no device", raw)
		}
		return endpoint{scheme: schemeSerial, address: path}, nil
	case schemeTCP:
		if u.Port() == "" {
			return endpoint{}, fmt.Errorf("tcp URL %q needs host:port", raw)
		}
		return endpoint{scheme: schemeTCP, address: u.Host}, nil
	case schemeWS, schemeWSS:
		return endpoint{scheme: u.Scheme, address: raw}, nil
	default:
		return endpoint{}, fmt.Errorf("unsupported URL scheme: %s (use serial://, tcp://, ws:// or wss://)", u.Scheme)
	}
}

// OpenSerialLink opens a serial port at 8N1
func OpenSerialLink(portName string, baudRate int) (bridge.Link, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	return newPortLink(port), nil
}

// netPort adapts a net.Conn to geco.Port. Read deadlines stand in for the
// serial read timeout; a read that times out returns no bytes and no error.
type netPort struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *netPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *netPort) Read(b []byte) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
		return 0, err
	}
	n, err := p.conn.Read(b)
	if isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (p *netPort) Write(b []byte) (int, error) {
	return p.conn.Write(b)
}

// ResetInputBuffer reads and discards until the line is quiet.
func (p *netPort) ResetInputBuffer() error {
	buf := make([]byte, 256)
	for {
		if err := p.conn.SetReadDeadline(time.Now().Add(drainTimeout)); err != nil {
			return err
		}
		n, err := p.conn.Read(buf)
		if isTimeout(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (p *netPort) Close() error {
	return p.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// OpenTCPLink connects to an RS-485 to TCP converter
func OpenTCPLink(ctx context.Context, address string) (bridge.Link, error) {
	var d net.Dialer
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := d.DialContext(dctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("TCP connection failed: %v", err)
	}
	return newPortLink(&netPort{conn: conn, timeout: geco.DefaultReadTimeout}), nil
}

// wsPort adapts a WebSocket carrying raw bus bytes in binary messages to
// geco.Port. A reader goroutine queues incoming messages so that reads can
// honour the timeout.
type wsPort struct {
	conn    *websocket.Conn
	timeout time.Duration
	pending []byte

	data     chan []byte
	done     chan struct{} // closed when the reader exits
	quit     chan struct{}
	quitOnce sync.Once
}

func newWSPort(conn *websocket.Conn) *wsPort {
	p := &wsPort{
		conn:    conn,
		timeout: geco.DefaultReadTimeout,
		data:    make(chan []byte, 64),
		done:    make(chan struct{}),
		quit:    make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *wsPort) readLoop() {
	defer close(p.done)
	for {
		messageType, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		// Only binary messages carry bus bytes
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case p.data <- data:
		case <-p.quit:
			return
		}
	}
}

func (p *wsPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *wsPort) Read(b []byte) (int, error) {
	if len(p.pending) == 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()

		select {
		case data := <-p.data:
			p.pending = data
		case <-p.done:
			// the reader may have queued data before exiting
			select {
			case data := <-p.data:
				p.pending = data
			default:
				return 0, ErrConnectionClosed
			}
		case <-timer.C:
			return 0, nil
		}
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *wsPort) Write(b []byte) (int, error) {
	if err := p.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *wsPort) ResetInputBuffer() error {
	p.pending = nil
	for {
		select {
		case <-p.data:
		default:
			return nil
		}
	}
}

func (p *wsPort) Close() error {
	p.quitOnce.Do(func() { close(p.quit) })
	return p.conn.Close()
}

// OpenWebSocketLink opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketLink(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (bridge.Link, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == schemeWSS {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(dctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return newPortLink(newWSPort(conn)), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("GECO_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// newDialer resolves the link settings once and returns a dialer that
// opens a fresh link on every call, along with a description of the link.
func newDialer(lc config.LinkConfig) (bridge.Dialer, string, error) {
	ep, err := parseLinkURL(lc.URL)
	if err != nil {
		return nil, "", err
	}

	switch ep.scheme {
	case schemeSerial:
		return func(context.Context) (bridge.Link, error) {
			return OpenSerialLink(ep.address, lc.Baud)
		}, fmt.Sprintf("Serial: %s @ %d baud", ep.address, lc.Baud), nil

	case schemeTCP:
		return func(ctx context.Context) (bridge.Link, error) {
			return OpenTCPLink(ctx, ep.address)
		}, fmt.Sprintf("TCP: %s", ep.address), nil

	default:
		password := ""
		if wsUsername != "" {
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}
		return func(ctx context.Context) (bridge.Link, error) {
			return OpenWebSocketLink(ctx, ep.address, wsUsername, password, wsNoSSLVerify)
		}, fmt.Sprintf("WebSocket: %s", ep.address), nil
	}
}

// OpenLink opens the configured link once
func OpenLink(ctx context.Context, lc config.LinkConfig) (bridge.Link, string, error) {
	dial, info, err := newDialer(lc)
	if err != nil {
		return nil, "", err
	}
	link, err := dial(ctx)
	if err != nil {
		return nil, "", err
	}
	return link, info, nil
}
