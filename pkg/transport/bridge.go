// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"
	"golang.org/x/term"
)

const (
	bridgeDialTimeout  = 10 * time.Second
	bridgeWriteTimeout = 2 * time.Second
)

// ErrBridgeClosed is returned by reads after the bridge connection failed or
// was closed.
var ErrBridgeClosed = errors.New("transport: bridge closed")

// BridgeConnection carries link bytes over a WebSocket bridge that relays a
// remote serial port. Each binary message holds a chunk of the byte stream;
// frames may span messages. Text messages are bridge chatter and skipped.
type BridgeConnection struct {
	ws  *websocket.Conn
	url string

	msg    io.Reader // unread rest of the current binary message
	closed atomic.Bool

	wmu sync.Mutex
}

// URL returns the bridge address.
func (b *BridgeConnection) URL() string { return b.url }

func (b *BridgeConnection) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, ErrBridgeClosed
	}
	for {
		if b.msg == nil {
			typ, r, err := b.ws.NextReader()
			if err != nil {
				b.closed.Store(true)
				return 0, err
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			b.msg = r
		}

		n, err := b.msg.Read(p)
		if errors.Is(err, io.EOF) {
			b.msg = nil
			err = nil
		}
		if err != nil {
			b.closed.Store(true)
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
}

// Write sends p as one binary message.
func (b *BridgeConnection) Write(p []byte) (int, error) {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if err := b.ws.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout)); err != nil {
		return 0, err
	}
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// SetReadDeadline bounds blocking reads. A read that hits the deadline
// breaks the connection.
func (b *BridgeConnection) SetReadDeadline(t time.Time) error {
	return b.ws.SetReadDeadline(t)
}

func (b *BridgeConnection) Close() error {
	b.closed.Store(true)
	return b.ws.Close()
}

// OpenBridge dials the configured bridge URL. When a username is configured
// the request carries HTTP Basic credentials; the password comes from the
// config or, failing that, from Dialer.Password.
func (d *Dialer) OpenBridge(ctx context.Context) (*BridgeConnection, error) {
	d.defaults()

	u, err := url.Parse(d.Config.URL)
	if err != nil {
		return nil, fmt.Errorf("bridge url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("bridge url: unsupported scheme %q (use ws:// or wss://)", u.Scheme)
	}

	header := http.Header{}
	if d.Config.Username != "" {
		password := d.Config.Password
		if password == "" {
			if password, err = d.Password(); err != nil {
				return nil, fmt.Errorf("bridge password: %w", err)
			}
		}
		req := http.Request{Header: header}
		req.SetBasicAuth(d.Config.Username, password)
	}

	dialer := websocket.Dialer{HandshakeTimeout: bridgeDialTimeout}
	if u.Scheme == "wss" && d.Config.NoSSLVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("bridge %s: HTTP %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("bridge %s: %w", u.Host, err)
	}
	return &BridgeConnection{ws: ws, url: u.Redacted()}, nil
}

// PromptPassword asks for the bridge password on the controlling terminal.
func PromptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal; set QUILL_PASSWORD")
	}
	fmt.Fprint(os.Stderr, "Bridge password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}
