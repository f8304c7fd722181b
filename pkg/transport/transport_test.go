// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/logging"
	"github.com/Thermoquad/quill/pkg/transport/transporttest"
)

// ============================================================================
// Fakes
// ============================================================================

// fakePort is a serial.Port backed by emulated firmware.
type fakePort struct {
	*transporttest.Firmware

	mu          sync.Mutex
	dtr         []bool
	inputReset  bool
	outputReset bool
	readTimeout time.Duration
	closed      bool
}

func newFakePort(fw *transporttest.Firmware) *fakePort {
	return &fakePort{Firmware: fw}
}

func (p *fakePort) SetMode(*serial.Mode) error { return nil }
func (p *fakePort) Drain() error               { return nil }
func (p *fakePort) SetRTS(bool) error          { return nil }
func (p *fakePort) Break(time.Duration) error  { return nil }

func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) {
	return &serial.ModemStatusBits{}, nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputReset = true
	return nil
}

func (p *fakePort) ResetOutputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outputReset = true
	return nil
}

func (p *fakePort) SetDTR(dtr bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dtr = append(p.dtr, dtr)
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.Firmware.Close()
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func testSerialConfig() config.Serial {
	cfg := config.Default().Serial
	cfg.ResetPulse = time.Millisecond
	cfg.RebootWait = time.Millisecond
	cfg.HandshakeTimeout = 200 * time.Millisecond
	return cfg
}

func testDialer(t *testing.T, ports map[string]*fakePort, listed []*enumerator.PortDetails) *Dialer {
	t.Helper()
	d := NewDialer(testSerialConfig(), logging.NewTestLogger(t))
	d.OpenPort = func(name string, mode *serial.Mode) (serial.Port, error) {
		if mode.BaudRate != 115200 {
			t.Errorf("baud = %d", mode.BaudRate)
		}
		if p, ok := ports[name]; ok {
			return p, nil
		}
		return nil, &serial.PortError{}
	}
	d.ListPorts = func() ([]*enumerator.PortDetails, error) {
		return listed, nil
	}
	return d
}

// ============================================================================
// Candidates
// ============================================================================

func TestCandidates(t *testing.T) {
	listed := []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true},
	}

	t.Run("configured port only", func(t *testing.T) {
		d := testDialer(t, nil, listed)
		d.Config.Port = "/dev/custom"
		if got := d.Candidates(); len(got) != 1 || got[0] != "/dev/custom" {
			t.Errorf("Candidates() = %v", got)
		}
	})

	t.Run("usb first then fallbacks", func(t *testing.T) {
		d := testDialer(t, nil, listed)
		got := d.Candidates()
		want := []string{"/dev/ttyACM0", "/dev/ttyS0", "/dev/ttyACM1", "/dev/ttyUSB0", "COM3", "COM4"}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Errorf("Candidates() = %v, want %v", got, want)
		}
	})

	t.Run("enumeration error", func(t *testing.T) {
		d := testDialer(t, nil, nil)
		d.ListPorts = func() ([]*enumerator.PortDetails, error) {
			return nil, errors.New("no udev")
		}
		if got := d.Candidates(); len(got) != len(config.DefaultCandidates) {
			t.Errorf("Candidates() = %v", got)
		}
	})
}

// ============================================================================
// Serial open and handshake
// ============================================================================

func TestOpenSerial_ResetSequence(t *testing.T) {
	port := newFakePort(transporttest.NewFirmware())
	d := testDialer(t, map[string]*fakePort{"/dev/ttyACM0": port}, nil)

	conn, err := d.OpenSerial(context.Background(), "/dev/ttyACM0")
	if err != nil {
		t.Fatalf("OpenSerial: %v", err)
	}
	defer conn.Close()

	port.mu.Lock()
	defer port.mu.Unlock()
	if len(port.dtr) != 2 || port.dtr[0] || !port.dtr[1] {
		t.Errorf("DTR sequence = %v, want [false true]", port.dtr)
	}
	if !port.inputReset || !port.outputReset {
		t.Error("buffers not reset")
	}
	if port.readTimeout != d.Config.ReadTimeout {
		t.Errorf("read timeout = %v", port.readTimeout)
	}
	if conn.Name() != "/dev/ttyACM0" {
		t.Errorf("Name() = %q", conn.Name())
	}
}

func TestOpenSerial_CancelledDuringReboot(t *testing.T) {
	port := newFakePort(transporttest.NewFirmware())
	d := testDialer(t, map[string]*fakePort{"p": port}, nil)
	d.Config.RebootWait = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.OpenSerial(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Fatalf("OpenSerial = %v, want context.Canceled", err)
	}
	if !port.isClosed() {
		t.Error("port left open after failed reset")
	}
}

func TestHandshake(t *testing.T) {
	fw := transporttest.NewFirmware()
	if err := Handshake(context.Background(), fw, 200*time.Millisecond, nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if fw.Count(armlink.CmdPositionQuery) != 1 {
		t.Errorf("firmware saw %d queries", fw.Count(armlink.CmdPositionQuery))
	}
}

func TestHandshake_IgnoresNoise(t *testing.T) {
	fw := transporttest.NewFirmware()
	fw.Inject([]byte{0x00, 0xA5, 0x00, 0x13})
	if err := Handshake(context.Background(), fw, 200*time.Millisecond, nil); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
}

func TestHandshake_Timeout(t *testing.T) {
	fw := transporttest.NewFirmware()
	fw.Silent = true

	start := time.Now()
	err := Handshake(context.Background(), fw, 50*time.Millisecond, nil)
	if !errors.Is(err, ErrNoResponse) {
		t.Fatalf("Handshake = %v, want ErrNoResponse", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("handshake took %v", elapsed)
	}
}

func TestConnect_TriesCandidatesInOrder(t *testing.T) {
	silent := transporttest.NewFirmware()
	silent.Silent = true
	silentPort := newFakePort(silent)
	good := newFakePort(transporttest.NewFirmware())

	d := testDialer(t, map[string]*fakePort{
		"/dev/ttyACM1": silentPort,
		"/dev/ttyUSB0": good,
	}, nil)

	conn, info, err := d.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	if !strings.Contains(info, "/dev/ttyUSB0") {
		t.Errorf("info = %q", info)
	}
	if !silentPort.isClosed() {
		t.Error("silent candidate left open")
	}
	if good.isClosed() {
		t.Error("connected port closed")
	}
}

func TestConnect_Offline(t *testing.T) {
	d := testDialer(t, nil, nil)
	if _, _, err := d.Connect(context.Background()); !errors.Is(err, ErrOffline) {
		t.Fatalf("Connect = %v, want ErrOffline", err)
	}
}

func TestSerialConnection_ConcurrentWrites(t *testing.T) {
	fw := transporttest.NewFirmware()
	conn := &SerialConnection{port: newFakePort(fw), name: "fake"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if _, err := conn.Write(armlink.EncodeStop()); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()

	if got := fw.Count(armlink.CmdStop); got != 80 {
		t.Errorf("firmware decoded %d stops, want 80 (interleaved writes?)", got)
	}
}

// ============================================================================
// WebSocket bridge
// ============================================================================

// bridge serves one WebSocket client and relays bytes to fw.
func bridge(t *testing.T, fw *transporttest.Firmware, wantAuth string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantAuth != "" && r.Header.Get("Authorization") != wantAuth {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			buf := make([]byte, 256)
			for {
				n, err := fw.Read(buf)
				if err != nil {
					return
				}
				if n > 0 {
					if err := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
						return
					}
				}
			}
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				fw.Close()
				<-done
				return
			}
			fw.Write(data)
		}
	}))
}

func TestConnect_WebSocket(t *testing.T) {
	fw := transporttest.NewFirmware()
	fw.SetPose(0.25, -0.5)
	srv := bridge(t, fw, "Basic cXVpbGw6c2VjcmV0") // quill:secret
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	d.Config.Username = "quill"
	d.Password = func() (string, error) { return "secret", nil }

	conn, info, err := d.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	if !strings.HasPrefix(info, "WebSocket:") {
		t.Errorf("info = %q", info)
	}

	if _, err := conn.Write(armlink.EncodePositionQuery()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	decoder := armlink.NewDecoder()
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		for _, b := range buf[:n] {
			if p, _ := decoder.DecodeByte(b); p != nil {
				q0, q1, err := p.Position()
				if err != nil || q0 != 0.25 || q1 != -0.5 {
					t.Fatalf("position = %g, %g, %v", q0, q1, err)
				}
				return
			}
		}
	}
}

func TestConnect_WebSocketUnauthorized(t *testing.T) {
	srv := bridge(t, transporttest.NewFirmware(), "Basic nope")
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := d.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("Connect = %v, want HTTP 401", err)
	}
}

func TestOpenBridge_BadScheme(t *testing.T) {
	d := testDialer(t, nil, nil)
	d.Config.URL = "http://example.com/link"
	if _, err := d.OpenBridge(context.Background()); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Errorf("OpenBridge = %v, want scheme error", err)
	}
}

func TestOpenBridge_PasswordFromConfig(t *testing.T) {
	fw := transporttest.NewFirmware()
	srv := bridge(t, fw, "Basic cXVpbGw6c2VjcmV0") // quill:secret
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	d.Config.Username = "quill"
	d.Config.Password = "secret"
	d.Password = func() (string, error) {
		t.Error("prompted although the config has a password")
		return "", errors.New("no prompt")
	}

	conn, _, err := d.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn.Close()
}

func TestOpenBridge_PromptError(t *testing.T) {
	d := testDialer(t, nil, nil)
	d.Config.URL = "ws://127.0.0.1:1/link"
	d.Config.Username = "quill"
	d.Password = func() (string, error) { return "", errors.New("no terminal") }

	if _, err := d.OpenBridge(context.Background()); err == nil || !strings.Contains(err.Error(), "no terminal") {
		t.Errorf("OpenBridge = %v, want prompt error", err)
	}
}

func TestConnect_BridgeHandshakeFails(t *testing.T) {
	fw := transporttest.NewFirmware()
	fw.Silent = true
	srv := bridge(t, fw, "")
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	if _, _, err := d.Connect(context.Background()); err == nil || !strings.Contains(err.Error(), "handshake") {
		t.Fatalf("Connect = %v, want handshake failure", err)
	}
}

// A frame split over several binary messages, with text chatter in between,
// reads back as one contiguous stream.
func TestBridgeConnection_FrameAcrossMessages(t *testing.T) {
	frame := armlink.EncodePacket(armlink.NewPositionResponse(0.75, -0.25))
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.BinaryMessage, frame[:2])
		ws.WriteMessage(websocket.TextMessage, []byte("bridge: port open"))
		ws.WriteMessage(websocket.BinaryMessage, nil)
		ws.WriteMessage(websocket.BinaryMessage, frame[2:7])
		ws.WriteMessage(websocket.BinaryMessage, frame[7:])
		ws.ReadMessage()
	}))
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := d.OpenBridge(context.Background())
	if err != nil {
		t.Fatalf("OpenBridge: %v", err)
	}
	defer conn.Close()

	var got []byte
	buf := make([]byte, 3)
	for len(got) < len(frame) {
		n, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("Read after %d bytes: %v", len(got), err)
		}
		got = append(got, buf[:n]...)
	}
	fb, ok := armlink.DecodeFeedback(got)
	if !ok || fb.Q0 != 0.75 || fb.Q1 != -0.25 {
		t.Errorf("decoded %+v, ok = %v from % X", fb, ok, got)
	}
}

func TestBridgeConnection_ReadAfterClose(t *testing.T) {
	fw := transporttest.NewFirmware()
	srv := bridge(t, fw, "")
	defer srv.Close()

	d := testDialer(t, nil, nil)
	d.Config.URL = "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := d.OpenBridge(context.Background())
	if err != nil {
		t.Fatalf("OpenBridge: %v", err)
	}
	conn.Close()
	if _, err := conn.Read(make([]byte, 8)); !errors.Is(err, ErrBridgeClosed) {
		t.Errorf("Read = %v, want ErrBridgeClosed", err)
	}
}
