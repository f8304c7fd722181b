// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/config"
)

// Dialer finds and opens the firmware link.
type Dialer struct {
	Config config.Serial
	Clock  clock.Clock
	Logger *zap.Logger

	// OpenPort opens a serial device. Defaults to serial.Open.
	OpenPort func(name string, mode *serial.Mode) (serial.Port, error)
	// ListPorts enumerates serial devices. Defaults to
	// enumerator.GetDetailedPortsList.
	ListPorts func() ([]*enumerator.PortDetails, error)
	// Password supplies the bridge password when the config has none.
	// Defaults to PromptPassword.
	Password func() (string, error)
}

// NewDialer returns a Dialer with the real serial backend.
func NewDialer(cfg config.Serial, logger *zap.Logger) *Dialer {
	return &Dialer{Config: cfg, Logger: logger}
}

func (d *Dialer) defaults() {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.OpenPort == nil {
		d.OpenPort = serial.Open
	}
	if d.ListPorts == nil {
		d.ListPorts = enumerator.GetDetailedPortsList
	}
	if d.Password == nil {
		d.Password = PromptPassword
	}
}

// Candidates returns the ports to try in order: the configured port alone,
// or the enumerated ports (USB first) followed by the fallback list.
func (d *Dialer) Candidates() []string {
	d.defaults()
	if d.Config.Port != "" {
		return []string{d.Config.Port}
	}

	var usb, other []string
	ports, err := d.ListPorts()
	if err != nil {
		d.Logger.Debug("port enumeration failed", zap.Error(err))
	}
	for _, p := range ports {
		if p.IsUSB {
			usb = append(usb, p.Name)
		} else {
			other = append(other, p.Name)
		}
	}

	candidates := append(usb, other...)
	for _, name := range d.Config.Candidates {
		if !slices.Contains(candidates, name) {
			candidates = append(candidates, name)
		}
	}
	return candidates
}

// Connect opens the bridge when a URL is configured, otherwise tries each
// serial candidate until one answers the handshake. It returns ErrOffline
// when nothing answers. The string describes the connection.
func (d *Dialer) Connect(ctx context.Context) (Connection, string, error) {
	d.defaults()

	if d.Config.URL != "" {
		log := d.Logger.With(zap.String("bridge", d.Config.URL))
		log.Info("dialing bridge")
		conn, err := d.OpenBridge(ctx)
		if err != nil {
			return nil, "", err
		}
		if err := d.greet(ctx, conn, log); err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", conn.URL()), nil
	}

	for _, name := range d.Candidates() {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		log := d.Logger.With(zap.String("port", name))
		log.Info("trying port")

		conn, err := d.OpenSerial(ctx, name)
		if err != nil {
			log.Info("open failed", zap.Error(err))
			continue
		}
		if err := d.greet(ctx, conn, log); err != nil {
			continue
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", name, d.Config.Baud), nil
	}
	return nil, "", ErrOffline
}

// greet runs the handshake on a freshly opened link and closes it on
// failure.
func (d *Dialer) greet(ctx context.Context, conn Connection, log *zap.Logger) error {
	if err := Handshake(ctx, conn, d.Config.HandshakeTimeout, d.Clock); err != nil {
		log.Info("handshake failed", zap.Error(err))
		return multierr.Append(err, conn.Close())
	}
	log.Info("connected")
	return nil
}

// OpenSerial opens a port, resets the board through DTR, waits for it to
// reboot and flushes both buffers.
func (d *Dialer) OpenSerial(ctx context.Context, name string) (*SerialConnection, error) {
	d.defaults()
	mode := &serial.Mode{
		BaudRate: d.Config.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := d.OpenPort(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", name, err)
	}

	if err := d.reset(ctx, port); err != nil {
		return nil, multierr.Append(fmt.Errorf("reset %s: %w", name, err), port.Close())
	}
	return &SerialConnection{port: port, name: name}, nil
}

func (d *Dialer) reset(ctx context.Context, port serial.Port) error {
	if d.Config.ReadTimeout > 0 {
		if err := port.SetReadTimeout(d.Config.ReadTimeout); err != nil {
			return err
		}
	}
	if err := port.SetDTR(false); err != nil {
		return err
	}
	if err := sleep(ctx, d.Clock, d.Config.ResetPulse); err != nil {
		return err
	}
	if err := port.SetDTR(true); err != nil {
		return err
	}
	if err := sleep(ctx, d.Clock, d.Config.RebootWait); err != nil {
		return err
	}
	return multierr.Combine(port.ResetInputBuffer(), port.ResetOutputBuffer())
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := clk.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
