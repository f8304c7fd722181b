// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the link to the arm firmware: a USB serial port
// with reset and handshake, or a WebSocket bridge to a remote port.
package transport

import (
	"errors"
	"io"
	"sync"

	"go.bug.st/serial"
)

// Connection is a byte stream to the firmware. Writes are serialized so that
// each Write reaches the firmware contiguously; a single goroutine reads.
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrOffline is returned when no candidate answers the handshake. Callers
// continue in simulation mode.
var ErrOffline = errors.New("transport: no firmware found")

// SerialConnection is a firmware link over a local serial port.
type SerialConnection struct {
	port serial.Port
	name string
	wmu  sync.Mutex
}

// Name returns the port device name.
func (s *SerialConnection) Name() string {
	return s.name
}

// Port returns the underlying serial port.
func (s *SerialConnection) Port() serial.Port {
	return s.port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}
