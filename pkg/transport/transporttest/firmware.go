// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transporttest provides an in-memory firmware that speaks the arm
// link protocol, for tests of everything above the transport.
package transporttest

import (
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/quill/pkg/armlink"
)

// ReadTimeout is how long Read waits for data before returning (0, nil),
// like a serial port with a read timeout.
const ReadTimeout = 10 * time.Millisecond

// Firmware emulates the arm controller behind a Connection. It answers
// position queries with its current pose, follows trajectory setpoints and
// acknowledges homing and stop. Its ring buffer is not modelled: points are
// applied as soon as they arrive.
type Firmware struct {
	// Silent firmware decodes commands but never answers.
	Silent bool
	// StatusEvery, when positive, sends a STATUS frame after every n points.
	StatusEvery int

	mu       sync.Mutex
	decoder  *armlink.Decoder
	q0, q1   float32
	received []*armlink.Packet
	points   int
	out      []byte
	closed   bool
	signal   chan struct{}
	writeErr error
}

// NewFirmware returns firmware at the zero pose.
func NewFirmware() *Firmware {
	return &Firmware{
		decoder: armlink.NewCommandDecoder(),
		signal:  make(chan struct{}, 1),
	}
}

// Write receives host bytes.
func (f *Firmware) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	for _, b := range p {
		packet, err := f.decoder.DecodeByte(b)
		if err != nil || packet == nil {
			continue
		}
		f.handleLocked(packet)
	}
	return len(p), nil
}

// Read returns bytes queued for the host, waiting up to ReadTimeout.
func (f *Firmware) Read(p []byte) (int, error) {
	timer := time.NewTimer(ReadTimeout)
	defer timer.Stop()

	for {
		f.mu.Lock()
		if len(f.out) > 0 {
			n := copy(p, f.out)
			f.out = f.out[n:]
			f.mu.Unlock()
			return n, nil
		}
		if f.closed {
			f.mu.Unlock()
			return 0, io.EOF
		}
		f.mu.Unlock()

		select {
		case <-f.signal:
		case <-timer.C:
			return 0, nil
		}
	}
}

// Close makes further reads return io.EOF.
func (f *Firmware) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.wake()
	return nil
}

// Inject queues raw bytes for the host, such as line noise.
func (f *Firmware) Inject(data []byte) {
	f.mu.Lock()
	f.out = append(f.out, data...)
	f.mu.Unlock()
	f.wake()
}

// FailWrites makes every later Write return err.
func (f *Firmware) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// SetPose moves the emulated arm.
func (f *Firmware) SetPose(q0, q1 float32) {
	f.mu.Lock()
	f.q0, f.q1 = q0, q1
	f.mu.Unlock()
}

// Pose returns the emulated arm position.
func (f *Firmware) Pose() (q0, q1 float32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q0, f.q1
}

// Received returns every command decoded so far.
func (f *Firmware) Received() []*armlink.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*armlink.Packet(nil), f.received...)
}

// Count returns how many commands of type cmd were received.
func (f *Firmware) Count(cmd uint8) int {
	n := 0
	for _, p := range f.Received() {
		if p.Type() == cmd {
			n++
		}
	}
	return n
}

func (f *Firmware) handleLocked(p *armlink.Packet) {
	f.received = append(f.received, p)

	var reply *armlink.Packet
	switch p.Type() {
	case armlink.CmdTrajectory:
		pt, err := p.TrajectoryPoint()
		if err != nil {
			return
		}
		f.q0, f.q1 = pt.Q0, pt.Q1
		f.points++
		if f.StatusEvery > 0 && f.points%f.StatusEvery == 0 {
			reply = armlink.NewStatusResponse(f.bufferLevel())
		}
	case armlink.CmdHoming:
		f.q0, f.q1 = 0, 0
		reply = armlink.NewAck(f.bufferLevel())
	case armlink.CmdStop:
		reply = armlink.NewAck(f.bufferLevel())
	case armlink.CmdPositionQuery:
		reply = armlink.NewPositionResponse(f.q0, f.q1)
	}

	if reply == nil || f.Silent {
		return
	}
	f.out = append(f.out, armlink.EncodePacket(reply)...)
	select {
	case f.signal <- struct{}{}:
	default:
	}
}

// bufferLevel reports the points received, capped at the buffer capacity.
func (f *Firmware) bufferLevel() uint8 {
	return uint8(min(f.points, 50))
}

func (f *Firmware) wake() {
	select {
	case f.signal <- struct{}{}:
	default:
	}
}
