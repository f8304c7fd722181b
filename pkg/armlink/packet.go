// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// TrajectoryPoint is the payload of a trajectory command: one setpoint with
// its velocity and acceleration feed-forward.
type TrajectoryPoint struct {
	Q0, Q1     float32
	DQ0, DQ1   float32
	DDQ0, DDQ1 float32
	PenUp      bool
}

// Packet is one frame on the link. Packets are immutable once built.
type Packet struct {
	dir       Direction
	msgType   uint8
	payload   []byte
	crc       uint32
	timestamp time.Time
}

// NewPacket creates a packet and computes its CRC.
func NewPacket(dir Direction, msgType uint8, payload []byte) *Packet {
	p := &Packet{
		dir:       dir,
		msgType:   msgType,
		payload:   append([]byte(nil), payload...),
		timestamp: time.Now(),
	}
	p.crc = CalculateCRC([]byte{msgType}, payload)
	return p
}

// Direction returns which side of the link the packet belongs to.
func (p *Packet) Direction() Direction {
	return p.dir
}

// Type returns the packet's type byte.
func (p *Packet) Type() uint8 {
	return p.msgType
}

// Payload returns a copy of the payload bytes.
func (p *Packet) Payload() []byte {
	return append([]byte(nil), p.payload...)
}

// CRC returns the CRC-32 over type ++ payload.
func (p *Packet) CRC() uint32 {
	return p.crc
}

// Timestamp returns when the packet was built or decoded.
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// TrajectoryPoint decodes a command payload.
func (p *Packet) TrajectoryPoint() (TrajectoryPoint, error) {
	if p.dir != DirCommand || len(p.payload) != CommandPayloadSize {
		return TrajectoryPoint{}, fmt.Errorf("not a command packet: %s type 0x%02X len %d", p.dir, p.msgType, len(p.payload))
	}
	f := func(i int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(p.payload[i*4:]))
	}
	return TrajectoryPoint{
		Q0: f(0), Q1: f(1),
		DQ0: f(2), DQ1: f(3),
		DDQ0: f(4), DDQ1: f(5),
		PenUp: p.payload[24] != 0,
	}, nil
}

// Position decodes a position response.
func (p *Packet) Position() (q0, q1 float32, err error) {
	if p.dir != DirResponse || p.msgType != RespPosition || len(p.payload) != PositionPayloadSize {
		return 0, 0, fmt.Errorf("not a position response: %s type 0x%02X", p.dir, p.msgType)
	}
	q0 = math.Float32frombits(binary.LittleEndian.Uint32(p.payload[0:4]))
	q1 = math.Float32frombits(binary.LittleEndian.Uint32(p.payload[4:8]))
	return q0, q1, nil
}

// BufferLevel decodes the buffer level of a status, ACK or NACK response.
func (p *Packet) BufferLevel() (uint8, error) {
	if p.dir != DirResponse || len(p.payload) != StatusPayloadSize {
		return 0, fmt.Errorf("not a status response: %s type 0x%02X", p.dir, p.msgType)
	}
	switch p.msgType {
	case RespStatus, RespAck, RespNack:
	default:
		return 0, fmt.Errorf("not a status response: %s type 0x%02X", p.dir, p.msgType)
	}
	return p.payload[0], nil
}
