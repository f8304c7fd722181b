// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"math"
)

// Command builders create packets ready for EncodePacket. Homing, stop and
// position query carry a zero-filled payload of the trajectory shape.

// NewTrajectoryCommand creates a TRAJECTORY command (0x01).
func NewTrajectoryCommand(pt TrajectoryPoint) *Packet {
	return NewPacket(DirCommand, CmdTrajectory, commandPayload(pt))
}

// NewHomingCommand creates a HOMING command (0x02). The firmware runs its own
// homing routine and ends at the zero pose.
func NewHomingCommand() *Packet {
	return NewPacket(DirCommand, CmdHoming, make([]byte, CommandPayloadSize))
}

// NewStopCommand creates a STOP command (0x03). The firmware flushes its
// setpoint buffer and holds position.
func NewStopCommand() *Packet {
	return NewPacket(DirCommand, CmdStop, make([]byte, CommandPayloadSize))
}

// NewPositionQuery creates a POSITION query (0x04). The firmware answers with
// a POSITION response.
func NewPositionQuery() *Packet {
	return NewPacket(DirCommand, CmdPositionQuery, make([]byte, CommandPayloadSize))
}

// Response builders are used by the firmware emulator and in tests.

// NewStatusResponse creates a STATUS response (0x01).
func NewStatusResponse(bufferLevel uint8) *Packet {
	return NewPacket(DirResponse, RespStatus, []byte{bufferLevel})
}

// NewPositionResponse creates a POSITION response (0x02).
func NewPositionResponse(q0, q1 float32) *Packet {
	payload := make([]byte, 0, PositionPayloadSize)
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(q0))
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(q1))
	return NewPacket(DirResponse, RespPosition, payload)
}

// NewAck creates an ACK response (0xAA) reporting the buffer level.
func NewAck(bufferLevel uint8) *Packet {
	return NewPacket(DirResponse, RespAck, []byte{bufferLevel})
}

// NewNack creates a NACK response (0xFF) reporting the buffer level.
func NewNack(bufferLevel uint8) *Packet {
	return NewPacket(DirResponse, RespNack, []byte{bufferLevel})
}
