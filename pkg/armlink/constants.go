// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package armlink implements the framed binary link between the host and the
// drawing arm firmware.
//
// Every frame starts with the two magic bytes 0xA5 0x5A followed by a type
// byte. Commands (host → firmware) carry a fixed 25 byte payload; responses
// (firmware → host) carry a payload whose size depends on the type. A
// CRC-32 (IEEE 802.3) over type ++ payload trails every frame, little-endian.
package armlink

// Framing bytes
const (
	MagicByte1 = 0xA5
	MagicByte2 = 0x5A
)

// Command types (host → firmware)
const (
	CmdTrajectory    = 0x01
	CmdHoming        = 0x02
	CmdStop          = 0x03
	CmdPositionQuery = 0x04
)

// Response types (firmware → host)
const (
	RespStatus   = 0x01
	RespPosition = 0x02
	RespAck      = 0xAA
	RespNack     = 0xFF
)

// Frame sizes
const (
	HeaderSize = 2
	TypeSize   = 1
	CRCSize    = 4

	// Six little-endian float32 values and the pen byte.
	CommandPayloadSize = 6*4 + 1
	CommandFrameSize   = HeaderSize + TypeSize + CommandPayloadSize + CRCSize

	// Status, ACK and NACK carry the firmware buffer level.
	StatusPayloadSize   = 1
	PositionPayloadSize = 2 * 4

	StatusFrameSize   = HeaderSize + TypeSize + StatusPayloadSize + CRCSize
	PositionFrameSize = HeaderSize + TypeSize + PositionPayloadSize + CRCSize
)

// Direction tells which side of the link produced a frame. Type codes overlap
// between commands and responses, so a type byte alone is ambiguous.
type Direction int

// Directions
const (
	DirResponse Direction = iota
	DirCommand
)

func (d Direction) String() string {
	if d == DirCommand {
		return "host→arm"
	}
	return "arm→host"
}

// Decoder states (internal)
const (
	stateIdle = iota
	stateMagic2
	stateType
	statePayload
)

// payloadSize returns the payload length of a frame type and whether the
// type is known.
func payloadSize(dir Direction, msgType uint8) (int, bool) {
	if dir == DirCommand {
		switch msgType {
		case CmdTrajectory, CmdHoming, CmdStop, CmdPositionQuery:
			return CommandPayloadSize, true
		}
		return 0, false
	}
	switch msgType {
	case RespStatus, RespAck, RespNack:
		return StatusPayloadSize, true
	case RespPosition:
		return PositionPayloadSize, true
	}
	return 0, false
}
