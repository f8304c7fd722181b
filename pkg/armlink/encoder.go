// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"math"
)

// EncodePacket serializes a packet to wire format:
// magic ++ type ++ payload ++ crc32 (little-endian).
func EncodePacket(p *Packet) []byte {
	frame := make([]byte, 0, HeaderSize+TypeSize+len(p.payload)+CRCSize)
	frame = append(frame, MagicByte1, MagicByte2, p.msgType)
	frame = append(frame, p.payload...)
	return binary.LittleEndian.AppendUint32(frame, p.crc)
}

// EncodeTrajectoryPoint builds a complete trajectory command frame.
func EncodeTrajectoryPoint(q0, q1, dq0, dq1, ddq0, ddq1 float32, penUp bool) []byte {
	return EncodePacket(NewTrajectoryCommand(TrajectoryPoint{
		Q0: q0, Q1: q1,
		DQ0: dq0, DQ1: dq1,
		DDQ0: ddq0, DDQ1: ddq1,
		PenUp: penUp,
	}))
}

// EncodeHoming builds a homing command frame.
func EncodeHoming() []byte {
	return EncodePacket(NewHomingCommand())
}

// EncodeStop builds a stop command frame.
func EncodeStop() []byte {
	return EncodePacket(NewStopCommand())
}

// EncodePositionQuery builds a position query frame.
func EncodePositionQuery() []byte {
	return EncodePacket(NewPositionQuery())
}

func commandPayload(pt TrajectoryPoint) []byte {
	payload := make([]byte, 0, CommandPayloadSize)
	for _, v := range []float32{pt.Q0, pt.Q1, pt.DQ0, pt.DQ1, pt.DDQ0, pt.DDQ1} {
		payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(v))
	}
	var pen byte
	if pt.PenUp {
		pen = 1
	}
	return append(payload, pen)
}
