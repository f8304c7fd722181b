// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"math"
)

// Feedback is a decoded firmware response.
type Feedback struct {
	Type        uint8
	Q0, Q1      float32 // RespPosition only
	BufferLevel uint8   // RespStatus, RespAck and RespNack
}

// DecodeFeedback decodes one complete response frame.
//
// The frame is accepted only if both magic bytes match, the type is known and
// the trailing CRC matches type ++ payload. Anything else yields false; the
// caller treats it as "no valid frame". Trailing bytes after the frame are
// ignored.
func DecodeFeedback(data []byte) (Feedback, bool) {
	if len(data) < HeaderSize+TypeSize || data[0] != MagicByte1 || data[1] != MagicByte2 {
		return Feedback{}, false
	}
	fb := Feedback{Type: data[2]}
	size, ok := payloadSize(DirResponse, fb.Type)
	if !ok {
		return Feedback{}, false
	}

	end := HeaderSize + TypeSize + size
	if len(data) < end+CRCSize {
		return Feedback{}, false
	}
	got := binary.LittleEndian.Uint32(data[end : end+CRCSize])
	if got != CalculateCRC(data[HeaderSize:end]) {
		return Feedback{}, false
	}

	payload := data[HeaderSize+TypeSize : end]
	switch fb.Type {
	case RespPosition:
		fb.Q0 = math.Float32frombits(binary.LittleEndian.Uint32(payload[0:4]))
		fb.Q1 = math.Float32frombits(binary.LittleEndian.Uint32(payload[4:8]))
	case RespStatus, RespAck, RespNack:
		fb.BufferLevel = payload[0]
	}
	return fb, true
}

// FeedbackFromPacket converts a decoded response packet.
func FeedbackFromPacket(p *Packet) (Feedback, bool) {
	if p.Direction() != DirResponse {
		return Feedback{}, false
	}
	return DecodeFeedback(EncodePacket(p))
}

// DecodeCommand decodes one complete command frame. It returns false on any
// framing, type or CRC mismatch.
func DecodeCommand(data []byte) (*Packet, bool) {
	if len(data) < CommandFrameSize {
		return nil, false
	}
	d := NewCommandDecoder()
	for _, b := range data[:CommandFrameSize] {
		p, err := d.DecodeByte(b)
		if err != nil {
			return nil, false
		}
		if p != nil {
			return p, true
		}
	}
	return nil, false
}
