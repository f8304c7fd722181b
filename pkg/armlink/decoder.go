// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"fmt"
	"time"
)

// CRCError reports a frame whose trailing CRC does not match its contents.
type CRCError struct {
	Type     uint8
	Expected uint32
	Got      uint32
}

func (e *CRCError) Error() string {
	return fmt.Sprintf("CRC mismatch on type 0x%02X: expected 0x%08X, got 0x%08X", e.Type, e.Expected, e.Got)
}

// UnknownTypeError reports a frame header followed by an unrecognized type byte.
type UnknownTypeError struct {
	Type uint8
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown frame type 0x%02X", e.Type)
}

// Decoder implements the frame decoder state machine for one direction of
// the link.
//
// Bytes outside a frame are discarded until the first magic byte is seen,
// which resynchronizes the stream after corruption. After an unknown type
// byte the decoder returns to idle without consuming further bytes.
type Decoder struct {
	dir       Direction
	state     int
	msgType   uint8
	buffer    []byte
	need      int
	discarded uint64
	rawBuffer []byte
}

// NewDecoder creates a decoder for firmware responses.
func NewDecoder() *Decoder {
	return newDecoder(DirResponse)
}

// NewCommandDecoder creates a decoder for host commands, as seen by the
// firmware side of the link.
func NewCommandDecoder() *Decoder {
	return newDecoder(DirCommand)
}

func newDecoder(dir Direction) *Decoder {
	return &Decoder{
		dir:       dir,
		state:     stateIdle,
		buffer:    make([]byte, 0, CommandPayloadSize+CRCSize),
		rawBuffer: make([]byte, 0, CommandFrameSize*2),
	}
}

// Reset returns the decoder to idle.
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.msgType = 0
	d.buffer = d.buffer[:0]
	d.need = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// Discarded returns the number of bytes dropped while hunting for a frame header.
func (d *Decoder) Discarded() uint64 {
	return d.discarded
}

// GetRawBytes returns the raw bytes of the frame currently being assembled
// or, right after a packet or error is returned, of the frame just finished.
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed packet, or nil if the frame is incomplete.
// Returns an error for a CRC mismatch or an unknown type.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	switch d.state {
	case stateIdle:
		if b != MagicByte1 {
			d.discarded++
			return nil, nil
		}
		d.rawBuffer = append(d.rawBuffer[:0], b)
		d.state = stateMagic2
		return nil, nil

	case stateMagic2:
		switch b {
		case MagicByte2:
			d.rawBuffer = append(d.rawBuffer, b)
			d.state = stateType
		case MagicByte1:
			// Stay armed: the previous 0xA5 was noise.
			d.discarded++
			d.rawBuffer = append(d.rawBuffer[:0], b)
		default:
			d.discarded += 2
			d.state = stateIdle
			d.rawBuffer = d.rawBuffer[:0]
		}
		return nil, nil

	case stateType:
		d.rawBuffer = append(d.rawBuffer, b)
		size, ok := payloadSize(d.dir, b)
		if !ok {
			d.state = stateIdle
			return nil, &UnknownTypeError{Type: b}
		}
		d.msgType = b
		d.buffer = d.buffer[:0]
		d.need = size + CRCSize
		d.state = statePayload
		return nil, nil

	case statePayload:
		d.rawBuffer = append(d.rawBuffer, b)
		d.buffer = append(d.buffer, b)
		if len(d.buffer) < d.need {
			return nil, nil
		}
		d.state = stateIdle

		payload := d.buffer[:d.need-CRCSize]
		got := binary.LittleEndian.Uint32(d.buffer[d.need-CRCSize:])
		expected := CalculateCRC([]byte{d.msgType}, payload)
		if got != expected {
			return nil, &CRCError{Type: d.msgType, Expected: expected, Got: got}
		}
		return d.finish(payload), nil

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// Decode feeds data through the decoder and returns every completed packet
// and every error encountered, in stream order.
func (d *Decoder) Decode(data []byte) ([]*Packet, []error) {
	var packets []*Packet
	var errs []error
	for _, b := range data {
		p, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if p != nil {
			packets = append(packets, p)
		}
	}
	return packets, errs
}

func (d *Decoder) finish(payload []byte) *Packet {
	p := NewPacket(d.dir, d.msgType, payload)
	p.timestamp = time.Now()
	return p
}
