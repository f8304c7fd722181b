// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		parts    [][]byte
		expected uint32
	}{
		{"empty", nil, 0},
		{"ASCII '123456789'", [][]byte{[]byte("123456789")}, 0xCBF43926},
		{"split input", [][]byte{[]byte("1234"), []byte("56789")}, 0xCBF43926},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if crc := CalculateCRC(tt.parts...); crc != tt.expected {
				t.Errorf("CRC mismatch: expected 0x%08X, got 0x%08X", tt.expected, crc)
			}
		})
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncodeTrajectoryPoint_Layout(t *testing.T) {
	frame := EncodeTrajectoryPoint(1, 2, 3, 4, 5, 6, true)

	if len(frame) != CommandFrameSize {
		t.Fatalf("frame length %d, want %d", len(frame), CommandFrameSize)
	}
	if frame[0] != MagicByte1 || frame[1] != MagicByte2 || frame[2] != CmdTrajectory {
		t.Errorf("header = % X", frame[:3])
	}
	for i, want := range []float32{1, 2, 3, 4, 5, 6} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(frame[3+4*i:]))
		if got != want {
			t.Errorf("field %d = %g, want %g", i, got, want)
		}
	}
	if frame[27] != 1 {
		t.Errorf("pen byte = %d, want 1", frame[27])
	}
	crc := binary.LittleEndian.Uint32(frame[28:])
	if want := CalculateCRC(frame[2:28]); crc != want {
		t.Errorf("crc = 0x%08X, want 0x%08X over type ++ payload", crc, want)
	}
}

func TestEncodeZeroPayloadCommands(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		cmd   uint8
	}{
		{"homing", EncodeHoming(), CmdHoming},
		{"stop", EncodeStop(), CmdStop},
		{"position query", EncodePositionQuery(), CmdPositionQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.frame) != CommandFrameSize {
				t.Fatalf("frame length %d, want %d", len(tt.frame), CommandFrameSize)
			}
			if tt.frame[2] != tt.cmd {
				t.Errorf("type = 0x%02X, want 0x%02X", tt.frame[2], tt.cmd)
			}
			for i, b := range tt.frame[3 : 3+CommandPayloadSize] {
				if b != 0 {
					t.Fatalf("payload byte %d = 0x%02X, want 0", i, b)
				}
			}
		})
	}
}

func TestEncodeTrajectoryPoint_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pt   TrajectoryPoint
	}{
		{"zero pen down", TrajectoryPoint{}},
		{"typical", TrajectoryPoint{Q0: -0.3185, Q1: 1.6428, DQ0: 0.12, DQ1: -0.5, DDQ0: 0.35, DDQ1: -0.7, PenUp: true}},
		{"large", TrajectoryPoint{Q0: 3.1415927, Q1: -3.1415927, DQ0: 10, DQ1: -10, DDQ0: 1e3, DDQ1: -1e3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := tt.pt
			frame := EncodeTrajectoryPoint(pt.Q0, pt.Q1, pt.DQ0, pt.DQ1, pt.DDQ0, pt.DDQ1, pt.PenUp)
			p, ok := DecodeCommand(frame)
			if !ok {
				t.Fatal("DecodeCommand rejected a valid frame")
			}
			got, err := p.TrajectoryPoint()
			if err != nil {
				t.Fatalf("TrajectoryPoint: %v", err)
			}
			if got != pt {
				t.Errorf("round trip = %+v, want %+v", got, pt)
			}
		})
	}
}

// ============================================================
// DecodeFeedback Tests
// ============================================================

func TestDecodeFeedback_Position(t *testing.T) {
	frame := EncodePacket(NewPositionResponse(0.25, -1.5))
	if len(frame) != PositionFrameSize {
		t.Fatalf("frame length %d, want %d", len(frame), PositionFrameSize)
	}

	fb, ok := DecodeFeedback(frame)
	if !ok {
		t.Fatal("DecodeFeedback rejected a valid frame")
	}
	if fb.Type != RespPosition || fb.Q0 != 0.25 || fb.Q1 != -1.5 {
		t.Errorf("feedback = %+v", fb)
	}
}

func TestDecodeFeedback_Status(t *testing.T) {
	frame := EncodePacket(NewStatusResponse(37))
	if len(frame) != StatusFrameSize {
		t.Fatalf("frame length %d, want %d", len(frame), StatusFrameSize)
	}

	fb, ok := DecodeFeedback(frame)
	if !ok || fb.Type != RespStatus || fb.BufferLevel != 37 {
		t.Errorf("feedback = %+v, ok = %v", fb, ok)
	}
}

func TestDecodeFeedback_Acknowledgements(t *testing.T) {
	for _, p := range []*Packet{NewAck(12), NewNack(50)} {
		frame := EncodePacket(p)
		if len(frame) != StatusFrameSize {
			t.Errorf("0x%02X frame length %d, want %d", p.Type(), len(frame), StatusFrameSize)
		}
		fb, ok := DecodeFeedback(frame)
		if !ok || fb.Type != p.Type() {
			t.Errorf("0x%02X: feedback = %+v, ok = %v", p.Type(), fb, ok)
		}
		if level, _ := p.BufferLevel(); fb.BufferLevel != level {
			t.Errorf("0x%02X: buffer level %d, want %d", p.Type(), fb.BufferLevel, level)
		}
	}
}

// A Position frame whose type byte is rewritten to another response type
// must fail the CRC instead of decoding as that type.
func TestDecodeFeedback_RetypedFrameRejected(t *testing.T) {
	frame := EncodePacket(NewPositionResponse(0.5, 1.25))

	for _, typ := range []uint8{RespStatus, RespAck, RespNack} {
		retyped := append([]byte(nil), frame...)
		retyped[HeaderSize] = typ
		if fb, ok := DecodeFeedback(retyped); ok {
			t.Errorf("retyped to 0x%02X accepted: %+v", typ, fb)
		}
	}
}

func TestDecodeFeedback_SingleBitFlipRejected(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
	}{
		{"position", NewPositionResponse(0.5, 1.25)},
		{"status", NewStatusResponse(37)},
		{"ack", NewAck(5)},
		{"nack", NewNack(49)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodePacket(tt.packet)
			if _, ok := DecodeFeedback(frame); !ok {
				t.Fatal("valid frame rejected")
			}
			for i := range frame {
				for bit := 0; bit < 8; bit++ {
					corrupted := append([]byte(nil), frame...)
					corrupted[i] ^= 1 << bit
					if fb, ok := DecodeFeedback(corrupted); ok {
						t.Errorf("bit %d of byte %d flipped, accepted: %+v", bit, i, fb)
					}
				}
			}
		})
	}
}

func TestDecodeFeedback_ByteFlipRejected(t *testing.T) {
	frame := EncodePacket(NewPositionResponse(0.5, 1.25))

	for i := range frame {
		for _, mask := range []byte{0x01, 0x0F, 0x55, 0xA8, 0xFF} {
			corrupted := append([]byte(nil), frame...)
			corrupted[i] ^= mask
			if fb, ok := DecodeFeedback(corrupted); ok {
				t.Errorf("byte %d xor 0x%02X accepted: %+v", i, mask, fb)
			}
		}
	}
}

func TestDecodeFeedback_Malformed(t *testing.T) {
	valid := EncodePacket(NewPositionResponse(0.5, 1.25))
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"header only", []byte{MagicByte1, MagicByte2}},
		{"truncated", valid[:len(valid)-1]},
		{"unknown type", []byte{MagicByte1, MagicByte2, 0x77, 0, 0, 0, 0, 0}},
		{"command frame", EncodePositionQuery()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fb, ok := DecodeFeedback(tt.data); ok {
				t.Errorf("accepted: %+v", fb)
			}
		})
	}
}

func TestFeedbackFromPacket(t *testing.T) {
	fb, ok := FeedbackFromPacket(NewPositionResponse(1, 2))
	if !ok || fb.Q0 != 1 || fb.Q1 != 2 {
		t.Errorf("feedback = %+v, ok = %v", fb, ok)
	}
	if _, ok := FeedbackFromPacket(NewStopCommand()); ok {
		t.Error("command packet accepted as feedback")
	}
}

// ============================================================
// Decoder Tests
// ============================================================

func TestDecoder_SingleFrame(t *testing.T) {
	d := NewDecoder()
	packets, errs := d.Decode(EncodePacket(NewPositionResponse(0.1, 0.2)))
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	q0, q1, err := packets[0].Position()
	if err != nil || q0 != 0.1 || q1 != 0.2 {
		t.Errorf("Position() = %g, %g, %v", q0, q1, err)
	}
}

func TestDecoder_Resync(t *testing.T) {
	d := NewDecoder()
	noise := []byte{0x00, MagicByte1, 0x13, MagicByte1}
	stream := append(noise, EncodePacket(NewStatusResponse(12))...)

	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if level, _ := packets[0].BufferLevel(); level != 12 {
		t.Errorf("buffer level = %d, want 12", level)
	}
	if d.Discarded() != 4 {
		t.Errorf("Discarded() = %d, want 4", d.Discarded())
	}
}

func TestDecoder_UnknownTypeConsumesNothingMore(t *testing.T) {
	d := NewDecoder()
	stream := append([]byte{MagicByte1, MagicByte2, 0x77}, EncodePacket(NewPositionResponse(1, 2))...)

	packets, errs := d.Decode(stream)
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var typeErr *UnknownTypeError
	if !errors.As(errs[0], &typeErr) || typeErr.Type != 0x77 {
		t.Errorf("error = %v, want unknown type 0x77", errs[0])
	}
	if len(packets) != 1 || packets[0].Type() != RespPosition {
		t.Errorf("frame after unknown type not decoded: %v", packets)
	}
}

func TestDecoder_CRCErrorThenRecovery(t *testing.T) {
	bad := EncodePacket(NewPositionResponse(1, 2))
	bad[5] ^= 0x01
	good := EncodePacket(NewPositionResponse(3, 4))

	d := NewDecoder()
	packets, errs := d.Decode(append(bad, good...))
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1", len(errs))
	}
	var crcErr *CRCError
	if !errors.As(errs[0], &crcErr) {
		t.Errorf("error = %v, want *CRCError", errs[0])
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}
	if q0, _, _ := packets[0].Position(); q0 != 3 {
		t.Errorf("recovered q0 = %g, want 3", q0)
	}
}

func TestDecoder_Acknowledgement(t *testing.T) {
	d := NewDecoder()
	var got *Packet
	for _, b := range EncodePacket(NewAck(9)) {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("DecodeByte: %v", err)
		}
		if p != nil {
			got = p
		}
	}
	if got == nil || got.Type() != RespAck {
		t.Fatalf("ACK not decoded: %v", got)
	}
	if level, err := got.BufferLevel(); err != nil || level != 9 {
		t.Errorf("buffer level = %d, %v, want 9", level, err)
	}
	if raw := d.GetRawBytes(); len(raw) != StatusFrameSize {
		t.Errorf("raw bytes = % X, want %d bytes", raw, StatusFrameSize)
	}
}

func TestDecoder_AcknowledgementCRCMismatch(t *testing.T) {
	frame := EncodePacket(NewNack(3))
	frame[len(frame)-1] ^= 0x01

	packets, errs := NewDecoder().Decode(frame)
	if len(packets) != 0 {
		t.Fatalf("corrupted NACK decoded: %v", packets)
	}
	var crcErr *CRCError
	if len(errs) != 1 || !errors.As(errs[0], &crcErr) || crcErr.Type != RespNack {
		t.Errorf("errors = %v, want one NACK CRC error", errs)
	}
}

func TestCommandDecoder(t *testing.T) {
	d := NewCommandDecoder()
	stream := append(EncodeHoming(), EncodeTrajectoryPoint(0.1, 0.2, 0, 0, 0, 0, false)...)
	stream = append(stream, EncodeStop()...)

	packets, errs := d.Decode(stream)
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	want := []uint8{CmdHoming, CmdTrajectory, CmdStop}
	if len(packets) != len(want) {
		t.Fatalf("got %d packets, want %d", len(packets), len(want))
	}
	for i, p := range packets {
		if p.Type() != want[i] || p.Direction() != DirCommand {
			t.Errorf("packet %d = %s 0x%02X", i, p.Direction(), p.Type())
		}
	}
}

// ============================================================
// Packet Accessor Tests
// ============================================================

func TestPacket_WrongAccessor(t *testing.T) {
	if _, _, err := NewStatusResponse(1).Position(); err == nil {
		t.Error("Position() on status response should fail")
	}
	if _, err := NewPositionResponse(1, 2).BufferLevel(); err == nil {
		t.Error("BufferLevel() on position response should fail")
	}
	if _, err := NewAck(0).TrajectoryPoint(); err == nil {
		t.Error("TrajectoryPoint() on response should fail")
	}
}

func TestPacket_PayloadIsCopied(t *testing.T) {
	p := NewStatusResponse(5)
	payload := p.Payload()
	payload[0] = 99
	if level, _ := p.BufferLevel(); level != 5 {
		t.Errorf("packet mutated through Payload(): level %d", level)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(NewPositionResponse(1, 2), nil)
	s.Update(NewStatusResponse(3), nil)
	s.Update(NewAck(1), nil)
	s.Update(NewNack(2), nil)
	s.Update(nil, &CRCError{})
	s.Update(nil, &UnknownTypeError{Type: 0x42})
	s.Update(nil, errors.New("other"))
	s.Update(nil, nil)
	s.SetDiscarded(7)
	s.AddSent(45)

	snap := s.Snapshot()
	if snap.TotalFrames != 4 || snap.PositionFrames != 1 || snap.StatusFrames != 1 || snap.Acks != 1 || snap.Nacks != 1 {
		t.Errorf("frame counters = %+v", snap)
	}
	if snap.CRCErrors != 1 || snap.UnknownTypes != 1 || snap.DecodeErrors != 1 || snap.Errors() != 3 {
		t.Errorf("error counters = %+v", snap)
	}
	if snap.DiscardedBytes != 7 || snap.FramesSent != 45 {
		t.Errorf("discarded/sent = %d/%d", snap.DiscardedBytes, snap.FramesSent)
	}
	if !strings.Contains(snap.String(), "CRC Errors") {
		t.Errorf("summary missing CRC line:\n%s", snap.String())
	}

	s.Reset()
	if snap := s.Snapshot(); snap.TotalFrames != 0 || snap.Errors() != 0 || snap.FramesSent != 0 {
		t.Errorf("after Reset: %+v", snap)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatPacket(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   []string
	}{
		{"trajectory", NewTrajectoryCommand(TrajectoryPoint{Q0: 1, PenUp: true}), []string{"TRAJECTORY", "pen up"}},
		{"homing", NewHomingCommand(), []string{"HOMING", "no payload"}},
		{"position", NewPositionResponse(0.5, 0), []string{"POSITION", "0.5000 rad"}},
		{"status", NewStatusResponse(9), []string{"STATUS", "Buffer level: 9"}},
		{"nack", NewNack(7), []string{"NACK", "Buffer level: 7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatPacket(tt.packet)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestFormatMessageType_Unknown(t *testing.T) {
	if got := FormatMessageType(DirResponse, 0x42); got != "UNKNOWN" {
		t.Errorf("got %q", got)
	}
	if got := FormatMessageType(DirCommand, RespAck); got != "UNKNOWN" {
		t.Errorf("got %q", got)
	}
}

func TestFormatHex(t *testing.T) {
	if got := FormatHex([]byte{0xA5, 0x5A, 0x01}); got != "A5 5A 01" {
		t.Errorf("FormatHex = %q", got)
	}
}
