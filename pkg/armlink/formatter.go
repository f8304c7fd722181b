// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"fmt"
	"math"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(p.dir, p.msgType)

	result := fmt.Sprintf("[%s] %s %s (0x%02X) len=%d crc=%08X\n", timestamp, p.dir, msgType, p.msgType, len(p.payload), p.crc)
	return result + formatPayload(p)
}

// FormatMessageType returns the human-readable name for a frame type
func FormatMessageType(dir Direction, msgType uint8) string {
	if dir == DirCommand {
		switch msgType {
		case CmdTrajectory:
			return "TRAJECTORY"
		case CmdHoming:
			return "HOMING"
		case CmdStop:
			return "STOP"
		case CmdPositionQuery:
			return "POSITION_QUERY"
		}
		return "UNKNOWN"
	}
	switch msgType {
	case RespStatus:
		return "STATUS"
	case RespPosition:
		return "POSITION"
	case RespAck:
		return "ACK"
	case RespNack:
		return "NACK"
	}
	return "UNKNOWN"
}

func formatPayload(p *Packet) string {
	if p.dir == DirCommand {
		if p.msgType != CmdTrajectory {
			return "  (no payload)\n"
		}
		pt, err := p.TrajectoryPoint()
		if err != nil {
			return fmt.Sprintf("  (%v)\n", err)
		}
		pen := "down"
		if pt.PenUp {
			pen = "up"
		}
		return fmt.Sprintf("  q: %s, %s  dq: %.3f, %.3f rad/s  ddq: %.3f, %.3f rad/s²  pen %s\n",
			formatAngle(pt.Q0), formatAngle(pt.Q1), pt.DQ0, pt.DQ1, pt.DDQ0, pt.DDQ1, pen)
	}

	switch p.msgType {
	case RespPosition:
		q0, q1, _ := p.Position()
		return fmt.Sprintf("  Position: %s, %s\n", formatAngle(q0), formatAngle(q1))
	case RespStatus, RespAck, RespNack:
		level, _ := p.BufferLevel()
		return fmt.Sprintf("  Buffer level: %d\n", level)
	}
	return ""
}

// formatAngle prints radians with the degree value alongside.
func formatAngle(rad float32) string {
	return fmt.Sprintf("%.4f rad (%.1f°)", rad, float64(rad)*180/math.Pi)
}

// FormatHex formats raw bytes as space separated hex.
func FormatHex(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
