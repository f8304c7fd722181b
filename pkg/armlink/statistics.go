// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"
)

// Statistics tracks link frame counts and error rates. It is safe for
// concurrent use: the monitor updates it while UIs read snapshots.
type Statistics struct {
	startTime atomic.Time

	totalFrames    atomic.Uint64
	positionFrames atomic.Uint64
	statusFrames   atomic.Uint64
	acks           atomic.Uint64
	nacks          atomic.Uint64
	crcErrors      atomic.Uint64
	unknownTypes   atomic.Uint64
	decodeErrors   atomic.Uint64
	discardedBytes atomic.Uint64
	framesSent     atomic.Uint64
}

// StatisticsSnapshot is a point-in-time copy of Statistics with derived rates.
type StatisticsSnapshot struct {
	Elapsed time.Duration `json:"elapsed_ns"`

	TotalFrames    uint64 `json:"total_frames"`
	PositionFrames uint64 `json:"position_frames"`
	StatusFrames   uint64 `json:"status_frames"`
	Acks           uint64 `json:"acks"`
	Nacks          uint64 `json:"nacks"`
	CRCErrors      uint64 `json:"crc_errors"`
	UnknownTypes   uint64 `json:"unknown_types"`
	DecodeErrors   uint64 `json:"decode_errors"`
	DiscardedBytes uint64 `json:"discarded_bytes"`
	FramesSent     uint64 `json:"frames_sent"`

	FrameRate float64 `json:"frame_rate"` // frames/sec
	ErrorRate float64 `json:"error_rate"` // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.startTime.Store(time.Now())
	return s
}

// Update records the outcome of one DecodeByte call that produced a packet
// or an error.
func (s *Statistics) Update(packet *Packet, decodeErr error) {
	if decodeErr != nil {
		var crcErr *CRCError
		var typeErr *UnknownTypeError
		switch {
		case errors.As(decodeErr, &crcErr):
			s.crcErrors.Inc()
		case errors.As(decodeErr, &typeErr):
			s.unknownTypes.Inc()
		default:
			s.decodeErrors.Inc()
		}
		return
	}
	if packet == nil {
		return
	}

	s.totalFrames.Inc()
	switch packet.Type() {
	case RespPosition:
		s.positionFrames.Inc()
	case RespStatus:
		s.statusFrames.Inc()
	case RespAck:
		s.acks.Inc()
	case RespNack:
		s.nacks.Inc()
	}
}

// SetDiscarded records the decoder's running count of resync bytes.
func (s *Statistics) SetDiscarded(n uint64) {
	s.discardedBytes.Store(n)
}

// AddSent counts frames written to the link.
func (s *Statistics) AddSent(n int) {
	s.framesSent.Add(uint64(n))
}

// Snapshot returns the current counters and rates.
func (s *Statistics) Snapshot() StatisticsSnapshot {
	snap := StatisticsSnapshot{
		Elapsed:        time.Since(s.startTime.Load()),
		TotalFrames:    s.totalFrames.Load(),
		PositionFrames: s.positionFrames.Load(),
		StatusFrames:   s.statusFrames.Load(),
		Acks:           s.acks.Load(),
		Nacks:          s.nacks.Load(),
		CRCErrors:      s.crcErrors.Load(),
		UnknownTypes:   s.unknownTypes.Load(),
		DecodeErrors:   s.decodeErrors.Load(),
		DiscardedBytes: s.discardedBytes.Load(),
		FramesSent:     s.framesSent.Load(),
	}
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.FrameRate = float64(snap.TotalFrames) / secs
		snap.ErrorRate = float64(snap.Errors()) / secs
	}
	return snap
}

// Errors returns the total number of rejected frames.
func (s StatisticsSnapshot) Errors() uint64 {
	return s.CRCErrors + s.UnknownTypes + s.DecodeErrors
}

// String returns a formatted statistics summary
func (s StatisticsSnapshot) String() string {
	var validPercent, crcPercent float64
	if attempts := s.TotalFrames + s.Errors(); attempts > 0 {
		validPercent = float64(s.TotalFrames) * 100.0 / float64(attempts)
		crcPercent = float64(s.CRCErrors) * 100.0 / float64(attempts)
	}

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", s.Elapsed.Seconds())
	result += fmt.Sprintf("Frames Received: %8d (%.1f%% valid)\n", s.TotalFrames, validPercent)
	result += fmt.Sprintf("  Position:      %8d\n", s.PositionFrames)
	result += fmt.Sprintf("  Status:        %8d\n", s.StatusFrames)
	if s.Acks > 0 || s.Nacks > 0 {
		result += fmt.Sprintf("  ACK / NACK:    %8d / %d\n", s.Acks, s.Nacks)
	}
	result += fmt.Sprintf("Frames Sent:     %8d\n", s.FramesSent)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d (%.1f%%)\n", s.CRCErrors, crcPercent)
	}
	if s.UnknownTypes > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d\n", s.UnknownTypes)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.DiscardedBytes)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "=====================================\n"
	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.startTime.Store(time.Now())
	for _, c := range []*atomic.Uint64{
		&s.totalFrames, &s.positionFrames, &s.statusFrames, &s.acks, &s.nacks,
		&s.crcErrors, &s.unknownTypes, &s.decodeErrors, &s.discardedBytes, &s.framesSent,
	} {
		c.Store(0)
	}
}
