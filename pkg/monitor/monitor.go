// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor reads firmware responses from the link and folds them into
// the shared robot state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/metrics"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

const readBufferSize = 256

// Options configures a Monitor. State is required.
type Options struct {
	Stream     config.Stream
	State      *robotstate.State
	Statistics *armlink.Statistics
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Metrics

	// OnPacket, when set, sees every valid frame after the state update.
	OnPacket func(*armlink.Packet)
	// OnError, when set, sees every rejected frame.
	OnError func(error)
}

// Monitor decodes the response stream. Protocol errors are counted and
// never end the loop.
type Monitor struct {
	opts    Options
	decoder *armlink.Decoder

	mu       sync.Mutex
	position chan struct{}
}

// New creates a Monitor.
func New(opts Options) (*Monitor, error) {
	if opts.State == nil {
		return nil, errors.New("monitor: state is required")
	}
	if opts.Stream.PollInterval <= 0 {
		opts.Stream.PollInterval = config.Default().Stream.PollInterval
	}
	if opts.Statistics == nil {
		opts.Statistics = armlink.NewStatistics()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Monitor{
		opts:     opts,
		decoder:  armlink.NewDecoder(),
		position: make(chan struct{}),
	}, nil
}

// Statistics returns the link statistics the monitor updates.
func (m *Monitor) Statistics() *armlink.Statistics {
	return m.opts.Statistics
}

// PositionUpdated returns a channel that is closed by the next valid
// position frame. Take it before sending a query so the answer is not missed.
func (m *Monitor) PositionUpdated() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Monitor) notifyPosition() {
	m.mu.Lock()
	close(m.position)
	m.position = make(chan struct{})
	m.mu.Unlock()
}

// Run reads r until ctx is done or the read fails. A read that returns no
// bytes waits one poll interval. Run cannot interrupt a blocked Read; close
// the underlying connection to stop it.
func (m *Monitor) Run(ctx context.Context, r io.Reader) error {
	log := m.opts.Logger
	buf := make([]byte, readBufferSize)
	log.Debug("monitor started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf)
		if n > 0 {
			m.Feed(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("link closed")
			} else {
				log.Warn("link read failed", zap.Error(err))
			}
			return fmt.Errorf("monitor: read: %w", err)
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-m.opts.Clock.After(m.opts.Stream.PollInterval):
			}
		}
	}
}

// Feed decodes data as if it had been read from the link.
func (m *Monitor) Feed(data []byte) {
	for _, b := range data {
		packet, err := m.decoder.DecodeByte(b)
		if err != nil {
			m.reject(err)
			continue
		}
		if packet != nil {
			m.accept(packet)
		}
	}
	m.opts.Statistics.SetDiscarded(m.decoder.Discarded())
}

func (m *Monitor) accept(p *armlink.Packet) {
	m.opts.Statistics.Update(p, nil)
	state := m.opts.State

	switch p.Type() {
	case armlink.RespPosition:
		q0, q1, err := p.Position()
		if err != nil {
			m.reject(err)
			return
		}
		state.SetFeedbackPosition(float64(q0), float64(q1))
		m.opts.Metrics.IncFrameReceived("position")
		m.notifyPosition()
	case armlink.RespStatus:
		level, err := p.BufferLevel()
		if err != nil {
			m.reject(err)
			return
		}
		state.SetBufferLevel(level)
		m.opts.Metrics.IncFrameReceived("status")
		m.opts.Metrics.SetBufferLevel(int(level))
	case armlink.RespAck, armlink.RespNack:
		level, err := p.BufferLevel()
		if err != nil {
			m.reject(err)
			return
		}
		state.SetBufferLevel(level)
		m.opts.Metrics.SetBufferLevel(int(level))
		if p.Type() == armlink.RespAck {
			m.opts.Metrics.IncFrameReceived("ack")
		} else {
			m.opts.Metrics.IncFrameReceived("nack")
			m.opts.Logger.Warn("firmware rejected a command", zap.Uint8("buffer_level", level))
		}
	}

	if m.opts.OnPacket != nil {
		m.opts.OnPacket(p)
	}
}

func (m *Monitor) reject(err error) {
	m.opts.Statistics.Update(nil, err)

	var crcErr *armlink.CRCError
	var typeErr *armlink.UnknownTypeError
	switch {
	case errors.As(err, &crcErr):
		m.opts.Metrics.IncLinkError("crc")
	case errors.As(err, &typeErr):
		m.opts.Metrics.IncLinkError("unknown_type")
	default:
		m.opts.Metrics.IncLinkError("decode")
	}
	m.opts.Logger.Debug("frame dropped", zap.Error(err))

	if m.opts.OnError != nil {
		m.opts.OnError(err)
	}
}
