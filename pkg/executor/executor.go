// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package executor streams a trajectory to the firmware, or simulates it in
// real time when no transport is attached.
//
// Hardware sessions prime the firmware ring buffer with a pre-roll burst,
// then send fixed-size batches on absolute deadlines and finally wait for
// the physical motion to drain. Simulated sessions step through the samples
// on the same time grid and record the commanded positions.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/metrics"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

const progressLogInterval = 100

// Options configures an Executor. State is required; the rest default.
type Options struct {
	Stream config.Stream
	Tc     float64

	State      *robotstate.State
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Statistics *armlink.Statistics
}

// Executor runs at most one Session at a time.
type Executor struct {
	cfg    config.Stream
	tc     float64

	state  *robotstate.State
	clock  clock.Clock
	logger *zap.Logger
	stats  *armlink.Statistics
	m      *metrics.Metrics

	mu      sync.Mutex
	nextID  uint64
	current *Session
}

// New creates an Executor.
func New(opts Options) (*Executor, error) {
	if opts.State == nil {
		return nil, errors.New("executor: state is required")
	}
	if !(opts.Tc > 0) {
		return nil, fmt.Errorf("executor: control period must be positive, got %g", opts.Tc)
	}
	s := opts.Stream
	if s.BufferCapacity <= 0 || s.BatchSize <= 0 || s.Period <= 0 || s.Margin < 0 || s.Margin >= s.BufferCapacity {
		return nil, fmt.Errorf("executor: invalid stream settings %+v", s)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{
		cfg:    s,
		tc:     opts.Tc,
		state:  opts.State,
		clock:  opts.Clock,
		logger: opts.Logger,
		stats:  opts.Statistics,
		m:      opts.Metrics,
	}, nil
}

// Start cancels and joins the running session, if any, then starts tr.
// With a nil writer the session is simulated. The session stops early when
// ctx is cancelled.
func (e *Executor) Start(ctx context.Context, tr *motion.Trajectory, w io.Writer) (*Session, error) {
	if tr == nil {
		return nil, errors.New("executor: nil trajectory")
	}
	if err := tr.Check(); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prev := e.current; prev != nil {
		prev.Cancel()
		<-prev.Done()
		e.logger.Debug("previous session joined", zap.Uint64("session", prev.ID()), zap.Stringer("phase", prev.Phase()))
	}

	e.nextID++
	s := newSession(e.nextID, tr, w == nil, e.clock.Now())
	e.current = s

	go e.run(ctx, s, w)
	return s, nil
}

// Cancel cancels the running session and waits for it to stop. It returns
// false when nothing was running.
func (e *Executor) Cancel() bool {
	e.mu.Lock()
	s := e.current
	e.mu.Unlock()

	if s == nil || s.Phase().Finished() {
		return false
	}
	s.Cancel()
	<-s.Done()
	return true
}

// Current returns the latest session, running or finished, or nil.
func (e *Executor) Current() *Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Busy reports whether a session is running.
func (e *Executor) Busy() bool {
	s := e.Current()
	return s != nil && !s.Phase().Finished()
}

func (e *Executor) run(ctx context.Context, s *Session, w io.Writer) {
	log := e.logger.With(zap.Uint64("session", s.ID()), zap.Bool("simulated", s.Simulated()))
	e.m.SetStreaming(true)

	e.state.BeginRecording()
	var err error
	if s.Simulated() {
		err = e.simulate(ctx, s, log)
	} else {
		err = e.streamHardware(ctx, s, w, log)
	}

	// The result is stored before the terminal phase so that anyone who
	// observes Finished also sees the recording and the error.
	s.recording = e.state.EndRecording()
	s.err = err
	switch {
	case err == nil:
		e.m.IncSession("completed")
		log.Info("session done", zap.Int("points", s.Sent()), zap.Duration("elapsed", e.clock.Since(s.Started())))
		s.setPhase(PhaseDone)
	case errors.Is(err, ErrAborted):
		e.m.IncSession("cancelled")
		log.Info("session aborted", zap.Int("sent", s.Sent()), zap.Int("total", s.Total()))
		s.setPhase(PhaseAborted)
	default:
		e.m.IncSession("failed")
		log.Error("session failed", zap.Int("sent", s.Sent()), zap.Error(err))
		s.setPhase(PhaseAborted)
	}
	e.m.SetStreaming(false)
	close(s.done)
}

// streamHardware is the hardware path: pre-roll, paced batches, drain.
func (e *Executor) streamHardware(ctx context.Context, s *Session, w io.Writer, log *zap.Logger) error {
	tr := s.Trajectory()
	n := tr.Len()

	s.setPhase(PhasePreRoll)
	if ctx.Err() != nil {
		s.Cancel()
	}
	if s.Cancelled() {
		return ErrAborted
	}
	preRoll := min(n, e.cfg.PreRoll())
	if err := e.sendBatch(s, w, 0, preRoll); err != nil {
		return err
	}
	log.Info("pre-roll sent", zap.Int("points", preRoll), zap.Int("total", n))

	s.setPhase(PhaseStreaming)
	start := e.clock.Now()
	next := preRoll
	for wake := 1; next < n; wake++ {
		if err := e.sleepUntil(ctx, s, start.Add(time.Duration(wake)*e.cfg.Period)); err != nil {
			return err
		}
		if s.Cancelled() {
			return ErrAborted
		}
		end := min(next+e.cfg.BatchSize, n)
		if err := e.sendBatch(s, w, next, end); err != nil {
			return err
		}
		if next/progressLogInterval != end/progressLogInterval {
			log.Debug("streaming", zap.Int("sent", end), zap.Int("total", n))
		}
		next = end
	}

	// Remaining physical execution time counts from the session start, the
	// moment the first pre-roll point reached the firmware buffer.
	s.setPhase(PhaseDraining)
	remaining := time.Duration(float64(n)*e.tc*float64(time.Second)) - e.clock.Since(s.Started())
	if remaining <= 0 {
		return nil
	}
	log.Debug("draining", zap.Duration("wait", remaining+e.cfg.DrainMargin))
	return e.sleepUntil(ctx, s, e.clock.Now().Add(remaining+e.cfg.DrainMargin))
}

// sendBatch writes points [from, to) as one write and publishes the
// commanded position of the last point.
func (e *Executor) sendBatch(s *Session, w io.Writer, from, to int) error {
	if from >= to {
		return nil
	}
	tr := s.Trajectory()
	buf := make([]byte, 0, (to-from)*armlink.CommandFrameSize)
	for i := from; i < to; i++ {
		buf = append(buf, encodePoint(tr, i)...)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("executor: write points %d-%d: %w", from, to-1, err)
	}
	s.sent.Store(int64(to))
	if e.stats != nil {
		e.stats.AddSent(to - from)
	}
	e.m.AddFramesSent(to - from)
	e.m.AddPointsStreamed(to - from)

	e.state.SetCommanded(tr.Pose(to-1), tr.PenUp[to-1])
	e.state.Publish()
	return nil
}

// simulate steps through the samples on their timestamps.
func (e *Executor) simulate(ctx context.Context, s *Session, log *zap.Logger) error {
	tr := s.Trajectory()
	s.setPhase(PhaseStreaming)
	start := e.clock.Now()
	log.Info("simulating", zap.Int("points", tr.Len()), zap.Float64("duration", tr.Duration()))

	for i := 0; i < tr.Len(); i++ {
		deadline := start.Add(time.Duration((tr.T[i] - tr.T[0]) * float64(time.Second)))
		if err := e.sleepUntil(ctx, s, deadline); err != nil {
			return err
		}
		if s.Cancelled() {
			return ErrAborted
		}
		e.state.RecordCommanded(tr.Pose(i), tr.PenUp[i])
		s.sent.Store(int64(i + 1))
		e.m.AddPointsStreamed(1)
	}
	return nil
}

// sleepUntil waits for an absolute deadline so lateness in one wake does not
// shift the following ones.
func (e *Executor) sleepUntil(ctx context.Context, s *Session, deadline time.Time) error {
	d := deadline.Sub(e.clock.Now())
	if d <= 0 {
		if s.Cancelled() {
			return ErrAborted
		}
		return nil
	}
	timer := e.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.stop:
		return ErrAborted
	case <-ctx.Done():
		s.Cancel()
		return ErrAborted
	}
}

func encodePoint(tr *motion.Trajectory, i int) []byte {
	return armlink.EncodeTrajectoryPoint(
		float32(tr.Q1[i]), float32(tr.Q2[i]),
		float32(tr.DQ1[i]), float32(tr.DQ2[i]),
		float32(tr.DDQ1[i]), float32(tr.DDQ2[i]),
		tr.PenUp[i],
	)
}
