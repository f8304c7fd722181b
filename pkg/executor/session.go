// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package executor

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

// ErrAborted is returned by Session.Wait when the session was cancelled.
var ErrAborted = errors.New("executor: session aborted")

// Phase is the lifecycle state of a Session.
type Phase int32

// Session phases
const (
	PhasePreRoll Phase = iota
	PhaseStreaming
	PhaseDraining
	PhaseDone
	PhaseAborted
)

func (p Phase) String() string {
	switch p {
	case PhasePreRoll:
		return "pre-roll"
	case PhaseStreaming:
		return "streaming"
	case PhaseDraining:
		return "draining"
	case PhaseDone:
		return "done"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Finished reports whether p is terminal.
func (p Phase) Finished() bool {
	return p == PhaseDone || p == PhaseAborted
}

// Session is one trajectory execution. It is created by Executor.Start and
// runs on its own goroutine until Done or Aborted.
type Session struct {
	id         uint64
	trajectory *motion.Trajectory
	simulated  bool
	started    time.Time

	phase     atomic.Int32
	sent      atomic.Int64
	cancelled atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	// written once before the terminal phase is stored
	err       error
	recording robotstate.Recording
}

func newSession(id uint64, tr *motion.Trajectory, simulated bool, started time.Time) *Session {
	return &Session{
		id:         id,
		trajectory: tr,
		simulated:  simulated,
		started:    started,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// ID returns the session number, increasing per Executor.
func (s *Session) ID() uint64 { return s.id }

// Trajectory returns the trajectory being executed.
func (s *Session) Trajectory() *motion.Trajectory { return s.trajectory }

// Simulated reports whether the session runs without a transport.
func (s *Session) Simulated() bool { return s.simulated }

// Started returns the session start time on the executor clock.
func (s *Session) Started() time.Time { return s.started }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Sent returns how many points have been transmitted or simulated.
func (s *Session) Sent() int { return int(s.sent.Load()) }

// Total returns the number of points in the trajectory.
func (s *Session) Total() int { return s.trajectory.Len() }

// Progress returns Sent/Total in [0, 1].
func (s *Session) Progress() float64 {
	if n := s.Total(); n > 0 {
		return float64(s.Sent()) / float64(n)
	}
	return 1
}

// Cancel requests a cooperative stop. The session observes it at its next
// batch, sample or wait; frames already written are not revoked.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })
}

// Cancelled reports whether Cancel was called.
func (s *Session) Cancelled() bool { return s.cancelled.Load() }

// Done is closed when the session reaches Done or Aborted.
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait blocks until the session finishes. It returns nil when every point
// was executed, ErrAborted on cancellation, or the transport error.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Recording returns the positions recorded during the session. It is empty
// until the session finishes.
func (s *Session) Recording() robotstate.Recording {
	if !s.Phase().Finished() {
		return robotstate.Recording{}
	}
	return s.recording
}

// Err returns the session result once it is finished, and nil before.
func (s *Session) Err() error {
	if !s.Phase().Finished() {
		return nil
	}
	return s.err
}

func (s *Session) setPhase(p Phase) {
	s.phase.Store(int32(p))
}
