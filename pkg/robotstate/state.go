// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package robotstate holds the process-wide view of the arm: the last known
// firmware state, the session recording buffer and snapshot subscribers.
//
// Every update of one observation happens under a single lock, so readers
// never see a half-updated (q0, q1, pen) triple.
package robotstate

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// Source tells where the current position came from.
type Source string

// Position sources
const (
	SourceNone      Source = ""
	SourceCommanded Source = "commanded"
	SourceFeedback  Source = "feedback"
)

// FirmwareState is a consistent snapshot of the arm.
type FirmwareState struct {
	Q0          float64   `json:"q0"`
	Q1          float64   `json:"q1"`
	PenUp       bool      `json:"pen_up"`
	BufferLevel uint8     `json:"buffer_level"`
	LastUpdate  time.Time `json:"last_update"`
	Source      Source    `json:"source"`
	Connected   bool      `json:"connected"`
}

// Pose returns the joint pose of the snapshot.
func (f FirmwareState) Pose() kinematics.JointPose {
	return kinematics.JointPose{Q1: f.Q0, Q2: f.Q1}
}

// Recording holds the positions observed during one session. T is seconds
// since the recording started.
type Recording struct {
	Q0 []float64 `json:"q0" cbor:"q0"`
	Q1 []float64 `json:"q1" cbor:"q1"`
	T  []float64 `json:"t" cbor:"t"`
}

// Len returns the number of samples.
func (r Recording) Len() int {
	return len(r.T)
}

func (r Recording) clone() Recording {
	return Recording{
		Q0: append([]float64(nil), r.Q0...),
		Q1: append([]float64(nil), r.Q1...),
		T:  append([]float64(nil), r.T...),
	}
}

// State is the shared robot state. The zero value is not usable; call New.
type State struct {
	clock clock.Clock

	mu        sync.RWMutex
	fw        FirmwareState
	recording bool
	recStart  time.Time
	rec       Recording

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan FirmwareState
}

// New creates a state at the zero pose, pen up. A nil clock uses the wall clock.
func New(clk clock.Clock) *State {
	if clk == nil {
		clk = clock.New()
	}
	return &State{
		clock: clk,
		fw:    FirmwareState{PenUp: true},
		subs:  make(map[int]chan FirmwareState),
	}
}

// Snapshot returns a consistent copy of the firmware state.
func (s *State) Snapshot() FirmwareState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fw
}

// SetConnected records whether a live transport is attached.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fw.Connected = connected
}

// SetCommanded stores a commanded (not yet confirmed) position.
func (s *State) SetCommanded(q kinematics.JointPose, penUp bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPoseLocked(q.Q1, q.Q2, penUp, SourceCommanded)
}

// RecordCommanded stores a commanded position and appends it to the active
// recording. The simulator uses it in place of firmware feedback.
func (s *State) RecordCommanded(q kinematics.JointPose, penUp bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPoseLocked(q.Q1, q.Q2, penUp, SourceCommanded)
	s.recordLocked(q.Q1, q.Q2)
}

// SetFeedbackPosition stores a position reported by the firmware and appends
// it to the active recording. The pen state is left as commanded.
func (s *State) SetFeedbackPosition(q0, q1 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setPoseLocked(q0, q1, s.fw.PenUp, SourceFeedback)
	s.recordLocked(q0, q1)
}

// SetBufferLevel stores the firmware's reported buffer fill.
func (s *State) SetBufferLevel(level uint8) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fw.BufferLevel = level
	s.fw.LastUpdate = s.clock.Now()
}

func (s *State) setPoseLocked(q0, q1 float64, penUp bool, src Source) {
	s.fw.Q0 = q0
	s.fw.Q1 = q1
	s.fw.PenUp = penUp
	s.fw.Source = src
	s.fw.LastUpdate = s.clock.Now()
}

func (s *State) recordLocked(q0, q1 float64) {
	if !s.recording {
		return
	}
	s.rec.Q0 = append(s.rec.Q0, q0)
	s.rec.Q1 = append(s.rec.Q1, q1)
	s.rec.T = append(s.rec.T, s.clock.Since(s.recStart).Seconds())
}

// BeginRecording clears the recording buffer and starts recording.
func (s *State) BeginRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = true
	s.recStart = s.clock.Now()
	s.rec = Recording{}
}

// EndRecording stops recording and returns what was recorded. The buffer is
// kept for later reads through LastRecording.
func (s *State) EndRecording() Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording = false
	return s.rec.clone()
}

// Recording reports whether a recording is active.
func (s *State) Recording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

// LastRecording returns a copy of the current or most recent recording.
func (s *State) LastRecording() Recording {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.clone()
}
