// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds the typed configuration of quill and its documented
// defaults.
package config

import (
	"fmt"
	"time"

	"github.com/Thermoquad/quill/pkg/kinematics"
	"github.com/Thermoquad/quill/pkg/motion"
)

// DefaultCandidates are tried in order when no serial port is configured and
// port enumeration finds nothing that answers.
var DefaultCandidates = []string{"/dev/ttyACM0", "/dev/ttyACM1", "/dev/ttyUSB0", "COM3", "COM4"}

// Config is the complete configuration.
type Config struct {
	Serial Serial
	Robot  Robot
	Motion Motion
	Stream Stream
	Feed   Feed
	Log    Log
}

// Serial configures the link to the firmware.
type Serial struct {
	Port       string   // empty: auto-discover
	Candidates []string // fallback list for auto-discovery
	URL        string   // WebSocket bridge URL, used instead of Port when set
	Baud       int

	Username    string // HTTP Basic auth user for the bridge
	Password    string // bridge password; prompted for when empty
	NoSSLVerify bool

	ResetPulse       time.Duration // DTR low time
	RebootWait       time.Duration // wait after DTR reset before talking
	HandshakeTimeout time.Duration // wait for any response to a position query
	ReadTimeout      time.Duration
}

// Robot is the arm geometry.
type Robot struct {
	Sizes  kinematics.LinkSizes
	Limits *kinematics.JointLimits
}

// Motion configures trajectory generation and validation.
type Motion struct {
	Tc                  float64 // control period, s
	MaxAcc              float64 // rad/s², bound used to time the profiles
	MaxSpeed            float64 // rad/s, validator velocity limit
	AccToleranceFactor  float64 // validator acceleration limit = MaxAcc × factor
	ContinuityTolerance float64 // rad, largest allowed jump between segments
	Safety              motion.SafetyPolicy
}

// Stream configures the executor and monitor.
type Stream struct {
	BufferCapacity int           // firmware ring buffer size, points
	Margin         int           // points kept free in the ring buffer
	BatchSize      int           // points per streaming wake
	Period         time.Duration // streaming wake period
	DrainMargin    time.Duration // extra wait after the last point
	PollInterval   time.Duration // monitor idle poll
	PublishRate    float64       // Hz, snapshot push rate
	QueryTimeout   time.Duration // wait for a position answer
}

// Feed configures the presentation-layer server.
type Feed struct {
	Addr string
}

// Log configures logging.
type Log struct {
	Level  string
	Format string
	File   string
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Serial: Serial{
			Candidates:       append([]string(nil), DefaultCandidates...),
			Baud:             115200,
			ResetPulse:       100 * time.Millisecond,
			RebootWait:       2 * time.Second,
			HandshakeTimeout: 500 * time.Millisecond,
			ReadTimeout:      5 * time.Millisecond,
		},
		Robot: Robot{
			Sizes: kinematics.LinkSizes{L1: 0.170, L2: 0.158},
		},
		Motion: Motion{
			Tc:                  0.01,
			MaxAcc:              0.35,
			MaxSpeed:            10.0,
			AccToleranceFactor:  2.0,
			ContinuityTolerance: motion.ContinuityTolerance,
			Safety:              motion.PolicyRescale,
		},
		Stream: Stream{
			BufferCapacity: 50,
			Margin:         5,
			BatchSize:      5,
			Period:         40 * time.Millisecond,
			DrainMargin:    500 * time.Millisecond,
			PollInterval:   5 * time.Millisecond,
			PublishRate:    20,
			QueryTimeout:   100 * time.Millisecond,
		},
		Feed: Feed{
			Addr: "localhost:6969",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if err := c.Robot.Sizes.Validate(); err != nil {
		return fmt.Errorf("robot: %w", err)
	}
	if c.Robot.Limits != nil {
		if err := c.Robot.Limits.Validate(); err != nil {
			return fmt.Errorf("robot: %w", err)
		}
	}
	m := c.Motion
	if !(m.Tc > 0) || !(m.MaxAcc > 0) || !(m.MaxSpeed > 0) || !(m.AccToleranceFactor > 0) || !(m.ContinuityTolerance > 0) {
		return fmt.Errorf("motion: Tc, max acc, max speed, tolerance factor and continuity tolerance must be positive")
	}
	if _, err := motion.ParseSafetyPolicy(string(m.Safety)); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	s := c.Stream
	if s.BufferCapacity <= 0 || s.BatchSize <= 0 {
		return fmt.Errorf("stream: buffer capacity and batch size must be positive")
	}
	if s.Margin < 0 || s.Margin >= s.BufferCapacity {
		return fmt.Errorf("stream: margin %d must be in [0, %d)", s.Margin, s.BufferCapacity)
	}
	if s.Period <= 0 || s.PollInterval <= 0 || !(s.PublishRate > 0) {
		return fmt.Errorf("stream: period, poll interval and publish rate must be positive")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial: baud must be positive, got %d", c.Serial.Baud)
	}
	return nil
}

// PreRoll returns how many points fill the firmware buffer before streaming.
func (s Stream) PreRoll() int {
	return s.BufferCapacity - s.Margin
}

// PublishInterval returns the snapshot push period.
func (s Stream) PublishInterval() time.Duration {
	return time.Duration(float64(time.Second) / s.PublishRate)
}

// DynamicLimits returns the validator limits, tolerance included.
func (c Config) DynamicLimits() motion.DynamicLimits {
	return motion.DynamicLimits{
		MaxVel: c.Motion.MaxSpeed,
		MaxAcc: c.Motion.MaxAcc * c.Motion.AccToleranceFactor,
	}
}

// SliceParams returns the slicer inputs for this configuration.
func (c Config) SliceParams() motion.SliceParams {
	return motion.SliceParams{
		Tc:     c.Motion.Tc,
		MaxAcc: c.Motion.MaxAcc,
		Sizes:  c.Robot.Sizes,
		Limits: c.Robot.Limits,
	}
}

// Override is a per-request partial update. Nil fields keep the current value.
type Override struct {
	Sizes  *kinematics.LinkSizes   `json:"sizes,omitempty"`
	Limits *kinematics.JointLimits `json:"limits,omitempty"`
	Safety *motion.SafetyPolicy    `json:"safety,omitempty"`
}

// Apply returns a copy of c with the override's fields replaced.
func (c Config) Apply(o Override) Config {
	if o.Sizes != nil {
		c.Robot.Sizes = *o.Sizes
	}
	if o.Limits != nil {
		limits := *o.Limits
		c.Robot.Limits = &limits
	}
	if o.Safety != nil {
		c.Motion.Safety = *o.Safety
	}
	return c
}
