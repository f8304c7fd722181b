// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package motion turns drawing patches into time-sampled joint trajectories
// and checks them against the arm's dynamic limits.
package motion

import (
	"fmt"
	"math"
)

// timeEpsilon guards sampling against floating point drift at the final sample.
const timeEpsilon = 1e-9

// Cycloidal is a rest-to-rest cycloidal (sinusoidal acceleration) motion law
// between two scalar endpoints.
type Cycloidal struct {
	Start    float64
	End      float64
	Duration float64
}

// NewCycloidal returns the minimum-time cycloidal profile from start to end
// whose peak acceleration equals maxAcc.
func NewCycloidal(start, end, maxAcc float64) (Cycloidal, error) {
	if !(maxAcc > 0) {
		return Cycloidal{}, fmt.Errorf("max acceleration must be positive, got %g", maxAcc)
	}
	return Cycloidal{
		Start:    start,
		End:      end,
		Duration: CycloidalDuration(end-start, maxAcc),
	}, nil
}

// NewCycloidalWithDuration returns a cycloidal profile with a fixed duration.
func NewCycloidalWithDuration(start, end, duration float64) (Cycloidal, error) {
	if duration < 0 || math.IsNaN(duration) {
		return Cycloidal{}, fmt.Errorf("duration must not be negative, got %g", duration)
	}
	return Cycloidal{Start: start, End: end, Duration: duration}, nil
}

// CycloidalDuration returns the time needed to travel distance with a peak
// acceleration of maxAcc. The peak of the cycloidal law is 2π·h/tf².
func CycloidalDuration(distance, maxAcc float64) float64 {
	return math.Sqrt(2 * math.Pi * math.Abs(distance) / maxAcc)
}

// QuantizeDuration rounds duration up to a whole number of control periods,
// never less than one, so the samples land on the tc grid.
func QuantizeDuration(duration, tc float64) float64 {
	n := math.Ceil(duration/tc - timeEpsilon)
	if n < 1 {
		n = 1
	}
	return n * tc
}

// Position evaluates the profile at time t. Times outside [0, Duration] are clamped.
func (c Cycloidal) Position(t float64) float64 {
	if c.Duration <= 0 {
		return c.End
	}
	tau := c.clamp(t) / c.Duration
	return c.Start + (c.End-c.Start)*(tau-math.Sin(2*math.Pi*tau)/(2*math.Pi))
}

// Velocity evaluates the first derivative at time t.
func (c Cycloidal) Velocity(t float64) float64 {
	if c.Duration <= 0 || t < 0 || t > c.Duration {
		return 0
	}
	tau := t / c.Duration
	return (c.End - c.Start) / c.Duration * (1 - math.Cos(2*math.Pi*tau))
}

// Acceleration evaluates the second derivative at time t.
func (c Cycloidal) Acceleration(t float64) float64 {
	if c.Duration <= 0 || t < 0 || t > c.Duration {
		return 0
	}
	tau := t / c.Duration
	return 2 * math.Pi * (c.End - c.Start) / (c.Duration * c.Duration) * math.Sin(2*math.Pi*tau)
}

// PeakAcceleration returns the largest absolute acceleration of the profile.
func (c Cycloidal) PeakAcceleration() float64 {
	if c.Duration <= 0 {
		return 0
	}
	return 2 * math.Pi * math.Abs(c.End-c.Start) / (c.Duration * c.Duration)
}

// Times samples the profile duration with period tc.
func (c Cycloidal) Times(tc float64) []float64 {
	return SampleTimes(c.Duration, tc)
}

func (c Cycloidal) clamp(t float64) float64 {
	return math.Max(0, math.Min(c.Duration, t))
}

// SampleTimes returns {0, tc, 2·tc, ...} ending exactly at duration. The last
// gap may be shorter than tc. At least two samples are always returned; a
// zero duration yields {0, tc}.
func SampleTimes(duration, tc float64) []float64 {
	if duration <= timeEpsilon {
		return []float64{0, tc}
	}
	n := int(math.Ceil(duration/tc - timeEpsilon))
	times := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		times = append(times, float64(i)*tc)
	}
	return append(times, duration)
}
