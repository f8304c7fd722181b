// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"
	"math"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// scanSteps is the resolution of the IK pre-scan used to size a patch's duration.
const scanSteps = 64

// SliceParams are the inputs shared by every patch of one trajectory.
type SliceParams struct {
	Tc     float64 // control period, seconds
	MaxAcc float64 // rad/s^2
	Sizes  kinematics.LinkSizes
	Limits *kinematics.JointLimits
}

// Validate checks the parameters are usable.
func (p SliceParams) Validate() error {
	if !(p.Tc > 0) {
		return fmt.Errorf("control period must be positive, got %g", p.Tc)
	}
	if !(p.MaxAcc > 0) {
		return fmt.Errorf("max acceleration must be positive, got %g", p.MaxAcc)
	}
	if err := p.Sizes.Validate(); err != nil {
		return err
	}
	if p.Limits != nil {
		return p.Limits.Validate()
	}
	return nil
}

// Stretched returns params whose acceleration bound makes every cycloidal
// duration factor times longer.
func (p SliceParams) Stretched(factor float64) SliceParams {
	p.MaxAcc /= factor * factor
	return p
}

// SampledSegment is the joint-space sampling of one patch. All slices have
// the same length (at least 2) and T starts at 0.
type SampledSegment struct {
	Q1    []float64
	Q2    []float64
	PenUp []bool
	T     []float64
}

// Len returns the number of samples.
func (s SampledSegment) Len() int {
	return len(s.T)
}

// First returns the pose of the first sample.
func (s SampledSegment) First() kinematics.JointPose {
	return kinematics.JointPose{Q1: s.Q1[0], Q2: s.Q2[0]}
}

// Last returns the pose of the last sample.
func (s SampledSegment) Last() kinematics.JointPose {
	n := len(s.Q1) - 1
	return kinematics.JointPose{Q1: s.Q1[n], Q2: s.Q2[n]}
}

// Slice samples one patch into joint space.
//
// Progress along the patch follows a cycloidal law whose duration is the
// minimum time for the patch's largest joint excursion under MaxAcc, rounded
// up to whole control periods. Each
// sample is solved with the branch closest to the previous one, starting
// from initial.
func Slice(patch PathPatch, params SliceParams, initial kinematics.JointPose) (SampledSegment, error) {
	if err := patch.Validate(); err != nil {
		return SampledSegment{}, &SliceError{Kind: SliceInvalidPatch, Err: err}
	}

	excursion, err := jointExcursion(patch, params, initial)
	if err != nil {
		return SampledSegment{}, err
	}

	duration := QuantizeDuration(CycloidalDuration(excursion, params.MaxAcc), params.Tc)
	profile, err := NewCycloidalWithDuration(0, 1, duration)
	if err != nil {
		return SampledSegment{}, &SliceError{Kind: SliceInvalidPatch, Err: err}
	}
	times := profile.Times(params.Tc)

	seg := SampledSegment{
		Q1:    make([]float64, len(times)),
		Q2:    make([]float64, len(times)),
		PenUp: make([]bool, len(times)),
		T:     times,
	}

	prev := initial
	for i, t := range times {
		p := patch.At(profile.Position(t))
		q, ok := kinematics.InverseNearest(p, params.Sizes, params.Limits, prev)
		if !ok {
			return SampledSegment{}, &SliceError{Kind: SliceUnreachable, SampleIndex: i, Point: p}
		}
		seg.Q1[i], seg.Q2[i] = q.Q1, q.Q2
		seg.PenUp[i] = patch.PenUp
		prev = q
	}

	return seg, nil
}

// jointExcursion accumulates |Δq| per joint along the patch and returns the
// larger of the two totals.
func jointExcursion(patch PathPatch, params SliceParams, initial kinematics.JointPose) (float64, error) {
	prev := initial
	var d1, d2 float64
	for i := 0; i <= scanSteps; i++ {
		p := patch.At(float64(i) / scanSteps)
		q, ok := kinematics.InverseNearest(p, params.Sizes, params.Limits, prev)
		if !ok {
			return 0, &SliceError{Kind: SliceUnreachable, SampleIndex: i, Point: p}
		}
		if i > 0 {
			d1 += math.Abs(q.Q1 - prev.Q1)
			d2 += math.Abs(q.Q2 - prev.Q2)
		}
		prev = q
	}
	return math.Max(d1, d2), nil
}
