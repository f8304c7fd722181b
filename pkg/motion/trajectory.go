// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// ContinuityTolerance is the largest joint-space jump (rad, Euclidean)
// accepted between the end of one segment and the start of the next.
const ContinuityTolerance = 0.1

// Trajectory is a stitched joint trajectory with its derivatives. All slices
// have the same length and T is strictly increasing.
type Trajectory struct {
	Q1    []float64 `json:"q1"`
	Q2    []float64 `json:"q2"`
	PenUp []bool    `json:"pen_up"`
	DQ1   []float64 `json:"dq1"`
	DQ2   []float64 `json:"dq2"`
	DDQ1  []float64 `json:"ddq1"`
	DDQ2  []float64 `json:"ddq2"`
	T     []float64 `json:"t"`
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int {
	return len(tr.T)
}

// Duration returns the time of the last sample.
func (tr *Trajectory) Duration() float64 {
	if len(tr.T) == 0 {
		return 0
	}
	return tr.T[len(tr.T)-1]
}

// Pose returns the joint pose of sample i.
func (tr *Trajectory) Pose(i int) kinematics.JointPose {
	return kinematics.JointPose{Q1: tr.Q1[i], Q2: tr.Q2[i]}
}

// Final returns the pose of the last sample.
func (tr *Trajectory) Final() kinematics.JointPose {
	return tr.Pose(tr.Len() - 1)
}

// Check verifies the structural invariants.
func (tr *Trajectory) Check() error {
	n := len(tr.T)
	if n < 2 {
		return fmt.Errorf("trajectory needs at least 2 samples, got %d", n)
	}
	for name, l := range map[string]int{
		"q1": len(tr.Q1), "q2": len(tr.Q2), "pen_up": len(tr.PenUp),
		"dq1": len(tr.DQ1), "dq2": len(tr.DQ2), "ddq1": len(tr.DDQ1), "ddq2": len(tr.DDQ2),
	} {
		if l != n {
			return fmt.Errorf("trajectory %s has %d samples, want %d", name, l, n)
		}
	}
	for i := 1; i < n; i++ {
		if !(tr.T[i] > tr.T[i-1]) {
			return fmt.Errorf("trajectory time not increasing at sample %d", i)
		}
	}
	return nil
}

// Stitch slices every patch in order and joins the segments into one
// trajectory, then derives velocities and accelerations.
//
// Each patch is seeded with the final pose of the previous one (seed for the
// first). A segment whose first sample is farther than tolerance from the
// previous end fails with a DiscontinuityError. The first sample of every
// segment after the first is dropped and times are offset so T keeps
// increasing across joins.
func Stitch(patches []PathPatch, params SliceParams, seed kinematics.JointPose, tolerance float64) (*Trajectory, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("no patches to stitch")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	tr := &Trajectory{}
	prevEnd := seed
	for idx, patch := range patches {
		seg, err := Slice(patch, params, prevEnd)
		if err != nil {
			if se, ok := err.(*SliceError); ok {
				se.PatchIndex = idx
			}
			return nil, err
		}

		dist := floats.Distance([]float64{seg.Q1[0], seg.Q2[0]}, []float64{prevEnd.Q1, prevEnd.Q2}, 2)
		if dist > tolerance {
			return nil, &DiscontinuityError{Distance: dist, SegmentIndex: idx}
		}

		from, offset := 0, 0.0
		if idx > 0 {
			from, offset = 1, tr.Duration()
		}
		tr.Q1 = append(tr.Q1, seg.Q1[from:]...)
		tr.Q2 = append(tr.Q2, seg.Q2[from:]...)
		tr.PenUp = append(tr.PenUp, seg.PenUp[from:]...)
		for _, t := range seg.T[from:] {
			tr.T = append(tr.T, t+offset)
		}

		prevEnd = seg.Last()
	}

	tr.Differentiate()
	return tr, nil
}

// Join appends b to a. The first sample of b must be within tolerance of the
// last sample of a and is dropped; b's times are offset to follow a.
// Derivatives are recomputed across the join.
func Join(a, b *Trajectory, tolerance float64) (*Trajectory, error) {
	if a.Len() == 0 || b.Len() == 0 {
		return nil, fmt.Errorf("join: empty trajectory")
	}
	if dist := a.Final().Distance(b.Pose(0)); dist > tolerance {
		return nil, &DiscontinuityError{Distance: dist, SegmentIndex: 1}
	}

	offset := a.Duration() - b.T[0]
	out := &Trajectory{
		Q1:    append(append([]float64(nil), a.Q1...), b.Q1[1:]...),
		Q2:    append(append([]float64(nil), a.Q2...), b.Q2[1:]...),
		PenUp: append(append([]bool(nil), a.PenUp...), b.PenUp[1:]...),
		T:     append([]float64(nil), a.T...),
	}
	for _, t := range b.T[1:] {
		out.T = append(out.T, t+offset)
	}
	out.Differentiate()
	return out, nil
}

// Differentiate recomputes DQ and DDQ from Q and T.
func (tr *Trajectory) Differentiate() {
	tr.DQ1 = Derivative(tr.Q1, tr.T)
	tr.DQ2 = Derivative(tr.Q2, tr.T)
	tr.DDQ1 = Derivative(tr.DQ1, tr.T)
	tr.DDQ2 = Derivative(tr.DQ2, tr.T)
}

// Derivative returns the finite-difference derivative of x over t: central
// differences inside, one-sided at both ends. Spacing may be non-uniform.
func Derivative(x, t []float64) []float64 {
	n := len(x)
	d := make([]float64, n)
	if n < 2 {
		return d
	}
	d[0] = (x[1] - x[0]) / (t[1] - t[0])
	d[n-1] = (x[n-1] - x[n-2]) / (t[n-1] - t[n-2])
	for i := 1; i < n-1; i++ {
		d[i] = (x[i+1] - x[i-1]) / (t[i+1] - t[i-1])
	}
	return d
}

// ScaleTime returns a copy whose time axis is stretched by factor and whose
// derivatives are re-derived. Velocities shrink by 1/factor and
// accelerations by 1/factor².
func (tr *Trajectory) ScaleTime(factor float64) *Trajectory {
	out := &Trajectory{
		Q1:    append([]float64(nil), tr.Q1...),
		Q2:    append([]float64(nil), tr.Q2...),
		PenUp: append([]bool(nil), tr.PenUp...),
		T:     make([]float64, len(tr.T)),
	}
	for i, t := range tr.T {
		out.T[i] = t * factor
	}
	out.Differentiate()
	return out
}

// MaxAbsVelocity returns the largest absolute joint velocity.
func (tr *Trajectory) MaxAbsVelocity() float64 {
	return math.Max(maxAbs(tr.DQ1), maxAbs(tr.DQ2))
}

// MaxAbsAcceleration returns the largest absolute joint acceleration.
func (tr *Trajectory) MaxAbsAcceleration() float64 {
	return math.Max(maxAbs(tr.DDQ1), maxAbs(tr.DDQ2))
}

func maxAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Max(floats.Max(x), -floats.Min(x))
}
