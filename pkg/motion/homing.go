// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"
	"math"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// HomingTrajectory synthesizes a pen-up cycloidal move from the current pose
// to the zero pose. Both joints share the duration of the slower one so they
// arrive together.
func HomingTrajectory(from kinematics.JointPose, tc, maxAcc float64) (*Trajectory, error) {
	return JointMove(from, kinematics.JointPose{}, tc, maxAcc)
}

// JointMove builds a synchronized pen-up joint-space move between two poses.
func JointMove(from, to kinematics.JointPose, tc, maxAcc float64) (*Trajectory, error) {
	if !(tc > 0) {
		return nil, fmt.Errorf("control period must be positive, got %g", tc)
	}
	if !(maxAcc > 0) {
		return nil, fmt.Errorf("max acceleration must be positive, got %g", maxAcc)
	}

	tf := QuantizeDuration(math.Max(
		CycloidalDuration(to.Q1-from.Q1, maxAcc),
		CycloidalDuration(to.Q2-from.Q2, maxAcc),
	), tc)
	j1, _ := NewCycloidalWithDuration(from.Q1, to.Q1, tf)
	j2, _ := NewCycloidalWithDuration(from.Q2, to.Q2, tf)

	times := SampleTimes(tf, tc)
	tr := &Trajectory{
		Q1:    make([]float64, len(times)),
		Q2:    make([]float64, len(times)),
		PenUp: make([]bool, len(times)),
		T:     times,
	}
	for i, t := range times {
		tr.Q1[i] = j1.Position(t)
		tr.Q2[i] = j2.Position(t)
		tr.PenUp[i] = true
	}
	tr.Differentiate()
	return tr, nil
}
