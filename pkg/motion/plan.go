// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// transitEpsilon is the joint distance below which no transit move is added.
const transitEpsilon = 1e-9

// Plan builds the full trajectory for drawing patches from the current pose:
// a pen-up joint-space transit to the first patch start, followed by the
// stitched patches. The transit is timed with the same acceleration bound,
// so Plan stretched by s (params.Stretched) stretches the whole drawing.
func Plan(from kinematics.JointPose, patches []PathPatch, params SliceParams, tolerance float64) (*Trajectory, error) {
	if len(patches) == 0 {
		return nil, fmt.Errorf("no patches to plan")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := patches[0].Validate(); err != nil {
		return nil, &SliceError{Kind: SliceInvalidPatch, Err: err}
	}

	start := patches[0].Start()
	target, ok := kinematics.InverseNearest(start, params.Sizes, params.Limits, from)
	if !ok {
		return nil, &SliceError{Kind: SliceUnreachable, Point: start}
	}

	drawing, err := Stitch(patches, params, target, tolerance)
	if err != nil {
		return nil, err
	}
	if from.Distance(target) < transitEpsilon {
		return drawing, nil
	}

	transit, err := JointMove(from, target, params.Tc, params.MaxAcc)
	if err != nil {
		return nil, err
	}
	return Join(transit, drawing, tolerance)
}

// Planner returns the Rebuild used by Enforce for Plan.
func Planner(from kinematics.JointPose, patches []PathPatch, params SliceParams, tolerance float64) Rebuild {
	return func(factor float64) (*Trajectory, error) {
		return Plan(from, patches, params.Stretched(factor), tolerance)
	}
}
