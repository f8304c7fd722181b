// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// SliceErrorKind classifies slicing failures.
type SliceErrorKind int

const (
	// SliceUnreachable means inverse kinematics found no valid branch.
	SliceUnreachable SliceErrorKind = iota
	// SliceInvalidPatch means the patch geometry is malformed.
	SliceInvalidPatch
)

func (k SliceErrorKind) String() string {
	switch k {
	case SliceUnreachable:
		return "unreachable"
	case SliceInvalidPatch:
		return "invalid patch"
	default:
		return "unknown"
	}
}

// SliceError reports why a patch could not be sampled.
type SliceError struct {
	Kind        SliceErrorKind
	PatchIndex  int
	SampleIndex int
	Point       kinematics.CartesianPoint
	Err         error
}

func (e *SliceError) Error() string {
	if e.Kind == SliceUnreachable {
		return fmt.Sprintf("patch %d: point %v unreachable at sample %d", e.PatchIndex, e.Point, e.SampleIndex)
	}
	return fmt.Sprintf("patch %d: %s: %v", e.PatchIndex, e.Kind, e.Err)
}

func (e *SliceError) Unwrap() error {
	return e.Err
}

// DiscontinuityError reports a joint-space jump between adjacent segments.
type DiscontinuityError struct {
	Distance     float64
	SegmentIndex int
}

func (e *DiscontinuityError) Error() string {
	return fmt.Sprintf("stitching jump detected at segment %d: %.4f rad", e.SegmentIndex, e.Distance)
}

// SafetyViolation reports a trajectory that exceeds the dynamic limits under
// the reject policy.
type SafetyViolation struct {
	MaxVel float64
	MaxAcc float64
	VelLim float64
	AccLim float64
}

func (e *SafetyViolation) Error() string {
	return fmt.Sprintf("trajectory unsafe: max vel %.2f rad/s (limit %.2f), max acc %.2f rad/s^2 (limit %.2f)",
		e.MaxVel, e.VelLim, e.MaxAcc, e.AccLim)
}
