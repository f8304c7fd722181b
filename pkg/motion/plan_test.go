// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"errors"
	"math"
	"testing"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

func TestJoin(t *testing.T) {
	a, err := JointMove(kinematics.JointPose{}, kinematics.JointPose{Q1: 0.2, Q2: 0.3}, 0.01, 0.35)
	if err != nil {
		t.Fatalf("JointMove: %v", err)
	}
	b, err := JointMove(kinematics.JointPose{Q1: 0.2, Q2: 0.3}, kinematics.JointPose{Q1: 0.1, Q2: 0.5}, 0.01, 0.35)
	if err != nil {
		t.Fatalf("JointMove: %v", err)
	}

	out, err := Join(a, b, ContinuityTolerance)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := out.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got, want := out.Len(), a.Len()+b.Len()-1; got != want {
		t.Errorf("Len() = %d, want %d", got, want)
	}
	if got, want := out.Duration(), a.Duration()+b.Duration(); math.Abs(got-want) > 1e-9 {
		t.Errorf("Duration() = %g, want %g", got, want)
	}
	if out.Final() != b.Final() {
		t.Errorf("Final() = %v, want %v", out.Final(), b.Final())
	}
	if a.Len() != len(a.DQ1) {
		t.Error("Join modified its input")
	}
}

func TestJoin_Discontinuity(t *testing.T) {
	a, _ := JointMove(kinematics.JointPose{}, kinematics.JointPose{Q1: 0.2}, 0.01, 0.35)
	b, _ := JointMove(kinematics.JointPose{Q1: 1}, kinematics.JointPose{Q1: 1.2}, 0.01, 0.35)

	_, err := Join(a, b, ContinuityTolerance)
	var de *DiscontinuityError
	if !errors.As(err, &de) {
		t.Fatalf("error = %v, want *DiscontinuityError", err)
	}
}

func TestPlan_TransitThenDrawing(t *testing.T) {
	patches := twoLines()
	from := mustInverse(t, pt(0.22, 0.05))

	tr, err := Plan(from, patches, testParams, ContinuityTolerance)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if err := tr.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if tr.Pose(0) != from {
		t.Errorf("first pose = %v, want %v", tr.Pose(0), from)
	}
	if !tr.PenUp[0] || !tr.PenUp[1] {
		t.Error("transit is not pen-up")
	}
	if tr.PenUp[tr.Len()-1] {
		t.Error("drawing ended pen-up")
	}
	if got := kinematics.Forward(tr.Final(), testParams.Sizes); got.Distance(pt(0.15, 0.15)) > 1e-9 {
		t.Errorf("final point %v", got)
	}
	for i := 1; i < tr.Len(); i++ {
		if gap := tr.T[i] - tr.T[i-1]; math.Abs(gap-testParams.Tc) > 1e-9 {
			t.Fatalf("gap %d = %g, want %g", i, gap, testParams.Tc)
		}
	}
}

func TestPlan_NoTransitWhenAtStart(t *testing.T) {
	patches := twoLines()
	from := mustInverse(t, patches[0].Start())

	planned, err := Plan(from, patches, testParams, ContinuityTolerance)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	stitched, err := Stitch(patches, testParams, from, ContinuityTolerance)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	if planned.Len() != stitched.Len() {
		t.Errorf("Len() = %d, want %d", planned.Len(), stitched.Len())
	}
}

func TestPlan_UnreachableStart(t *testing.T) {
	patches := []PathPatch{Line(pt(0.5, 0), pt(0.5, 0.1), false)}
	_, err := Plan(kinematics.JointPose{}, patches, testParams, ContinuityTolerance)
	var se *SliceError
	if !errors.As(err, &se) || se.Kind != SliceUnreachable {
		t.Fatalf("error = %v, want unreachable *SliceError", err)
	}
}

func TestPlanner_Stretches(t *testing.T) {
	patches := twoLines()
	from := mustInverse(t, pt(0.22, 0.05))
	build := Planner(from, patches, testParams, ContinuityTolerance)

	base, err := build(1)
	if err != nil {
		t.Fatalf("build(1): %v", err)
	}
	slow, err := build(2)
	if err != nil {
		t.Fatalf("build(2): %v", err)
	}
	if slow.Duration() < 1.8*base.Duration() {
		t.Errorf("stretched duration %g, base %g", slow.Duration(), base.Duration())
	}
}
