// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package kinematics implements forward and inverse kinematics for the
// two-link planar arm driven by quill.
//
// Angles are in radians, lengths in meters. q1 is the shoulder angle measured
// from the +X axis, q2 is the elbow angle measured relative to the first link.
package kinematics

import (
	"fmt"
	"math"
)

// reachEpsilon absorbs rounding at the inner and outer workspace boundaries.
const reachEpsilon = 1e-12

// JointPose is a robot configuration in radians.
type JointPose struct {
	Q1 float64 `json:"q1"`
	Q2 float64 `json:"q2"`
}

// CartesianPoint is a planar position in meters.
type CartesianPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LinkSizes holds the two link lengths in meters.
type LinkSizes struct {
	L1 float64 `json:"l1"`
	L2 float64 `json:"l2"`
}

// JointLimits bounds both joints. Bounds are inclusive.
type JointLimits struct {
	Q1Min float64 `json:"q1_min"`
	Q1Max float64 `json:"q1_max"`
	Q2Min float64 `json:"q2_min"`
	Q2Max float64 `json:"q2_max"`
}

// Radius returns the distance of the point from the shoulder axis.
func (p CartesianPoint) Radius() float64 {
	return math.Hypot(p.X, p.Y)
}

// Sub returns p - o.
func (p CartesianPoint) Sub(o CartesianPoint) CartesianPoint {
	return CartesianPoint{X: p.X - o.X, Y: p.Y - o.Y}
}

// Distance returns the Euclidean distance between two points.
func (p CartesianPoint) Distance(o CartesianPoint) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

func (p CartesianPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.X, p.Y)
}

func (q JointPose) String() string {
	return fmt.Sprintf("[%.4f, %.4f]", q.Q1, q.Q2)
}

// Distance returns the Euclidean distance between two poses in joint space.
func (q JointPose) Distance(o JointPose) float64 {
	return math.Hypot(q.Q1-o.Q1, q.Q2-o.Q2)
}

// Validate checks that both links have a positive length.
func (s LinkSizes) Validate() error {
	if !(s.L1 > 0) || !(s.L2 > 0) {
		return fmt.Errorf("link lengths must be positive: l1=%g l2=%g", s.L1, s.L2)
	}
	return nil
}

// MinReach is the inner workspace radius |l1-l2|.
func (s LinkSizes) MinReach() float64 {
	return math.Abs(s.L1 - s.L2)
}

// MaxReach is the outer workspace radius l1+l2.
func (s LinkSizes) MaxReach() float64 {
	return s.L1 + s.L2
}

// Validate checks that each joint range is non-empty.
func (l JointLimits) Validate() error {
	if l.Q1Min > l.Q1Max {
		return fmt.Errorf("q1 limits inverted: min=%g max=%g", l.Q1Min, l.Q1Max)
	}
	if l.Q2Min > l.Q2Max {
		return fmt.Errorf("q2 limits inverted: min=%g max=%g", l.Q2Min, l.Q2Max)
	}
	return nil
}

// Contains reports whether q lies within the limits.
func (l JointLimits) Contains(q JointPose) bool {
	return q.Q1 >= l.Q1Min && q.Q1 <= l.Q1Max && q.Q2 >= l.Q2Min && q.Q2 <= l.Q2Max
}

// Forward returns the end effector position for pose q.
func Forward(q JointPose, sizes LinkSizes) CartesianPoint {
	return CartesianPoint{
		X: sizes.L1*math.Cos(q.Q1) + sizes.L2*math.Cos(q.Q1+q.Q2),
		Y: sizes.L1*math.Sin(q.Q1) + sizes.L2*math.Sin(q.Q1+q.Q2),
	}
}

// Reachable reports whether p lies inside the annular workspace, ignoring joint limits.
func Reachable(p CartesianPoint, sizes LinkSizes) bool {
	_, _, ok := branches(p, sizes)
	return ok
}

// Inverse solves the inverse kinematics for p.
//
// The default branch has a positive elbow angle. When limits are given and the
// default branch violates them, the mirrored branch is tried. The boolean is
// false when the point is outside the workspace or neither branch fits.
func Inverse(p CartesianPoint, sizes LinkSizes, limits *JointLimits) (JointPose, bool) {
	up, down, ok := branches(p, sizes)
	if !ok {
		return JointPose{}, false
	}
	if limits == nil || limits.Contains(up) {
		return up, true
	}
	if limits.Contains(down) {
		return down, true
	}
	return JointPose{}, false
}

// InverseNearest solves the inverse kinematics for p, choosing the branch and
// the 2π representation of q1 closest to seed. It is used while sampling a
// continuous path so consecutive solutions never flip the elbow.
func InverseNearest(p CartesianPoint, sizes LinkSizes, limits *JointLimits, seed JointPose) (JointPose, bool) {
	up, down, ok := branches(p, sizes)
	if !ok {
		return JointPose{}, false
	}

	best := JointPose{}
	found := false
	bestDist := math.Inf(1)
	for _, cand := range []JointPose{up, down} {
		for _, c := range []JointPose{{Q1: unwrapNear(cand.Q1, seed.Q1), Q2: cand.Q2}, cand} {
			if limits != nil && !limits.Contains(c) {
				continue
			}
			if d := c.Distance(seed); d < bestDist {
				best, bestDist, found = c, d, true
			}
		}
	}
	return best, found
}

// branches returns the elbow-positive and elbow-negative solutions.
func branches(p CartesianPoint, sizes LinkSizes) (JointPose, JointPose, bool) {
	l1, l2 := sizes.L1, sizes.L2
	r2 := p.X*p.X + p.Y*p.Y
	c2 := (r2 - l1*l1 - l2*l2) / (2 * l1 * l2)
	if math.IsNaN(c2) || c2 > 1+reachEpsilon || c2 < -1-reachEpsilon {
		return JointPose{}, JointPose{}, false
	}
	c2 = math.Max(-1, math.Min(1, c2))
	s2 := math.Sqrt(1 - c2*c2)

	base := math.Atan2(p.Y, p.X)
	q2 := math.Atan2(s2, c2)
	up := JointPose{
		Q1: base - math.Atan2(l2*s2, l1+l2*c2),
		Q2: q2,
	}
	down := JointPose{
		Q1: base - math.Atan2(-l2*s2, l1+l2*c2),
		Q2: -q2,
	}
	return up, down, true
}

// unwrapNear shifts angle by multiples of 2π to land closest to ref.
func unwrapNear(angle, ref float64) float64 {
	return angle + 2*math.Pi*math.Round((ref-angle)/(2*math.Pi))
}
