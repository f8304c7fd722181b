// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"
	"math"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

// PatchKind identifies a drawing primitive.
type PatchKind string

// Patch kinds
const (
	PatchLine PatchKind = "line"
	PatchArc  PatchKind = "arc"
)

// ArcDirection selects which way an arc sweeps from start to end.
type ArcDirection string

// Arc directions
const (
	ArcShortest         ArcDirection = ""
	ArcCounterClockwise ArcDirection = "ccw"
	ArcClockwise        ArcDirection = "cw"
)

// PathPatch is one drawing primitive.
//
// A line has Points = [start, end]. An arc has Points = [start, center, end];
// its radius is the distance from center to start and the end point only
// fixes the final angle. An arc whose end coincides with its start is a full
// circle, counter-clockwise unless Direction says otherwise. With no
// Direction a partial arc takes the shorter way round.
type PathPatch struct {
	Kind      PatchKind                   `json:"type"`
	Points    []kinematics.CartesianPoint `json:"points"`
	PenUp     bool                        `json:"penup"`
	Direction ArcDirection                `json:"direction,omitempty"`
}

// Line builds a line patch.
func Line(from, to kinematics.CartesianPoint, penUp bool) PathPatch {
	return PathPatch{Kind: PatchLine, Points: []kinematics.CartesianPoint{from, to}, PenUp: penUp}
}

// Arc builds an arc patch around center, from startAngle to endAngle (radians).
func Arc(center kinematics.CartesianPoint, radius, startAngle, endAngle float64, dir ArcDirection, penUp bool) PathPatch {
	start := kinematics.CartesianPoint{X: center.X + radius*math.Cos(startAngle), Y: center.Y + radius*math.Sin(startAngle)}
	end := kinematics.CartesianPoint{X: center.X + radius*math.Cos(endAngle), Y: center.Y + radius*math.Sin(endAngle)}
	return PathPatch{
		Kind:      PatchArc,
		Points:    []kinematics.CartesianPoint{start, center, end},
		PenUp:     penUp,
		Direction: dir,
	}
}

// Validate checks the patch has the control points its kind requires.
func (p PathPatch) Validate() error {
	switch p.Kind {
	case PatchLine:
		if len(p.Points) != 2 {
			return fmt.Errorf("line patch needs 2 points, got %d", len(p.Points))
		}
	case PatchArc:
		if len(p.Points) != 3 {
			return fmt.Errorf("arc patch needs 3 points (start, center, end), got %d", len(p.Points))
		}
		if p.Points[0].Distance(p.Points[1]) == 0 {
			return fmt.Errorf("arc patch has zero radius")
		}
		switch p.Direction {
		case ArcShortest, ArcClockwise, ArcCounterClockwise:
		default:
			return fmt.Errorf("unknown arc direction %q", p.Direction)
		}
	default:
		return fmt.Errorf("unknown patch kind %q", p.Kind)
	}
	return nil
}

// Start returns the first point of the patch.
func (p PathPatch) Start() kinematics.CartesianPoint {
	return p.Points[0]
}

// End returns the point reached at the end of the patch.
func (p PathPatch) End() kinematics.CartesianPoint {
	if p.Kind == PatchArc {
		return p.At(1)
	}
	return p.Points[len(p.Points)-1]
}

// Length returns the Cartesian path length in meters.
func (p PathPatch) Length() float64 {
	if p.Kind == PatchArc {
		r, _, sweep := p.arcGeometry()
		return r * math.Abs(sweep)
	}
	return p.Points[0].Distance(p.Points[1])
}

// At evaluates the patch at normalized progress s in [0, 1]: arc length for a
// line, angular sweep for an arc.
func (p PathPatch) At(s float64) kinematics.CartesianPoint {
	if p.Kind == PatchArc {
		r, theta0, sweep := p.arcGeometry()
		c := p.Points[1]
		theta := theta0 + s*sweep
		return kinematics.CartesianPoint{X: c.X + r*math.Cos(theta), Y: c.Y + r*math.Sin(theta)}
	}
	a, b := p.Points[0], p.Points[1]
	return kinematics.CartesianPoint{X: a.X + s*(b.X-a.X), Y: a.Y + s*(b.Y-a.Y)}
}

// arcGeometry returns radius, start angle and signed sweep.
func (p PathPatch) arcGeometry() (float64, float64, float64) {
	start, c, end := p.Points[0], p.Points[1], p.Points[2]
	r := start.Distance(c)
	theta0 := math.Atan2(start.Y-c.Y, start.X-c.X)
	theta1 := math.Atan2(end.Y-c.Y, end.X-c.X)

	sweep := theta1 - theta0
	if end.Distance(start) < 1e-12 {
		sweep = 2 * math.Pi
		if p.Direction == ArcClockwise {
			sweep = -sweep
		}
		return r, theta0, sweep
	}
	switch p.Direction {
	case ArcClockwise:
		for sweep >= 0 {
			sweep -= 2 * math.Pi
		}
	case ArcCounterClockwise:
		for sweep <= 0 {
			sweep += 2 * math.Pi
		}
	default:
		// Shortest way round.
		for sweep > math.Pi {
			sweep -= 2 * math.Pi
		}
		for sweep <= -math.Pi {
			sweep += 2 * math.Pi
		}
	}
	return r, theta0, sweep
}
