// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/Thermoquad/quill/pkg/kinematics"
)

func pt(x, y float64) kinematics.CartesianPoint {
	return kinematics.CartesianPoint{X: x, Y: y}
}

func TestLine_At(t *testing.T) {
	l := Line(pt(0.1, 0.1), pt(0.2, 0.3), false)
	if err := l.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := l.At(0.5); got.Distance(pt(0.15, 0.2)) > 1e-12 {
		t.Errorf("At(0.5) = %v", got)
	}
	if got := l.End(); got != pt(0.2, 0.3) {
		t.Errorf("End() = %v", got)
	}
	if got, want := l.Length(), math.Hypot(0.1, 0.2); math.Abs(got-want) > 1e-12 {
		t.Errorf("Length() = %g, want %g", got, want)
	}
}

func TestArc_Sweep(t *testing.T) {
	c := pt(0.2, 0)
	const r = 0.05

	tests := []struct {
		name       string
		start, end float64
		dir        ArcDirection
		wantSweep  float64
	}{
		{"quarter ccw", 0, math.Pi / 2, ArcCounterClockwise, math.Pi / 2},
		{"quarter the long way", 0, math.Pi / 2, ArcClockwise, -3 * math.Pi / 2},
		{"shortest picks clockwise", 0, 3 * math.Pi / 2, ArcShortest, -math.Pi / 2},
		{"full circle", 0, 0, ArcCounterClockwise, 2 * math.Pi},
		{"full circle clockwise", 1, 1, ArcClockwise, -2 * math.Pi},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Arc(c, r, tt.start, tt.end, tt.dir, false)
			if err := a.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if got, want := a.Length(), r*math.Abs(tt.wantSweep); math.Abs(got-want) > 1e-9 {
				t.Errorf("Length() = %g, want %g", got, want)
			}
			mid := tt.start + tt.wantSweep/2
			want := pt(c.X+r*math.Cos(mid), c.Y+r*math.Sin(mid))
			if got := a.At(0.5); got.Distance(want) > 1e-9 {
				t.Errorf("At(0.5) = %v, want %v", got, want)
			}
			if got := a.At(0); got.Distance(a.Start()) > 1e-12 {
				t.Errorf("At(0) = %v, want %v", got, a.Start())
			}
			if got := a.End(); got.Distance(a.Points[2]) > 1e-9 {
				t.Errorf("End() = %v, want %v", got, a.Points[2])
			}
		})
	}
}

func TestPathPatch_ValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		patch PathPatch
	}{
		{"line with one point", PathPatch{Kind: PatchLine, Points: []kinematics.CartesianPoint{pt(0, 0)}}},
		{"arc with two points", PathPatch{Kind: PatchArc, Points: []kinematics.CartesianPoint{pt(0, 0), pt(1, 0)}}},
		{"arc with zero radius", PathPatch{Kind: PatchArc, Points: []kinematics.CartesianPoint{pt(1, 0), pt(1, 0), pt(1, 0)}}},
		{"arc with bad direction", PathPatch{Kind: PatchArc, Points: []kinematics.CartesianPoint{pt(1, 0), pt(0, 0), pt(0, 1)}, Direction: "sideways"}},
		{"unknown kind", PathPatch{Kind: "spline", Points: []kinematics.CartesianPoint{pt(0, 0), pt(1, 0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.patch.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPathPatch_JSON(t *testing.T) {
	data := []byte(`[
		{"type": "line", "points": [{"x": 0.1, "y": 0.2}, {"x": 0.2, "y": 0.2}], "penup": true},
		{"type": "arc", "points": [{"x": 0.2, "y": 0.2}, {"x": 0.2, "y": 0.15}, {"x": 0.2, "y": 0.2}], "penup": false, "direction": "cw"}
	]`)

	var patches []PathPatch
	if err := json.Unmarshal(data, &patches); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("got %d patches, want 2", len(patches))
	}
	if patches[0].Kind != PatchLine || !patches[0].PenUp {
		t.Errorf("patch 0 = %+v", patches[0])
	}
	if patches[1].Kind != PatchArc || patches[1].Direction != ArcClockwise {
		t.Errorf("patch 1 = %+v", patches[1])
	}
	for i, p := range patches {
		if err := p.Validate(); err != nil {
			t.Errorf("patch %d: %v", i, err)
		}
	}
}
