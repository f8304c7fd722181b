// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"errors"
	"math"
	"testing"
)

func stitchedFixture(t *testing.T) *Trajectory {
	t.Helper()
	patches := twoLines()
	tr, err := Stitch(patches, testParams, mustInverse(t, patches[0].Start()), ContinuityTolerance)
	if err != nil {
		t.Fatalf("Stitch: %v", err)
	}
	return tr
}

func TestValidate_Scale(t *testing.T) {
	tr := stitchedFixture(t)
	maxV, maxA := tr.MaxAbsVelocity(), tr.MaxAbsAcceleration()

	tests := []struct {
		name      string
		limits    DynamicLimits
		wantOK    bool
		wantScale float64
	}{
		{"within limits", DynamicLimits{MaxVel: 10, MaxAcc: 100}, true, 1},
		{"velocity bound", DynamicLimits{MaxVel: maxV / 2, MaxAcc: 100}, false, 2},
		{"acceleration bound", DynamicLimits{MaxVel: 10, MaxAcc: maxA / 4}, false, 2},
		{"both, acceleration dominates", DynamicLimits{MaxVel: maxV / 1.5, MaxAcc: maxA / 9}, false, 3},
		{"both, velocity dominates", DynamicLimits{MaxVel: maxV / 5, MaxAcc: maxA / 4}, false, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(tr, tt.limits)
			if res.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v (%v)", res.OK, tt.wantOK, res)
			}
			if math.Abs(res.Scale-tt.wantScale) > 1e-9 {
				t.Errorf("Scale = %g, want %g", res.Scale, tt.wantScale)
			}
			if res.MaxVel != maxV || res.MaxAcc != maxA {
				t.Errorf("reported max vel/acc %g/%g, want %g/%g", res.MaxVel, res.MaxAcc, maxV, maxA)
			}
		})
	}
}

func TestValidate_ScaleLawAfterScaleTime(t *testing.T) {
	tr := stitchedFixture(t)
	limits := DynamicLimits{MaxVel: tr.MaxAbsVelocity() / 1.2, MaxAcc: tr.MaxAbsAcceleration() / 2}

	res := Validate(tr, limits)
	if res.OK {
		t.Fatal("expected over-limit result")
	}

	after := Validate(tr.ScaleTime(res.Scale), limits)
	if math.Abs(after.MaxVel-res.MaxVel/res.Scale) > 1e-9*res.MaxVel {
		t.Errorf("max vel after scaling %g, want %g", after.MaxVel, res.MaxVel/res.Scale)
	}
	if want := res.MaxAcc / (res.Scale * res.Scale); math.Abs(after.MaxAcc-want) > 1e-9*want {
		t.Errorf("max acc after scaling %g, want %g", after.MaxAcc, want)
	}
	if after.MaxAcc > limits.MaxAcc*(1+1e-9) || after.MaxVel > limits.MaxVel*(1+1e-9) {
		t.Errorf("scaled trajectory still over limits: %v", after)
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	tr := stitchedFixture(t)
	before := append([]float64(nil), tr.T...)
	Validate(tr, DynamicLimits{MaxVel: 1e-6, MaxAcc: 1e-6})
	for i := range before {
		if tr.T[i] != before[i] {
			t.Fatalf("T[%d] changed", i)
		}
	}
}

func TestEnforce_Reject(t *testing.T) {
	tr := stitchedFixture(t)
	limits := DynamicLimits{MaxVel: 10, MaxAcc: tr.MaxAbsAcceleration() / 2}
	build := func(float64) (*Trajectory, error) { return tr, nil }

	out, res, err := Enforce(build, limits, PolicyReject)
	var sv *SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("error = %v, want *SafetyViolation", err)
	}
	if out != nil {
		t.Error("rejected trajectory returned")
	}
	if res.OK || sv.AccLim != limits.MaxAcc {
		t.Errorf("result = %v, violation = %+v", res, sv)
	}
}

func TestEnforce_Rescale(t *testing.T) {
	patches := twoLines()
	seed := mustInverse(t, patches[0].Start())
	base := stitchedFixture(t)
	limits := DynamicLimits{MaxVel: 10, MaxAcc: base.MaxAbsAcceleration() / 3}

	var factors []float64
	build := func(f float64) (*Trajectory, error) {
		factors = append(factors, f)
		return Stitch(patches, testParams.Stretched(f), seed, ContinuityTolerance)
	}

	tr, res, err := Enforce(build, limits, PolicyRescale)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if !res.OK {
		t.Fatalf("result not OK: %v", res)
	}
	if res.Scale <= 1 {
		t.Errorf("Scale = %g, want > 1", res.Scale)
	}
	if factors[0] != 1 || len(factors) < 2 {
		t.Errorf("build factors = %v", factors)
	}
	if got := tr.MaxAbsAcceleration(); got > limits.MaxAcc {
		t.Errorf("max acc %g over limit %g", got, limits.MaxAcc)
	}
	if tr.Duration() <= base.Duration() {
		t.Errorf("duration %g not stretched beyond %g", tr.Duration(), base.Duration())
	}
	for i := 1; i < tr.Len(); i++ {
		if gap := tr.T[i] - tr.T[i-1]; math.Abs(gap-testParams.Tc) > 1e-9 {
			t.Fatalf("gap %d = %g, want %g", i, gap, testParams.Tc)
		}
	}
}

func TestEnforce_WithinLimitsReturnsBuild(t *testing.T) {
	tr := stitchedFixture(t)
	build := func(float64) (*Trajectory, error) { return tr, nil }

	out, res, err := Enforce(build, DynamicLimits{MaxVel: 100, MaxAcc: 100}, PolicyReject)
	if err != nil {
		t.Fatalf("Enforce: %v", err)
	}
	if out != tr || !res.OK || res.Scale != 1 {
		t.Errorf("out=%p res=%v", out, res)
	}
}

func TestEnforce_BuildError(t *testing.T) {
	boom := errors.New("boom")
	build := func(float64) (*Trajectory, error) { return nil, boom }
	if _, _, err := Enforce(build, DynamicLimits{MaxVel: 1, MaxAcc: 1}, PolicyRescale); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestParseSafetyPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    SafetyPolicy
		wantErr bool
	}{
		{"rescale", PolicyRescale, false},
		{"reject", PolicyReject, false},
		{"", PolicyRescale, false},
		{"ignore", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSafetyPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSafetyPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
