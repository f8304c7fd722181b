// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package motion

import (
	"fmt"
	"math"
)

// maxRescalePasses bounds the rebuild and re-validate loop in Enforce.
const maxRescalePasses = 4

// SafetyPolicy selects what Enforce does with an over-limit trajectory.
type SafetyPolicy string

// Safety policies
const (
	PolicyRescale SafetyPolicy = "rescale"
	PolicyReject  SafetyPolicy = "reject"
)

// ParseSafetyPolicy parses a policy name.
func ParseSafetyPolicy(s string) (SafetyPolicy, error) {
	switch SafetyPolicy(s) {
	case PolicyRescale, PolicyReject:
		return SafetyPolicy(s), nil
	case "":
		return PolicyRescale, nil
	}
	return "", fmt.Errorf("unknown safety policy %q (want rescale or reject)", s)
}

// DynamicLimits are the joint velocity and acceleration bounds. MaxAcc
// already includes any tolerance factor.
type DynamicLimits struct {
	MaxVel float64
	MaxAcc float64
}

// ValidationResult is the outcome of Validate. When OK is false, Scale is the
// time-stretch factor (> 1) that brings the trajectory within limits.
type ValidationResult struct {
	OK     bool
	Scale  float64
	MaxVel float64
	MaxAcc float64
}

func (r ValidationResult) String() string {
	if r.OK {
		return fmt.Sprintf("ok (max vel %.3f rad/s, max acc %.3f rad/s^2)", r.MaxVel, r.MaxAcc)
	}
	return fmt.Sprintf("scale by %.3f (max vel %.3f rad/s, max acc %.3f rad/s^2)", r.Scale, r.MaxVel, r.MaxAcc)
}

// Validate checks the trajectory's derivatives against limits. It never
// modifies the trajectory.
//
// Stretching time by s divides velocity by s and acceleration by s², so the
// reported scale is max(maxVel/vLim, sqrt(maxAcc/aLim)).
func Validate(tr *Trajectory, limits DynamicLimits) ValidationResult {
	res := ValidationResult{
		OK:     true,
		Scale:  1,
		MaxVel: tr.MaxAbsVelocity(),
		MaxAcc: tr.MaxAbsAcceleration(),
	}

	scaleV, scaleA := 1.0, 1.0
	if res.MaxVel > limits.MaxVel {
		scaleV = res.MaxVel / limits.MaxVel
	}
	if res.MaxAcc > limits.MaxAcc {
		scaleA = math.Sqrt(res.MaxAcc / limits.MaxAcc)
	}
	if scaleV > 1 || scaleA > 1 {
		res.OK = false
		res.Scale = math.Max(scaleV, scaleA)
	}
	return res
}

// Rebuild regenerates a trajectory with every duration stretched by factor.
// Rebuild(1) is the unscaled trajectory.
type Rebuild func(factor float64) (*Trajectory, error)

// Enforce builds the trajectory and applies policy to it.
//
// Under PolicyReject an over-limit trajectory fails with *SafetyViolation.
// Under PolicyRescale the trajectory is rebuilt stretched by the reported
// scale and validated again. Rebuilding keeps samples on the control period
// grid, which a plain ScaleTime would not. The returned result describes the
// trajectory actually returned, with Scale the total stretch applied.
func Enforce(build Rebuild, limits DynamicLimits, policy SafetyPolicy) (*Trajectory, ValidationResult, error) {
	tr, err := build(1)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	res := Validate(tr, limits)
	if res.OK || policy == PolicyReject {
		if !res.OK {
			return nil, res, violation(res, limits)
		}
		return tr, res, nil
	}

	total := 1.0
	for pass := 0; pass < maxRescalePasses; pass++ {
		total *= res.Scale
		tr, err = build(total)
		if err != nil {
			return nil, res, fmt.Errorf("rebuild with scale %.3f: %w", total, err)
		}
		res = Validate(tr, limits)
		if res.OK {
			res.Scale = total
			return tr, res, nil
		}
	}
	return nil, res, violation(res, limits)
}

func violation(res ValidationResult, limits DynamicLimits) *SafetyViolation {
	return &SafetyViolation{
		MaxVel: res.MaxVel,
		MaxAcc: res.MaxAcc,
		VelLim: limits.MaxVel,
		AccLim: limits.MaxAcc,
	}
}
