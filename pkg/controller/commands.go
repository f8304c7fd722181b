// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package controller

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/kinematics"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

// Plan builds and validates the trajectory for patches from the last known
// pose, without executing it. Call CurrentPose first to plan from a fresh
// firmware reading.
func (c *Controller) Plan(patches []motion.PathPatch, override config.Override) (*motion.Trajectory, motion.ValidationResult, error) {
	cfg := c.cfg.Apply(override)
	if err := cfg.Validate(); err != nil {
		return nil, motion.ValidationResult{}, err
	}
	if len(patches) == 0 {
		return nil, motion.ValidationResult{}, errors.New("no patches")
	}

	from := c.state.Snapshot().Pose()
	build := motion.Planner(from, patches, cfg.SliceParams(), cfg.Motion.ContinuityTolerance)
	return motion.Enforce(build, cfg.DynamicLimits(), cfg.Motion.Safety)
}

// StartTrajectory plans patches and starts executing them. Any running
// session is cancelled and joined first, then with a link attached the pose
// is refreshed from the firmware so the plan starts where the arm is. It
// returns once the new session has started.
func (c *Controller) StartTrajectory(ctx context.Context, patches []motion.PathPatch, override config.Override) Result {
	if c.exec.Cancel() {
		c.logger.Debug("running session replaced")
	}
	if conn, _ := c.link(); conn != nil {
		_, snap, err := c.CurrentPose(ctx)
		if err != nil {
			c.logger.Warn("start pose unavailable", zap.Error(err))
			return failure("read start pose: %v", err)
		}
		c.logger.Debug("start pose", zap.Float64("q1", snap.Q0), zap.Float64("q2", snap.Q1), zap.String("source", string(snap.Source)))
	}

	tr, res, err := c.Plan(patches, override)
	if err != nil {
		c.logger.Warn("trajectory rejected", zap.Error(err))
		return failure("%v", err)
	}
	c.logger.Info("trajectory planned",
		zap.Int("patches", len(patches)),
		zap.Int("points", tr.Len()),
		zap.Float64("duration", tr.Duration()),
		zap.Float64("max_vel", res.MaxVel),
		zap.Float64("max_acc", res.MaxAcc),
		zap.Float64("scale", res.Scale),
	)
	if res.Scale > 1 {
		c.m.IncRescale()
	}

	out := c.execute(tr)
	out.Scale, out.MaxVel, out.MaxAcc = res.Scale, res.MaxVel, res.MaxAcc
	return out
}

// Execute runs an already planned trajectory.
func (c *Controller) Execute(tr *motion.Trajectory) Result {
	return c.execute(tr)
}

func (c *Controller) execute(tr *motion.Trajectory) Result {
	// A nil *Connection must reach the executor as a nil io.Writer.
	var w io.Writer
	if conn, _ := c.link(); conn != nil {
		w = conn
	}

	s, err := c.exec.Start(c.ctx, tr, w)
	if err != nil {
		return failure("%v", err)
	}

	c.mu.Lock()
	c.last = tr
	c.mu.Unlock()

	return Result{
		OK:         true,
		Points:     tr.Len(),
		Duration:   tr.Duration(),
		Scale:      1,
		Simulated:  s.Simulated(),
		Session:    s,
		Trajectory: tr,
	}
}

// Stop cancels the running session. With halt and a link attached, a STOP
// frame is also sent so the firmware drops its buffered points.
func (c *Controller) Stop(halt bool) Result {
	cancelled := c.exec.Cancel()

	halted := false
	if conn, _ := c.link(); halt && conn != nil {
		if _, err := conn.Write(armlink.EncodeStop()); err != nil {
			return failure("send stop: %v", err)
		}
		c.stats.AddSent(1)
		c.m.AddFramesSent(1)
		halted = true
	}

	switch {
	case cancelled && halted:
		return Result{OK: true, Reason: "session aborted and firmware halted"}
	case cancelled:
		return Result{OK: true, Reason: "session aborted"}
	case halted:
		return Result{OK: true, Reason: "firmware halted"}
	}
	return Result{OK: true, Reason: "nothing running"}
}

// CurrentPose returns the end effector position. With a link attached it
// queries the firmware and waits for the answer; otherwise, or when the
// answer does not arrive in time, it returns the last known state.
func (c *Controller) CurrentPose(ctx context.Context) (kinematics.CartesianPoint, robotstate.FirmwareState, error) {
	conn, mon := c.link()
	if conn != nil && mon != nil {
		updated := mon.PositionUpdated()
		if _, err := conn.Write(armlink.EncodePositionQuery()); err != nil {
			return kinematics.CartesianPoint{}, c.state.Snapshot(), fmt.Errorf("send position query: %w", err)
		}
		c.stats.AddSent(1)
		c.m.AddFramesSent(1)

		timer := c.clock.Timer(c.cfg.Stream.QueryTimeout)
		select {
		case <-updated:
		case <-timer.C:
			c.logger.Debug("position query timed out, using last known pose")
		case <-ctx.Done():
			timer.Stop()
			return kinematics.CartesianPoint{}, c.state.Snapshot(), ctx.Err()
		}
		timer.Stop()
	}

	snap := c.state.Snapshot()
	return c.CartesianPose(snap.Pose()), snap, nil
}

// Homing returns the arm to the zero pose. With a link the firmware runs its
// own homing routine; offline a cycloidal return trajectory is simulated.
func (c *Controller) Homing() Result {
	c.exec.Cancel()

	if conn, _ := c.link(); conn != nil {
		if _, err := conn.Write(armlink.EncodeHoming()); err != nil {
			return failure("send homing: %v", err)
		}
		c.stats.AddSent(1)
		c.m.AddFramesSent(1)
		c.state.SetCommanded(kinematics.JointPose{}, true)
		c.logger.Info("homing command sent")
		return Result{OK: true, Reason: "homing command sent"}
	}

	tr, err := motion.HomingTrajectory(c.state.Snapshot().Pose(), c.cfg.Motion.Tc, c.cfg.Motion.MaxAcc)
	if err != nil {
		return failure("homing: %v", err)
	}
	c.logger.Info("simulating homing", zap.Int("points", tr.Len()), zap.Float64("duration", tr.Duration()))
	return c.execute(tr)
}
