// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package controller is the command surface of quill. It owns the robot
// state, the executor, and, when a link is attached, the feedback monitor.
//
// Every command returns a Result; failures are reported in the Result and
// never stop the process.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/executor"
	"github.com/Thermoquad/quill/pkg/kinematics"
	"github.com/Thermoquad/quill/pkg/metrics"
	"github.com/Thermoquad/quill/pkg/monitor"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
	"github.com/Thermoquad/quill/pkg/transport"
)

// Result is the outcome of a command.
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`

	Points    int     `json:"points,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Scale     float64 `json:"scale,omitempty"`
	MaxVel    float64 `json:"max_vel,omitempty"`
	MaxAcc    float64 `json:"max_acc,omitempty"`
	Simulated bool    `json:"simulated"`

	Session    *executor.Session  `json:"-"`
	Trajectory *motion.Trajectory `json:"-"`
}

func failure(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Options configures a Controller.
type Options struct {
	Config     config.Config
	State      *robotstate.State
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
	Statistics *armlink.Statistics

	// OnPacket is passed to the monitor of every attached link.
	OnPacket func(*armlink.Packet)
}

// Controller coordinates planning, execution and the link.
type Controller struct {
	cfg    config.Config
	state  *robotstate.State
	clock  clock.Clock
	logger *zap.Logger
	m      *metrics.Metrics
	stats  *armlink.Statistics
	exec   *executor.Executor

	onPacket func(*armlink.Packet)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	conn transport.Connection
	mon  *monitor.Monitor
	info string
	last *motion.Trajectory
}

// New creates a Controller with no link attached and starts the snapshot
// publisher.
func New(opts Options) (*Controller, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.State == nil {
		opts.State = robotstate.New(opts.Clock)
	}
	if opts.Statistics == nil {
		opts.Statistics = armlink.NewStatistics()
	}

	exec, err := executor.New(executor.Options{
		Stream:     opts.Config.Stream,
		Tc:         opts.Config.Motion.Tc,
		State:      opts.State,
		Clock:      opts.Clock,
		Logger:     opts.Logger.Named("executor"),
		Metrics:    opts.Metrics,
		Statistics: opts.Statistics,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:      opts.Config,
		state:    opts.State,
		clock:    opts.Clock,
		logger:   opts.Logger,
		m:        opts.Metrics,
		stats:    opts.Statistics,
		exec:     exec,
		onPacket: opts.OnPacket,
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		monitor.Publish(ctx, c.state, c.cfg.Stream.PublishInterval(), c.clock)
	}()
	return c, nil
}

// Config returns the base configuration.
func (c *Controller) Config() config.Config { return c.cfg }

// State returns the shared robot state.
func (c *Controller) State() *robotstate.State { return c.state }

// Executor returns the executor.
func (c *Controller) Executor() *executor.Executor { return c.exec }

// Statistics returns the link statistics.
func (c *Controller) Statistics() *armlink.Statistics { return c.stats }

// Metrics returns the metrics, possibly nil.
func (c *Controller) Metrics() *metrics.Metrics { return c.m }

// Connect dials the firmware and attaches the link. transport.ErrOffline
// leaves the controller in simulation mode.
func (c *Controller) Connect(ctx context.Context, d *transport.Dialer) error {
	conn, info, err := d.Connect(ctx)
	if err != nil {
		if errors.Is(err, transport.ErrOffline) {
			c.logger.Warn("no firmware found, running in simulation mode")
		}
		return err
	}
	return c.Attach(conn, info)
}

// Attach starts monitoring conn and routes execution to it. A previously
// attached link is closed first.
func (c *Controller) Attach(conn transport.Connection, info string) error {
	mon, err := monitor.New(monitor.Options{
		Stream:     c.cfg.Stream,
		State:      c.state,
		Statistics: c.stats,
		Clock:      c.clock,
		Logger:     c.logger.Named("monitor"),
		Metrics:    c.m,
		OnPacket:   c.onPacket,
	})
	if err != nil {
		return err
	}

	prevErr := c.Detach()

	c.mu.Lock()
	c.conn, c.mon, c.info = conn, mon, info
	c.mu.Unlock()
	c.state.SetConnected(true)
	c.m.SetConnected(true)
	c.logger.Info("link attached", zap.String("link", info))

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := mon.Run(c.ctx, conn)
		if c.ctx.Err() == nil {
			c.logger.Warn("link lost", zap.Error(err))
		}
		c.release(conn)
	}()
	return prevErr
}

// Detach closes the attached link, if any. Running sessions lose their
// writer on the next write and abort.
func (c *Controller) Detach() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return c.release(conn)
}

// release drops conn if it is still the attached link.
func (c *Controller) release(conn transport.Connection) error {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return nil
	}
	c.conn, c.mon, c.info = nil, nil, ""
	c.mu.Unlock()

	c.state.SetConnected(false)
	c.m.SetConnected(false)
	return conn.Close()
}

// Connected reports whether a link is attached.
func (c *Controller) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// LinkInfo describes the attached link, or is empty.
func (c *Controller) LinkInfo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Controller) link() (transport.Connection, *monitor.Monitor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn, c.mon
}

// LastTrajectory returns the trajectory of the most recent accepted command.
func (c *Controller) LastTrajectory() *motion.Trajectory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Close stops the running session, the monitor and the publisher, and
// closes the link.
func (c *Controller) Close() error {
	c.exec.Cancel()
	err := c.Detach()
	c.cancel()
	c.wg.Wait()
	return err
}

// CartesianPose converts a joint pose with the configured link sizes.
func (c *Controller) CartesianPose(q kinematics.JointPose) kinematics.CartesianPoint {
	return kinematics.Forward(q, c.cfg.Robot.Sizes)
}
