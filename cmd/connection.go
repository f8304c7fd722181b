// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/controller"
	"github.com/Thermoquad/quill/pkg/metrics"
	"github.com/Thermoquad/quill/pkg/transport"
)

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newDialer() *transport.Dialer {
	return transport.NewDialer(cfg.Serial, logger.Named("transport"))
}

// OpenConnection finds the firmware and returns the raw link.
func OpenConnection(ctx context.Context) (transport.Connection, string, error) {
	return newDialer().Connect(ctx)
}

// openController creates a controller and attaches the firmware when one
// answers. Without firmware the controller runs in simulation.
func openController(ctx context.Context, onPacket func(*armlink.Packet)) (*controller.Controller, error) {
	ctrl, err := controller.New(controller.Options{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics.New(),
		OnPacket: onPacket,
	})
	if err != nil {
		return nil, err
	}
	if err := ctrl.Connect(ctx, newDialer()); err != nil && !errors.Is(err, transport.ErrOffline) {
		ctrl.Close()
		return nil, err
	}
	return ctrl, nil
}

func connectionInfo(ctrl *controller.Controller) string {
	if info := ctrl.LinkInfo(); info != "" {
		return info
	}
	return "none (simulation)"
}

func printResult(res controller.Result) {
	if !res.OK {
		fmt.Printf("FAILED: %s\n", res.Reason)
		return
	}
	if res.Reason != "" {
		fmt.Printf("OK: %s\n", res.Reason)
	}
	if res.Points > 0 {
		fmt.Printf("Points: %d  Duration: %.2f s  Max vel: %.3f rad/s  Max acc: %.3f rad/s²",
			res.Points, res.Duration, res.MaxVel, res.MaxAcc)
		if res.Scale > 1 {
			fmt.Printf("  (slowed down x%.2f)", res.Scale)
		}
		fmt.Println()
	}
}
