// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var poseJSON bool

var poseCmd = &cobra.Command{
	Use:   "pose",
	Short: "Print the current end effector position",
	Long: `Query the firmware for its joint angles and print them together with the
Cartesian position of the pen. Without firmware the last known pose is used.`,
	RunE: runPose,
}

func init() {
	rootCmd.AddCommand(poseCmd)
	poseCmd.Flags().BoolVar(&poseJSON, "json", false, "Print JSON")
}

func runPose(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := openController(ctx, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	p, snap, err := ctrl.CurrentPose(ctx)
	if err != nil {
		return err
	}

	if poseJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"x": p.X, "y": p.Y, "state": snap})
	}

	fmt.Printf("Connection: %s\n", connectionInfo(ctrl))
	fmt.Printf("Joints:   q0=%.5f rad  q1=%.5f rad\n", snap.Q0, snap.Q1)
	fmt.Printf("Position: x=%.4f m  y=%.4f m\n", p.X, p.Y)
	source := string(snap.Source)
	if source == "" {
		source = "unknown"
	}
	fmt.Printf("Source:   %s\n", source)
	return nil
}
