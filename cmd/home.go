// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var homeWait time.Duration

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Return the arm to the zero pose",
	Long: `Send the homing command to the firmware. Without firmware, a pen-up
cycloidal return from the last known pose is simulated.`,
	RunE: runHome,
}

func init() {
	rootCmd.AddCommand(homeCmd)
	homeCmd.Flags().DurationVar(&homeWait, "wait", 2*time.Second, "Wait for the firmware acknowledgement")
}

func runHome(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := openController(ctx, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("Quill - Homing\n")
	fmt.Printf("Connection: %s\n\n", connectionInfo(ctrl))

	before := ctrl.Statistics().Snapshot()
	res := ctrl.Homing()
	printResult(res)
	if !res.OK {
		return errors.New(res.Reason)
	}

	if res.Session != nil {
		return waitSession(ctx, res.Session, false, ctrl.Stop)
	}

	deadline := time.After(homeWait)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := ctrl.Statistics().Snapshot()
			if now.Acks > before.Acks {
				fmt.Println("Firmware acknowledged homing")
				return nil
			}
			if now.Nacks > before.Nacks {
				return errors.New("firmware refused homing")
			}
		case <-deadline:
			fmt.Println("No acknowledgement received")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
