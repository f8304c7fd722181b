// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/controller"
	"github.com/Thermoquad/quill/pkg/executor"
	"github.com/Thermoquad/quill/pkg/recording"
)

var (
	drawDryRun   bool
	drawRecord   string
	drawNoHalt   bool
	drawProgress time.Duration
)

var drawCmd = &cobra.Command{
	Use:   "draw <patches.json|patches.cbor>",
	Short: "Plan a drawing and stream it to the arm",
	Long: `Load a patch file, plan the joint trajectory from the current pose and
stream it to the firmware (or simulate it when no firmware answers).

The trajectory starts with a pen-up move from the current pose to the first
patch. When it exceeds the velocity or acceleration limits it is slowed down
(--safety=rescale, the default) or refused (--safety=reject).

Ctrl+C aborts the session and sends STOP to the firmware unless --no-halt is
given.`,
	Args: cobra.ExactArgs(1),
	RunE: runDraw,
}

func init() {
	rootCmd.AddCommand(drawCmd)
	drawCmd.Flags().BoolVar(&drawDryRun, "dry-run", false, "Plan and validate only")
	drawCmd.Flags().StringVar(&drawRecord, "record", "", "Write the session recording to this CBOR file")
	drawCmd.Flags().BoolVar(&drawNoHalt, "no-halt", false, "Do not send STOP when interrupted")
	drawCmd.Flags().DurationVar(&drawProgress, "progress", time.Second, "Progress report interval")
}

func runDraw(cmd *cobra.Command, args []string) error {
	patches, err := recording.LoadPatches(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := openController(ctx, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("Quill - Draw\n")
	fmt.Printf("File: %s (%d patches)\n", args[0], len(patches))
	fmt.Printf("Connection: %s\n\n", connectionInfo(ctrl))

	if drawDryRun {
		if _, _, err := ctrl.CurrentPose(ctx); err != nil {
			return err
		}
		tr, res, err := ctrl.Plan(patches, config.Override{})
		if err != nil {
			return err
		}
		fmt.Printf("Points: %d  Duration: %.2f s  Max vel: %.3f rad/s  Max acc: %.3f rad/s²  Scale: %.2f\n",
			tr.Len(), tr.Duration(), res.MaxVel, res.MaxAcc, res.Scale)
		return nil
	}

	res := ctrl.StartTrajectory(ctx, patches, config.Override{})
	printResult(res)
	if !res.OK {
		return errors.New(res.Reason)
	}

	err = waitSession(ctx, res.Session, !drawNoHalt, ctrl.Stop)
	if drawRecord != "" {
		if serr := recording.Save(drawRecord, recording.FromSession(res.Session)); serr != nil {
			return serr
		}
		fmt.Printf("Recording written to %s\n", drawRecord)
	}
	return err
}

// waitSession reports progress until the session ends. Cancelling ctx stops
// it through stop.
func waitSession(ctx context.Context, s *executor.Session, halt bool, stop func(bool) controller.Result) error {
	ticker := time.NewTicker(drawProgress)
	defer ticker.Stop()

	for {
		select {
		case <-s.Done():
			err := s.Wait()
			switch {
			case err == nil:
				fmt.Printf("Done: %d/%d points in %s\n", s.Sent(), s.Total(), time.Since(s.Started()).Round(time.Millisecond))
			case errors.Is(err, executor.ErrAborted):
				fmt.Printf("Aborted after %d/%d points\n", s.Sent(), s.Total())
			}
			return err
		case <-ticker.C:
			fmt.Printf("  %s %5.1f%% (%d/%d)\n", s.Phase(), 100*s.Progress(), s.Sent(), s.Total())
		case <-ctx.Done():
			printResult(stop(halt))
			<-s.Done()
			fmt.Printf("Aborted after %d/%d points\n", s.Sent(), s.Total())
			return nil
		}
	}
}
