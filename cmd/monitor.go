// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/recording"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [patches.json|patches.cbor]",
	Short: "Interactive TUI for watching and driving the arm",
	Long: `Watch the arm in an interactive terminal UI.

Shows the joint angles and pen position as reported by the firmware (or the
simulator), the progress of the running session, link statistics and an
event log. When a patch file is given, 'd' draws it.

Keys:
  d  draw the patch file
  s  stop the session and halt the firmware
  h  home
  q  quit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	var patchFile string
	var patches []motion.PathPatch
	if len(args) == 1 {
		patchFile = args[0]
		var err error
		if patches, err = recording.LoadPatches(patchFile); err != nil {
			return err
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	events := make(chan eventMsg, 64)
	ctrl, err := openController(ctx, func(p *armlink.Packet) {
		var ev eventMsg
		switch p.Type() {
		case armlink.RespAck:
			ev = eventMsg{timestamp: time.Now(), message: "firmware ACK"}
		case armlink.RespNack:
			ev = eventMsg{timestamp: time.Now(), message: "firmware NACK", isError: true}
		default:
			return
		}
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	p := tea.NewProgram(initialMonitorModel(ctx, ctrl, patchFile, patches), tea.WithAltScreen())

	states, unsubscribe := ctrl.State().Subscribe(4)
	defer unsubscribe()
	go func() {
		for {
			select {
			case st, ok := <-states:
				if !ok {
					return
				}
				p.Send(stateMsg(st))
			case ev := <-events:
				p.Send(ev)
			case <-ctx.Done():
				p.Quit()
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	if ctrl.Executor().Busy() {
		printResult(ctrl.Stop(true))
	}
	return nil
}
