// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/transport"
)

var portsProbe bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports in discovery order",
	Long: `List the serial ports quill tries when --port is not given: USB ports
first, then other enumerated ports, then the fallback candidates.

With --probe each port is opened, reset and sent a position query; ports
whose firmware answers are marked.

Exit codes (with --probe):
  0 - At least one port answered
  1 - No port answered`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsProbe, "probe", false, "Handshake with every candidate")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	details := map[string]*enumerator.PortDetails{}
	list, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Debug("port enumeration failed", zap.Error(err))
	}
	for _, p := range list {
		details[p.Name] = p
	}

	d := newDialer()
	candidates := d.Candidates()
	if len(candidates) == 0 {
		fmt.Println("No candidate ports")
		os.Exit(1)
	}

	fmt.Printf("Quill - Serial Ports\n\n")
	found := 0
	for i, name := range candidates {
		line := fmt.Sprintf("%2d. %s", i+1, name)
		if p, ok := details[name]; ok && p.IsUSB {
			line += fmt.Sprintf("  USB %s:%s", p.VID, p.PID)
			if p.Product != "" {
				line += " " + p.Product
			}
			if p.SerialNumber != "" {
				line += " (" + p.SerialNumber + ")"
			}
		} else if !ok {
			line += "  (fallback)"
		}

		if portsProbe {
			status := probePort(ctx, d, name)
			if status == "" {
				found++
				status = "\033[1;32manswered\033[0m"
			}
			line += "  " + status
		}
		fmt.Println(line)
	}

	if portsProbe && found == 0 {
		fmt.Println("\nNo firmware answered")
		os.Exit(1)
	}
	return nil
}

// probePort returns "" when the firmware on name answers, or a short reason.
func probePort(ctx context.Context, d *transport.Dialer, name string) string {
	conn, err := d.OpenSerial(ctx, name)
	if err != nil {
		return "open failed: " + err.Error()
	}
	defer conn.Close()
	if err := transport.Handshake(ctx, conn, cfg.Serial.HandshakeTimeout, nil); err != nil {
		return "no answer"
	}
	return ""
}
