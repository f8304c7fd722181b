// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/armlink"
)

var (
	handshakeTimeout time.Duration
	handshakeCount   int
)

var handshakeCmd = &cobra.Command{
	Use:   "handshake",
	Short: "Test the link by querying the firmware position",
	Long: `Connect to the firmware and send POSITION_QUERY frames, waiting for the
POSITION answer to each.

This verifies:
  - The port or bridge opens and the board comes out of reset
  - Frames reach the firmware
  - Answers come back with valid CRCs

Exit codes:
  0 - All queries answered
  1 - One or more queries timed out
  2 - Connection error`,
	RunE: runHandshake,
}

func init() {
	rootCmd.AddCommand(handshakeCmd)
	handshakeCmd.Flags().DurationVar(&handshakeTimeout, "timeout", time.Second, "Timeout for each query")
	handshakeCmd.Flags().IntVar(&handshakeCount, "count", 3, "Number of queries to send")
}

func runHandshake(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Quill - Handshake\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Queries: %d, timeout %s\n\n", handshakeCount, handshakeTimeout)

	// Reader goroutine delivers positions
	positions := make(chan *armlink.Packet, 8)
	go func() {
		decoder := armlink.NewDecoder()
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			for _, b := range buf[:n] {
				if p, _ := decoder.DecodeByte(b); p != nil && p.Type() == armlink.RespPosition {
					select {
					case positions <- p:
					default:
					}
				}
			}
			if err != nil {
				close(positions)
				return
			}
		}
	}()

	answered := 0
	for i := 1; i <= handshakeCount; i++ {
		start := time.Now()
		if _, err := conn.Write(armlink.EncodePositionQuery()); err != nil {
			fmt.Fprintf(os.Stderr, "Write error: %v\n", err)
			os.Exit(2)
		}

		select {
		case p, ok := <-positions:
			if !ok {
				fmt.Fprintf(os.Stderr, "Connection closed\n")
				os.Exit(2)
			}
			q0, q1, _ := p.Position()
			fmt.Printf("Query %d: answered in %s  q0=%.4f q1=%.4f\n", i, time.Since(start).Round(time.Microsecond), q0, q1)
			answered++
		case <-time.After(handshakeTimeout):
			fmt.Printf("Query %d: \033[1;31mtimeout\033[0m\n", i)
		case <-ctx.Done():
			return nil
		}

		if i < handshakeCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n%d/%d queries answered\n", answered, handshakeCount)
	if answered < handshakeCount {
		os.Exit(1)
	}
	return nil
}
