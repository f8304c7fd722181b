// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/transport"
)

var rawLogHex bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw firmware frames in human-readable format",
	Long: `Continuously decode and display feedback frames as they arrive.

Each frame is shown with timestamp, message type and decoded payload. CRC
failures and unknown types are reported inline; bytes skipped while
resynchronizing are counted.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print the raw bytes of each frame")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	fmt.Printf("Quill - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := armlink.NewDecoder()
	buf := make([]byte, 128)
	var skipped uint64

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A closed link does not come back
			if errors.Is(err, transport.ErrBridgeClosed) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				log.Printf("Connection closed")
				return nil
			}
			log.Printf("Read error: %v", err)
			continue
		}

		for i := 0; i < n; i++ {
			packet, err := decoder.DecodeByte(buf[i])
			if d := decoder.Discarded(); d > skipped {
				fmt.Printf("[RESYNC] skipped %d bytes\n", d-skipped)
				skipped = d
			}
			if err != nil {
				fmt.Printf("[ERROR] %v\n", err)
				continue
			}
			if packet != nil {
				fmt.Print(armlink.FormatPacket(packet))
				if rawLogHex {
					fmt.Printf("  Raw: %s\n", armlink.FormatHex(decoder.GetRawBytes()))
				}
			}
		}
	}
}
