// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/armlink"
	"github.com/Thermoquad/quill/pkg/monitor"
	"github.com/Thermoquad/quill/pkg/robotstate"
	"github.com/Thermoquad/quill/pkg/transport"
)

var (
	linkStatsShowAll  bool
	linkStatsInterval time.Duration
	linkStatsQuery    time.Duration
)

var linkStatsCmd = &cobra.Command{
	Use:   "link_stats",
	Short: "Track frame errors and link statistics",
	Long: `Monitor the feedback stream and report link health.

Detects and counts:
  - CRC failures
  - Unknown frame types
  - Bytes skipped while resynchronizing

By default only errors are printed as they happen. Use --show-all to print
valid frames too. A statistics summary is printed at every --interval, and
position queries are sent at every --query so an idle firmware still talks.`,
	RunE: runLinkStats,
}

func init() {
	rootCmd.AddCommand(linkStatsCmd)
	linkStatsCmd.Flags().BoolVar(&linkStatsShowAll, "show-all", false, "Show all frames (not just errors)")
	linkStatsCmd.Flags().DurationVar(&linkStatsInterval, "interval", 10*time.Second, "Statistics summary interval")
	linkStatsCmd.Flags().DurationVar(&linkStatsQuery, "query", 200*time.Millisecond, "Position query interval (0 disables)")
}

// printFrameError prints a rejected frame in highlighted format
func printFrameError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	var crcErr *armlink.CRCError
	if errors.As(err, &crcErr) {
		fmt.Printf("[%s] \033[1;31mCRC ERROR:\033[0m %v\n", timestamp, err)
	} else {
		fmt.Printf("[%s] \033[1;33mFRAME ERROR:\033[0m %v\n", timestamp, err)
	}
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

func runLinkStats(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	conn, connInfo, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stats := armlink.NewStatistics()
	mon, err := monitor.New(monitor.Options{
		Stream:     cfg.Stream,
		State:      robotstate.New(nil),
		Statistics: stats,
		Logger:     logger.Named("monitor"),
		OnPacket: func(p *armlink.Packet) {
			if linkStatsShowAll {
				fmt.Print(armlink.FormatPacket(p))
			}
		},
		OnError: printFrameError,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Quill - Link Statistics\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	done := make(chan error, 1)
	go func() { done <- mon.Run(ctx, conn) }()

	summary := time.NewTicker(linkStatsInterval)
	defer summary.Stop()
	var query <-chan time.Time
	if linkStatsQuery > 0 {
		t := time.NewTicker(linkStatsQuery)
		defer t.Stop()
		query = t.C
	}

	for {
		select {
		case <-query:
			if _, err := conn.Write(armlink.EncodePositionQuery()); err != nil {
				return fmt.Errorf("send position query: %w", err)
			}
			stats.AddSent(1)
		case <-summary.C:
			fmt.Print(stats.Snapshot().String())
		case err := <-done:
			fmt.Print(stats.Snapshot().String())
			if err == nil || errors.Is(err, io.EOF) || errors.Is(err, transport.ErrBridgeClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
