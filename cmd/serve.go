// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/quill/pkg/feed"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the controller over HTTP and WebSocket",
	Long: `Run the controller behind an HTTP API for a drawing front end.

Routes:
  GET  /ws/state        WebSocket stream of arm snapshots
  GET  /api/state       current snapshot and session
  GET  /api/pose        query the firmware position
  POST /api/trajectory  {"patches": [...], "override": {...}}
  POST /api/stop        abort the session (?halt=false keeps the firmware running)
  POST /api/home        homing
  GET  /api/trajectory  last executed trajectory
  GET  /api/recording   last finished session as CBOR
  GET  /api/stats       link statistics
  GET  /metrics         Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from QUILL_FEED_ADDR or localhost:6969)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	ctrl, err := openController(ctx, nil)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	addr := cfg.Feed.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	fmt.Printf("Quill - Feed Server\n")
	fmt.Printf("Connection: %s\n", connectionInfo(ctrl))
	fmt.Printf("Listening on http://%s\n", addr)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	return feed.New(ctrl, logger.Named("feed")).ListenAndServe(ctx, addr)
}
