// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/logging"
	"github.com/Thermoquad/quill/pkg/motion"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Environment and logging flags
	envFile   string
	logLevel  string
	logFormat string
	logFile   string

	safetyPolicy string

	// Set by the root PersistentPreRunE
	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "Host controller for a two-link drawing arm",
	Long: `Quill - plan, validate and stream drawings to a two-link planar arm.

Drawings are lists of line and arc patches in Cartesian coordinates. Quill
slices them into joint-space trajectories with cycloidal timing, checks them
against the velocity and acceleration limits, and streams them to the
firmware over a framed, CRC-32 protected serial protocol. Without firmware
every command runs in simulation.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]   (auto-discovered when omitted)
  WebSocket: --url ws://host/path [--username user]

Configuration is read from QUILL_* environment variables, optionally loaded
from a .env file, and overridden by flags. For WebSocket authentication the
password is read from QUILL_PASSWORD, or prompted interactively if not set.`,
	Version:           "0.3.0",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&portName, "port", "p", "", "Serial port device (auto-discover when empty)")
	pf.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	pf.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	pf.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	pf.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	pf.StringVar(&envFile, "env-file", ".env", "Environment file with QUILL_* settings")
	pf.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "console", "Log format (console, json)")
	pf.StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated")

	pf.StringVar(&safetyPolicy, "safety", string(motion.PolicyRescale), "Over-limit trajectories: rescale or reject")
}

// setup builds cfg and logger: defaults, then the environment, then flags.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.Load(envFile); err != nil && cmd.Flags().Changed("env-file") {
		return fmt.Errorf("load %s: %w", envFile, err)
	}
	cfg = config.FromEnv()

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Serial.URL = wsURL
	}
	if flags.Changed("username") {
		cfg.Serial.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Serial.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("safety") {
		policy, err := motion.ParseSafetyPolicy(safetyPolicy)
		if err != nil {
			return err
		}
		cfg.Motion.Safety = policy
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var err error
	logger, err = logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	return err
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
