// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Thermoquad/quill/pkg/motion"
)

// EnvPrefix prefixes every environment variable read by FromEnv.
const EnvPrefix = "QUILL_"

// Load reads .env files into the process environment. Pass one or more paths
// to load specific files; with no paths, ".env" is used. A missing file is
// returned as an error that callers may ignore.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv returns the defaults overridden by QUILL_* environment variables.
func FromEnv() Config {
	c := Default()

	c.Serial.Port = GetEnv(EnvPrefix+"PORT", c.Serial.Port)
	c.Serial.URL = GetEnv(EnvPrefix+"URL", c.Serial.URL)
	c.Serial.Username = GetEnv(EnvPrefix+"USERNAME", c.Serial.Username)
	c.Serial.Password = GetEnv(EnvPrefix+"PASSWORD", c.Serial.Password)
	c.Serial.Baud = GetEnvInt(EnvPrefix+"BAUD", c.Serial.Baud)
	if s := GetEnv(EnvPrefix+"CANDIDATES", ""); s != "" {
		c.Serial.Candidates = strings.Split(s, ",")
	}
	c.Serial.RebootWait = GetEnvDuration(EnvPrefix+"REBOOT_WAIT", c.Serial.RebootWait)
	c.Serial.HandshakeTimeout = GetEnvDuration(EnvPrefix+"HANDSHAKE_TIMEOUT", c.Serial.HandshakeTimeout)

	c.Robot.Sizes.L1 = GetEnvFloat(EnvPrefix+"L1", c.Robot.Sizes.L1)
	c.Robot.Sizes.L2 = GetEnvFloat(EnvPrefix+"L2", c.Robot.Sizes.L2)

	c.Motion.Tc = GetEnvFloat(EnvPrefix+"TC", c.Motion.Tc)
	c.Motion.MaxAcc = GetEnvFloat(EnvPrefix+"MAX_ACC", c.Motion.MaxAcc)
	c.Motion.MaxSpeed = GetEnvFloat(EnvPrefix+"MAX_SPEED", c.Motion.MaxSpeed)
	c.Motion.AccToleranceFactor = GetEnvFloat(EnvPrefix+"ACC_TOLERANCE", c.Motion.AccToleranceFactor)
	c.Motion.Safety = motion.SafetyPolicy(GetEnv(EnvPrefix+"SAFETY", string(c.Motion.Safety)))

	c.Stream.Period = GetEnvDuration(EnvPrefix+"STREAM_PERIOD", c.Stream.Period)
	c.Stream.BatchSize = GetEnvInt(EnvPrefix+"BATCH_SIZE", c.Stream.BatchSize)

	c.Feed.Addr = GetEnv(EnvPrefix+"FEED_ADDR", c.Feed.Addr)

	c.Log.Level = GetEnv(EnvPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv(EnvPrefix+"LOG_FORMAT", c.Log.Format)
	c.Log.File = GetEnv(EnvPrefix+"LOG_FILE", c.Log.File)

	return c
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat is GetEnvInt for floating point values.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}

// GetEnvDuration parses values such as "40ms" or "2s".
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
