// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/quill/pkg/robotstate"
)

// Publish pushes a state snapshot to subscribers every interval until ctx is
// done. It runs whether or not a link is attached.
func Publish(ctx context.Context, state *robotstate.State, interval time.Duration, clk clock.Clock) {
	if clk == nil {
		clk = clock.New()
	}
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state.Publish()
		}
	}
}
