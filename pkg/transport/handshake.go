// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/Thermoquad/quill/pkg/armlink"
)

// ErrNoResponse is returned by Handshake when nothing valid arrives in time.
var ErrNoResponse = errors.New("no valid response")

const handshakePoll = 5 * time.Millisecond

type deadlineConn interface {
	SetReadDeadline(t time.Time) error
}

// Handshake sends a position query and waits for any valid response frame.
// The connection's reads must time out (serial read timeout or equivalent)
// for the deadline to be honoured.
func Handshake(ctx context.Context, conn Connection, timeout time.Duration, clk clock.Clock) error {
	if clk == nil {
		clk = clock.New()
	}
	if _, err := conn.Write(armlink.EncodePositionQuery()); err != nil {
		return fmt.Errorf("handshake: write: %w", err)
	}

	decoder := armlink.NewDecoder()
	deadline := clk.Now().Add(timeout)
	if dc, ok := conn.(deadlineConn); ok {
		if err := dc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("handshake: %w", err)
		}
		defer dc.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, 64)

	for clk.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			if p, _ := decoder.DecodeByte(b); p != nil {
				return nil
			}
		}
		if err != nil {
			return fmt.Errorf("handshake: read: %w", err)
		}
		if n == 0 {
			if err := sleep(ctx, clk, handshakePoll); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("handshake: %w within %v", ErrNoResponse, timeout)
}
