// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recording exports drawing sessions and loads patch files.
//
// A session export holds the commanded trajectory next to the positions
// recorded while it ran, so both can be plotted against each other.
package recording

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/quill/pkg/executor"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

// Export is one recorded session.
type Export struct {
	Started    time.Time            `cbor:"started"`
	Simulated  bool                 `cbor:"simulated"`
	Aborted    bool                 `cbor:"aborted"`
	Sent       int                  `cbor:"sent"`
	Error      string               `cbor:"error,omitempty"`
	Trajectory *motion.Trajectory   `cbor:"trajectory"`
	Recording  robotstate.Recording `cbor:"recording"`
}

// FromSession captures a finished session.
func FromSession(s *executor.Session) Export {
	var reason string
	if err := s.Err(); err != nil {
		reason = err.Error()
	}
	return Export{
		Started:    s.Started(),
		Simulated:  s.Simulated(),
		Aborted:    s.Phase() == executor.PhaseAborted,
		Sent:       s.Sent(),
		Error:      reason,
		Trajectory: s.Trajectory(),
		Recording:  s.Recording(),
	}
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// WriteCBOR encodes e to w.
func WriteCBOR(w io.Writer, e Export) error {
	if err := encMode.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode recording: %w", err)
	}
	return nil
}

// ReadCBOR decodes one export from r.
func ReadCBOR(r io.Reader) (Export, error) {
	var e Export
	if err := decMode.NewDecoder(r).Decode(&e); err != nil {
		return Export{}, fmt.Errorf("decode recording: %w", err)
	}
	if e.Recording.Len() != len(e.Recording.Q0) || e.Recording.Len() != len(e.Recording.Q1) {
		return Export{}, fmt.Errorf("decode recording: unequal sample columns")
	}
	return e, nil
}

// Save writes e to path.
func Save(path string, e Export) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCBOR(f, e); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Open reads an export from path.
func Open(path string) (Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return Export{}, err
	}
	defer f.Close()
	return ReadCBOR(f)
}
