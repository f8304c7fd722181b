// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Thermoquad/quill/pkg/motion"
)

// Format is a patch file encoding.
type Format string

// Patch file formats
const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".cbor":
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unknown patch file extension %q", filepath.Ext(path))
}

// DecodePatches parses a patch list and validates every patch.
func DecodePatches(data []byte, format Format) ([]motion.PathPatch, error) {
	var patches []motion.PathPatch
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &patches)
	case FormatCBOR:
		err = decMode.Unmarshal(data, &patches)
	default:
		return nil, fmt.Errorf("unknown patch format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode patches: %w", err)
	}
	if len(patches) == 0 {
		return nil, fmt.Errorf("decode patches: empty list")
	}
	for i, p := range patches {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("patch %d: %w", i, err)
		}
	}
	return patches, nil
}

// EncodePatches serializes patches.
func EncodePatches(patches []motion.PathPatch, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(patches, "", "  ")
	case FormatCBOR:
		return encMode.Marshal(patches)
	}
	return nil, fmt.Errorf("unknown patch format %q", format)
}

// LoadPatches reads a patch file, picking the format by extension.
func LoadPatches(path string) ([]motion.PathPatch, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePatches(data, format)
}
