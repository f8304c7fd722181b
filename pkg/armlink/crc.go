// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package armlink

import "hash/crc32"

// CalculateCRC computes the CRC-32 (IEEE 802.3) checksum over the
// concatenation of parts.
func CalculateCRC(parts ...[]byte) uint32 {
	var crc uint32
	for _, p := range parts {
		crc = crc32.Update(crc, crc32.IEEETable, p)
	}
	return crc
}
