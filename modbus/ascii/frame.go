// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import "fmt"

// Frame is one MODBUS ASCII message:
//
//	Address  : 1 byte
//	Function : 1 byte
//	Data     : 0 up to MaxDataSize bytes
//
// The payload length travels separately: Read returns it and Write takes it.
type Frame struct {
	Address  byte
	Function byte
	Data     [MaxDataSize]byte
}

// Payload returns the first n bytes of Data.
func (f *Frame) Payload(n int) []byte {
	if n < 0 {
		n = 0
	}
	if n > MaxDataSize {
		n = MaxDataSize
	}
	return f.Data[:n]
}

// SetPayload copies p into Data and returns its length.
func (f *Frame) SetPayload(p []byte) (int, error) {
	if len(p) > MaxDataSize {
		return 0, fmt.Errorf("modbus ascii: length of data '%v' must not be bigger than '%v': %w", len(p), MaxDataSize, ErrInvalidArgument)
	}
	return copy(f.Data[:], p), nil
}
