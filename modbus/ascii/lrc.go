// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

// LRC is the running longitudinal redundancy check of an ASCII frame.
type LRC struct {
	sum byte
}

// Reset clears the running sum.
func (l *LRC) Reset() *LRC {
	l.sum = 0
	return l
}

// Push adds bytes to the running sum.
func (l *LRC) Push(data ...byte) *LRC {
	for _, b := range data {
		l.sum += b
	}
	return l
}

// Sum returns the running sum modulo 256. A received frame, checksum byte
// included, is valid when Sum is zero.
func (l *LRC) Sum() byte {
	return l.sum
}

// Value returns the checksum to transmit: the two's complement of the sum.
func (l *LRC) Value() byte {
	return -l.sum
}
