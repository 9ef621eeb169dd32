// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import "time"

const (
	// MaxADUSize is the largest serial ADU: address, function, data and checksum.
	MaxADUSize = 256

	// MaxDataSize is the largest payload a Frame can carry.
	MaxDataSize = MaxADUSize - 4

	// DefaultTimeout is the ceiling between the start of a frame and each
	// subsequent received byte.
	DefaultTimeout = time.Second
)

// Framing characters.
const (
	Start = ':'
	CR    = '\r'
	LF    = '\n'
)

// State is the protocol phase of an in-flight frame.
type State int

const (
	StateStart State = iota
	StateAddrFunc
	StateData
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateAddrFunc:
		return "ADDR_FUNC"
	case StateData:
		return "DATA"
	case StateEnd:
		return "END"
	default:
		return "UNKNOWN"
	}
}

// nibblePhase tracks which half of a byte the next hex digit carries.
type nibblePhase int

const (
	nibbleHigh nibblePhase = iota
	nibbleLow
)

// headerDigits is the number of hex digits carrying address and function.
const headerDigits = 4

// trailerChars is LRC high, LRC low, CR, LF.
const trailerChars = 4
