// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import "errors"

var (
	// ErrWouldBlock means the operation is incomplete; call again later.
	// Transports return it when no byte is available or no room is left.
	ErrWouldBlock = errors.New("modbus ascii: would block")

	// ErrTimeout means a frame was started but not completed in time.
	// The partial frame is discarded.
	ErrTimeout = errors.New("modbus ascii: frame timed out")

	// ErrChecksumMismatch means a complete frame failed the LRC check.
	ErrChecksumMismatch = errors.New("modbus ascii: lrc mismatch")

	// ErrInvalidArgument is returned by Write for an empty or oversized payload.
	ErrInvalidArgument = errors.New("modbus ascii: invalid argument")

	// ErrInvalidDigit is returned in strict mode for a non-hex character.
	ErrInvalidDigit = errors.New("modbus ascii: invalid hex digit")

	// ErrInternalFault means the codec reached an impossible state.
	ErrInternalFault = errors.New("modbus ascii: internal fault")
)
