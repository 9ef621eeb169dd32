// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

// DecodeNibble maps '0'-'9' and 'A'-'F' to 0-15.
// Other characters produce an unspecified value; a bad digit is only
// detected later through the checksum.
func DecodeNibble(c byte) byte {
	if c <= '9' {
		return (c - '0') & 0x0f
	}
	return (c - '7') & 0x0f
}

// EncodeNibble maps 0-15 to an uppercase hex digit.
func EncodeNibble(v byte) byte {
	v &= 0x0f
	if v <= 9 {
		return v + '0'
	}
	return v + '7'
}

// ValidHexDigit reports whether c is an uppercase hex digit.
func ValidHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F')
}
