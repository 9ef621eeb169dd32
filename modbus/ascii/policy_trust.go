// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build asciitrustlrc

package ascii

// The transport is trusted: received checksums are not verified.
const verifyLRC = false
