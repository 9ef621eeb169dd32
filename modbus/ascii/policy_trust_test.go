// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build asciitrustlrc

package ascii

import (
	"bytes"
	"testing"
)

func TestTrustedLRC_BadChecksumAccepted(t *testing.T) {
	var f Frame
	n, err := DecodeFrame([]byte(":1103000AE3\r\n"), &f)
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
	if f.Address != 0x11 || f.Function != 0x03 || !bytes.Equal(f.Payload(n), []byte{0x00, 0x0A}) {
		t.Errorf("frame = %02X %02X % X", f.Address, f.Function, f.Payload(n))
	}
}

// Without a checksum byte there is nothing to hold back: an empty payload.
func TestTrustedLRC_MissingChecksum(t *testing.T) {
	var f Frame
	n, err := DecodeFrame([]byte(":1103\r\n"), &f)
	if err != nil || n != 0 {
		t.Fatalf("n, err = %d, %v, want 0, nil", n, err)
	}
	if f.Address != 0x11 || f.Function != 0x03 {
		t.Errorf("header = %02X %02X, want 11 03", f.Address, f.Function)
	}
}
