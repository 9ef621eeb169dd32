// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bytes"
	"testing"

	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestEncodeCmd(t *testing.T) {
	out, err := run(t, "encode", "0x11", "3", "000A")
	require.NoError(t, err)
	require.Equal(t, ":1103000AE2\n", out)

	_, err = run(t, "encode", "17", "3", "zz")
	require.Error(t, err)

	_, err = run(t, "encode", "256", "3", "00")
	require.Error(t, err)
}

func TestDecodeCmd(t *testing.T) {
	out, err := run(t, "decode", ":1103000AE2")
	require.NoError(t, err)
	require.Equal(t, "slave=17 function=0x03 data=000A\n", out)

	out, err = run(t, "decode", ":11830B61\r\n")
	require.NoError(t, err)
	require.Equal(t, "slave=17 function=0x83 data=0B exception=0x0B\n", out)

	_, err = run(t, "decode", ":1103000AE3")
	require.ErrorIs(t, err, asciiframe.ErrChecksumMismatch)
}

func TestParsePDU(t *testing.T) {
	slaveID, pdu, err := parsePDU([]string{"1", "0x10", "00 01 00 02"})
	require.NoError(t, err)
	require.Equal(t, byte(1), slaveID)
	require.Equal(t, byte(0x10), pdu.FunctionCode)
	require.Equal(t, []byte{0x00, 0x01, 0x00, 0x02}, pdu.Data)

	_, pdu, err = parsePDU([]string{"1", "7"})
	require.NoError(t, err)
	require.Empty(t, pdu.Data)
}
