// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// ProtocolDataUnit is a function code and its data, passed through untouched.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// Exception codes produced by the gateway itself.
const (
	ExceptionGatewayPathUnavailable = 0x0A
	ExceptionGatewayTargetFailed    = 0x0B
)

// Exception builds the exception response to a request with function code fc.
func Exception(fc, code byte) ProtocolDataUnit {
	return ProtocolDataUnit{
		FunctionCode: fc | 0x80,
		Data:         []byte{code},
	}
}
