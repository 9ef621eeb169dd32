// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-ascii/modbus"
)

func TestServer_Start_And_Handle(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(l.Addr().String())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
		if slaveID != 1 {
			t.Errorf("Handler expected slaveID 1, got %d", slaveID)
		}
		return modbus.ProtocolDataUnit{FunctionCode: pdu.FunctionCode, Data: []byte{0x02, 0xAA, 0xBB}}, nil
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ctx, l, handler)
	}()

	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("Failed to connect to server: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(time.Second))

	// two requests in one segment must get two responses
	var batch []byte
	for _, tid := range []uint16{123, 124} {
		req := &ApplicationDataUnit{TransactionID: tid, SlaveID: 1, Pdu: modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x01, 0x00, 0x01}}}
		raw, _ := req.Encode()
		batch = append(batch, raw...)
	}
	if _, err := conn.Write(batch); err != nil {
		t.Fatalf("Failed to write request: %v", err)
	}

	for _, tid := range []uint16{123, 124} {
		resp, err := ReadADU(conn)
		if err != nil {
			t.Fatalf("Failed to read response: %v", err)
		}
		if resp.TransactionID != tid {
			t.Errorf("Wrong TransID: %v, want %v", resp.TransactionID, tid)
		}
		if resp.Pdu.FunctionCode != 0x03 || !bytes.Equal(resp.Pdu.Data, []byte{0x02, 0xAA, 0xBB}) {
			t.Errorf("Wrong PDU: %+v", resp.Pdu)
		}
	}

	cancel()
	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_LifeCycle(t *testing.T) {
	s := NewServer("127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.Start(ctx, func(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
			return pdu, nil
		})
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("server did not stop")
	}
}
