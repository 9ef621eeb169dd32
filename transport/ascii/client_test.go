// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package ascii

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/stream"
)

// newPipeClient returns a client whose serial line is the local end of a
// pipe; the test plays the slave on the remote end.
func newPipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	client := NewClient(config.SerialConfig{Device: "pipe", Timeout: 200 * time.Millisecond, RqstPause: time.Millisecond})
	// Inject the port so connect skips opening a device
	client.port = stream.New(local, 0)
	t.Cleanup(func() {
		client.Close()
		remote.Close()
	})
	return client, remote
}

func readFrame(t *testing.T, conn net.Conn, size int) []byte {
	t.Helper()
	buf := make([]byte, size)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Errorf("slave failed to read request: %v", err)
	}
	return buf
}

func TestClient_Send(t *testing.T) {
	client, remote := newPipeClient(t)

	var events []Event
	var mu sync.Mutex
	client.Observer = func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	expectedReq := []byte(":1103006B00037E\r\n")
	go func() {
		got := readFrame(t, remote, len(expectedReq))
		if !bytes.Equal(got, expectedReq) {
			t.Errorf("Request mismatch.\nWant: %q\nGot:  %q", expectedReq, got)
		}
		remote.Write([]byte(":110302002AC0\r\n"))
	}()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x6B, 0x00, 0x03}}
	resp, err := client.Send(context.Background(), 0x11, pdu)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if resp.FunctionCode != 0x03 {
		t.Errorf("Response Func mismatch: %02X", resp.FunctionCode)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x00, 0x2A}) {
		t.Errorf("Response Data mismatch: %X", resp.Data)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0].Direction != Sent || events[1].Direction != Received {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestClient_IgnoresOtherSlave(t *testing.T) {
	client, remote := newPipeClient(t)

	go func() {
		readFrame(t, remote, len(":1103006B00037E\r\n"))
		// 0x12 answers first, then the addressed slave
		remote.Write([]byte(":120302002ABF\r\n:110302002AC0\r\n"))
	}()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x6B, 0x00, 0x03}}
	resp, err := client.Send(context.Background(), 0x11, pdu)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !bytes.Equal(resp.Data, []byte{0x02, 0x00, 0x2A}) {
		t.Errorf("Response Data mismatch: %X", resp.Data)
	}
}

func TestClient_ChecksumError(t *testing.T) {
	client, remote := newPipeClient(t)

	go func() {
		readFrame(t, remote, len(":1103006B00037E\r\n"))
		remote.Write([]byte(":110302002AFF\r\n")) // Bad LRC
	}()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x6B, 0x00, 0x03}}
	_, err := client.Send(context.Background(), 0x11, pdu)
	if !errors.Is(err, asciiframe.ErrChecksumMismatch) {
		t.Fatalf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestClient_Timeout(t *testing.T) {
	client, remote := newPipeClient(t)
	go io.Copy(io.Discard, remote) // a slave that never answers

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	_, err := client.Send(context.Background(), 0x01, pdu)
	if !errors.Is(err, ErrRequestTimedOut) {
		t.Fatalf("err = %v, want ErrRequestTimedOut", err)
	}
}

func TestClient_Broadcast(t *testing.T) {
	client, remote := newPipeClient(t)
	go io.Copy(io.Discard, remote)

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x06, Data: []byte{0x00, 0x01, 0x00, 0x03}}
	start := time.Now()
	if _, err := client.Send(context.Background(), 0x00, pdu); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if time.Since(start) >= client.Config.Timeout {
		t.Error("broadcast waited for a reply")
	}
}

func TestClient_EmptyData(t *testing.T) {
	client, _ := newPipeClient(t)

	_, err := client.Send(context.Background(), 0x01, modbus.ProtocolDataUnit{FunctionCode: 0x07})
	if !errors.Is(err, asciiframe.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestClient_ContextCanceled(t *testing.T) {
	client, remote := newPipeClient(t)
	go io.Copy(io.Discard, remote)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	client.Config.Timeout = time.Second

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	_, err := client.Send(ctx, 0x01, pdu)
	if err == nil {
		t.Fatal("expected error after context deadline")
	}
	if client.codec.ReadState() != asciiframe.StateStart {
		t.Errorf("codec left in %v", client.codec.ReadState())
	}
}
