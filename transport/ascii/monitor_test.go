// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package ascii

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/stream"
)

func TestMonitor_Watch(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()
	port := stream.New(local, 0)
	defer port.Close()

	events := make(chan Event, 4)
	m := NewMonitor(config.SerialConfig{Device: "pipe"})
	m.Observer = func(ev Event) { events <- ev }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.watch(ctx, port) }()

	// request, corrupted response, good response
	remote.Write([]byte(":1103006B00037E\r\n:110302002AC1\r\n:110302002AC0\r\n"))

	next := func() Event {
		t.Helper()
		select {
		case ev := <-events:
			return ev
		case <-time.After(time.Second):
			t.Fatal("no event")
		}
		return Event{}
	}

	ev := next()
	if ev.Err != nil || ev.SlaveID != 0x11 || !bytes.Equal(ev.Pdu.Data, []byte{0x00, 0x6B, 0x00, 0x03}) {
		t.Errorf("request event: %+v", ev)
	}
	ev = next()
	if !errors.Is(ev.Err, asciiframe.ErrChecksumMismatch) {
		t.Errorf("corrupt event err = %v, want checksum mismatch", ev.Err)
	}
	ev = next()
	if ev.Err != nil || ev.Direction != Received || !bytes.Equal(ev.Pdu.Data, []byte{0x02, 0x00, 0x2A}) {
		t.Errorf("response event: %+v", ev)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
}
