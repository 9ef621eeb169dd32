// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ascii carries Modbus PDUs over a MODBUS ASCII serial line.
//
// The frame codec never blocks; this package drives it from blocking,
// context-aware calls by polling on a short ticker.
package ascii

import (
	"context"
	"errors"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
	"github.com/ffutop/modbus-ascii/transport/serial"
)

// Port is a non-blocking byte channel, usually a *stream.Port.
type Port interface {
	asciiframe.Transport
	Discard() int
	// Err reports why the port stopped moving bytes, nil while it works.
	Err() error
	Close() error
}

// Direction of a frame on the line.
type Direction string

const (
	Received Direction = "rx"
	Sent     Direction = "tx"
)

// Event describes one frame moved, or lost, on a line.
type Event struct {
	Time      time.Time
	Device    string
	Direction Direction
	SlaveID   byte
	Pdu       modbus.ProtocolDataUnit
	Err       error
}

// Observer is told about every frame a link reads or writes.
type Observer func(Event)

func openPort(cfg config.SerialConfig) (Port, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return port, nil
}

func newCodec(port Port, cfg config.SerialConfig) *asciiframe.Codec {
	opts := []asciiframe.Option{asciiframe.WithTimeout(cfg.FrameTimeout)}
	if cfg.StrictHex {
		opts = append(opts, asciiframe.WithStrictHex())
	}
	return asciiframe.New(port, opts...)
}

// poll calls step until it returns something other than ErrWouldBlock.
func poll(ctx context.Context, interval time.Duration, step func() (int, error)) (int, error) {
	n, err := step()
	if !errors.Is(err, asciiframe.ErrWouldBlock) {
		return n, err
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
		n, err = step()
		if !errors.Is(err, asciiframe.ErrWouldBlock) {
			return n, err
		}
	}
}

// toFrame loads a PDU into f and returns the payload length.
func toFrame(f *asciiframe.Frame, slaveID byte, pdu modbus.ProtocolDataUnit) (int, error) {
	f.Address = slaveID
	f.Function = pdu.FunctionCode
	return f.SetPayload(pdu.Data)
}

// fromFrame copies the PDU out of f; f is reused for the next frame.
func fromFrame(f *asciiframe.Frame, n int) modbus.ProtocolDataUnit {
	data := make([]byte, n)
	copy(data, f.Payload(n))
	return modbus.ProtocolDataUnit{
		FunctionCode: f.Function,
		Data:         data,
	}
}

func (o Observer) emit(device string, dir Direction, slaveID byte, pdu modbus.ProtocolDataUnit, err error) {
	if o == nil {
		return
	}
	o(Event{
		Time:      time.Now(),
		Device:    device,
		Direction: dir,
		SlaveID:   slaveID,
		Pdu:       pdu,
		Err:       err,
	})
}
