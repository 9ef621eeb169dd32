// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ascii

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
)

var ErrRequestTimedOut = errors.New("modbus: request timed out")

// Client implements Downstream interface (Modbus ASCII Master).
// One request is in flight per line at a time.
type Client struct {
	Config   config.SerialConfig
	Observer Observer
	// Dial opens the line; nil opens Config.Device as a serial port.
	Dial func(ctx context.Context) (Port, error)

	mu       sync.Mutex
	port     Port
	codec    *asciiframe.Codec
	lastDone time.Time

	// request and response frames are reused between transactions
	req  asciiframe.Frame
	resp asciiframe.Frame
}

// NewClient allocates and initializes an ASCII Client.
func NewClient(cfg config.SerialConfig) *Client {
	config.FixupSerial(&cfg)
	return &Client{Config: cfg}
}

// Connect opens the serial line if it is not open yet.
func (mb *Client) Connect(ctx context.Context) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return mb.connect(ctx)
}

// connect opens the line. Caller must hold the mutex.
func (mb *Client) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if mb.port == nil {
		var port Port
		var err error
		if mb.Dial != nil {
			port, err = mb.Dial(ctx)
		} else {
			port, err = openPort(mb.Config)
		}
		if err != nil {
			return err
		}
		mb.port = port
	}
	if mb.codec == nil {
		mb.codec = newCodec(mb.port, mb.Config)
	}
	return nil
}

// Close closes the serial line.
func (mb *Client) Close() error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.close()
}

// close releases the line. Caller must hold the mutex.
func (mb *Client) close() error {
	var err error
	if mb.port != nil {
		err = mb.port.Close()
		mb.port = nil
		mb.codec = nil
	}
	return err
}

// dropBroken closes a line that has failed so the next Send reopens it.
func (mb *Client) dropBroken() {
	if mb.port == nil {
		return
	}
	if err := mb.port.Err(); err != nil {
		slog.Warn("ASCII line failed, reopening on next request", "device", mb.Config.Device, "err", err)
		mb.close()
	}
}

// Send sends a PDU to the Downstream Slave and waits for its reply.
// Address 0 is a broadcast: nothing is read back.
func (mb *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if err := mb.pause(ctx); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	defer func() { mb.lastDone = time.Now() }()

	if err := mb.write(ctx, slaveID, pdu); err != nil {
		mb.Observer.emit(mb.Config.Device, Sent, slaveID, pdu, err)
		mb.dropBroken()
		return modbus.ProtocolDataUnit{}, err
	}
	mb.Observer.emit(mb.Config.Device, Sent, slaveID, pdu, nil)

	if slaveID == 0 {
		return modbus.ProtocolDataUnit{}, nil
	}

	resp, err := mb.read(ctx, slaveID)
	mb.Observer.emit(mb.Config.Device, Received, slaveID, resp, err)
	if err != nil {
		mb.dropBroken()
	}
	return resp, err
}

// pause keeps RqstPause between the end of one transaction and the next.
func (mb *Client) pause(ctx context.Context) error {
	wait := mb.Config.RqstPause - time.Since(mb.lastDone)
	if mb.lastDone.IsZero() || wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (mb *Client) write(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) error {
	n, err := toFrame(&mb.req, slaveID, pdu)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("modbus ascii: function 0x%02X without data: %w", pdu.FunctionCode, asciiframe.ErrInvalidArgument)
	}

	// anything still queued belongs to an earlier, abandoned exchange
	if stale := mb.port.Discard(); stale > 0 {
		slog.Debug("discarded stale input", "device", mb.Config.Device, "bytes", stale)
	}
	mb.codec.CancelRead()

	slog.Debug("send to modbus slave", "device", mb.Config.Device, "slaveID", slaveID, "func", pdu.FunctionCode, "len", n)
	_, err = poll(ctx, mb.Config.PollInterval, func() (int, error) {
		return mb.codec.Write(&mb.req, n)
	})
	if err != nil {
		mb.codec.CancelWrite()
		return fmt.Errorf("failed to write ASCII frame: %w", err)
	}
	return nil
}

func (mb *Client) read(ctx context.Context, slaveID byte) (modbus.ProtocolDataUnit, error) {
	ctx, cancel := context.WithTimeout(ctx, mb.Config.Timeout)
	defer cancel()

	for {
		n, err := poll(ctx, mb.Config.PollInterval, func() (int, error) {
			return mb.codec.Read(&mb.resp)
		})
		if err != nil {
			mb.codec.CancelRead()
			if errors.Is(err, context.DeadlineExceeded) {
				return modbus.ProtocolDataUnit{}, ErrRequestTimedOut
			}
			return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to read ASCII frame: %w", err)
		}

		// Slave address must match
		if mb.resp.Address != slaveID {
			slog.Debug("ignoring frame from another slave", "device", mb.Config.Device, "want", slaveID, "got", mb.resp.Address)
			continue
		}
		slog.Debug("recv from modbus slave", "device", mb.Config.Device, "slaveID", slaveID, "func", mb.resp.Function, "len", n)
		return fromFrame(&mb.resp, n), nil
	}
}
