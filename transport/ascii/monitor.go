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

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/modbus"
	asciiframe "github.com/ffutop/modbus-ascii/modbus/ascii"
)

// Monitor listens to a line without ever transmitting and reports every
// frame, good or bad, to its Observer.
type Monitor struct {
	Config   config.SerialConfig
	Observer Observer

	mu   sync.Mutex
	port Port
}

// NewMonitor creates a new passive Monitor.
func NewMonitor(cfg config.SerialConfig) *Monitor {
	config.FixupSerial(&cfg)
	return &Monitor{Config: cfg}
}

// Start opens the serial line and reports frames until ctx is done.
func (m *Monitor) Start(ctx context.Context) error {
	port, err := openPort(m.Config)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", m.Config.Device, err)
	}
	m.mu.Lock()
	m.port = port
	m.mu.Unlock()
	defer m.Close()
	slog.Info("ASCII Monitor listening", "device", m.Config.Device)

	return m.watch(ctx, port)
}

// Close closes the serial line.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.port != nil {
		err = m.port.Close()
		m.port = nil
	}
	return err
}

func (m *Monitor) watch(ctx context.Context, port Port) error {
	codec := newCodec(port, m.Config)
	var frame asciiframe.Frame
	slog.Debug("watching ASCII line", "device", m.Config.Device, "frameTimeout", codec.Timeout())

	for {
		n, err := poll(ctx, m.Config.PollInterval, func() (int, error) {
			return codec.Read(&frame)
		})
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, asciiframe.ErrTimeout),
			errors.Is(err, asciiframe.ErrChecksumMismatch),
			errors.Is(err, asciiframe.ErrInvalidDigit):
			m.Observer.emit(m.Config.Device, Received, 0, modbus.ProtocolDataUnit{}, err)
		case err != nil:
			return fmt.Errorf("ASCII monitor on %s stopped: %w", m.Config.Device, err)
		default:
			m.Observer.emit(m.Config.Device, Received, frame.Address, fromFrame(&frame, n), nil)
		}
	}
}
