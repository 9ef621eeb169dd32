// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serial opens serial lines for the ASCII codec.
package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	gridx "github.com/grid-x/serial"
	bugst "go.bug.st/serial"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/transport/stream"
)

const (
	// Default read timeout of the underlying driver. A read timeout only
	// wakes the pump goroutine; frame timeouts are enforced by the codec.
	serialTimeout = 100 * time.Millisecond
)

// Open opens the line described by cfg and starts pumping it.
func Open(cfg config.SerialConfig) (*stream.Port, error) {
	rwc, err := OpenDevice(cfg)
	if err != nil {
		return nil, err
	}
	slog.Debug("serial line opened", "device", cfg.Device, "driver", cfg.Driver, "baudRate", cfg.BaudRate,
		"dataBits", cfg.DataBits, "parity", cfg.Parity, "stopBits", cfg.StopBits)
	return stream.New(rwc, 0), nil
}

// OpenDevice opens the raw device with the configured driver.
func OpenDevice(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	switch cfg.Driver {
	case "", "gridx":
		return openGridX(cfg)
	case "bugst":
		return openBugST(cfg)
	default:
		return nil, fmt.Errorf("unknown serial driver %q", cfg.Driver)
	}
}

func readTimeout(cfg config.SerialConfig) time.Duration {
	if cfg.Timeout > 0 && cfg.Timeout < serialTimeout {
		return cfg.Timeout
	}
	return serialTimeout
}

func gridXConfig(cfg config.SerialConfig) *gridx.Config {
	c := &gridx.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  readTimeout(cfg),
	}
	if cfg.RS485 {
		c.RS485.Enabled = true
		c.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		c.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		c.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		c.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		c.RS485.RxDuringTx = cfg.RxDuringTx
	}
	return c
}

func openGridX(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	port, err := gridx.Open(gridXConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	return &quietTimeout{ReadWriteCloser: port}, nil
}

// quietTimeout turns the driver's read timeout into an empty read so the
// pump keeps waiting instead of stopping.
type quietTimeout struct {
	io.ReadWriteCloser
}

func (q *quietTimeout) Read(p []byte) (int, error) {
	n, err := q.ReadWriteCloser.Read(p)
	if errors.Is(err, gridx.ErrTimeout) {
		return n, nil
	}
	return n, err
}

func bugSTMode(cfg config.SerialConfig) *bugst.Mode {
	mode := &bugst.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	switch cfg.Parity {
	case "E":
		mode.Parity = bugst.EvenParity
	case "O":
		mode.Parity = bugst.OddParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	return mode
}

func openBugST(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	if cfg.RS485 {
		slog.Warn("RS485 settings are ignored by the bugst driver", "device", cfg.Device)
	}
	port, err := bugst.Open(cfg.Device, bugSTMode(cfg))
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(readTimeout(cfg)); err != nil {
		port.Close()
		return nil, fmt.Errorf("could not set read timeout on %s: %w", cfg.Device, err)
	}
	return port, nil
}
