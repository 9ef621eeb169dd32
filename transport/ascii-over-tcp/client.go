// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package asciiovertcp carries MODBUS ASCII frames over TCP, as spoken by
// serial device servers that bridge a raw TCP socket to an RS-485 line.
package asciiovertcp

import (
	"context"
	"net"
	"time"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	"github.com/ffutop/modbus-ascii/transport/stream"
)

const (
	tcpTimeout = 10 * time.Second
)

// NewClient returns an ASCII master whose line is a TCP connection to
// address. The connection is dialled on first use and again after it fails.
func NewClient(address string, cfg config.SerialConfig) *ascii.Client {
	if cfg.Device == "" {
		cfg.Device = address
	}
	client := ascii.NewClient(cfg)
	client.Dial = func(ctx context.Context) (ascii.Port, error) {
		d := net.Dialer{Timeout: tcpTimeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, err
		}
		return stream.New(conn, 0), nil
	}
	return client
}
