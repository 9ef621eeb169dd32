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
	"github.com/ffutop/modbus-ascii/transport"
)

// Server implements a Modbus ASCII Server (Upstream).
// It acts as the slave side of a serial line, answering an external Master.
type Server struct {
	Config   config.SerialConfig
	Observer Observer

	mu   sync.Mutex
	port Port
}

// NewServer creates a new ASCII Server.
func NewServer(cfg config.SerialConfig) *Server {
	config.FixupSerial(&cfg)
	return &Server{Config: cfg}
}

// Start opens the serial line and serves requests until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	port, err := openPort(s.Config)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.Config.Device, err)
	}
	s.mu.Lock()
	s.port = port
	s.mu.Unlock()
	defer s.Close()
	slog.Info("ASCII Server listening", "device", s.Config.Device)

	return s.Serve(ctx, port, handler)
}

// Close closes the serial line.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.port != nil {
		err = s.port.Close()
		s.port = nil
	}
	return err
}

// Serve answers requests arriving on port until ctx is done or the port fails.
// The caller owns port.
func (s *Server) Serve(ctx context.Context, port Port, handler transport.RequestHandler) error {
	codec := newCodec(port, s.Config)
	var req, resp asciiframe.Frame
	slog.Debug("serving ASCII line", "device", s.Config.Device, "frameTimeout", codec.Timeout(), "strictHex", s.Config.StrictHex)

	for {
		n, err := poll(ctx, s.Config.PollInterval, func() (int, error) {
			return codec.Read(&req)
		})
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, asciiframe.ErrTimeout),
			errors.Is(err, asciiframe.ErrChecksumMismatch),
			errors.Is(err, asciiframe.ErrInvalidDigit):
			// the frame is lost, the line is not
			slog.Debug("dropped ASCII frame", "device", s.Config.Device, "err", err)
			s.Observer.emit(s.Config.Device, Received, 0, modbus.ProtocolDataUnit{}, err)
			continue
		case err != nil:
			return fmt.Errorf("ASCII server on %s stopped: %w", s.Config.Device, err)
		}

		slaveID := req.Address
		pdu := fromFrame(&req, n)
		s.Observer.emit(s.Config.Device, Received, slaveID, pdu, nil)

		respPdu, err := handler(ctx, slaveID, pdu)
		if err != nil {
			slog.Error("Upstream handler failed", "device", s.Config.Device, "slaveID", slaveID, "err", err)
			continue
		}
		if slaveID == 0 {
			continue // broadcasts are not answered
		}

		m, err := toFrame(&resp, slaveID, respPdu)
		if err == nil && m == 0 {
			err = asciiframe.ErrInvalidArgument
		}
		if err == nil {
			_, err = poll(ctx, s.Config.PollInterval, func() (int, error) {
				return codec.Write(&resp, m)
			})
		}
		s.Observer.emit(s.Config.Device, Sent, slaveID, respPdu, err)
		if err != nil {
			codec.CancelWrite()
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to write ASCII response", "device", s.Config.Device, "slaveID", slaveID, "err", err)
		}
	}
}
