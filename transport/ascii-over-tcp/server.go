// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package asciiovertcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/modbus-ascii/internal/config"
	"github.com/ffutop/modbus-ascii/transport"
	"github.com/ffutop/modbus-ascii/transport/ascii"
	"github.com/ffutop/modbus-ascii/transport/stream"
)

// Server implements a Modbus ASCII over TCP Server (Upstream).
// Every accepted connection is an independent ASCII line.
type Server struct {
	Address  string
	Config   config.SerialConfig // codec settings; the serial fields are unused
	Observer ascii.Observer

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new ASCII over TCP Server.
func NewServer(address string, cfg config.SerialConfig) *Server {
	config.FixupSerial(&cfg)
	return &Server{
		Address: address,
		Config:  cfg,
	}
}

// Start listens on Address and serves connections until ctx is done.
func (s *Server) Start(ctx context.Context, handler transport.RequestHandler) error {
	listener, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.Address, err)
	}
	return s.Serve(ctx, listener, handler)
}

// Serve accepts connections on listener until ctx is done.
func (s *Server) Serve(ctx context.Context, listener net.Listener, handler transport.RequestHandler) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	slog.Info("ASCII over TCP server listening", "addr", listener.Addr())

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("Failed to accept connection", "err", err)
			continue
		}
		go s.handleConnection(ctx, conn, handler)
	}
}

// Close closes the server listener.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		err := s.listener.Close()
		s.listener = nil
		return err
	}
	return nil
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler transport.RequestHandler) {
	port := stream.New(conn, 0)
	defer port.Close()
	slog.Info("New ASCII over TCP client connected", "addr", conn.RemoteAddr())

	cfg := s.Config
	cfg.Device = conn.RemoteAddr().String()
	line := &ascii.Server{Config: cfg, Observer: s.Observer}

	err := line.Serve(ctx, port, handler)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		slog.Info("ASCII over TCP client disconnected", "addr", conn.RemoteAddr())
	default:
		slog.Error("ASCII over TCP connection failed", "addr", conn.RemoteAddr(), "err", err)
	}
}
