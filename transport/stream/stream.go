// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package stream adapts a blocking byte stream (serial port, TCP
// connection) to the non-blocking single byte interface of the ASCII codec.
package stream

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/modbus-ascii/modbus/ascii"
)

// DefaultBufferSize holds a few maximum size ASCII frames in each direction.
const DefaultBufferSize = 2048

// ErrClosed is returned after Close.
var ErrClosed = errors.New("stream: port closed")

// Port pumps bytes between an io.ReadWriteCloser and two bounded queues.
// ReadByte and WriteByte never block.
type Port struct {
	rwc io.ReadWriteCloser

	rx   chan byte
	tx   chan byte
	done chan struct{}

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts pumping rwc. size bounds each direction's queue; a non-positive
// size selects DefaultBufferSize.
func New(rwc io.ReadWriteCloser, size int) *Port {
	if size <= 0 {
		size = DefaultBufferSize
	}
	p := &Port{
		rwc:  rwc,
		rx:   make(chan byte, size),
		tx:   make(chan byte, size),
		done: make(chan struct{}),
	}
	p.wg.Add(2)
	go p.readLoop()
	go p.writeLoop()
	return p
}

// ReadByte returns the next received byte, ascii.ErrWouldBlock if none is
// queued, or the error that stopped the port once the queue is empty.
func (p *Port) ReadByte() (byte, error) {
	select {
	case b := <-p.rx:
		return b, nil
	default:
	}
	if err := p.Err(); err != nil {
		return 0, err
	}
	return 0, ascii.ErrWouldBlock
}

// WriteByte queues b for transmission or returns ascii.ErrWouldBlock when the
// queue is full.
func (p *Port) WriteByte(b byte) error {
	if err := p.Err(); err != nil {
		return err
	}
	select {
	case p.tx <- b:
		return nil
	default:
		return ascii.ErrWouldBlock
	}
}

// Discard drops every received byte still queued.
func (p *Port) Discard() int {
	n := 0
	for {
		select {
		case <-p.rx:
			n++
		default:
			return n
		}
	}
}

// Err returns the error that stopped the port, if any.
func (p *Port) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed when the port stops.
func (p *Port) Done() <-chan struct{} {
	return p.done
}

// Close stops both pumps and closes the underlying stream.
func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.setErr(ErrClosed)
		close(p.done)
		err = p.rwc.Close()
	})
	p.wg.Wait()
	return err
}

func (p *Port) setErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
	}
}

func (p *Port) fail(err error) {
	select {
	case <-p.done:
		return
	default:
	}
	slog.Debug("stream stopped", "err", err)
	p.setErr(fmt.Errorf("stream: %w", err))
}

func (p *Port) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, 256)
	for {
		n, err := p.rwc.Read(buf)
		for _, b := range buf[:n] {
			select {
			case p.rx <- b:
			case <-p.done:
				return
			}
		}
		if err != nil {
			p.fail(err)
			return
		}
	}
}

func (p *Port) writeLoop() {
	defer p.wg.Done()

	buf := make([]byte, 0, cap(p.tx))
	for {
		select {
		case <-p.done:
			return
		case b := <-p.tx:
			buf = append(buf[:0], b)
		}
		// batch whatever else is queued into one write
	drain:
		for len(buf) < cap(buf) {
			select {
			case b := <-p.tx:
				buf = append(buf, b)
			default:
				break drain
			}
		}
		if _, err := p.rwc.Write(buf); err != nil {
			p.fail(err)
			return
		}
	}
}
